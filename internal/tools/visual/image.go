package visual

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/finsight/internal/tools"
	"github.com/haasonsaas/finsight/pkg/models"
)

// ImageTool produces an image specification for the canvas. The engine
// never renders pixels; the client resolves the spec against its own
// image pipeline.
type ImageTool struct{}

// NewImageTool creates the image-spec tool.
func NewImageTool() *ImageTool { return &ImageTool{} }

type imageInput struct {
	Title       string `json:"title" jsonschema:"required,description=Short title for the canvas artifact"`
	Description string `json:"description" jsonschema:"required,description=What the image should depict"`
	AltText     string `json:"alt_text,omitempty" jsonschema:"description=Accessibility text; defaults to the title"`
	Width       int    `json:"width,omitempty" jsonschema:"description=Pixel width between 64 and 4096"`
	Height      int    `json:"height,omitempty" jsonschema:"description=Pixel height between 64 and 4096"`
}

type imagePayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AltText     string `json:"alt_text"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

const (
	defaultImageSize = 1024
	minImageSize     = 64
	maxImageSize     = 4096
)

func (t *ImageTool) Name() string { return "create_image" }

func (t *ImageTool) Description() string {
	return "Create an image specification for the canvas. Describe the desired image; rendering happens downstream."
}

func (t *ImageTool) Schema() json.RawMessage {
	return tools.SchemaFor(&imageInput{})
}

func (t *ImageTool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
	var in imageInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Description) == "" {
		return nil, fmt.Errorf("image title and description must not be empty")
	}

	width, err := clampDimension("width", in.Width)
	if err != nil {
		return nil, err
	}
	height, err := clampDimension("height", in.Height)
	if err != nil {
		return nil, err
	}

	alt := in.AltText
	if alt == "" {
		alt = in.Title
	}

	return models.NewOutput(models.OutputImage, imagePayload{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		AltText:     alt,
		Width:       width,
		Height:      height,
	}), nil
}

func clampDimension(name string, v int) (int, error) {
	if v == 0 {
		return defaultImageSize, nil
	}
	if v < minImageSize || v > maxImageSize {
		return 0, fmt.Errorf("%s %d out of range [%d, %d]", name, v, minImageSize, maxImageSize)
	}
	return v, nil
}
