package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/finsight/pkg/models"
)

// Tool parameter limits to prevent resource exhaustion.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolInputSize is the maximum size of tool input JSON (1MB).
	MaxToolInputSize = 1 << 20
)

// ToolRegistry is the fixed mapping from tool name to input contract and
// executor. Dispatch never throws: unknown names, invalid input, and
// executor failures all come back as error-variant outputs so the model
// can recover.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool. A tool with the same name is replaced. The tool's
// schema is compiled here so invalid declarations fail at startup rather
// than at dispatch time.
func (r *ToolRegistry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" || len(name) > MaxToolNameLength {
		return fmt.Errorf("invalid tool name: %q", name)
	}

	compiler := jsonschema.NewCompiler()
	url := "registry:///" + name + ".json"
	if err := compiler.AddResource(url, strings.NewReader(string(tool.Schema()))); err != nil {
		return fmt.Errorf("tool %s: add schema: %w", name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("tool %s: compile schema: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	r.schemas[name] = schema
	return nil
}

// MustRegister registers a tool and panics on declaration errors. Intended
// for the static registry built at startup.
func (r *ToolRegistry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names, sorted order not guaranteed.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Definitions returns all tools as declarations for the model.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	return defs
}

// Dispatch validates input and runs the named tool. The returned output is
// always non-nil and always a valid variant; failures are error outputs.
func (r *ToolRegistry) Dispatch(ctx context.Context, name string, input json.RawMessage) *models.ToolOutput {
	if len(name) > MaxToolNameLength {
		return models.ErrorOutput(fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength))
	}
	if len(input) > MaxToolInputSize {
		return models.ErrorOutput(fmt.Sprintf("tool input exceeds maximum size of %d bytes", MaxToolInputSize))
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return models.ErrorOutput("unknown tool: " + name)
	}

	if schema != nil {
		var parsed any
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		if err := json.Unmarshal(input, &parsed); err != nil {
			return models.ErrorOutput(fmt.Sprintf("tool %s: input is not valid JSON: %v", name, err))
		}
		if err := schema.Validate(parsed); err != nil {
			return models.ErrorOutput(fmt.Sprintf("tool %s: input failed schema validation: %v", name, err))
		}
	}

	out, err := tool.Execute(ctx, input)
	if err != nil {
		return models.ErrorOutput(fmt.Sprintf("tool %s: %v", name, err))
	}
	if out == nil {
		return models.ErrorOutput(fmt.Sprintf("tool %s returned no output", name))
	}
	if err := out.Validate(); err != nil {
		return models.ErrorOutput(fmt.Sprintf("tool %s: %v", name, err))
	}
	return out
}
