// Package evaluation implements the evaluate-improve engine: a draft
// artifact is scored against fixed criteria and, when optimization is
// requested, iteratively rewritten until it passes or the iteration cap
// is hit.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/finsight/internal/agent"
	"github.com/haasonsaas/finsight/pkg/models"
)

// defaultScore is assigned to a criterion whose score could not be parsed
// from the model response. Mid-scale keeps an unparseable evaluation from
// passing or failing outright.
const defaultScore = 5

// Config configures the engine.
type Config struct {
	// Model overrides the provider default for engine calls.
	Model string

	// MaxTokens is the per-call output budget. Default: 2048
	MaxTokens int

	// MaxIterations caps improvement rounds. Default: 3
	MaxIterations int

	// Criteria selects the active scoring axes. Empty means all four.
	Criteria []models.EvaluationCriterion
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2048
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 3
	}
	if len(c.Criteria) == 0 {
		c.Criteria = models.AllCriteria()
	}
	return c
}

// Engine runs the strictly sequential evaluate-improve loop.
type Engine struct {
	provider agent.LLMProvider
	config   Config
	logger   *slog.Logger
}

// NewEngine creates an engine over the given provider.
func NewEngine(provider agent.LLMProvider, config Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{provider: provider, config: config.withDefaults(), logger: logger}
}

// Run evaluates the artifact and, when optimize is set, improves it until
// the verdict is pass or the iteration cap is reached. The report's
// Iterations field counts improvement rounds actually performed; Passed
// distinguishes a pass from giving up at the cap.
func (e *Engine) Run(ctx context.Context, artifact string, optimize bool) (*models.EvaluationReport, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("evaluation engine: no provider configured")
	}
	if strings.TrimSpace(artifact) == "" {
		return nil, fmt.Errorf("evaluation engine: empty artifact")
	}

	current := artifact
	iterations := 0

	score, feedback := e.evaluate(ctx, current)
	verdict := models.DeriveVerdict(score)

	for verdict != models.VerdictPass && optimize && iterations < e.config.MaxIterations {
		improved, err := e.improve(ctx, current, score, feedback)
		if err != nil || strings.TrimSpace(improved) == "" {
			e.logger.Warn("improvement call failed, keeping current draft",
				"iteration", iterations+1, "error", err)
			break
		}
		current = improved
		iterations++

		score, feedback = e.evaluate(ctx, current)
		verdict = models.DeriveVerdict(score)
	}

	return &models.EvaluationReport{
		Artifact:   current,
		Score:      score,
		Verdict:    verdict,
		Feedback:   feedback,
		Iterations: iterations,
		Passed:     verdict == models.VerdictPass,
	}, nil
}

const evaluateSystem = `You are a rigorous reviewer of financial analysis artifacts.
Score the draft on each requested criterion from 1 (unusable) to 10 (excellent) and give concrete feedback per criterion.
Respond with ONLY a JSON object: {"scores": {"<criterion>": <1-10>, ...}, "feedback": {"<criterion>": "<what to fix>", ...}}.`

// evaluate scores the artifact. A malformed response degrades every active
// criterion to the mid-scale default rather than failing the engine.
func (e *Engine) evaluate(ctx context.Context, artifact string) (models.EvaluationScore, map[models.EvaluationCriterion]string) {
	names := make([]string, len(e.config.Criteria))
	for i, c := range e.config.Criteria {
		names[i] = string(c)
	}
	prompt := fmt.Sprintf("Criteria: %s\n\nDraft artifact:\n%s", strings.Join(names, ", "), artifact)

	raw, err := e.complete(ctx, evaluateSystem, prompt)
	if err != nil {
		e.logger.Warn("evaluation call failed, using default scores", "error", err)
		return e.defaultScores(), nil
	}
	return e.parseEvaluation(raw)
}

type evaluationPayload struct {
	Scores   map[string]int    `json:"scores"`
	Feedback map[string]string `json:"feedback"`
}

func (e *Engine) parseEvaluation(raw string) (models.EvaluationScore, map[models.EvaluationCriterion]string) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return e.defaultScores(), nil
	}

	var parsed evaluationPayload
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return e.defaultScores(), nil
	}

	score := make(models.EvaluationScore, len(e.config.Criteria))
	feedback := make(map[models.EvaluationCriterion]string)
	for _, criterion := range e.config.Criteria {
		v, ok := parsed.Scores[string(criterion)]
		if !ok {
			v = defaultScore
		}
		if v < 1 {
			v = 1
		}
		if v > 10 {
			v = 10
		}
		score[criterion] = v
		if fb := strings.TrimSpace(parsed.Feedback[string(criterion)]); fb != "" {
			feedback[criterion] = fb
		}
	}
	if len(feedback) == 0 {
		feedback = nil
	}
	return score, feedback
}

func (e *Engine) defaultScores() models.EvaluationScore {
	score := make(models.EvaluationScore, len(e.config.Criteria))
	for _, criterion := range e.config.Criteria {
		score[criterion] = defaultScore
	}
	return score
}

const improveSystem = `You are a senior financial analyst revising a draft artifact.
Rewrite the draft to address every piece of reviewer feedback while preserving its factual content.
Respond with ONLY the rewritten artifact, no commentary.`

func (e *Engine) improve(ctx context.Context, artifact string, score models.EvaluationScore, feedback map[models.EvaluationCriterion]string) (string, error) {
	var prompt strings.Builder
	prompt.WriteString("Reviewer scores:\n")
	for criterion, v := range score {
		fmt.Fprintf(&prompt, "  %s: %d/10\n", criterion, v)
	}
	if len(feedback) > 0 {
		prompt.WriteString("\nReviewer feedback:\n")
		for criterion, fb := range feedback {
			fmt.Fprintf(&prompt, "  %s: %s\n", criterion, fb)
		}
	}
	prompt.WriteString("\nDraft artifact:\n")
	prompt.WriteString(artifact)

	return e.complete(ctx, improveSystem, prompt.String())
}

func (e *Engine) complete(ctx context.Context, system, user string) (string, error) {
	chunks, err := e.provider.Complete(ctx, &agent.CompletionRequest{
		Model:     e.config.Model,
		System:    system,
		Messages:  []agent.CompletionMessage{{Role: "user", Content: user}},
		MaxTokens: e.config.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		b.WriteString(chunk.Text)
	}
	return b.String(), nil
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
