// Package analysis implements the decompose-execute-synthesize engine for
// complex analytical requests: the request is split into 2-4 typed
// subtasks, each runs independently against the model, and a synthesis
// pass combines the findings into one narrative.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/finsight/internal/agent"
	"github.com/haasonsaas/finsight/pkg/models"
)

// Config configures the engine.
type Config struct {
	// Model overrides the provider default for engine calls.
	Model string

	// MaxTokens is the per-call output budget. Default: 2048
	MaxTokens int

	// MinSubTasks and MaxSubTasks bound decomposition. Defaults: 2 and 4.
	MinSubTasks int
	MaxSubTasks int

	// WorkerTimeout bounds one subtask execution. Default: 45s
	WorkerTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2048
	}
	if c.MinSubTasks <= 0 {
		c.MinSubTasks = 2
	}
	if c.MaxSubTasks <= 0 {
		c.MaxSubTasks = 4
	}
	if c.WorkerTimeout <= 0 {
		c.WorkerTimeout = 45 * time.Second
	}
	return c
}

// Request is one analytical question handed to the engine.
type Request struct {
	// Query is the user's analytical request.
	Query string

	// Audience optionally names the target audience (e.g. "board", "CFO").
	Audience string

	// Context is optional shared document or historical context every
	// worker receives verbatim.
	Context string
}

// Result is the engine's terminal output. len(Results) always equals
// len(SubTasks); failed workers appear as degraded placeholders.
type Result struct {
	Narrative string                `json:"narrative"`
	SubTasks  []models.SubTask      `json:"sub_tasks"`
	Results   []models.WorkerResult `json:"results"`
	Degraded  int                   `json:"degraded,omitempty"`
}

// Engine orchestrates the three phases.
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

// Run executes the full decompose-execute-synthesize sequence. Individual
// subtask failures degrade to placeholders; only a failure that leaves no
// usable output at all is returned as an error.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("analysis engine: no provider configured")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("analysis engine: empty request")
	}

	subtasks := e.decompose(ctx, req)
	results := e.execute(ctx, req, subtasks)

	degraded := 0
	for _, r := range results {
		if r.Degraded {
			degraded++
		}
	}

	narrative := e.synthesize(ctx, req, subtasks, results)
	return &Result{
		Narrative: narrative,
		SubTasks:  subtasks,
		Results:   results,
		Degraded:  degraded,
	}, nil
}

const decomposeSystem = `You are a financial analysis planner. Break the user's request into independent analysis subtasks.
Respond with ONLY a JSON array, no prose. Each element: {"type": "<variance|trend|ratio|comparison|forecast|risk|summary>", "priority": <1 is highest>, "description": "<what to analyze>"}.
Produce between 2 and 4 subtasks.`

// decompose asks the model for a subtask plan. A malformed response falls
// back to a fixed two-task plan so the engine always proceeds.
func (e *Engine) decompose(ctx context.Context, req Request) []models.SubTask {
	prompt := "Request: " + req.Query
	if req.Audience != "" {
		prompt += "\nTarget audience: " + req.Audience
	}

	raw, err := e.complete(ctx, decomposeSystem, prompt)
	if err != nil {
		e.logger.Warn("decomposition call failed, using fallback plan", "error", err)
		return e.fallbackPlan()
	}

	subtasks := parseSubTasks(raw)
	if len(subtasks) < e.config.MinSubTasks {
		e.logger.Warn("decomposition produced too few subtasks, using fallback plan",
			"parsed", len(subtasks))
		return e.fallbackPlan()
	}
	if len(subtasks) > e.config.MaxSubTasks {
		subtasks = subtasks[:e.config.MaxSubTasks]
	}
	return subtasks
}

// parseSubTasks extracts and validates the JSON plan. Invalid entries are
// dropped rather than failing the whole plan.
func parseSubTasks(raw string) []models.SubTask {
	payload := extractJSONArray(raw)
	if payload == "" {
		return nil
	}

	var parsed []models.SubTask
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil
	}

	valid := parsed[:0]
	for _, st := range parsed {
		if !models.ValidTaskType(st.Type) || strings.TrimSpace(st.Description) == "" {
			continue
		}
		if st.Priority < 1 {
			st.Priority = 1
		}
		valid = append(valid, st)
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Priority < valid[j].Priority })
	return valid
}

func (e *Engine) fallbackPlan() []models.SubTask {
	return []models.SubTask{
		{Type: models.TaskTrend, Priority: 1, Description: "Identify the principal trends relevant to the request"},
		{Type: models.TaskSummary, Priority: 2, Description: "Summarize the key findings and their implications"},
	}
}

// execute runs every subtask in parallel. Workers share nothing mutable;
// each receives only the original request, its own description, and the
// shared context. Results stay index-aligned with the subtasks.
func (e *Engine) execute(ctx context.Context, req Request, subtasks []models.SubTask) []models.WorkerResult {
	results := make([]models.WorkerResult, len(subtasks))

	var wg sync.WaitGroup
	for i, st := range subtasks {
		wg.Add(1)
		go func(idx int, task models.SubTask) {
			defer wg.Done()
			results[idx] = e.runWorker(ctx, req, task)
		}(i, st)
	}
	wg.Wait()
	return results
}

const workerSystem = `You are a financial analyst executing one focused subtask of a larger analysis.
Write a concise narrative finding. If you computed concrete figures, end with a line "METRICS:" followed by a flat JSON object of name to value strings.`

func (e *Engine) runWorker(ctx context.Context, req Request, task models.SubTask) models.WorkerResult {
	workerCtx, cancel := context.WithTimeout(ctx, e.config.WorkerTimeout)
	defer cancel()

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Overall request: %s\n", req.Query)
	fmt.Fprintf(&prompt, "Your subtask (%s): %s\n", task.Type, task.Description)
	if req.Context != "" {
		fmt.Fprintf(&prompt, "\nShared context:\n%s\n", req.Context)
	}

	raw, err := e.complete(workerCtx, workerSystem, prompt.String())
	if err != nil || strings.TrimSpace(raw) == "" {
		e.logger.Warn("subtask execution failed, degrading",
			"task_type", task.Type, "error", err)
		return models.WorkerResult{
			Type:      task.Type,
			Narrative: "analysis unavailable",
			Degraded:  true,
		}
	}

	narrative, metrics := parseWorkerResponse(raw)
	return models.WorkerResult{
		Type:      task.Type,
		Narrative: narrative,
		Metrics:   metrics,
	}
}

// parseWorkerResponse splits the optional METRICS block off the narrative.
// Malformed metrics are discarded, never fatal.
func parseWorkerResponse(raw string) (string, map[string]string) {
	idx := strings.LastIndex(raw, "METRICS:")
	if idx < 0 {
		return strings.TrimSpace(raw), nil
	}

	narrative := strings.TrimSpace(raw[:idx])
	var parsed map[string]any
	if err := json.Unmarshal([]byte(extractJSONObject(raw[idx:])), &parsed); err != nil || len(parsed) == 0 {
		return strings.TrimSpace(raw), nil
	}

	metrics := make(map[string]string, len(parsed))
	for k, v := range parsed {
		metrics[k] = fmt.Sprint(v)
	}
	if narrative == "" {
		narrative = strings.TrimSpace(raw)
	}
	return narrative, metrics
}

const synthesizeSystem = `You are a senior financial analyst combining independent findings into one report.
Produce: an executive summary, deduplicated key insights, and prioritized recommendations.
Where findings conflict, reconcile them explicitly in the text; never drop a conflict silently.`

// synthesize combines the worker results. It always runs, over whatever
// results exist; a model failure falls back to a sectioned concatenation.
func (e *Engine) synthesize(ctx context.Context, req Request, subtasks []models.SubTask, results []models.WorkerResult) string {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Original request: %s\n", req.Query)
	if req.Audience != "" {
		fmt.Fprintf(&prompt, "Target audience: %s\n", req.Audience)
	}
	prompt.WriteString("\nFindings, in priority order:\n")
	for i, r := range results {
		fmt.Fprintf(&prompt, "\n[%d] %s finding:\n%s\n", i+1, r.Type, r.Narrative)
		for k, v := range r.Metrics {
			fmt.Fprintf(&prompt, "  %s = %s\n", k, v)
		}
	}

	narrative, err := e.complete(ctx, synthesizeSystem, prompt.String())
	if err != nil || strings.TrimSpace(narrative) == "" {
		e.logger.Warn("synthesis call failed, using concatenation fallback", "error", err)
		return concatenateResults(results)
	}
	return strings.TrimSpace(narrative)
}

func concatenateResults(results []models.WorkerResult) string {
	var b strings.Builder
	b.WriteString("Combined findings:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "\n## %s\n%s\n", r.Type, r.Narrative)
	}
	return b.String()
}

// complete performs one non-streaming model call, draining the chunk
// channel into a single string.
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

// extractJSONArray returns the outermost JSON array in s, tolerating prose
// and code fences around it.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// extractJSONObject returns the outermost JSON object in s.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
