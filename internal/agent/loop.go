package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/finsight/pkg/models"
)

// Loop limits to keep a single model response from exhausting resources.
const (
	// MaxToolCallsPerIteration bounds tool calls in one model response.
	MaxToolCallsPerIteration = 8

	// MaxResponseTextSize bounds accumulated response text (1MB).
	MaxResponseTextSize = 1 << 20
)

// LoopConfig configures the tool-calling loop.
type LoopConfig struct {
	// MaxIterations caps awaiting-model/executing-tools round trips.
	// Default: 5
	MaxIterations int

	// MaxTokens is the per-inference output budget.
	// Default: 4096
	MaxTokens int

	// Model overrides the provider's default model when set.
	Model string
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxIterations: 5,
		MaxTokens:     4096,
	}
}

// Loop is the central state machine. It alternates between model inference
// and tool execution until the model stops requesting tools or the
// iteration cap is hit.
//
//	awaiting-model ──(tool calls)──▶ executing-tools
//	      ▲                               │
//	      └───────(results fed back)──────┘
//	awaiting-model ──(no tool calls)──▶ done
//	any state ──(unrecoverable error / cap)──▶ failed
type Loop struct {
	provider LLMProvider
	registry *ToolRegistry
	executor *Executor
	config   *LoopConfig
	opts     Options
}

// NewLoop creates a loop over the given provider and registry.
func NewLoop(provider LLMProvider, registry *ToolRegistry, config *LoopConfig, opts Options) *Loop {
	if config == nil {
		config = DefaultLoopConfig()
	}
	cfg := *config
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if registry == nil {
		registry = NewToolRegistry()
	}
	return &Loop{
		provider: provider,
		registry: registry,
		executor: NewExecutor(registry, nil),
		config:   &cfg,
		opts:     opts.withDefaults(),
	}
}

// RunResult is what a finished run hands back for persistence. On failure
// it still carries whatever citations and artifacts accumulated before the
// failure; the caller persists those best-effort.
type RunResult struct {
	Phase      Phase
	FinalText  string
	Citations  []models.Citation
	Artifacts  []*models.CanvasPayload
	Usage      models.Usage
	Iterations int

	// Messages is the full turn sequence produced during the run
	// (assistant turns with tool calls, synthetic tool-result turns, and
	// the final assistant turn), ready for the caller to append.
	Messages []*models.Message

	// Err is set when Phase is PhaseFailed.
	Err error
}

// Run executes the loop over the given bundle, streaming progress through
// the emitter. It always emits exactly one terminal event and always
// returns a non-nil result.
func (l *Loop) Run(ctx context.Context, bundle *Bundle, emitter *Emitter) *RunResult {
	result := &RunResult{Phase: PhaseAwaitingModel}
	if l.provider == nil {
		return l.fail(result, emitter, &LoopError{Phase: PhaseAwaitingModel, Cause: ErrNoProvider}, false)
	}

	ctx, span := l.opts.Tracer.Start(ctx, "agent.loop.run",
		attribute.String("provider", l.provider.Name()),
		attribute.Int("max_iterations", l.config.MaxIterations),
	)
	defer span.End()

	messages := append([]CompletionMessage(nil), bundle.Messages...)
	system := bundle.System
	if bundle.Knowledge != "" {
		system += "\n\n# Knowledge context\n" + bundle.Knowledge
	}

	for iteration := 0; iteration < l.config.MaxIterations; iteration++ {
		result.Iterations = iteration + 1

		select {
		case <-ctx.Done():
			return l.fail(result, emitter, &LoopError{Phase: result.Phase, Iteration: iteration, Cause: ctx.Err()}, true)
		default:
		}

		result.Phase = PhaseAwaitingModel
		text, textDeltas, toolCalls, usage, err := l.streamModel(ctx, system, messages, bundle.CacheEpoch)
		result.Usage.Add(usage)
		if err != nil {
			return l.fail(result, emitter, &LoopError{Phase: PhaseAwaitingModel, Iteration: iteration, Cause: err}, true)
		}

		if len(toolCalls) == 0 {
			// Terminal response: this iteration's text is the answer, and
			// only now is it streamed to the caller.
			for _, delta := range textDeltas {
				emitter.Text(delta)
			}
			result.FinalText = text
			result.Messages = append(result.Messages, &models.Message{
				Role:    models.RoleAssistant,
				Content: text,
			})
			result.Phase = PhaseDone
			emitter.Done(result.Usage, result.Iterations)
			l.observeOutcome("done", result.Iterations)
			return result
		}

		result.Phase = PhaseExecutingTools
		toolResults := l.executeTools(ctx, toolCalls, result, emitter)

		// Feed the assistant turn back verbatim, then a synthetic turn
		// carrying all results in the order the model emitted the calls.
		messages = append(messages,
			CompletionMessage{Role: "assistant", Content: text, ToolCalls: toolCalls},
			CompletionMessage{Role: "tool", ToolResults: toolResults},
		)
		result.Messages = append(result.Messages,
			&models.Message{Role: models.RoleAssistant, Content: text, ToolCalls: toolCalls},
			&models.Message{Role: models.RoleTool, ToolResults: toolResults},
		)
	}

	return l.fail(result, emitter, &LoopError{
		Phase:     PhaseAwaitingModel,
		Iteration: l.config.MaxIterations,
		Cause:     fmt.Errorf("%w: %d round trips without a final answer", ErrMaxIterations, l.config.MaxIterations),
	}, false)
}

// streamModel performs one inference call and collects the response.
func (l *Loop) streamModel(ctx context.Context, system string, messages []CompletionMessage, cacheEpoch int64) (string, []string, []models.ToolCall, models.Usage, error) {
	var usage models.Usage

	req := &CompletionRequest{
		Model:      l.config.Model,
		System:     system,
		Messages:   messages,
		Tools:      l.registry.Definitions(),
		MaxTokens:  l.config.MaxTokens,
		CacheEpoch: cacheEpoch,
	}

	start := time.Now()
	completion, err := l.provider.Complete(ctx, req)
	if err != nil {
		l.observeModelRequest(start, "error")
		return "", nil, nil, usage, err
	}

	var textBuilder strings.Builder
	var textDeltas []string
	var toolCalls []models.ToolCall

	for chunk := range completion {
		if chunk.Error != nil {
			l.observeModelRequest(start, "error")
			return "", nil, nil, usage, chunk.Error
		}
		if chunk.Text != "" {
			if textBuilder.Len()+len(chunk.Text) > MaxResponseTextSize {
				l.observeModelRequest(start, "error")
				return "", nil, nil, usage, fmt.Errorf("response text exceeds maximum size of %d bytes", MaxResponseTextSize)
			}
			textBuilder.WriteString(chunk.Text)
			textDeltas = append(textDeltas, chunk.Text)
		}
		if chunk.ToolCall != nil {
			if len(toolCalls) >= MaxToolCallsPerIteration {
				l.observeModelRequest(start, "error")
				return "", nil, nil, usage, fmt.Errorf("tool calls exceed maximum of %d per iteration", MaxToolCallsPerIteration)
			}
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			usage.InputTokens += chunk.InputTokens
			usage.OutputTokens += chunk.OutputTokens
		}
	}

	l.observeTokens(usage)
	l.observeModelRequest(start, "success")
	return textBuilder.String(), textDeltas, toolCalls, usage, nil
}

// executeTools runs one batch of tool calls and streams their progress.
// The returned results match the call order exactly.
func (l *Loop) executeTools(ctx context.Context, toolCalls []models.ToolCall, result *RunResult, emitter *Emitter) []models.ToolResult {
	for _, call := range toolCalls {
		emitter.ToolStart(call)
	}

	execResults := l.executor.ExecuteAll(ctx, toolCalls)

	toolResults := make([]models.ToolResult, len(toolCalls))
	for i, er := range execResults {
		call := toolCalls[i]
		output := er.Output
		if output == nil {
			output = models.ErrorOutput("tool execution produced no output")
		}

		emitter.ToolResult(call, output)
		l.observeToolExecution(call.Name, er.Duration, output.Type != models.OutputError)

		if len(output.Citations) > 0 {
			result.Citations = append(result.Citations, output.Citations...)
			emitter.Citations(output.Citations)
		}
		if output.IsCanvas() {
			artifact := emitter.Canvas(output.Type, canvasTitle(output), output.Data)
			result.Artifacts = append(result.Artifacts, artifact)
		}

		toolResults[i] = models.ToolResult{
			ToolCallID: call.ID,
			Content:    output.Encode(),
			IsError:    output.Type == models.OutputError,
		}
	}
	return toolResults
}

// fail terminates the run, emitting the single error event. Accumulated
// citations and artifacts stay on the result so the caller can persist
// them best-effort.
func (l *Loop) fail(result *RunResult, emitter *Emitter, loopErr *LoopError, retriable bool) *RunResult {
	result.Phase = PhaseFailed
	result.Err = loopErr
	emitter.Error(loopErr.Error(), retriable)

	outcome := "failed"
	if IsMaxIterations(loopErr) {
		outcome = "max_iterations"
	}
	l.observeOutcome(outcome, result.Iterations)
	l.opts.Logger.Error("agent loop failed",
		"phase", loopErr.Phase,
		"iteration", loopErr.Iteration,
		"error", loopErr.Cause,
	)
	return result
}

func canvasTitle(output *models.ToolOutput) string {
	var payload struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(output.Data, &payload); err != nil {
		return ""
	}
	return payload.Title
}

func (l *Loop) observeModelRequest(start time.Time, status string) {
	if l.opts.Metrics == nil {
		return
	}
	model := l.config.Model
	if model == "" {
		model = "default"
	}
	l.opts.Metrics.LLMRequestDuration.WithLabelValues(l.provider.Name(), model).Observe(time.Since(start).Seconds())
	l.opts.Metrics.LLMRequestCounter.WithLabelValues(l.provider.Name(), model, status).Inc()
}

func (l *Loop) observeTokens(usage models.Usage) {
	if l.opts.Metrics == nil {
		return
	}
	model := l.config.Model
	if model == "" {
		model = "default"
	}
	l.opts.Metrics.LLMTokensUsed.WithLabelValues(l.provider.Name(), model, "input").Add(float64(usage.InputTokens))
	l.opts.Metrics.LLMTokensUsed.WithLabelValues(l.provider.Name(), model, "output").Add(float64(usage.OutputTokens))
}

func (l *Loop) observeToolExecution(name string, duration time.Duration, success bool) {
	if l.opts.Metrics == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	l.opts.Metrics.ToolExecutionCounter.WithLabelValues(name, status).Inc()
	l.opts.Metrics.ToolExecutionDuration.WithLabelValues(name).Observe(duration.Seconds())
}

func (l *Loop) observeOutcome(outcome string, iterations int) {
	if l.opts.Metrics == nil {
		return
	}
	l.opts.Metrics.LoopRuns.WithLabelValues(outcome).Inc()
	l.opts.Metrics.LoopIterations.Observe(float64(iterations))
}
