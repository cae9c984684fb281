package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/haasonsaas/finsight/pkg/models"
)

// ExecutorConfig configures parallel tool execution.
type ExecutorConfig struct {
	// MaxConcurrency limits parallel tool executions.
	// Default: 4
	MaxConcurrency int

	// Timeout bounds a single tool execution.
	// Default: 30s
	Timeout time.Duration
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
	}
}

// ExecutionResult pairs one ToolCall with its output and timing.
type ExecutionResult struct {
	ToolCallID string
	ToolName   string
	Output     *models.ToolOutput
	Duration   time.Duration
}

// Executor runs tool calls against the registry with bounded concurrency
// and panic isolation. Results always come back in input order, which is
// the ordering rule for the feedback turn sent to the model.
type Executor struct {
	registry *ToolRegistry
	config   *ExecutorConfig
	sem      chan struct{}
}

// NewExecutor creates a new executor over the given registry.
func NewExecutor(registry *ToolRegistry, config *ExecutorConfig) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Executor{
		registry: registry,
		config:   config,
		sem:      make(chan struct{}, config.MaxConcurrency),
	}
}

// ExecuteAll runs the calls in parallel and returns results in call order.
// Every call gets a result; failures are error-variant outputs.
func (e *Executor) ExecuteAll(ctx context.Context, calls []models.ToolCall) []*ExecutionResult {
	if len(calls) == 0 {
		return nil
	}

	results := make([]*ExecutionResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()
			results[idx] = e.Execute(ctx, tc)
		}(i, call)
	}
	wg.Wait()
	return results
}

// Execute runs a single tool call with timeout and panic capture.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) *ExecutionResult {
	start := time.Now()
	result := &ExecutionResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		result.Output = models.ErrorOutput("tool execution cancelled: " + ctx.Err().Error())
		result.Duration = time.Since(start)
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	result.Output = e.dispatchSafely(execCtx, call)
	if execCtx.Err() == context.DeadlineExceeded {
		result.Output = models.ErrorOutput(fmt.Sprintf("%v: %s", ErrToolTimeout, call.Name))
	}
	result.Duration = time.Since(start)
	return result
}

// dispatchSafely isolates tool panics so one bad executor cannot take down
// the loop goroutine.
func (e *Executor) dispatchSafely(ctx context.Context, call models.ToolCall) (out *models.ToolOutput) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			out = models.ErrorOutput(fmt.Sprintf("%v: %s: %v\n%s", ErrToolPanic, call.Name, r, stack))
		}
	}()
	return e.registry.Dispatch(ctx, call.Name, call.Input)
}
