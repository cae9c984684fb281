package agent

import (
	"log/slog"

	"github.com/haasonsaas/finsight/internal/observability"
)

// Options carries the ambient dependencies shared across loop runs.
type Options struct {
	// Logger receives structured loop diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics receives loop, model, and tool measurements. Optional.
	Metrics *observability.Metrics

	// Tracer wraps each run and iteration in spans. Optional.
	Tracer *observability.Tracer
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
