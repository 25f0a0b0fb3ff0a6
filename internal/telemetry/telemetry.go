// Package telemetry sets up OpenTelemetry tracing for a run. Spans are
// exported as JSON lines to a file or stdout.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ServiceName is the instrumentation scope of every span.
const ServiceName = "pipeman"

// Options controls the exporter.
type Options struct {
	Enabled bool
	// File receives the spans. Empty means stdout.
	File string
	// Writer overrides File, mostly for tests.
	Writer io.Writer
	// RunID is attached to every span.
	RunID string
}

// Provider owns the tracer of one run.
type Provider struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// Init creates a Provider. A disabled Provider hands out no-op spans.
func Init(opts Options) (*Provider, error) {
	if !opts.Enabled {
		return &Provider{
			tracer:   noop.NewTracerProvider().Tracer(ServiceName),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	w := opts.Writer
	var closeFile func() error
	if w == nil && opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create trace directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) // #nosec G302 G304
		if err != nil {
			return nil, fmt.Errorf("failed to open trace file %s: %w", opts.File, err)
		}
		w, closeFile = f, f.Close
	}
	if w == nil {
		w = os.Stdout
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	otel.SetTracerProvider(tp)

	tracer := tp.Tracer(ServiceName)
	if opts.RunID != "" {
		tracer = runTracer{Tracer: tracer, runID: opts.RunID}
	}

	return &Provider{
		tracer: tracer,
		shutdown: func(ctx context.Context) error {
			err := tp.Shutdown(ctx)
			if closeFile != nil {
				if cerr := closeFile(); err == nil {
					err = cerr
				}
			}
			return err
		},
	}, nil
}

// Tracer returns the run tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

// runTracer tags every span with the run id.
type runTracer struct {
	trace.Tracer
	runID string
}

func (t runTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append(opts, trace.WithAttributes(attribute.String("pipeman.run_id", t.runID)))
	return t.Tracer.Start(ctx, name, opts...)
}
