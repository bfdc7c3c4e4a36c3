package observability

import (
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/dbfixture/logger"
)

// TracerConfig configures the tracer provider.
type TracerConfig struct {
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `mapstructure:"service_name"`
	// Environment is reported as the deployment.environment resource attribute.
	Environment string `mapstructure:"environment"`
	// SampleRate is the sampling ratio (0.0 to 1.0). Defaults to 1.0.
	SampleRate *float64 `mapstructure:"sample_rate"`
	// Synchronous exports each span as it ends instead of batching.
	Synchronous bool `mapstructure:"synchronous"`
}

// ApplyDefaults fills zero-valued fields.
func (c *TracerConfig) ApplyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "dbfixture"
	}
	if c.Environment == "" {
		c.Environment = "test"
	}
	if c.SampleRate == nil {
		all := 1.0
		c.SampleRate = &all
	}
}

// Validate checks the sample rate range.
func (c *TracerConfig) Validate() error {
	if c.SampleRate != nil && (*c.SampleRate < 0 || *c.SampleRate > 1) {
		return errors.New("sample_rate must be between 0 and 1")
	}
	return nil
}

// NewTracerProvider builds a provider that sends spans to exporter.
// The caller owns the provider and must shut it down.
func NewTracerProvider(cfg TracerConfig, exporter sdktrace.SpanExporter, log *logger.Logger) (*sdktrace.TracerProvider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if exporter == nil {
		return nil, errors.New("observability: nil span exporter")
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	var processor sdktrace.SpanProcessor
	if cfg.Synchronous {
		processor = sdktrace.NewSimpleSpanProcessor(exporter)
	} else {
		processor = sdktrace.NewBatchSpanProcessor(exporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(*cfg.SampleRate)),
	)

	if log != nil {
		log.Debug("tracer provider created", logger.Fields(
			"service", cfg.ServiceName,
			"sample_rate", *cfg.SampleRate,
			"synchronous", cfg.Synchronous,
		))
	}
	return tp, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Install makes tp the global tracer provider and registers the W3C
// propagators.
func Install(tp *sdktrace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}
