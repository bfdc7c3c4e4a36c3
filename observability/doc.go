// Package observability sets up OpenTelemetry tracing for session spans.
//
// Sessions record session.flush, session.commit and session.rollback spans
// through the global tracer provider unless given a tracer explicitly:
//
//	tp, err := observability.NewTracerProvider(cfg.Tracing, exporter, log)
//	defer tp.Shutdown(ctx)
//
//	s := session.New(db, session.WithTracer(tp.Tracer("fixtures")))
//
// Install makes tp the global provider.
package observability
