// Package observability provides OpenTelemetry tracing and metrics for the
// voicescribe core. It is the sink for internal failure detail: the pipeline
// records terminal failures on its span tagged with the failing state, while
// the user only ever sees a short redacted message.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("voicescribe"))
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("voicescribe"))
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewJobMetrics(observability.Meter("voicescribe"))
package observability
