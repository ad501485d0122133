package bootstrap

import (
	"context"
	"fmt"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/voicescribe/config"
	"github.com/kbukum/voicescribe/logger"
	"github.com/kbukum/voicescribe/media"
	"github.com/kbukum/voicescribe/observability"
	"github.com/kbukum/voicescribe/pipeline"
	"github.com/kbukum/voicescribe/quota"
	"github.com/kbukum/voicescribe/store"
	"github.com/kbukum/voicescribe/transcription"
	"github.com/kbukum/voicescribe/transcription/engines"
	"github.com/kbukum/voicescribe/version"
)

// App holds the wired collaborators of one voicescribe process. The
// transport layer builds an App at startup and hands each of its
// submissions to a Runner obtained from NewRunner.
type App struct {
	Settings   *config.Settings
	Logger     *logger.Logger
	Store      store.Store
	Ledger     *quota.Ledger
	Dispatcher *transcription.Dispatcher
	Normalizer *media.Normalizer
	Metrics    *observability.JobMetrics

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// New wires the full collaborator graph from validated settings:
// observability providers, the persistence store, the quota ledger, the
// transcription backends and their dispatcher, and the media normalizer.
func New(ctx context.Context, settings *config.Settings, opts ...Option) (*App, error) {
	settings.ApplyDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	o := resolveOptions(opts)

	log := o.logger
	if log == nil {
		log = logger.New(&settings.Logging, settings.Name)
	}

	app := &App{
		Settings: settings,
		Logger:   log,
	}

	if settings.Observability.Enabled {
		if err := app.initObservability(ctx); err != nil {
			return nil, err
		}
	}

	st := o.store
	if st == nil {
		gs, err := store.Open(settings.Database.DSN, log)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: open store: %w", err)
		}
		st = gs
	}
	app.Store = st
	app.Ledger = quota.NewLedger(st, settings.Quota, quota.WithLogger(log))

	dispatcher, err := app.buildDispatcher()
	if err != nil {
		return nil, err
	}
	app.Dispatcher = dispatcher
	app.Normalizer = media.NewNormalizer(media.WithFFmpegPath(settings.Media.FFmpegPath))

	log.Info("application wired", logger.Fields(
		logger.FieldEngine, settings.Transcription.Engine,
		"fallback_engine", settings.Transcription.FallbackEngine,
		"environment", settings.Environment,
		"version", version.Get().String(),
	))
	return app, nil
}

// NewRunner builds a job runner bound to the given transport messenger.
func (a *App) NewRunner(m pipeline.Messenger) *pipeline.Runner {
	return pipeline.NewRunner(m, a.Ledger, a.Dispatcher,
		pipeline.Config{MaxMessageLength: a.Settings.Pipeline.MaxMessageLength},
		pipeline.WithLogger(a.Logger),
		pipeline.WithMetrics(a.Metrics),
		pipeline.WithNormalizer(a.Normalizer),
	)
}

// Shutdown flushes and stops the observability providers.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if a.meterProvider != nil {
		if err := a.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *App) initObservability(ctx context.Context) error {
	obs := a.Settings.Observability

	tp, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    a.Settings.Name,
		ServiceVersion: version.Version,
		Environment:    a.Settings.Environment,
		Endpoint:       obs.Endpoint,
		Insecure:       obs.Insecure,
		SampleRate:     obs.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: init tracer: %w", err)
	}
	a.tracerProvider = tp

	mp, err := observability.InitMeter(ctx, observability.MeterConfig{
		ServiceName:    a.Settings.Name,
		ServiceVersion: version.Version,
		Environment:    a.Settings.Environment,
		Endpoint:       obs.Endpoint,
		Insecure:       obs.Insecure,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: init meter: %w", err)
	}
	a.meterProvider = mp

	metrics, err := observability.NewJobMetrics(mp.Meter("github.com/kbukum/voicescribe"))
	if err != nil {
		return fmt.Errorf("bootstrap: init metrics: %w", err)
	}
	a.Metrics = metrics
	return nil
}

func (a *App) buildDispatcher() (*transcription.Dispatcher, error) {
	ts := a.Settings.Transcription
	creds := ts.Credentials()

	primary, err := engines.New(ts.Engine, creds)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: primary engine: %w", err)
	}

	dopts := []transcription.DispatcherOption{
		transcription.WithLogger(a.Logger.WithComponent("transcription")),
	}
	if ts.FallbackEngine != "" {
		fallback, err := engines.New(ts.FallbackEngine, creds)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: fallback engine: %w", err)
		}
		dopts = append(dopts, transcription.WithFallback(fallback))
	}
	if a.Metrics != nil {
		dopts = append(dopts, transcription.WithAttemptHook(a.Metrics.RecordAttempt))
	}

	return transcription.NewDispatcher(primary, transcription.DispatchConfig{
		MaxRetries: ts.MaxRetries,
		RetryDelay: ts.RetryDelay,
	}, dopts...), nil
}
