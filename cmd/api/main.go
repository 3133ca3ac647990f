package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caresync/telehealth-ivr/internal/api/router"
	"github.com/caresync/telehealth-ivr/internal/app/bootstrap"
	"github.com/caresync/telehealth-ivr/internal/callhistory"
	appconfig "github.com/caresync/telehealth-ivr/internal/config"
	"github.com/caresync/telehealth-ivr/internal/events"
	"github.com/caresync/telehealth-ivr/internal/http/handlers"
	httpmiddleware "github.com/caresync/telehealth-ivr/internal/http/middleware"
	"github.com/caresync/telehealth-ivr/internal/ivr"
	"github.com/caresync/telehealth-ivr/internal/notify"
	"github.com/caresync/telehealth-ivr/internal/observability/metrics"
	"github.com/caresync/telehealth-ivr/internal/reminders"
	"github.com/caresync/telehealth-ivr/internal/telephony"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting caresync voice server",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if mem, ok := app.stores.Sessions.(*ivr.MemorySessionStore); ok {
		go mem.RunJanitor(ctx, time.Minute)
	}
	if app.scheduler != nil {
		app.scheduler.Start(ctx)
		defer app.scheduler.Stop()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

type app struct {
	handler   http.Handler
	engine    *ivr.Engine
	scheduler *reminders.Scheduler
	stores    *bootstrap.Stores
	closers   []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires the voice service from configuration. The returned app owns
// its connections; call Close when done.
func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}
	stores, err := bootstrap.BuildStores(ctx, cfg, loc, redisClient, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.stores = stores
	a.closers = append(a.closers, stores.Close)

	var awsCfg *aws.Config
	if bootstrap.NeedsAWS(cfg) {
		loaded, err := bootstrap.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Warn("aws config unavailable; using local fallbacks", "error", err)
		} else {
			awsCfg = &loaded
		}
	}

	metricsHandler, voiceMetrics := setupVoiceMetrics()

	dialer, err := bootstrap.BuildDialer(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	history, err := bootstrap.BuildCallHistory(cfg, awsCfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	hub := events.NewHub(events.DefaultClientBuffer, cfg.CORSAllowedOrigins, logger)
	notifier := notify.NewBookingNotifier(
		bootstrap.BuildSMSSender(cfg, logger),
		bootstrap.BuildEmailSender(cfg, awsCfg, logger),
		stores.Directory,
		logger,
	)

	engine, err := ivr.NewEngine(ivr.EngineConfig{
		Sessions:     stores.Sessions,
		Directory:    stores.Directory,
		Appointments: stores.Appointments,
		Dialer:       dialer,
		Listeners: []ivr.BookingListener{
			events.NewBookingPublisher(hub, stores.Directory, logger),
			notifier,
		},
		Recorder:         callhistory.Recorder{Store: history},
		Metrics:          voiceMetrics,
		Location:         loc,
		CountryCode:      cfg.DefaultCountryCode,
		AutoRegister:     cfg.AutoRegisterCallers,
		DoctorShortcuts:  cfg.DoctorShortcuts,
		SpeechLanguage:   cfg.SpeechLanguage,
		ReminderLanguage: ivr.Language(cfg.ReminderLanguage),
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine

	if cfg.RemindersEnabled {
		if dialer == nil {
			logger.Warn("reminders enabled but no dialer configured; scheduler not started")
		} else {
			base := cfg.PublicBaseURL
			if base == "" {
				logger.Warn("PUBLIC_BASE_URL not set; reminder calls cannot reach the webhooks")
			}
			sched, err := reminders.NewScheduler(stores.Appointments, engine, reminders.Config{
				DailySpec:  cfg.ReminderDailySpec,
				HourlySpec: cfg.ReminderHourlySpec,
				CallGap:    cfg.ReminderCallGap,
				Location:   loc,
				URLs:       telephony.WebhookURLs(base, handlers.VoicePathPrefix),
			}, voiceMetrics, logger)
			if err != nil {
				a.Close()
				return nil, err
			}
			a.scheduler = sched
		}
	}

	var debugHandler *handlers.DebugHandler
	if cfg.DebugEndpointEnabled {
		var source handlers.DebugSource = handlers.RepositoryDebugSource{
			Directory:    stores.Directory,
			Appointments: stores.Appointments,
		}
		if stores.SQL != nil {
			source = handlers.NewSQLDebugSource(stores.SQL)
		}
		debugHandler = handlers.NewDebugHandler(source, cfg.DebugRecentLimit, logger)
	}

	signatureToken := ""
	if cfg.TwilioValidateSignature {
		signatureToken = cfg.TwilioAuthToken
	}

	a.handler = router.New(&router.Config{
		Logger: logger,
		Voice: handlers.NewVoiceHandler(handlers.VoiceHandlerConfig{
			Engine:        engine,
			History:       history,
			PublicBaseURL: cfg.PublicBaseURL,
			Logger:        logger,
		}),
		Debug:              debugHandler,
		Live:               hub,
		MetricsHandler:     metricsHandler,
		TwilioAuthToken:    signatureToken,
		PublicBaseURL:      cfg.PublicBaseURL,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		OutboundLimiter:    httpmiddleware.NewRateLimiter(cfg.OutboundRatePerSecond, cfg.OutboundRateBurst),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	logger.Info("voice service ready",
		"memory_store", cfg.UseMemoryStore,
		"redis_sessions", redisClient != nil,
		"outbound_calls", dialer != nil,
		"reminders", a.scheduler != nil,
	)
	return a, nil
}

func setupVoiceMetrics() (http.Handler, *metrics.VoiceMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewVoiceMetrics(reg)
}

