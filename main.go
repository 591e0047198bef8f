package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Sabari-Jazz/moose/internal/audit"
	"github.com/Sabari-Jazz/moose/internal/auth"
	"github.com/Sabari-Jazz/moose/internal/config"
	"github.com/Sabari-Jazz/moose/internal/directory"
	directoryrepo "github.com/Sabari-Jazz/moose/internal/directory/infrastructure/postgres"
	"github.com/Sabari-Jazz/moose/internal/eventing"
	eventingrepo "github.com/Sabari-Jazz/moose/internal/eventing/infrastructure/postgres"
	"github.com/Sabari-Jazz/moose/internal/eventing/relay"
	"github.com/Sabari-Jazz/moose/internal/faultcodes"
	incidentsapp "github.com/Sabari-Jazz/moose/internal/incidents/application"
	incidentevents "github.com/Sabari-Jazz/moose/internal/incidents/application/events"
	incidentrepo "github.com/Sabari-Jazz/moose/internal/incidents/infrastructure/postgres"
	incidenthttp "github.com/Sabari-Jazz/moose/internal/incidents/interfaces/http"
	"github.com/Sabari-Jazz/moose/internal/jobs"
	masterdataapp "github.com/Sabari-Jazz/moose/internal/masterdata/application"
	masterdatarepo "github.com/Sabari-Jazz/moose/internal/masterdata/infrastructure/postgres"
	"github.com/Sabari-Jazz/moose/internal/notify"
	"github.com/Sabari-Jazz/moose/internal/observability/logging"
	"github.com/Sabari-Jazz/moose/internal/observability/metrics"
	"github.com/Sabari-Jazz/moose/internal/reminders"
	"github.com/Sabari-Jazz/moose/internal/solarweb"
	statusapp "github.com/Sabari-Jazz/moose/internal/status/application"
	"github.com/Sabari-Jazz/moose/internal/status/application/events"
	statusrepo "github.com/Sabari-Jazz/moose/internal/status/infrastructure/postgres"
	statushttp "github.com/Sabari-Jazz/moose/internal/status/interfaces/http"
	"github.com/Sabari-Jazz/moose/internal/sun"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if problems := cfg.Validate(); len(problems) > 0 {
		fields := make([]string, 0, len(problems))
		for _, p := range problems {
			fields = append(fields, p.String())
		}
		logger.Fatal("invalid config", zap.Strings("problems", fields))
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open error", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal("db ping error", zap.Error(err))
	}
	metrics.Init(db, logger)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("redis ping error", zap.Error(err))
	}

	// Masterdata and access directory.
	inventory, err := masterdataapp.NewInventoryService(masterdatarepo.NewSiteRepository(db), masterdatarepo.NewDeviceRepository(db))
	if err != nil {
		logger.Fatal("inventory service error", zap.Error(err))
	}
	people, err := directory.New(directoryrepo.NewStore(db), cfg.Incidents.AdminUserID)
	if err != nil {
		logger.Fatal("directory error", zap.Error(err))
	}

	// Eventing: outbox, in-process bus, processed-event dedupe.
	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry(
		events.DeviceStatusChanged{},
		events.SiteStatusChanged{},
		incidentevents.IncidentOpened{},
		incidentevents.IncidentResolved{},
	)
	outboxStore := eventingrepo.NewOutboxStore(db, eventingrepo.WithMinAge(cfg.Queue.OutboxScanEvery))
	processedStore := eventingrepo.NewProcessedStore(db)
	dispatcher, err := eventing.NewDispatcher(bus, outboxStore, registry, eventingrepo.NewDLQStore(db), eventing.WithDispatchLogger(logger.Named("outbox")))
	if err != nil {
		logger.Fatal("dispatcher error", zap.Error(err))
	}
	publisher, err := eventing.NewPublisher(outboxStore, dispatcher)
	if err != nil {
		logger.Fatal("publisher error", zap.Error(err))
	}

	// Upstream providers.
	telemetry, err := solarweb.NewClient(solarweb.Config{
		BaseURL:        cfg.DeviceAPI.BaseURL,
		AccessKeyID:    cfg.DeviceAPI.AccessKeyID,
		AccessKeyValue: cfg.DeviceAPI.AccessKeyValue,
		UserID:         cfg.DeviceAPI.UserID,
		Password:       cfg.DeviceAPI.Password,
		Timeout:        cfg.DeviceAPI.Timeout,
		RetryCount:     cfg.DeviceAPI.RetryCount,
		NullRetries:    cfg.DeviceAPI.NullRetries,
		NullRetryDelay: cfg.DeviceAPI.NullRetryDelay,
	}, logger.Named("solarweb"))
	if err != nil {
		logger.Fatal("telemetry client error", zap.Error(err))
	}
	codeSource, err := faultcodes.NewRESTSource(cfg.FaultCode.BaseURL, cfg.FaultCode.APIKey, cfg.DeviceAPI.Timeout)
	if err != nil {
		logger.Fatal("fault code source error", zap.Error(err))
	}
	colours, err := faultcodes.NewCache(codeSource, logger.Named("faultcodes"), faultcodes.WithTTL(cfg.FaultCode.TTL))
	if err != nil {
		logger.Fatal("fault code cache error", zap.Error(err))
	}
	astronomy, err := sun.NewAstronomyClient(cfg.Astronomy.BaseURL, cfg.Astronomy.APIKey, cfg.DeviceAPI.Timeout)
	if err != nil {
		logger.Fatal("astronomy client error", zap.Error(err))
	}
	windowStore, err := sun.NewRedisStore(redisClient, cfg.Astronomy.CacheTTL)
	if err != nil {
		logger.Fatal("sun window store error", zap.Error(err))
	}
	windows, err := sun.NewService(windowStore, astronomy, logger.Named("sun"))
	if err != nil {
		logger.Fatal("sun service error", zap.Error(err))
	}

	// Status: classification, aggregation, queries.
	deviceStatuses := statusrepo.NewDeviceStatusRepository(db)
	siteStatuses := statusrepo.NewSiteStatusRepository(db)
	statusLogs := statusrepo.NewLogRepository(db)

	classifier, err := statusapp.NewDeviceService(deviceStatuses, statusLogs, telemetry, colours, windows, publisher,
		statusapp.WithDeviceLogger(logger.Named("classifier")))
	if err != nil {
		logger.Fatal("device service error", zap.Error(err))
	}
	poller, err := statusapp.NewPoller(inventory, classifier,
		statusapp.WithBatching(cfg.Polling.BatchSize, cfg.Polling.BatchPause),
		statusapp.WithPollerLogger(logger.Named("poller")))
	if err != nil {
		logger.Fatal("poller error", zap.Error(err))
	}
	aggregator, err := statusapp.NewAggregator(deviceStatuses, siteStatuses, statusLogs, inventory,
		statusapp.WithAggregatorLogger(logger.Named("aggregator")),
		statusapp.WithSitePublisher(publisher))
	if err != nil {
		logger.Fatal("aggregator error", zap.Error(err))
	}
	adminService, err := statusapp.NewAdminService(deviceStatuses, statusLogs, inventory, aggregator, nil, logger.Named("admin"))
	if err != nil {
		logger.Fatal("admin service error", zap.Error(err))
	}
	queryService, err := statusapp.NewQueryService(deviceStatuses, siteStatuses, statusLogs, statusapp.WithSiteLookup(inventory))
	if err != nil {
		logger.Fatal("query service error", zap.Error(err))
	}

	// Notification channels.
	templates, err := notify.NewTemplates(cfg.Incidents.ResponseFormURL)
	if err != nil {
		logger.Fatal("notification templates error", zap.Error(err))
	}
	var webhook notify.Channel
	if cfg.Notify.WebhookURL != "" {
		channel, err := notify.NewWebhookChannel(cfg.Notify.WebhookURL, notify.WithWebhookTimeout(cfg.Notify.Timeout))
		if err != nil {
			logger.Fatal("webhook channel error", zap.Error(err))
		}
		webhook = channel
	}
	var email notify.Channel
	if cfg.Notify.SMTPHost != "" {
		channel, err := notify.NewEmailChannel(notify.SMTPConfig{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			Username: cfg.Notify.SMTPUsername,
			Password: cfg.Notify.SMTPPassword,
			From:     cfg.Notify.MailFrom,
		})
		if err != nil {
			logger.Fatal("email channel error", zap.Error(err))
		}
		email = channel
	} else {
		logger.Warn("SMTP_HOST not set, escalation emails are disabled")
	}
	push := notify.NewExpoChannel(cfg.Notify.PushURL,
		notify.WithExpoAccessToken(cfg.Notify.PushAccessToken),
		notify.WithExpoLogger(logger.Named("expo")))
	escalationChannel := notify.NewMultiChannel(email, webhook)
	pushChannel := notify.NewMultiChannel(push, webhook)

	alerter, err := notify.NewStatusAlerter(people, inventory, pushChannel, templates,
		notify.WithAlerterLogger(logger.Named("alerter")),
		notify.WithDedupeWindow(cfg.Notify.AlertDedupe))
	if err != nil {
		logger.Fatal("status alerter error", zap.Error(err))
	}
	sweeper, err := reminders.NewSweeper(deviceStatuses, people, pushChannel, templates,
		reminders.WithThreshold(cfg.Reminders.Threshold),
		reminders.WithNames(inventory),
		reminders.WithLogger(logger.Named("reminders")))
	if err != nil {
		logger.Fatal("reminder sweeper error", zap.Error(err))
	}

	// asynq: deadline timers and periodic tasks.
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	timers, err := jobs.NewScheduler(queueClient, inspector, cfg.Queue.Name)
	if err != nil {
		logger.Fatal("timer scheduler error", zap.Error(err))
	}

	incidentService, err := incidentsapp.NewService(
		incidentrepo.NewIncidentRepository(db),
		people,
		deviceStatuses,
		timers,
		escalationChannel,
		templates,
		incidentsapp.WithDeadline(cfg.Incidents.Deadline),
		incidentsapp.WithNames(inventory),
		incidentsapp.WithPublisher(publisher),
		incidentsapp.WithLogger(logger.Named("incidents")),
	)
	if err != nil {
		logger.Fatal("incident service error", zap.Error(err))
	}

	eventing.SubscribeTyped(bus, "status.aggregator", aggregator.HandleDeviceStatusChanged, processedStore)
	eventing.SubscribeTyped(bus, "incidents.open", incidentService.HandleDeviceStatusChanged, processedStore)
	eventing.SubscribeTyped(bus, "notify.status_alert", alerter.HandleDeviceStatusChanged, processedStore)

	if len(cfg.Kafka.Brokers) > 0 {
		writer, err := relay.NewKafkaWriter(cfg.Kafka.Brokers, cfg.ServiceName)
		if err != nil {
			logger.Fatal("kafka writer error", zap.Error(err))
		}
		kafkaRelay, err := relay.NewKafkaRelay(writer, cfg.Kafka.Topic, logger.Named("relay"))
		if err != nil {
			logger.Fatal("kafka relay error", zap.Error(err))
		}
		defer kafkaRelay.Close()
		kafkaRelay.Register(bus,
			eventing.EventTypeOf[events.DeviceStatusChanged](),
			eventing.EventTypeOf[events.SiteStatusChanged](),
			eventing.EventTypeOf[incidentevents.IncidentResolved](),
		)
	}

	taskMux := jobs.NewServeMux(jobs.Handlers{
		Deadline: incidentService.HandleDeadline,
		Poll: func(ctx context.Context) error {
			_, err := poller.RunCycle(ctx)
			return err
		},
		Reminder: func(ctx context.Context) error {
			_, err := sweeper.Run(ctx)
			return err
		},
		Outbox: func(ctx context.Context) error {
			result, err := dispatcher.Dispatch(ctx, cfg.Queue.OutboxBatchLimit)
			if result.Claimed > 0 {
				logger.Info("outbox scan", zap.Int("claimed", result.Claimed), zap.Int("sent", result.Sent), zap.Int("failed", result.Failed))
			}
			if err != nil {
				return err
			}
			if cfg.Queue.ProcessedRetention > 0 {
				if _, err := processedStore.Prune(ctx, time.Now().Add(-cfg.Queue.ProcessedRetention)); err != nil {
					logger.Warn("processed events prune failed", zap.Error(err))
				}
			}
			return nil
		},
	}, logger.Named("jobs"))

	worker := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Queues: map[string]int{
			cfg.Queue.Name: 1,
		},
	})
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})
	if _, err := jobs.RegisterPeriodic(scheduler, cfg.Queue.Name, jobs.Intervals{
		Poll:     cfg.Queue.PollEvery,
		Reminder: cfg.Reminders.Every,
		Outbox:   cfg.Queue.OutboxScanEvery,
	}); err != nil {
		logger.Fatal("scheduler register error", zap.Error(err))
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal("scheduler start error", zap.Error(err))
	}
	defer scheduler.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go jobs.MonitorQueue(ctx, inspector, cfg.Queue.Name, 10*time.Second)

	// HTTP.
	auditRepo := audit.NewRepository(db)
	statusHandler, err := statushttp.NewHandler(queryService, adminService, people)
	if err != nil {
		logger.Fatal("status handler error", zap.Error(err))
	}
	incidentHandler, err := incidenthttp.NewHandler(incidentService, auditRepo)
	if err != nil {
		logger.Fatal("incident handler error", zap.Error(err))
	}
	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy, auth.WithMiddlewareLogger(logger.Named("auth")))

	mux := http.NewServeMux()
	mux.Handle("/api/v1/devices/", statusHandler)
	mux.Handle("/api/v1/sites/", statusHandler)
	mux.Handle("/api/v1/admin/", statusHandler)
	mux.Handle("/api/v1/incidents", incidentHandler)
	mux.Handle("/api/v1/incidents/", incidentHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("worker started", zap.String("queue", cfg.Queue.Name), zap.Int("concurrency", cfg.Queue.Concurrency))
		errCh <- worker.Run(taskMux)
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, asynq.ErrServerClosed) && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
	worker.Shutdown()
	logger.Info("stopped")
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
