package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/example/campuspool/internal/config"
	"github.com/example/campuspool/internal/ingest"
	"github.com/example/campuspool/internal/logging"
	"github.com/example/campuspool/internal/notify"
	"github.com/example/campuspool/internal/realtime"
	"github.com/example/campuspool/internal/storage"
	"github.com/example/campuspool/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		log.Fatalf("time zone %q: %v", cfg.TimeZone, err)
	}

	if cfg.PGDSN == "" {
		log.Fatal("PG_DSN is required for the sweeper")
	}
	store, err := storage.NewPostgresStore(cfg.PGDSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer store.Close()

	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required for the sweeper")
	}
	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rc.Close()
	tree := realtime.NewRedisTreeFromClient(rc)

	gateway := &notify.Gateway{
		Push: notify.NewFCMSender(cfg.FCMEndpoint, cfg.FCMKey),
		Mail: notify.NewHTTPMailer(cfg.MailEndpoint, cfg.MailKey, cfg.MailFrom),
		Log:  logger,
	}

	var events sweeper.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		events = kp
	} else {
		logger.Warn("KAFKA_BROKERS not set, auto-completed rides will not fan out")
	}

	s := &sweeper.Sweeper{
		Store:   store,
		Gateway: gateway,
		Chat:    tree,
		Batch:   storage.NewBatchWriter(store, logger),
		Events:  events,
		Lease:   sweeper.NewRedisLease(rc, cfg.LeaseTTL),
		Log:     logger,

		ReminderLead:          cfg.ReminderLead,
		ReminderWindow:        cfg.ReminderWindow,
		AutoCompleteAfter:     cfg.AutoCompleteAfter,
		CompletionRemindAfter: cfg.CompletionRemindAfter,
		ArchiveAfter:          cfg.ArchiveAfter,
		ArchiveLimit:          cfg.ArchiveLimit,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cron.New(cron.WithLocation(loc))
	mustAdd(c, cfg.ReminderSpec, func() { s.RideReminder(ctx) })
	mustAdd(c, cfg.ArchivalSpec, func() { s.StaleRideArchival(ctx) })
	mustAdd(c, cfg.AutoCompleteSpec, func() { s.AutoCompleteExpired(ctx) })
	mustAdd(c, cfg.CompletionSpec, func() { s.CompletionReminder(ctx) })

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	logger.Info("sweeper scheduled",
		"reminder", cfg.ReminderSpec,
		"archival", cfg.ArchivalSpec,
		"auto_complete", cfg.AutoCompleteSpec,
		"completion", cfg.CompletionSpec,
		"tz", cfg.TimeZone,
	)
	c.Start()

	<-ctx.Done()
	logger.Info("shutting down sweeper")
	<-c.Stop().Done()
}

func mustAdd(c *cron.Cron, spec string, fn func()) {
	if _, err := c.AddFunc(spec, fn); err != nil {
		log.Fatalf("cron spec %q: %v", spec, err)
	}
}
