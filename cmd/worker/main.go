package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/campuspool/internal/config"
	"github.com/example/campuspool/internal/events"
	"github.com/example/campuspool/internal/lifecycle"
	"github.com/example/campuspool/internal/logging"
	"github.com/example/campuspool/internal/notify"
	"github.com/example/campuspool/internal/payments"
	"github.com/example/campuspool/internal/realtime"
	"github.com/example/campuspool/internal/storage"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_events_consumed_total",
		Help: "Total change events consumed from the topic",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_events_invalid_total",
		Help: "Total undecodable messages received",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	var store storage.Store
	var ps *storage.PostgresStore
	if cfg.PGDSN != "" {
		ps, err = storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer ps.Close()
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
	}

	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required: the worker writes chat streams")
	}
	tree := realtime.NewRedisTree(cfg.RedisAddr, cfg.RedisPassword)
	defer tree.Close()

	gateway := &notify.Gateway{
		Push: notify.NewFCMSender(cfg.FCMEndpoint, cfg.FCMKey),
		Mail: notify.NewHTTPMailer(cfg.MailEndpoint, cfg.MailKey, cfg.MailFrom),
		Log:  logger,
	}

	var pay payments.Provider
	if cfg.StripeAPIKey != "" {
		pay = payments.NewStripeProvider(cfg.StripeAPIKey)
	}

	batch := storage.NewBatchWriter(store, logger)

	aggregator := &lifecycle.RatingAggregator{Store: store, Log: logger}
	coordinator := &lifecycle.BookingCoordinator{Store: store, Gateway: gateway, Chat: tree, Log: logger}
	machine := &lifecycle.RideStateMachine{
		Store: store, Gateway: gateway, Chat: tree, Batch: batch, Payments: pay, Log: logger,
	}

	// one handler per (resource, kind)
	router := events.NewRouter(logger)
	router.Register(events.ResourceRatings, events.KindCreated, aggregator.OnRatingCreated)
	router.Register(events.ResourceBookings, events.KindCreated, coordinator.OnBookingCreated)
	router.Register(events.ResourceBookings, events.KindUpdated, coordinator.OnBookingUpdated)
	router.Register(events.ResourceRides, events.KindUpdated, machine.OnRideUpdated)

	// metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := tree.Ping(r.Context()); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			if ps != nil {
				if err := ps.Ping(r.Context()); err != nil {
					http.Error(w, "postgres not ready", 503)
					return
				}
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup,
		MinBytes: 10e3, MaxBytes: 10e6,
	})
	defer r.Close()

	logger.Info("worker consuming", "topic", cfg.KafkaTopic, "brokers", brokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down worker")
				return
			}
			logger.Error("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var ev events.ChangeEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			msgsInvalid.Inc()
			logger.Error("invalid event message", "error", err)
			continue
		}
		// Dispatch never fails: handler errors are logged inside and the
		// offset commits either way; redelivery happens at the platform level.
		router.Dispatch(ctx, ev)
	}
}
