package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/campuspool/internal/config"
	"github.com/example/campuspool/internal/httpapi"
	"github.com/example/campuspool/internal/ingest"
	"github.com/example/campuspool/internal/lifecycle"
	"github.com/example/campuspool/internal/logging"
	"github.com/example/campuspool/internal/notify"
	"github.com/example/campuspool/internal/payments"
	"github.com/example/campuspool/internal/realtime"
	"github.com/example/campuspool/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	var store storage.Store
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			runMigrations(cfg.PGDSN)
		}
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer ps.Close()
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
	}

	var chat realtime.ChatLog
	if cfg.RedisAddr != "" {
		tree := realtime.NewRedisTree(cfg.RedisAddr, cfg.RedisPassword)
		defer tree.Close()
		chat = tree
	}

	wsreg := notify.NewRegistry()
	gateway := &notify.Gateway{
		Push:     notify.NewFCMSender(cfg.FCMEndpoint, cfg.FCMKey),
		Mail:     notify.NewHTTPMailer(cfg.MailEndpoint, cfg.MailKey, cfg.MailFrom),
		Sessions: wsreg,
		Log:      logger,
	}

	var pay payments.Provider
	if cfg.StripeAPIKey != "" {
		pay = payments.NewStripeProvider(cfg.StripeAPIKey)
	}

	machine := &lifecycle.RideStateMachine{
		Store:    store,
		Gateway:  gateway,
		Chat:     chat,
		Batch:    storage.NewBatchWriter(store, logger),
		Payments: pay,
		Log:      logger,
	}

	var producer httpapi.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		producer = kp
	}

	srv := httpapi.NewServer(store, machine, gateway.Mail, producer, wsreg, cfg.ServiceToken, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("campuspool api listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

// optional migration: run migrations/001_init.sql if requested
func runMigrations(dsn string) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Printf("migration db open error: %v", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_init.sql"))
	if err != nil {
		log.Printf("migration read error: %v", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		log.Printf("migration exec error: %v", err)
		return
	}
	log.Printf("migration applied: 001_init.sql")
}
