package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures all tunable parameters for the three binaries. Values are
// primarily loaded from environment variables with sane defaults so a binary
// can run locally without excessive setup.
type Config struct {
	HTTPAddr        string
	MetricsAddr     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	PGDSN         string
	RunMigrations bool

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	FCMEndpoint string
	FCMKey      string

	MailEndpoint string
	MailKey      string
	MailFrom     string

	StripeAPIKey string

	ServiceToken string

	TimeZone string

	// Sweep cadences (cron specs, evaluated in TimeZone) and windows.
	ReminderSpec     string
	ArchivalSpec     string
	AutoCompleteSpec string
	CompletionSpec   string

	ReminderLead          time.Duration
	ReminderWindow        time.Duration
	AutoCompleteAfter     time.Duration
	CompletionRemindAfter time.Duration
	ArchiveAfter          time.Duration
	ArchiveLimit          int
	LeaseTTL              time.Duration

	LogLevel string
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		MetricsAddr:     ":2112",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,

		KafkaTopic: "doc-events",
		KafkaGroup: "campuspool-worker",

		MailFrom: "no-reply@campuspool.edu",

		TimeZone: "UTC",

		ReminderSpec:     "*/5 * * * *",
		ArchivalSpec:     "30 3 * * *",
		AutoCompleteSpec: "0 * * * *",
		CompletionSpec:   "*/30 * * * *",

		ReminderLead:          30 * time.Minute,
		ReminderWindow:        5 * time.Minute,
		AutoCompleteAfter:     2 * time.Hour,
		CompletionRemindAfter: time.Hour,
		ArchiveAfter:          30 * 24 * time.Hour,
		ArchiveLimit:          500,
		LeaseTTL:              10 * time.Minute,

		LogLevel: "info",
	}
}

func Load() (Config, error) {
	cfg := defaultConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")

	setStringFromEnv(&cfg.FCMEndpoint, "FCM_ENDPOINT")
	cfg.FCMKey = os.Getenv("FCM_KEY")

	setStringFromEnv(&cfg.MailEndpoint, "MAIL_ENDPOINT")
	cfg.MailKey = os.Getenv("MAIL_KEY")
	setStringFromEnv(&cfg.MailFrom, "MAIL_FROM")

	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")

	cfg.ServiceToken = os.Getenv("SERVICE_TOKEN")

	setStringFromEnv(&cfg.TimeZone, "TIME_ZONE")

	setStringFromEnv(&cfg.ReminderSpec, "SWEEP_REMINDER_SPEC")
	setStringFromEnv(&cfg.ArchivalSpec, "SWEEP_ARCHIVAL_SPEC")
	setStringFromEnv(&cfg.AutoCompleteSpec, "SWEEP_AUTOCOMPLETE_SPEC")
	setStringFromEnv(&cfg.CompletionSpec, "SWEEP_COMPLETION_SPEC")

	setDurationFromEnv(&cfg.ReminderLead, "SWEEP_REMINDER_LEAD", &errs)
	setDurationFromEnv(&cfg.ReminderWindow, "SWEEP_REMINDER_WINDOW", &errs)
	setDurationFromEnv(&cfg.AutoCompleteAfter, "SWEEP_AUTOCOMPLETE_AFTER", &errs)
	setDurationFromEnv(&cfg.CompletionRemindAfter, "SWEEP_COMPLETION_AFTER", &errs)
	setDurationFromEnv(&cfg.ArchiveAfter, "SWEEP_ARCHIVE_AFTER", &errs)
	setIntFromEnv(&cfg.ArchiveLimit, "SWEEP_ARCHIVE_LIMIT", &errs)
	setDurationFromEnv(&cfg.LeaseTTL, "SWEEP_LEASE_TTL", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.ArchiveLimit <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_ARCHIVE_LIMIT must be > 0"))
	}
	if cfg.ReminderWindow <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_REMINDER_WINDOW must be > 0"))
	}
	if cfg.CompletionRemindAfter >= cfg.AutoCompleteAfter {
		errs = append(errs, fmt.Errorf("SWEEP_COMPLETION_AFTER must be below SWEEP_AUTOCOMPLETE_AFTER"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
