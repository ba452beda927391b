// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	NATS     NATSConfig
	SMTP     SMTPConfig
	Notify   NotifyConfig
	Outbox   OutboxConfig
	Workflow WorkflowConfig
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

type ServerConfig struct {
	Port            int
	GRPCPort        int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type StoreConfig struct {
	Driver string // postgres | memory
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	HealthCheck time.Duration
	AutoMigrate bool
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type SMTPConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	From            string
	RecipientDomain string
	SkipTLSVerify   bool
}

type NotifyConfig struct {
	Driver string // nats | smtp | log
}

type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	ClaimLease   time.Duration
}

type WorkflowConfig struct {
	MinNotesLength  int
	CatalogSeedFile string
}

// Load reads .env (when present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Load uses os.Getenv; tests
// pass a map.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := &parser{getenv: getenv}

	cfg := &Config{
		Service: ServiceConfig{
			Name:        p.str("SERVICE_NAME", "be-ip-review"),
			Version:     p.str("SERVICE_VERSION", "dev"),
			Environment: p.str("ENVIRONMENT", "development"),
			LogLevel:    p.str("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:            p.int("HTTP_PORT", 8086),
			GRPCPort:        p.int("GRPC_PORT", 9086),
			ReadTimeout:     p.duration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    p.duration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     p.duration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 20*time.Second),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(p.str("STORE_DRIVER", "postgres")),
		},
		Database: DatabaseConfig{
			Host:        p.str("DB_HOST", "localhost"),
			Port:        p.int("DB_PORT", 5432),
			User:        p.str("DB_USER", "postgres"),
			Password:    p.str("DB_PASSWORD", ""),
			Database:    p.str("DB_NAME", "ip_review"),
			SSLMode:     p.str("DB_SSLMODE", "disable"),
			MaxConns:    int32(p.int("DB_MAX_CONNS", 10)),
			MinConns:    int32(p.int("DB_MIN_CONNS", 1)),
			MaxConnTime: p.duration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxIdleTime: p.duration("DB_MAX_CONN_IDLE", 30*time.Minute),
			HealthCheck: p.duration("DB_HEALTH_CHECK_PERIOD", time.Minute),
			AutoMigrate: p.bool("DB_AUTO_MIGRATE", false),
		},
		NATS: NATSConfig{
			URL:           p.str("NATS_URL", "nats://localhost:4222"),
			SubjectPrefix: p.str("NATS_SUBJECT_PREFIX", "notifications.ip"),
		},
		SMTP: SMTPConfig{
			Host:            p.str("SMTP_HOST", ""),
			Port:            p.int("SMTP_PORT", 587),
			User:            p.str("SMTP_USER", ""),
			Password:        p.str("SMTP_PASS", ""),
			From:            p.str("SMTP_FROM", ""),
			RecipientDomain: p.str("SMTP_RECIPIENT_DOMAIN", ""),
			SkipTLSVerify:   p.bool("SMTP_SKIP_TLS_VERIFY", false),
		},
		Notify: NotifyConfig{
			Driver: strings.ToLower(p.str("NOTIFY_DRIVER", "log")),
		},
		Outbox: OutboxConfig{
			PollInterval: p.duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    p.int("OUTBOX_BATCH_SIZE", 50),
			MaxAttempts:  p.int("OUTBOX_MAX_ATTEMPTS", 5),
			ClaimLease:   p.duration("OUTBOX_CLAIM_LEASE", time.Minute),
		},
		Workflow: WorkflowConfig{
			MinNotesLength:  p.int("REVIEW_MIN_NOTES_LENGTH", 10),
			CatalogSeedFile: p.str("CATALOG_SEED_FILE", ""),
		},
	}

	if len(p.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(p.errs, "; "))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid configuration: STORE_DRIVER %q (want postgres or memory)", c.Store.Driver)
	}
	switch c.Notify.Driver {
	case "nats", "smtp", "log":
	default:
		return fmt.Errorf("invalid configuration: NOTIFY_DRIVER %q (want nats, smtp or log)", c.Notify.Driver)
	}
	if c.Notify.Driver == "smtp" && (c.SMTP.Host == "" || c.SMTP.From == "") {
		return fmt.Errorf("invalid configuration: NOTIFY_DRIVER=smtp requires SMTP_HOST and SMTP_FROM")
	}
	if c.Workflow.MinNotesLength < 1 {
		return fmt.Errorf("invalid configuration: REVIEW_MIN_NOTES_LENGTH must be positive")
	}
	if c.Outbox.BatchSize < 1 || c.Outbox.MaxAttempts < 1 {
		return fmt.Errorf("invalid configuration: OUTBOX_BATCH_SIZE and OUTBOX_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// DSN renders the database connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

type parser struct {
	getenv func(string) string
	errs   []string
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s=%q is not an integer", key, v))
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s=%q is not a boolean", key, v))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s=%q is not a duration", key, v))
		return def
	}
	return d
}
