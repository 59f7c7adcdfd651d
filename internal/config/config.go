package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/godilite/support-metrics/internal/service"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Section names a group of settings a command can require.
type Section string

const (
	SectionZendesk  Section = "zendesk"
	SectionEmail    Section = "email"
	SectionReport   Section = "report"
	SectionDatabase Section = "database"
	SectionRedis    Section = "redis"
	SectionGRPC     Section = "grpc"
	SectionMetrics  Section = "metrics"
)

type AppConfig struct {
	Env      string `validate:"required"`
	LogLevel string `validate:"omitempty,oneof=debug info warn error"`
}

type ZendeskConfig struct {
	Subdomain   string `validate:"required_without=BaseURL"`
	BaseURL     string `validate:"omitempty,url"`
	Email       string `validate:"required,email"`
	APIToken    string `validate:"required"`
	StartTime   int64  `validate:"gte=0"`
	HTTPTimeout time.Duration
}

type EmailConfig struct {
	ResendAPIKey string   `validate:"required"`
	AudienceID   string   `validate:"required_without=Recipients"`
	From         string   `validate:"required"`
	Recipients   []string `validate:"omitempty,dive,email"`
	AttachXLSX   bool
}

type ReportConfig struct {
	BotAgentName        string `validate:"required"`
	TeamLabel           string `validate:"required"`
	CustomerTypeFieldID int64  `validate:"gt=0"`
	WindowDays          int    `validate:"min=1,max=366"`
}

// Settings converts the section into aggregation settings.
func (r ReportConfig) Settings() service.ReportSettings {
	return service.ReportSettings{
		BotAgentName:        r.BotAgentName,
		TeamLabel:           r.TeamLabel,
		CustomerTypeFieldID: r.CustomerTypeFieldID,
		Window:              time.Duration(r.WindowDays) * 24 * time.Hour,
	}
}

type DatabaseConfig struct {
	SnapshotEnabled bool
	Driver          string `validate:"required,oneof=sqlite3"`
	Path            string `validate:"required"`
}

type RedisConfig struct {
	Addr     string `validate:"required"`
	Password string
	DB       int `validate:"gte=0"`
	CacheTTL time.Duration
}

type GRPCConfig struct {
	Port       int `validate:"min=1,max=65535"`
	Reflection bool
}

type MetricsConfig struct {
	Addr           string
	PushgatewayURL string `validate:"omitempty,url"`
	PushgatewayJob string `validate:"required_with=PushgatewayURL"`
}

// Config holds all configuration for the application.
type Config struct {
	App      AppConfig
	Zendesk  ZendeskConfig
	Email    EmailConfig
	Report   ReportConfig
	Database DatabaseConfig
	Redis    RedisConfig
	GRPC     GRPCConfig
	Metrics  MetricsConfig
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *Config {
	return &Config{
		App: AppConfig{
			Env:      getEnv("APP_ENV", "development"),
			LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		},
		Zendesk: ZendeskConfig{
			Subdomain:   getEnv("ZENDESK_SUBDOMAIN", ""),
			BaseURL:     getEnv("ZENDESK_BASE_URL", ""),
			Email:       getEnv("ZENDESK_EMAIL", ""),
			APIToken:    getEnv("ZENDESK_API_TOKEN", ""),
			StartTime:   getInt64("ZENDESK_START_TIME", 0),
			HTTPTimeout: time.Duration(getInt("ZENDESK_HTTP_TIMEOUT_SECONDS", 60)) * time.Second,
		},
		Email: EmailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			AudienceID:   getEnv("RESEND_AUDIENCE_ID", ""),
			From:         getEnv("EMAIL_FROM", ""),
			Recipients:   getList("EMAIL_RECIPIENTS"),
			AttachXLSX:   getBool("EMAIL_ATTACH_XLSX", false),
		},
		Report: ReportConfig{
			BotAgentName:        getEnv("REPORT_BOT_AGENT_NAME", service.DefaultBotAgentName),
			TeamLabel:           getEnv("REPORT_TEAM_LABEL", service.DefaultTeamLabel),
			CustomerTypeFieldID: getInt64("REPORT_CUSTOMER_TYPE_FIELD_ID", service.DefaultCustomerTypeFieldID),
			WindowDays:          getInt("REPORT_WINDOW_DAYS", 7),
		},
		Database: DatabaseConfig{
			SnapshotEnabled: getBool("SNAPSHOT_ENABLED", true),
			Driver:          getEnv("DB_DRIVER", "sqlite3"),
			Path:            getEnv("DB_PATH", "./data/support-metrics.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			CacheTTL: time.Duration(getInt("REDIS_CACHE_TTL_SECONDS", 600)) * time.Second,
		},
		GRPC: GRPCConfig{
			Port:       getInt("GRPC_PORT", 50051),
			Reflection: getBool("GRPC_REFLECTION_ENABLED", false),
		},
		Metrics: MetricsConfig{
			Addr:           getEnv("METRICS_ADDR", ":9090"),
			PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
			PushgatewayJob: getEnv("PUSHGATEWAY_JOB", "support-metrics"),
		},
	}
}

// Validate checks the app section plus the named sections. Commands pass
// only what they use, so serve does not need Zendesk credentials.
func (c *Config) Validate(sections ...Section) error {
	v := validator.New()

	if err := v.Struct(c.App); err != nil {
		return fmt.Errorf("%w: app: %v", ErrInvalidConfig, err)
	}

	for _, s := range sections {
		var target any
		switch s {
		case SectionZendesk:
			target = c.Zendesk
		case SectionEmail:
			target = c.Email
		case SectionReport:
			target = c.Report
		case SectionDatabase:
			target = c.Database
		case SectionRedis:
			target = c.Redis
		case SectionGRPC:
			target = c.GRPC
		case SectionMetrics:
			target = c.Metrics
		default:
			return fmt.Errorf("%w: unknown section %q", ErrInvalidConfig, s)
		}
		if err := v.Struct(target); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, s, err)
		}
	}
	return nil
}

// NewLogger creates a new Zap logger based on the config.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.App.LogLevel != "" {
		if err := level.Set(cfg.App.LogLevel); err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
	}

	zc := zap.NewDevelopmentConfig()
	if cfg.App.Env == "production" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getInt64(key string, fallback int64) int64 {
	v, err := strconv.ParseInt(getEnv(key, ""), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

// getList splits a comma-separated variable, dropping empty items.
func getList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
