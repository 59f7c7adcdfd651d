package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/godilite/support-metrics/internal/service"
)

func setRunEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ZENDESK_SUBDOMAIN", "acme")
	t.Setenv("ZENDESK_EMAIL", "ops@acme.test")
	t.Setenv("ZENDESK_API_TOKEN", "token")
	t.Setenv("RESEND_API_KEY", "re_123")
	t.Setenv("RESEND_AUDIENCE_ID", "aud_1")
	t.Setenv("EMAIL_FROM", "Support <support@acme.test>")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg := LoadFromEnv()

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, int64(0), cfg.Zendesk.StartTime)
	assert.Equal(t, 60*time.Second, cfg.Zendesk.HTTPTimeout)
	assert.Equal(t, service.DefaultBotAgentName, cfg.Report.BotAgentName)
	assert.Equal(t, service.DefaultTeamLabel, cfg.Report.TeamLabel)
	assert.Equal(t, service.DefaultCustomerTypeFieldID, cfg.Report.CustomerTypeFieldID)
	assert.Equal(t, 7, cfg.Report.WindowDays)
	assert.True(t, cfg.Database.SnapshotEnabled)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 50051, cfg.GRPC.Port)
	assert.False(t, cfg.GRPC.Reflection)
	assert.Equal(t, 10*time.Minute, cfg.Redis.CacheTTL)
	assert.Nil(t, cfg.Email.Recipients)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("EMAIL_RECIPIENTS", " a@acme.test, ,b@acme.test ")
	t.Setenv("EMAIL_ATTACH_XLSX", "true")
	t.Setenv("REPORT_WINDOW_DAYS", "14")
	t.Setenv("REPORT_CUSTOMER_TYPE_FIELD_ID", "123")
	t.Setenv("GRPC_PORT", "not-a-number")
	t.Setenv("SNAPSHOT_ENABLED", "false")

	cfg := LoadFromEnv()

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, []string{"a@acme.test", "b@acme.test"}, cfg.Email.Recipients)
	assert.True(t, cfg.Email.AttachXLSX)
	assert.Equal(t, 14, cfg.Report.WindowDays)
	assert.Equal(t, int64(123), cfg.Report.CustomerTypeFieldID)
	assert.Equal(t, 50051, cfg.GRPC.Port, "unparseable values fall back to the default")
	assert.False(t, cfg.Database.SnapshotEnabled)

	settings := cfg.Report.Settings()
	assert.Equal(t, 14*24*time.Hour, settings.Window)
	assert.Equal(t, int64(123), settings.CustomerTypeFieldID)
}

func TestValidate(t *testing.T) {
	t.Run("run sections pass with a complete environment", func(t *testing.T) {
		setRunEnv(t)
		cfg := LoadFromEnv()
		require.NoError(t, cfg.Validate(SectionZendesk, SectionEmail, SectionReport, SectionDatabase, SectionMetrics))
	})

	t.Run("missing zendesk credentials", func(t *testing.T) {
		setRunEnv(t)
		t.Setenv("ZENDESK_API_TOKEN", "")
		err := LoadFromEnv().Validate(SectionZendesk)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "APIToken")
	})

	t.Run("base url stands in for the subdomain", func(t *testing.T) {
		setRunEnv(t)
		t.Setenv("ZENDESK_SUBDOMAIN", "")
		t.Setenv("ZENDESK_BASE_URL", "http://localhost:8080")
		assert.NoError(t, LoadFromEnv().Validate(SectionZendesk))
	})

	t.Run("fixed recipients replace the audience", func(t *testing.T) {
		setRunEnv(t)
		t.Setenv("RESEND_AUDIENCE_ID", "")
		t.Setenv("EMAIL_RECIPIENTS", "lead@acme.test")
		assert.NoError(t, LoadFromEnv().Validate(SectionEmail))
	})

	t.Run("neither audience nor recipients", func(t *testing.T) {
		setRunEnv(t)
		t.Setenv("RESEND_AUDIENCE_ID", "")
		assert.ErrorIs(t, LoadFromEnv().Validate(SectionEmail), ErrInvalidConfig)
	})

	t.Run("malformed recipient", func(t *testing.T) {
		setRunEnv(t)
		t.Setenv("EMAIL_RECIPIENTS", "not-an-address")
		assert.ErrorIs(t, LoadFromEnv().Validate(SectionEmail), ErrInvalidConfig)
	})

	t.Run("unsupported driver", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "oracle")
		assert.ErrorIs(t, LoadFromEnv().Validate(SectionDatabase), ErrInvalidConfig)
	})

	t.Run("bad log level fails before any section", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "loud")
		assert.ErrorIs(t, LoadFromEnv().Validate(), ErrInvalidConfig)
	})

	t.Run("unknown section", func(t *testing.T) {
		assert.ErrorIs(t, LoadFromEnv().Validate(Section("nope")), ErrInvalidConfig)
	})

	t.Run("serve does not need zendesk", func(t *testing.T) {
		assert.NoError(t, LoadFromEnv().Validate(SectionDatabase, SectionRedis, SectionGRPC, SectionReport))
	})
}

func TestNewLogger(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.App.LogLevel = "warn"

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	cfg.App.Env = "production"
	logger, err = NewLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.App.LogLevel = "loud"
	_, err = NewLogger(cfg)
	assert.Error(t, err)
}
