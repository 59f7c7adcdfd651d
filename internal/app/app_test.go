package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/godilite/support-metrics/internal/config"
	grpcmocks "github.com/godilite/support-metrics/internal/grpc/mocks"
	"github.com/godilite/support-metrics/internal/repository/models"
	"github.com/godilite/support-metrics/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.LoadFromEnv()
	cfg.Database.Path = filepath.Join(t.TempDir(), "nested", "metrics.db")
	cfg.Metrics.PushgatewayURL = ""
	return cfg
}

func TestNewApp(t *testing.T) {
	assert.Panics(t, func() { NewApp(nil, nil) })

	a := NewApp(testConfig(t), nil)
	assert.NotNil(t, a.logger)
	assert.NotNil(t, a.now)
}

func TestMigrate(t *testing.T) {
	a := NewApp(testConfig(t), zaptest.NewLogger(t))
	t.Cleanup(a.Close)

	version, err := a.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	again, err := a.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, version, again, "migrating twice is a no-op")
}

func TestReplay_NoSnapshot(t *testing.T) {
	a := NewApp(testConfig(t), zaptest.NewLogger(t))
	t.Cleanup(a.Close)

	_, err := a.Replay(context.Background(), ReplayOptions{})
	assert.ErrorIs(t, err, service.ErrNoSnapshot)
}

func TestInvalidateReports_UsesInjectedCache(t *testing.T) {
	var prefixes []string
	cache := &grpcmocks.MockCacher{
		DeletePrefixFunc: func(ctx context.Context, prefix string) (int64, error) {
			prefixes = append(prefixes, prefix)
			return 0, nil
		},
	}
	a := NewApp(testConfig(t), zaptest.NewLogger(t), WithCache(cache))

	a.invalidateReports(context.Background(), models.SnapshotInfo{ID: "snap", CapturedAt: time.Now()})
	assert.Equal(t, []string{"grpc:weekly_report"}, prefixes)
	assert.False(t, a.ownCache, "injected caches are not closed by the app")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "out.html")
	require.NoError(t, writeFile(path, []byte("<html></html>")))
	assert.FileExists(t, path)
}
