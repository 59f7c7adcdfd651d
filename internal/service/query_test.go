package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/godilite/support-metrics/internal/repository/models"
	"github.com/godilite/support-metrics/internal/service/mocks"
)

func TestNewReportQueryService(t *testing.T) {
	t.Run("nil store panics", func(t *testing.T) {
		assert.Panics(t, func() {
			NewReportQueryService(nil, newTestMetricsService(), zap.NewNop())
		})
	})

	t.Run("nil builder panics", func(t *testing.T) {
		assert.Panics(t, func() {
			NewReportQueryService(&mocks.MockSnapshotStore{}, nil, zap.NewNop())
		})
	})

	t.Run("nil logger gets default", func(t *testing.T) {
		s := NewReportQueryService(&mocks.MockSnapshotStore{}, newTestMetricsService(), nil)
		assert.NotNil(t, s.logger)
	})
}

func TestWeeklyReport(t *testing.T) {
	ctx := context.Background()

	t.Run("builds from the latest snapshot as of the given time", func(t *testing.T) {
		store := &mocks.MockSnapshotStore{
			LoadLatestSnapshotFunc: func(ctx context.Context) ([]models.UnifiedRecord, models.SnapshotInfo, error) {
				_, hasDeadline := ctx.Deadline()
				assert.True(t, hasDeadline)
				return aliceResult().Records, models.SnapshotInfo{ID: "s1", RecordCount: 2}, nil
			},
		}
		s := NewReportQueryService(store, newTestMetricsService(), zap.NewNop())

		report, err := s.WeeklyReport(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, now, report.WindowEnd)
		assert.Len(t, report.Agents, 1)

		later, err := s.WeeklyReport(ctx, now.Add(30*24*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, later.Agents, "the solved ticket falls out of a later window")
	})

	t.Run("no snapshot", func(t *testing.T) {
		store := &mocks.MockSnapshotStore{
			LoadLatestSnapshotFunc: func(context.Context) ([]models.UnifiedRecord, models.SnapshotInfo, error) {
				return nil, models.SnapshotInfo{}, fmt.Errorf("load: %w", models.ErrSnapshotNotFound)
			},
		}
		s := NewReportQueryService(store, newTestMetricsService(), zap.NewNop())

		_, err := s.WeeklyReport(ctx, now)
		assert.ErrorIs(t, err, ErrNoSnapshot)
	})

	t.Run("storage failure", func(t *testing.T) {
		store := &mocks.MockSnapshotStore{
			LoadLatestSnapshotFunc: func(context.Context) ([]models.UnifiedRecord, models.SnapshotInfo, error) {
				return nil, models.SnapshotInfo{}, errors.New("database is locked")
			},
		}
		s := NewReportQueryService(store, newTestMetricsService(), zap.NewNop())

		_, err := s.WeeklyReport(ctx, now)
		assert.ErrorIs(t, err, ErrStorageFailure)
		assert.NotErrorIs(t, err, ErrNoSnapshot)
	})
}
