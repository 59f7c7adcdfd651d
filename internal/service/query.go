package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/godilite/support-metrics/internal/repository/models"
)

const (
	dbTimeout = 5 * time.Second
)

var (
	ErrNoSnapshot     = errors.New("no snapshot stored")
	ErrStorageFailure = errors.New("storage failure")
)

// ReportQueryService rebuilds reports from the latest stored snapshot. It
// backs the replay command and the lookup server; it never fetches live data.
type ReportQueryService struct {
	snapshots SnapshotStore
	builder   *MetricsService
	logger    *zap.Logger
}

// NewReportQueryService creates a new ReportQueryService instance.
func NewReportQueryService(snapshots SnapshotStore, builder *MetricsService, logger *zap.Logger) *ReportQueryService {
	if snapshots == nil {
		panic("snapshot store must not be nil")
	}
	if builder == nil {
		panic("metrics service must not be nil")
	}
	if logger == nil {
		l, _ := zap.NewProduction()
		logger = l
	}
	return &ReportQueryService{
		snapshots: snapshots,
		builder:   builder,
		logger:    logger,
	}
}

// WeeklyReport builds the report for the window ending at asOf.
func (s *ReportQueryService) WeeklyReport(ctx context.Context, asOf time.Time) (Report, error) {
	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	records, info, err := s.snapshots.LoadLatestSnapshot(dbCtx)
	if err != nil {
		if errors.Is(err, models.ErrSnapshotNotFound) {
			return Report{}, ErrNoSnapshot
		}
		return Report{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	s.logger.Info("loaded snapshot",
		zap.String("snapshot_id", info.ID),
		zap.Time("captured_at", info.CapturedAt),
		zap.Int("records", info.RecordCount),
		zap.Time("as_of", asOf))

	return s.builder.BuildReport(records, asOf), nil
}
