package service

import (
	"context"

	"github.com/godilite/support-metrics/internal/repository/models"
)

// RecordSource yields the unified ticket records for one run.
type RecordSource interface {
	Fetch(ctx context.Context, startTime int64) (models.FetchResult, error)
}

// SnapshotStore persists the latest unified record set for offline replay.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, records []models.UnifiedRecord) (models.SnapshotInfo, error)
	LoadLatestSnapshot(ctx context.Context) ([]models.UnifiedRecord, models.SnapshotInfo, error)
}

// ReportDispatcher delivers a built report and returns the sink's message id.
type ReportDispatcher interface {
	Dispatch(ctx context.Context, report Report) (string, error)
}
