package mocks

import (
	"context"
	"errors"

	"github.com/godilite/support-metrics/internal/repository/models"
)

// MockSnapshotStore is a mock implementation of the SnapshotStore interface
// for testing the service layer.
type MockSnapshotStore struct {
	SaveSnapshotFunc       func(ctx context.Context, records []models.UnifiedRecord) (models.SnapshotInfo, error)
	LoadLatestSnapshotFunc func(ctx context.Context) ([]models.UnifiedRecord, models.SnapshotInfo, error)
}

// SaveSnapshot implements the SnapshotStore interface
func (m *MockSnapshotStore) SaveSnapshot(ctx context.Context, records []models.UnifiedRecord) (models.SnapshotInfo, error) {
	if m.SaveSnapshotFunc != nil {
		return m.SaveSnapshotFunc(ctx, records)
	}
	return models.SnapshotInfo{}, errors.New("SaveSnapshotFunc not implemented")
}

// LoadLatestSnapshot implements the SnapshotStore interface
func (m *MockSnapshotStore) LoadLatestSnapshot(ctx context.Context) ([]models.UnifiedRecord, models.SnapshotInfo, error) {
	if m.LoadLatestSnapshotFunc != nil {
		return m.LoadLatestSnapshotFunc(ctx)
	}
	return nil, models.SnapshotInfo{}, errors.New("LoadLatestSnapshotFunc not implemented")
}

// MockRecordSource is a mock implementation of the RecordSource interface.
type MockRecordSource struct {
	FetchFunc func(ctx context.Context, startTime int64) (models.FetchResult, error)
}

// Fetch implements the RecordSource interface
func (m *MockRecordSource) Fetch(ctx context.Context, startTime int64) (models.FetchResult, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, startTime)
	}
	return models.FetchResult{}, errors.New("FetchFunc not implemented")
}
