package grpc

import (
	"context"
	"time"

	"github.com/godilite/support-metrics/internal/service"
)

// Cacher defines the interface for cache operations.
type Cacher interface {
	Close() error
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Invalidator drops cached entries by key prefix.
type Invalidator interface {
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

type ReportService interface {
	WeeklyReport(ctx context.Context, asOf time.Time) (service.Report, error)
}
