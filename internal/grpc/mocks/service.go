package mocks

import (
	"context"
	"errors"
	"time"

	"github.com/godilite/support-metrics/internal/service"
)

// MockReportService is a function-field mock of the report lookup service.
type MockReportService struct {
	WeeklyReportFunc func(ctx context.Context, asOf time.Time) (service.Report, error)
}

func (m *MockReportService) WeeklyReport(ctx context.Context, asOf time.Time) (service.Report, error) {
	if m.WeeklyReportFunc != nil {
		return m.WeeklyReportFunc(ctx, asOf)
	}
	return service.Report{}, errors.New("WeeklyReportFunc not implemented")
}
