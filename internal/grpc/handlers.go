package grpc

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/godilite/support-metrics/internal/report"
	"github.com/godilite/support-metrics/internal/service"
)

const (
	defaultCacheDuration = 10 * time.Minute
	defaultGRPCTimeout   = 10 * time.Second
)

// CacheKeyPrefix prefixes every cached report; invalidating it drops them all.
const CacheKeyPrefix = "grpc:weekly_report"

type GRPCHandlers struct {
	reports  ReportService
	cache    Cacher
	logger   *zap.Logger
	sfGroup  singleflight.Group
	cacheTTL time.Duration
	now      func() time.Time
}

// NewGRPCHandlers initializes the gRPC handlers.
func NewGRPCHandlers(reports ReportService, cache Cacher, logger *zap.Logger, ttl time.Duration) *GRPCHandlers {
	if reports == nil {
		panic("nil ReportService provided to NewGRPCHandlers")
	}
	if cache == nil {
		panic("nil Cacher provided to NewGRPCHandlers")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultCacheDuration
	}
	return &GRPCHandlers{
		reports:  reports,
		cache:    cache,
		logger:   logger.Named("grpc-handler"),
		cacheTTL: ttl,
		now:      time.Now,
	}
}

// asOf resolves the requested instant. An unset timestamp means now. Lookups
// are bucketed to the minute so nearby requests share a cache entry.
func (s *GRPCHandlers) asOf(req *timestamppb.Timestamp) (time.Time, error) {
	if req == nil || (req.GetSeconds() == 0 && req.GetNanos() == 0) {
		return s.now().UTC().Truncate(time.Minute), nil
	}
	if err := req.CheckValid(); err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "invalid as-of timestamp: %v", err)
	}
	return req.AsTime().UTC().Truncate(time.Minute), nil
}

func cacheKey(asOf time.Time) string {
	return CacheKeyPrefix + ":" + asOf.Format(time.RFC3339)
}

func (s *GRPCHandlers) handleError(ctx context.Context, op string, err error) error {
	switch ctx.Err() {
	case context.Canceled:
		s.logger.Warn("request canceled", zap.String("op", op))
		return status.Error(codes.Canceled, "request canceled")
	case context.DeadlineExceeded:
		s.logger.Warn("request timeout", zap.String("op", op))
		return status.Error(codes.DeadlineExceeded, "request timed out")
	}

	switch {
	case errors.Is(err, service.ErrNoSnapshot):
		s.logger.Info("no snapshot stored", zap.String("op", op))
		return status.Error(codes.NotFound, "no snapshot stored yet, run a report first")
	case errors.Is(err, service.ErrStorageFailure):
		s.logger.Error("storage failure", zap.String("op", op), zap.Error(err))
		return status.Error(codes.Internal, "database error")
	default:
		s.logger.Error("unexpected error", zap.String("op", op), zap.Error(err))
		return status.Errorf(codes.Internal, "%s failed: %v", op, err)
	}
}

// GetWeeklyReport returns the formatted team and agent tables for the week
// ending at the requested instant, rebuilt from the latest snapshot.
func (s *GRPCHandlers) GetWeeklyReport(ctx context.Context, req *timestamppb.Timestamp) (*structpb.Struct, error) {
	asOf, err := s.asOf(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultGRPCTimeout)
	defer cancel()

	r, err := FindAndCache(ctx, s.cache, &s.sfGroup, cacheKey(asOf), s.cacheTTL, s.logger, func(fetchCtx context.Context) (service.Report, error) {
		return s.reports.WeeklyReport(fetchCtx, asOf)
	})
	if err != nil {
		return nil, s.handleError(ctx, "GetWeeklyReport", err)
	}

	out, err := reportStruct(r)
	if err != nil {
		return nil, s.handleError(ctx, "GetWeeklyReport", err)
	}
	return out, nil
}

func reportStruct(r service.Report) (*structpb.Struct, error) {
	tables := report.BuildTables(r)
	return structpb.NewStruct(map[string]any{
		"window_start": r.WindowStart.UTC().Format(time.RFC3339),
		"window_end":   r.WindowEnd.UTC().Format(time.RFC3339),
		"records":      r.Records,
		"teams":        tableValue(tables.Teams),
		"agents":       tableValue(tables.Agents),
	})
}

func tableValue(t report.Table) map[string]any {
	columns := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		columns[i] = c
	}
	rows := make([]any, 0, len(t.Rows))
	for _, rec := range t.Records() {
		rows = append(rows, rec)
	}
	return map[string]any{"columns": columns, "rows": rows}
}

// InvalidateReports drops every cached report. Failures are logged only; a
// stale entry expires with its TTL anyway.
func InvalidateReports(ctx context.Context, inv Invalidator, logger *zap.Logger) {
	if inv == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	removed, err := inv.DeletePrefix(ctx, CacheKeyPrefix)
	if err != nil {
		logger.Warn("failed to invalidate cached reports", zap.Error(err))
		return
	}
	logger.Info("invalidated cached reports", zap.Int64("removed", removed))
}
