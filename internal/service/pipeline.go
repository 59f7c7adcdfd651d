package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/godilite/support-metrics/internal/metrics"
	"github.com/godilite/support-metrics/internal/repository/models"
)

var (
	ErrFetchFailed    = errors.New("fetch failed")
	ErrDispatchFailed = errors.New("report dispatch failed")
)

// PipelineOptions holds the optional collaborators of a Pipeline.
type PipelineOptions struct {
	Snapshots  SnapshotStore
	OnSnapshot func(ctx context.Context, info models.SnapshotInfo)
	StartTime  int64
	Now        func() time.Time
	Logger     *zap.Logger
}

type PipelineOption func(*PipelineOptions)

// WithSnapshots stores every fetched record set before the report is built.
func WithSnapshots(store SnapshotStore) PipelineOption {
	return func(o *PipelineOptions) {
		o.Snapshots = store
	}
}

// WithSnapshotHook is called after a snapshot was stored successfully.
func WithSnapshotHook(fn func(ctx context.Context, info models.SnapshotInfo)) PipelineOption {
	return func(o *PipelineOptions) {
		o.OnSnapshot = fn
	}
}

// WithStartTime sets the incremental export cursor, in unix seconds.
func WithStartTime(unix int64) PipelineOption {
	return func(o *PipelineOptions) {
		o.StartTime = unix
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(o *PipelineOptions) {
		o.Now = now
	}
}

func WithPipelineLogger(logger *zap.Logger) PipelineOption {
	return func(o *PipelineOptions) {
		o.Logger = logger
	}
}

// Pipeline runs one report: fetch, optional snapshot, build and dispatch.
// Runs are independent; nothing is carried from one to the next.
type Pipeline struct {
	source     RecordSource
	builder    *MetricsService
	dispatcher ReportDispatcher
	opts       PipelineOptions
	logger     *zap.Logger
}

// NewPipeline creates a new Pipeline instance.
func NewPipeline(source RecordSource, builder *MetricsService, dispatcher ReportDispatcher, opts ...PipelineOption) *Pipeline {
	if source == nil {
		panic("record source must not be nil")
	}
	if builder == nil {
		panic("metrics service must not be nil")
	}
	if dispatcher == nil {
		panic("dispatcher must not be nil")
	}

	o := PipelineOptions{Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		l, _ := zap.NewProduction()
		o.Logger = l
	}

	return &Pipeline{
		source:     source,
		builder:    builder,
		dispatcher: dispatcher,
		opts:       o,
		logger:     o.Logger.Named("pipeline"),
	}
}

// Run executes a single report run. A failed snapshot is logged and the run
// goes on; a failed dispatch fails the run. A partial fetch is reported but
// never replaces the stored snapshot.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	timer := prometheus.NewTimer(metrics.RunDurationSeconds)
	defer timer.ObserveDuration()

	log := p.logger.With(zap.String("run_id", uuid.NewString()))
	log.Info("report run started", zap.Int64("start_time", p.opts.StartTime))

	result, err := p.source.Fetch(ctx, p.opts.StartTime)
	if err != nil {
		log.Error("fetch failed", zap.Error(err))
		return Report{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if result.Aborted {
		log.Warn("building report from partial data, it may be stale or incomplete",
			zap.Int("status", result.AbortStatus),
			zap.Int("pages", result.Pages),
			zap.Int("records", len(result.Records)))
	}
	metrics.UnifiedRecords.Set(float64(len(result.Records)))

	if result.Aborted {
		log.Warn("snapshot skipped for partial fetch, keeping the previous one")
	} else {
		p.snapshot(ctx, log, result.Records)
	}

	report := p.builder.BuildReport(result.Records, p.opts.Now())
	metrics.ReportAgents.Set(float64(len(report.Agents)))
	metrics.ReportTeams.Set(float64(len(report.Teams)))

	messageID, err := p.dispatcher.Dispatch(ctx, report)
	if err != nil {
		log.Error("report dispatch failed", zap.Error(err))
		return report, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	log.Info("report run finished",
		zap.String("message_id", messageID),
		zap.Int("agents", len(report.Agents)),
		zap.Int("teams", len(report.Teams)),
		zap.Bool("partial", result.Aborted))
	return report, nil
}

func (p *Pipeline) snapshot(ctx context.Context, log *zap.Logger, records []models.UnifiedRecord) {
	if p.opts.Snapshots == nil {
		return
	}
	info, err := p.opts.Snapshots.SaveSnapshot(ctx, records)
	if err != nil {
		log.Warn("snapshot not stored", zap.Error(err))
		return
	}
	metrics.SnapshotRecords.Set(float64(info.RecordCount))
	log.Info("snapshot stored",
		zap.String("snapshot_id", info.ID),
		zap.Int("records", info.RecordCount))
	if p.opts.OnSnapshot != nil {
		p.opts.OnSnapshot(ctx, info)
	}
}
