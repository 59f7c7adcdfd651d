package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/godilite/support-metrics/internal/config"
	handler "github.com/godilite/support-metrics/internal/grpc"
	"github.com/godilite/support-metrics/internal/mailer"
	"github.com/godilite/support-metrics/internal/metrics"
	"github.com/godilite/support-metrics/internal/report"
	"github.com/godilite/support-metrics/internal/repository"
	"github.com/godilite/support-metrics/internal/repository/models"
	"github.com/godilite/support-metrics/internal/service"
	"github.com/godilite/support-metrics/internal/zendesk"
	"github.com/godilite/support-metrics/pkg/cache"
	dbbuilder "github.com/godilite/support-metrics/pkg/database"
	grpcsrv "github.com/godilite/support-metrics/pkg/grpc/server"
)

const (
	shutdownTimeout  = 10 * time.Second
	cacheDialTimeout = 3 * time.Second
	pushTimeout      = 10 * time.Second
)

// ReportCache is the cache the lookup server reads and a run invalidates.
type ReportCache interface {
	handler.Cacher
	handler.Invalidator
}

type Option func(*App)

// WithMailer replaces the Resend client. contacts may be nil when the config
// names fixed recipients.
func WithMailer(sender mailer.Sender, contacts mailer.ContactLister) Option {
	return func(a *App) {
		a.sender = sender
		a.contacts = contacts
	}
}

// WithCache replaces the Redis cache.
func WithCache(c ReportCache) Option {
	return func(a *App) {
		a.cache = c
	}
}

// WithClock sets the clock used for report windows.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}

// App wires configuration to the report pipeline and the lookup server.
// Resources are opened on first use and released by Close.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	now    func() time.Time

	db       *sql.DB
	cache    ReportCache
	sender   mailer.Sender
	contacts mailer.ContactLister
	ownCache bool
}

func NewApp(cfg *config.Config, logger *zap.Logger, opts ...Option) *App {
	if cfg == nil {
		panic("nil config provided to NewApp")
	}
	if logger == nil {
		l, _ := zap.NewProduction()
		logger = l
	}
	a := &App{cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunReport fetches live data, stores a snapshot, builds the report and
// emails it. Metrics are pushed whatever the outcome.
func (a *App) RunReport(ctx context.Context) (service.Report, error) {
	defer a.pushMetrics()

	source, err := zendesk.NewClient(a.zendeskOptions()...)
	if err != nil {
		return service.Report{}, fmt.Errorf("zendesk client init failed: %w", err)
	}

	dispatcher, err := a.dispatcher()
	if err != nil {
		return service.Report{}, err
	}

	opts := []service.PipelineOption{
		service.WithStartTime(a.cfg.Zendesk.StartTime),
		service.WithClock(a.now),
		service.WithPipelineLogger(a.logger),
	}

	if a.cfg.Database.SnapshotEnabled {
		db, err := a.database(ctx)
		if err != nil {
			return service.Report{}, err
		}
		opts = append(opts,
			service.WithSnapshots(repository.NewSnapshotRepository(db)),
			service.WithSnapshotHook(a.invalidateReports),
		)
	}

	pipeline := service.NewPipeline(source, a.metricsService(), dispatcher, opts...)
	return pipeline.Run(ctx)
}

// ReplayOptions controls an offline rebuild from the stored snapshot.
type ReplayOptions struct {
	AsOf        time.Time
	PreviewPath string
	XLSXPath    string
	Send        bool
}

// Replay rebuilds the report from the latest snapshot without fetching, and
// optionally writes an HTML preview, a workbook, or sends the email.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) (service.Report, error) {
	db, err := a.database(ctx)
	if err != nil {
		return service.Report{}, err
	}

	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = a.now()
	}

	query := service.NewReportQueryService(repository.NewSnapshotRepository(db), a.metricsService(), a.logger)
	r, err := query.WeeklyReport(ctx, asOf)
	if err != nil {
		return service.Report{}, err
	}

	if opts.PreviewPath != "" {
		html, err := report.RenderEmail(r)
		if err != nil {
			return r, err
		}
		if err := writeFile(opts.PreviewPath, []byte(html)); err != nil {
			return r, err
		}
		a.logger.Info("wrote report preview", zap.String("path", opts.PreviewPath))
	}

	if opts.XLSXPath != "" {
		data, err := report.Workbook(report.BuildTables(r))
		if err != nil {
			return r, err
		}
		if err := writeFile(opts.XLSXPath, data); err != nil {
			return r, err
		}
		a.logger.Info("wrote report workbook", zap.String("path", opts.XLSXPath))
	}

	if opts.Send {
		dispatcher, err := a.dispatcher()
		if err != nil {
			return r, err
		}
		if _, err := dispatcher.Dispatch(ctx, r); err != nil {
			return r, fmt.Errorf("%w: %v", service.ErrDispatchFailed, err)
		}
	}

	return r, nil
}

// Serve runs the lookup server and the /metrics endpoint until ctx is done
// or a shutdown signal arrives.
func (a *App) Serve(ctx context.Context) error {
	db, err := a.database(ctx)
	if err != nil {
		return err
	}
	c, err := a.reportCache(ctx)
	if err != nil {
		return fmt.Errorf("cache init failed: %w", err)
	}

	query := service.NewReportQueryService(repository.NewSnapshotRepository(db), a.metricsService(), a.logger)
	grpcHandlers := handler.NewGRPCHandlers(query, c, a.logger, a.cfg.Redis.CacheTTL)

	grpcServer, err := grpcsrv.New(
		grpcsrv.WithPort(a.cfg.GRPC.Port),
		grpcsrv.WithLogger(a.logger),
		grpcsrv.WithReflection(a.cfg.GRPC.Reflection),
		grpcsrv.WithLogging(true),
		grpcsrv.WithUnaryInterceptors(grpcsrv.MetricsInterceptor(metrics.GRPCRequestsTotal)),
	)
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}

	grpcServer.Register(&handler.ReportServiceDesc, grpcHandlers)

	var metricsServer *http.Server
	if a.cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:              a.cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		a.logger.Info("metrics endpoint started", zap.String("addr", a.cfg.Metrics.Addr))
	}

	a.logger.Info("application starting")
	serveErr := grpcServer.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case <-quit:
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("gRPC server: %w", err)
		}
	}

	a.logger.Info("application shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("gRPC shutdown error", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics server shutdown error", zap.Error(err))
		}
	}

	a.logger.Info("graceful shutdown completed")
	return runErr
}

// Migrate applies pending schema migrations and returns the schema version.
func (a *App) Migrate(ctx context.Context) (int64, error) {
	db, err := a.openDatabase()
	if err != nil {
		return 0, err
	}
	a.db = db
	return a.migrate(ctx, db)
}

// Close releases whatever the commands opened.
func (a *App) Close() {
	if a.ownCache && a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("cache shutdown error", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("database shutdown error", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func (a *App) metricsService() *service.MetricsService {
	return service.NewMetricsService(a.cfg.Report.Settings(), a.logger)
}

func (a *App) zendeskOptions() []zendesk.Option {
	zc := a.cfg.Zendesk
	opts := []zendesk.Option{
		zendesk.WithCredentials(zc.Email, zc.APIToken),
		zendesk.WithTimeout(zc.HTTPTimeout),
		zendesk.WithLogger(a.logger),
	}
	if zc.BaseURL != "" {
		return append(opts, zendesk.WithBaseURL(zc.BaseURL))
	}
	return append(opts, zendesk.WithSubdomain(zc.Subdomain))
}

func (a *App) dispatcher() (*report.Dispatcher, error) {
	ec := a.cfg.Email
	if a.sender == nil {
		client, err := mailer.NewResendClient(
			mailer.WithAPIKey(ec.ResendAPIKey),
			mailer.WithAudience(ec.AudienceID),
			mailer.WithLogger(a.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("mailer init failed: %w", err)
		}
		a.sender = client
		if len(ec.Recipients) == 0 {
			a.contacts = client
		}
	}

	return report.NewDispatcher(a.sender, a.contacts,
		report.WithFrom(ec.From),
		report.WithRecipients(ec.Recipients),
		report.WithXLSXAttachment(ec.AttachXLSX),
		report.WithLogger(a.logger),
	), nil
}

func (a *App) openDatabase() (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	path := a.cfg.Database.Path
	if path != dbbuilder.MemoryDatabase {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := dbbuilder.New(
		dbbuilder.WithDriver(a.cfg.Database.Driver),
		dbbuilder.WithDataSource(path),
	)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}
	a.logger.Info("Database pool initialized", zap.String("path", path))
	return db, nil
}

// database opens the snapshot store and brings its schema up to date.
func (a *App) database(ctx context.Context) (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := a.openDatabase()
	if err != nil {
		return nil, err
	}
	if _, err := a.migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *App) migrate(ctx context.Context, db *sql.DB) (int64, error) {
	version, err := dbbuilder.Migrate(ctx, db, a.cfg.Database.Driver, repository.Migrations())
	if err != nil {
		return 0, err
	}
	a.logger.Info("database schema up to date", zap.Int64("version", version))
	return version, nil
}

func (a *App) reportCache(ctx context.Context) (ReportCache, error) {
	if a.cache != nil {
		return a.cache, nil
	}
	rc := a.cfg.Redis
	dialCtx, cancel := context.WithTimeout(ctx, cacheDialTimeout)
	defer cancel()

	c, err := cache.New(dialCtx,
		cache.WithAddress(rc.Addr),
		cache.WithPassword(rc.Password),
		cache.WithDB(rc.DB),
		cache.WithNamespace("support-metrics"),
	)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Cache client initialized", zap.String("addr", rc.Addr))
	a.cache = c
	a.ownCache = true
	return c, nil
}

// invalidateReports drops cached lookups after a new snapshot. A run does not
// need Redis, so an unreachable cache is only logged.
func (a *App) invalidateReports(ctx context.Context, info models.SnapshotInfo) {
	c, err := a.reportCache(ctx)
	if err != nil {
		a.logger.Warn("skipping report cache invalidation", zap.String("snapshot_id", info.ID), zap.Error(err))
		return
	}
	handler.InvalidateReports(ctx, c, a.logger)
}

func (a *App) pushMetrics() {
	mc := a.cfg.Metrics
	if mc.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := metrics.Push(ctx, mc.PushgatewayURL, mc.PushgatewayJob); err != nil {
		a.logger.Warn("metrics push failed", zap.Error(err))
	}
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
