//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/godilite/support-metrics/internal/app"
	"github.com/godilite/support-metrics/internal/config"
	handler "github.com/godilite/support-metrics/internal/grpc"
	"github.com/godilite/support-metrics/internal/mailer"
	mailermocks "github.com/godilite/support-metrics/internal/mailer/mocks"
	"github.com/godilite/support-metrics/internal/report"
	"github.com/godilite/support-metrics/internal/repository"
	"github.com/godilite/support-metrics/internal/service"
	dbbuilder "github.com/godilite/support-metrics/pkg/database"
	"github.com/godilite/support-metrics/tests/e2e/mocks"
)

var testNow = time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)

const exportPage = `{
	"tickets": [
		{"id": 1, "status": "solved", "assignee_id": 10, "updated_at": "2025-06-14T10:00:00Z",
		 "satisfaction_rating": {"score": "good"},
		 "custom_fields": "[{'id': 5661060584461, 'value': 'enterprise'}]"},
		{"id": 2, "status": "open", "assignee_id": null, "updated_at": "2025-06-15T10:00:00Z",
		 "satisfaction_rating": null, "custom_fields": []},
		{"id": 3, "status": "solved", "assignee_id": 20, "updated_at": "2025-06-15T11:00:00Z",
		 "satisfaction_rating": "{'score': 'bad'}", "custom_fields": []},
		{"id": 4, "status": "closed", "assignee_id": 10, "updated_at": "2025-05-01T10:00:00Z",
		 "satisfaction_rating": {"score": "good"}, "custom_fields": []}
	],
	"users": [
		{"id": 10, "name": "Alice", "updated_at": "2025-01-01T00:00:00Z"},
		{"id": 20, "name": "Tico | Voiceflow Assistant", "updated_at": "2025-01-01T00:00:00Z"}
	],
	"metric_sets": [
		{"ticket_id": 1, "updated_at": "2025-06-14T10:00:00Z", "solved_at": "2025-06-14T10:00:00Z", "replies": 1,
		 "reply_time_in_minutes": {"calendar": 45, "business": 30}},
		{"ticket_id": 2, "updated_at": "2025-06-15T10:00:00Z", "solved_at": null, "replies": 0},
		{"ticket_id": 3, "updated_at": "2025-06-15T11:00:00Z", "solved_at": "2025-06-15T11:00:00+02:00", "replies": 2,
		 "reply_time_in_minutes": "{'calendar': 5, 'business': None}"},
		{"ticket_id": 4, "updated_at": "2025-05-01T10:00:00Z", "solved_at": "2025-05-01T10:00:00Z", "replies": 1}
	],
	"next_page": %q,
	"end_of_stream": true
}`

func zendeskServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ops@acme.test/token", user)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, exportPage, srv.URL+r.URL.RequestURI())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, zendeskURL string) *config.Config {
	t.Helper()
	cfg := config.LoadFromEnv()
	cfg.Zendesk.BaseURL = zendeskURL
	cfg.Zendesk.Email = "ops@acme.test"
	cfg.Zendesk.APIToken = "secret"
	cfg.Zendesk.StartTime = 0
	cfg.Email.ResendAPIKey = "re_test"
	cfg.Email.AudienceID = ""
	cfg.Email.From = "Support <support@acme.test>"
	cfg.Email.Recipients = []string{"lead@acme.test"}
	cfg.Email.AttachXLSX = true
	cfg.Database.SnapshotEnabled = true
	cfg.Database.Driver = dbbuilder.DriverSQLite3
	cfg.Database.Path = filepath.Join(t.TempDir(), "metrics.db")
	cfg.Metrics.PushgatewayURL = ""
	require.NoError(t, cfg.Validate(config.SectionZendesk, config.SectionEmail, config.SectionReport, config.SectionDatabase))
	return cfg
}

type outbox struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (o *outbox) sender() *mailermocks.MockSender {
	return &mailermocks.MockSender{
		SendFunc: func(ctx context.Context, msg mailer.Message) (string, error) {
			o.mu.Lock()
			defer o.mu.Unlock()
			o.sent = append(o.sent, msg)
			return fmt.Sprintf("msg_%d", len(o.sent)), nil
		},
	}
}

func (o *outbox) messages() []mailer.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]mailer.Message(nil), o.sent...)
}

func assertWeeklyReport(t *testing.T, r service.Report) {
	t.Helper()
	assert.True(t, r.WindowEnd.Equal(testNow))
	assert.True(t, r.WindowStart.Equal(testNow.Add(-7*24*time.Hour)))
	assert.Equal(t, 3, r.Records, "the closed ticket from May falls outside the window")

	require.Len(t, r.Agents, 2)
	alice := r.Agents[0]
	assert.Equal(t, "Alice", alice.AgentName)
	assert.Equal(t, 1, alice.SolvedTickets)
	assert.Equal(t, 1, alice.EnterpriseTickets)
	assert.Equal(t, 1, alice.GoodRatings)
	assert.InDelta(t, 100.0, alice.SatisfactionPercentage.Float64, 1e-9)
	assert.InDelta(t, 100.0, alice.OneTouchPercentage.Float64, 1e-9)
	assert.InDelta(t, 0.5, alice.AvgFirstReplyTime.Float64, 1e-9)

	bot := r.Agents[1]
	assert.Equal(t, service.DefaultBotAgentName, bot.AgentName)
	assert.Equal(t, 1, bot.BadRatings)
	assert.InDelta(t, 0.0, bot.SatisfactionPercentage.Float64, 1e-9)
	assert.False(t, bot.AvgFirstReplyTime.Valid)

	require.Len(t, r.Teams, 2)
	team := r.Teams[0]
	assert.Equal(t, service.DefaultTeamLabel, team.Team)
	assert.Equal(t, 1, team.SolvedTickets)
	assert.Equal(t, 1, team.OpenTickets)
	assert.Equal(t, 1, team.BacklogTickets)
	assert.True(t, team.Rated())
	assert.Equal(t, service.DefaultBotAgentName, r.Teams[1].Team)
}

func TestE2E_RunThenReplay(t *testing.T) {
	ctx := context.Background()
	srv := zendeskServer(t)
	cfg := testConfig(t, srv.URL)
	box := &outbox{}
	cache := mocks.NewTrackingCache()

	// A cached lookup from before the run must not survive it.
	require.NoError(t, cache.Set(ctx, handler.CacheKeyPrefix+":stale", "old", time.Hour))

	application := app.NewApp(cfg, zap.NewNop(),
		app.WithMailer(box.sender(), nil),
		app.WithCache(cache),
		app.WithClock(func() time.Time { return testNow }),
	)
	t.Cleanup(application.Close)

	r, err := application.RunReport(ctx)
	require.NoError(t, err)
	assertWeeklyReport(t, r)

	sent := box.messages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "Support Team Metrics (2025-06-09 - 2025-06-16)", msg.Subject)
	assert.Equal(t, []string{"lead@acme.test"}, msg.To)
	assert.Contains(t, msg.HTML, `<table border="0" class="dataframe table table-striped">`)
	assert.Contains(t, msg.HTML, "Alice")
	assert.NotContains(t, msg.HTML, report.ColRequesterWait)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, report.XLSXContentType, msg.Attachments[0].ContentType)

	_, _, deletes := cache.Counts()
	assert.Equal(t, 1, deletes)
	assert.Zero(t, cache.Len())

	dir := t.TempDir()
	replayed, err := application.Replay(ctx, app.ReplayOptions{
		PreviewPath: filepath.Join(dir, "preview.html"),
		XLSXPath:    filepath.Join(dir, "out", "report.xlsx"),
	})
	require.NoError(t, err)
	assert.Equal(t, r, replayed, "replaying the stored snapshot rebuilds the same report")

	preview, err := os.ReadFile(filepath.Join(dir, "preview.html"))
	require.NoError(t, err)
	assert.Equal(t, msg.HTML, string(preview))

	info, err := os.Stat(filepath.Join(dir, "out", "report.xlsx"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Len(t, box.messages(), 1, "replay without --send does not email")

	_, err = application.Replay(ctx, app.ReplayOptions{AsOf: testNow, Send: true})
	require.NoError(t, err)
	assert.Len(t, box.messages(), 2)
}

func TestE2E_DispatchFailureFailsRun(t *testing.T) {
	srv := zendeskServer(t)
	cfg := testConfig(t, srv.URL)
	failing := &mailermocks.MockSender{
		SendFunc: func(ctx context.Context, msg mailer.Message) (string, error) {
			return "", fmt.Errorf("provider unavailable")
		},
	}

	application := app.NewApp(cfg, zap.NewNop(),
		app.WithMailer(failing, nil),
		app.WithCache(mocks.NewTrackingCache()),
		app.WithClock(func() time.Time { return testNow }),
	)
	t.Cleanup(application.Close)

	r, err := application.RunReport(context.Background())
	assert.ErrorIs(t, err, service.ErrDispatchFailed)
	assert.Len(t, r.Agents, 2, "the built report is still returned")

	// The snapshot was stored before dispatch, so a replay still works.
	_, err = application.Replay(context.Background(), app.ReplayOptions{AsOf: testNow})
	assert.NoError(t, err)
}

func startLookupServer(t *testing.T, dbPath string, cache handler.Cacher) *handler.ReportServiceClient {
	t.Helper()

	db, err := dbbuilder.New(
		dbbuilder.WithDriver(dbbuilder.DriverSQLite3),
		dbbuilder.WithDataSource(dbPath),
	)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = dbbuilder.Migrate(context.Background(), db, dbbuilder.DriverSQLite3, repository.Migrations())
	require.NoError(t, err)

	builder := service.NewMetricsService(service.ReportSettings{}, zap.NewNop())
	query := service.NewReportQueryService(repository.NewSnapshotRepository(db), builder, zap.NewNop())
	handlers := handler.NewGRPCHandlers(query, cache, zap.NewNop(), time.Minute)

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	handler.RegisterReportServiceServer(s, handlers)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return handler.NewReportServiceClient(conn)
}

func TestE2E_LookupServer(t *testing.T) {
	ctx := context.Background()
	srv := zendeskServer(t)
	cfg := testConfig(t, srv.URL)
	cache := mocks.NewTrackingCache()
	client := startLookupServer(t, cfg.Database.Path, cache)

	t.Run("no snapshot yet", func(t *testing.T) {
		_, err := client.GetWeeklyReport(ctx, timestamppb.New(testNow))
		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	application := app.NewApp(cfg, zap.NewNop(),
		app.WithMailer((&outbox{}).sender(), nil),
		app.WithCache(cache),
		app.WithClock(func() time.Time { return testNow }),
	)
	t.Cleanup(application.Close)
	_, err := application.RunReport(ctx)
	require.NoError(t, err)

	t.Run("report after a run", func(t *testing.T) {
		resp, err := client.GetWeeklyReport(ctx, timestamppb.New(testNow.Add(30*time.Second)))
		require.NoError(t, err)

		fields := resp.GetFields()
		assert.Equal(t, "2025-06-09T09:00:00Z", fields["window_start"].GetStringValue())
		assert.Equal(t, "2025-06-16T09:00:00Z", fields["window_end"].GetStringValue())

		agents := rows(t, resp, "agents")
		require.Len(t, agents, 2)
		assert.Equal(t, "Alice", agents[0].GetFields()[report.ColAgentName].GetStringValue())
		assert.Equal(t, "100.00%", agents[0].GetFields()[report.ColOneTouch].GetStringValue())
		assert.Equal(t, report.NotRated, agents[1].GetFields()[report.ColFirstReply].GetStringValue())

		teams := rows(t, resp, "teams")
		require.Len(t, teams, 2)
		assert.Equal(t, 1.0, teams[0].GetFields()[report.ColBacklog].GetNumberValue())
	})

	t.Run("second lookup is served from cache", func(t *testing.T) {
		require.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, 10*time.Millisecond)
		_, setsBefore, _ := cache.Counts()

		_, err := client.GetWeeklyReport(ctx, timestamppb.New(testNow))
		require.NoError(t, err)

		gets, sets, _ := cache.Counts()
		assert.GreaterOrEqual(t, gets, 3)
		assert.Equal(t, setsBefore, sets)
	})
}

func rows(t *testing.T, resp *structpb.Struct, table string) []*structpb.Struct {
	t.Helper()
	values := resp.GetFields()[table].GetStructValue().GetFields()["rows"].GetListValue().GetValues()
	out := make([]*structpb.Struct, 0, len(values))
	for _, v := range values {
		out = append(out, v.GetStructValue())
	}
	return out
}
