package service

import (
	"sort"
	"time"

	"github.com/aarondl/null/v8"
	"go.uber.org/zap"

	"github.com/godilite/support-metrics/internal/repository/models"
)

const (
	DefaultBotAgentName        = "Tico | Voiceflow Assistant"
	DefaultTeamLabel           = "Support Team"
	DefaultCustomerTypeFieldID = int64(5661060584461)
	DefaultWindow              = 7 * 24 * time.Hour
)

// Values compared against the extracted nested fields.
const (
	customerEnterprise = "enterprise"
	customerTeams      = "teams"
	scoreGood          = "good"
	scoreBad           = "bad"
	scoreOffered       = "offered"
)

// ReportSettings controls grouping and extraction. Zero fields fall back to
// the package defaults.
type ReportSettings struct {
	BotAgentName        string
	TeamLabel           string
	CustomerTypeFieldID int64
	Window              time.Duration
}

func (s ReportSettings) withDefaults() ReportSettings {
	if s.BotAgentName == "" {
		s.BotAgentName = DefaultBotAgentName
	}
	if s.TeamLabel == "" {
		s.TeamLabel = DefaultTeamLabel
	}
	if s.CustomerTypeFieldID == 0 {
		s.CustomerTypeFieldID = DefaultCustomerTypeFieldID
	}
	if s.Window <= 0 {
		s.Window = DefaultWindow
	}
	return s
}

// MetricsService turns unified ticket records into the weekly agent and team
// summaries. It holds no state between builds.
type MetricsService struct {
	settings ReportSettings
	logger   *zap.Logger
}

// NewMetricsService creates a new MetricsService instance.
func NewMetricsService(settings ReportSettings, logger *zap.Logger) *MetricsService {
	if logger == nil {
		l, _ := zap.NewProduction()
		logger = l
	}
	return &MetricsService{
		settings: settings.withDefaults(),
		logger:   logger.Named("metrics"),
	}
}

// Settings returns the effective settings after defaults were applied.
func (s *MetricsService) Settings() ReportSettings {
	return s.settings
}

// ticketRow is a record after window filtering and field extraction.
type ticketRow struct {
	assigneeName null.String
	group        string
	status       string
	completed    bool
	replies      null.Int

	satisfactionScore null.String
	customerType      null.String

	firstReplyHours      null.Float64
	firstResolutionHours null.Float64
	fullResolutionHours  null.Float64
	agentWaitHours       null.Float64
	requesterWaitHours   null.Float64
}

// BuildReport computes the summaries for the window ending at now. The same
// records and now always produce the same report.
func (s *MetricsService) BuildReport(records []models.UnifiedRecord, now time.Time) Report {
	start := now.Add(-s.settings.Window)

	rows := make([]ticketRow, 0, len(records))
	for _, r := range records {
		if !inWindow(r, start, now) {
			continue
		}
		rows = append(rows, s.extract(r))
	}

	report := Report{
		WindowStart: start,
		WindowEnd:   now,
		Records:     len(rows),
		Agents:      agentSummaries(rows),
		Teams:       teamSummaries(rows),
	}

	s.logger.Info("built report",
		zap.Time("window_start", start),
		zap.Time("window_end", now),
		zap.Int("input_records", len(records)),
		zap.Int("window_records", len(rows)),
		zap.Int("agents", len(report.Agents)),
		zap.Int("teams", len(report.Teams)))

	return report
}

// inWindow keeps active work regardless of age and completed work solved
// inside [start, end].
func inWindow(r models.UnifiedRecord, start, end time.Time) bool {
	if !r.IsCompleted() {
		return true
	}
	if !r.SolvedAt.Valid {
		return false
	}
	solved := r.SolvedAt.Time
	return !solved.Before(start) && !solved.After(end)
}

func (s *MetricsService) extract(r models.UnifiedRecord) ticketRow {
	group := s.settings.TeamLabel
	if r.AssigneeName.Valid && r.AssigneeName.String == s.settings.BotAgentName {
		group = s.settings.BotAgentName
	}
	return ticketRow{
		assigneeName:         r.AssigneeName,
		group:                group,
		status:               r.Status,
		completed:            r.IsCompleted(),
		replies:              r.Replies,
		satisfactionScore:    satisfactionScore(r.SatisfactionRating),
		customerType:         customFieldValue(r.CustomFields, s.settings.CustomerTypeFieldID),
		firstReplyHours:      minutesToHours(businessMinutes(r.ReplyTime)),
		firstResolutionHours: minutesToHours(businessMinutes(r.FirstResolutionTime)),
		fullResolutionHours:  minutesToHours(businessMinutes(r.FullResolutionTime)),
		agentWaitHours:       minutesToHours(businessMinutes(r.AgentWaitTime)),
		requesterWaitHours:   minutesToHours(businessMinutes(r.RequesterWaitTime)),
	}
}

// bucket groups rows by key, preserving row order within each bucket.
func bucket(rows []ticketRow, key func(ticketRow) (string, bool)) map[string][]ticketRow {
	out := make(map[string][]ticketRow)
	for _, r := range rows {
		k, ok := key(r)
		if !ok {
			continue
		}
		out[k] = append(out[k], r)
	}
	return out
}

func sortedKeys(m map[string][]ticketRow) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func completedOnly(rows []ticketRow) []ticketRow {
	out := make([]ticketRow, 0, len(rows))
	for _, r := range rows {
		if r.completed {
			out = append(out, r)
		}
	}
	return out
}

func agentSummaries(rows []ticketRow) []AgentSummary {
	byAgent := bucket(completedOnly(rows), func(r ticketRow) (string, bool) {
		return r.assigneeName.String, r.assigneeName.Valid
	})

	out := make([]AgentSummary, 0, len(byAgent))
	for _, name := range sortedKeys(byAgent) {
		group := byAgent[name]
		out = append(out, AgentSummary{
			AgentName:     name,
			SolvedTickets: len(group),
			RatingStats:   ratingStats(group),
		})
	}
	return out
}

func teamSummaries(rows []ticketRow) []TeamSummary {
	byTeam := bucket(rows, func(r ticketRow) (string, bool) {
		return r.group, true
	})

	out := make([]TeamSummary, 0, len(byTeam))
	for _, team := range sortedKeys(byTeam) {
		group := byTeam[team]
		completed := completedOnly(group)
		summary := TeamSummary{
			Team:             team,
			CompletedTickets: len(completed),
			RatingStats:      ratingStats(completed),
		}
		for _, r := range group {
			switch r.status {
			case models.StatusSolved, models.StatusClosed:
				summary.SolvedTickets++
			case models.StatusOpen:
				summary.OpenTickets++
			case models.StatusPending:
				summary.PendingTickets++
			}
		}
		summary.BacklogTickets = summary.OpenTickets + summary.PendingTickets
		out = append(out, summary)
	}
	return out
}

// ratingStats reduces completed rows to the rating and timing block. An
// empty slice yields zero counts and null ratios.
func ratingStats(rows []ticketRow) RatingStats {
	var stats RatingStats
	var offered, oneTouch int
	for _, r := range rows {
		switch r.customerType.String {
		case customerEnterprise:
			stats.EnterpriseTickets++
		case customerTeams:
			stats.TeamsTickets++
		}
		switch r.satisfactionScore.String {
		case scoreGood:
			stats.GoodRatings++
		case scoreBad:
			stats.BadRatings++
		case scoreOffered:
			offered++
		}
		if r.replies.Valid && r.replies.Int == 1 {
			oneTouch++
		}
	}

	rated := stats.GoodRatings + stats.BadRatings
	stats.SatisfactionPercentage = percentage(stats.GoodRatings, rated)
	stats.PercentageTicketsRated = percentage(rated, rated+offered)
	stats.OneTouchPercentage = percentage(oneTouch, len(rows))

	stats.AvgFirstReplyTime = meanOf(rows, func(r ticketRow) null.Float64 { return r.firstReplyHours })
	stats.AvgRequesterWaitTime = meanOf(rows, func(r ticketRow) null.Float64 { return r.requesterWaitHours })
	stats.AvgLastAssignmentToResolutionTime = meanOf(rows, func(r ticketRow) null.Float64 { return r.agentWaitHours })
	stats.AvgFullResolutionTime = meanOf(rows, func(r ticketRow) null.Float64 { return r.fullResolutionHours })
	return stats
}

func percentage(part, whole int) null.Float64 {
	if whole == 0 {
		return null.Float64{}
	}
	return null.Float64From(float64(part) / float64(whole) * 100)
}

// meanOf averages the valid values of field; null when there are none.
func meanOf(rows []ticketRow, field func(ticketRow) null.Float64) null.Float64 {
	var sum float64
	var n int
	for _, r := range rows {
		v := field(r)
		if !v.Valid {
			continue
		}
		sum += v.Float64
		n++
	}
	if n == 0 {
		return null.Float64{}
	}
	return null.Float64From(sum / float64(n))
}
