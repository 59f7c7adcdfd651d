// Package report turns a built metrics report into the tables, HTML and
// workbook that reach readers.
package report

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/aarondl/null/v8"

	"github.com/godilite/support-metrics/internal/service"
)

// NotRated stands in for ratios and means with no data behind them.
const NotRated = "Not Rated"

// Column headers.
const (
	ColAgentName      = "Agent Name"
	ColTeam           = "Team"
	ColSolved         = "Solved Tickets"
	ColBacklog        = "Backlog Tickets"
	ColOpen           = "Open Tickets"
	ColPending        = "Pending Tickets"
	ColEnterprise     = "Enterprise Tickets"
	ColTeams          = "Teams Tickets"
	ColGood           = "Good Ratings"
	ColBad            = "Bad Ratings"
	ColSatisfaction   = "Satisfaction %"
	ColRated          = "% of Tickets Rated"
	ColOneTouch       = "% of One-Touch Tickets"
	ColFirstReply     = "Avg First Reply Time (hrs)"
	ColRequesterWait  = "Avg Requester Wait Time (hrs)"
	ColLastAssignment = "Avg Last Assignment to Resolution (hrs)"
	ColFullResolution = "Avg Full Resolution Time (hrs)"
)

// PrunedColumns are computed but left out of what readers see.
var PrunedColumns = []string{ColRequesterWait, ColLastAssignment, ColFullResolution}

var ratingColumns = []string{
	ColEnterprise, ColTeams, ColGood, ColBad,
	ColSatisfaction, ColRated, ColOneTouch,
	ColFirstReply, ColRequesterWait, ColLastAssignment, ColFullResolution,
}

// FormatPercentage renders v with two decimals and a percent sign.
func FormatPercentage(v null.Float64) string {
	if !v.Valid {
		return NotRated
	}
	return fmt.Sprintf("%.2f%%", v.Float64)
}

// FormatHours rounds v to two decimals.
func FormatHours(v null.Float64) string {
	if !v.Valid {
		return NotRated
	}
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(v.Float64, 'f', 2, 64), 64)
	if err != nil {
		return NotRated
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

// Table is a rendered summary: counts stay ints, everything else is text.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Drop returns a copy of t without the named columns.
func (t Table) Drop(columns ...string) Table {
	keep := make([]int, 0, len(t.Columns))
	out := Table{Columns: make([]string, 0, len(t.Columns))}
	for i, c := range t.Columns {
		if slices.Contains(columns, c) {
			continue
		}
		keep = append(keep, i)
		out.Columns = append(out.Columns, c)
	}
	out.Rows = make([][]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		kept := make([]any, 0, len(keep))
		for _, i := range keep {
			kept = append(kept, row[i])
		}
		out.Rows = append(out.Rows, kept)
	}
	return out
}

// Records returns the rows as column-keyed maps.
func (t Table) Records() []map[string]any {
	out := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		m := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			m[c] = row[i]
		}
		out = append(out, m)
	}
	return out
}

// ratingCountCells is how many leading ratingCells entries are counts.
const ratingCountCells = 4

func ratingCells(s service.RatingStats) []any {
	return []any{
		s.EnterpriseTickets, s.TeamsTickets, s.GoodRatings, s.BadRatings,
		FormatPercentage(s.SatisfactionPercentage),
		FormatPercentage(s.PercentageTicketsRated),
		FormatPercentage(s.OneTouchPercentage),
		FormatHours(s.AvgFirstReplyTime),
		FormatHours(s.AvgRequesterWaitTime),
		FormatHours(s.AvgLastAssignmentToResolutionTime),
		FormatHours(s.AvgFullResolutionTime),
	}
}

// AgentTable formats every agent column, pruned ones included.
func AgentTable(agents []service.AgentSummary) Table {
	t := Table{
		Columns: append([]string{ColAgentName, ColSolved}, ratingColumns...),
		Rows:    make([][]any, 0, len(agents)),
	}
	for _, a := range agents {
		t.Rows = append(t.Rows, append([]any{a.AgentName, a.SolvedTickets}, ratingCells(a.RatingStats)...))
	}
	return t
}

// TeamTable formats every team column, pruned ones included.
func TeamTable(teams []service.TeamSummary) Table {
	t := Table{
		Columns: append([]string{ColTeam, ColSolved, ColBacklog, ColOpen, ColPending}, ratingColumns...),
		Rows:    make([][]any, 0, len(teams)),
	}
	for _, s := range teams {
		head := []any{s.Team, s.SolvedTickets, s.BacklogTickets, s.OpenTickets, s.PendingTickets}
		cells := ratingCells(s.RatingStats)
		if !s.Rated() {
			for i := range ratingCountCells {
				cells[i] = NotRated
			}
		}
		t.Rows = append(t.Rows, append(head, cells...))
	}
	return t
}

// Tables are the two reader-facing tables of a report.
type Tables struct {
	Teams  Table
	Agents Table
}

// BuildTables formats and prunes both summaries of r.
func BuildTables(r service.Report) Tables {
	return Tables{
		Teams:  TeamTable(r.Teams).Drop(PrunedColumns...),
		Agents: AgentTable(r.Agents).Drop(PrunedColumns...),
	}
}
