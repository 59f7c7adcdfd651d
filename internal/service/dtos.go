package service

import (
	"time"

	"github.com/aarondl/null/v8"
)

// RatingStats is the satisfaction and timing block shared by agent and team
// rows. Ratios and means are null when undefined (empty denominator or no
// values), which the report renders as "Not Rated".
type RatingStats struct {
	EnterpriseTickets int `json:"enterprise_tickets"`
	TeamsTickets      int `json:"teams_tickets"`
	GoodRatings       int `json:"good_ratings"`
	BadRatings        int `json:"bad_ratings"`

	SatisfactionPercentage null.Float64 `json:"satisfaction_percentage"`
	PercentageTicketsRated null.Float64 `json:"percentage_tickets_rated"`
	OneTouchPercentage     null.Float64 `json:"one_touch_percentage"`

	AvgFirstReplyTime                 null.Float64 `json:"avg_first_reply_time"`
	AvgRequesterWaitTime              null.Float64 `json:"avg_requester_wait_time"`
	AvgLastAssignmentToResolutionTime null.Float64 `json:"avg_last_assignment_to_resolution_time"`
	AvgFullResolutionTime             null.Float64 `json:"avg_full_resolution_time"`
}

type AgentSummary struct {
	AgentName     string `json:"agent_name"`
	SolvedTickets int    `json:"solved_tickets"`
	RatingStats
}

// TeamSummary counts come from every ticket in the group. RatingStats only
// covers its completed tickets; with CompletedTickets at zero the block is
// undefined and renders as "Not Rated".
type TeamSummary struct {
	Team             string `json:"team"`
	SolvedTickets    int    `json:"solved_tickets"`
	BacklogTickets   int    `json:"backlog_tickets"`
	OpenTickets      int    `json:"open_tickets"`
	PendingTickets   int    `json:"pending_tickets"`
	CompletedTickets int    `json:"completed_tickets"`
	RatingStats
}

// Rated reports whether the group has any completed ticket behind its
// rating block.
func (t TeamSummary) Rated() bool {
	return t.CompletedTickets > 0
}

// Report is one weekly build: the window and both summary tables.
type Report struct {
	WindowStart time.Time      `json:"window_start"`
	WindowEnd   time.Time      `json:"window_end"`
	Records     int            `json:"records"`
	Agents      []AgentSummary `json:"agents"`
	Teams       []TeamSummary  `json:"teams"`
}
