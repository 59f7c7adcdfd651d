package zendesk

import (
	"encoding/json"

	"github.com/aarondl/null/v8"
)

// exportPage is one response of the incremental ticket export with the
// metric_sets and users side-loads.
type exportPage struct {
	Tickets     []Ticket    `json:"tickets"`
	Users       []User      `json:"users"`
	MetricSets  []MetricSet `json:"metric_sets"`
	NextPage    null.String `json:"next_page"`
	EndOfStream bool        `json:"end_of_stream"`
}

// Ticket keeps only the ticket columns the report reads.
type Ticket struct {
	ID                 int64           `json:"id"`
	Status             string          `json:"status"`
	AssigneeID         null.Int64      `json:"assignee_id"`
	UpdatedAt          null.Time       `json:"updated_at"`
	SatisfactionRating json.RawMessage `json:"satisfaction_rating"`
	CustomFields       json.RawMessage `json:"custom_fields"`
}

type User struct {
	ID        int64       `json:"id"`
	Name      null.String `json:"name"`
	UpdatedAt null.Time   `json:"updated_at"`
}

// MetricSet is the per-ticket timing aggregate. The *_in_minutes objects
// carry both calendar and business minutes.
type MetricSet struct {
	TicketID            int64           `json:"ticket_id"`
	UpdatedAt           null.Time       `json:"updated_at"`
	SolvedAt            null.Time       `json:"solved_at"`
	Replies             null.Int        `json:"replies"`
	ReplyTime           json.RawMessage `json:"reply_time_in_minutes"`
	FirstResolutionTime json.RawMessage `json:"first_resolution_time_in_minutes"`
	FullResolutionTime  json.RawMessage `json:"full_resolution_time_in_minutes"`
	AgentWaitTime       json.RawMessage `json:"agent_wait_time_in_minutes"`
	RequesterWaitTime   json.RawMessage `json:"requester_wait_time_in_minutes"`
}
