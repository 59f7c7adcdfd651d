package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/aarondl/null/v8"
)

// Ticket statuses as reported by the helpdesk.
const (
	StatusNew     = "new"
	StatusOpen    = "open"
	StatusPending = "pending"
	StatusHold    = "hold"
	StatusSolved  = "solved"
	StatusClosed  = "closed"
)

// UnifiedRecord is one ticket joined with its metric set and assignee.
// Semi-structured columns stay raw until the aggregator extracts them.
type UnifiedRecord struct {
	TicketID     int64
	Status       string
	AssigneeID   null.Int64
	AssigneeName null.String
	UpdatedAt    null.Time
	SolvedAt     null.Time
	Replies      null.Int

	SatisfactionRating json.RawMessage
	CustomFields       json.RawMessage

	ReplyTime           json.RawMessage
	FirstResolutionTime json.RawMessage
	FullResolutionTime  json.RawMessage
	AgentWaitTime       json.RawMessage
	RequesterWaitTime   json.RawMessage
}

// IsCompleted reports whether the ticket is closed or solved.
func (r UnifiedRecord) IsCompleted() bool {
	return r.Status == StatusClosed || r.Status == StatusSolved
}

// FetchResult is what one incremental export run produced.
type FetchResult struct {
	Records []UnifiedRecord
	Pages   int

	// Aborted is set when a non-success response ended the export early.
	// Records then hold only what was accumulated before the failure.
	Aborted     bool
	AbortStatus int
}

// ErrSnapshotNotFound is returned by snapshot stores holding no snapshot.
var ErrSnapshotNotFound = errors.New("snapshot not found")

type SnapshotInfo struct {
	ID          string
	CapturedAt  time.Time
	RecordCount int
}
