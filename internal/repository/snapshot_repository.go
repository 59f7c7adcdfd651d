package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aarondl/null/v8"
	"github.com/google/uuid"

	"github.com/godilite/support-metrics/internal/repository/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the goose migrations of the snapshot schema.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const (
	snapshotsTable = "snapshots"
	recordsTable   = "snapshot_records"

	// Keeps a batch insert under sqlite's bound variable limit.
	insertBatchSize = 50
)

var recordColumns = []string{
	"snapshot_id", "position", "ticket_id", "status", "assignee_id", "assignee_name",
	"updated_at", "solved_at", "replies", "satisfaction_rating", "custom_fields",
	"reply_time", "first_resolution_time", "full_resolution_time", "agent_wait_time", "requester_wait_time",
}

// SnapshotRepository keeps the latest unified record set in SQL.
type SnapshotRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db, now: time.Now}
}

// SaveSnapshot replaces the stored snapshot with records in one transaction.
func (s *SnapshotRepository) SaveSnapshot(ctx context.Context, records []models.UnifiedRecord) (models.SnapshotInfo, error) {
	info := models.SnapshotInfo{
		ID:          uuid.NewString(),
		CapturedAt:  s.now().UTC(),
		RecordCount: len(records),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.SnapshotInfo{}, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{recordsTable, snapshotsTable} {
		query, args, err := sq.Delete(table).ToSql()
		if err != nil {
			return models.SnapshotInfo{}, fmt.Errorf("build clear %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return models.SnapshotInfo{}, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	query, args, err := sq.Insert(snapshotsTable).
		Columns("id", "captured_at", "record_count").
		Values(info.ID, info.CapturedAt.Format(time.RFC3339Nano), info.RecordCount).
		ToSql()
	if err != nil {
		return models.SnapshotInfo{}, fmt.Errorf("build insert snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return models.SnapshotInfo{}, fmt.Errorf("insert snapshot: %w", err)
	}

	for start := 0; start < len(records); start += insertBatchSize {
		end := min(start+insertBatchSize, len(records))
		insert := sq.Insert(recordsTable).Columns(recordColumns...)
		for i := start; i < end; i++ {
			insert = insert.Values(recordValues(info.ID, i, records[i])...)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return models.SnapshotInfo{}, fmt.Errorf("build insert records: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return models.SnapshotInfo{}, fmt.Errorf("insert records: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.SnapshotInfo{}, fmt.Errorf("commit snapshot: %w", err)
	}
	return info, nil
}

// LoadLatestSnapshot returns the stored records in their original order, or
// models.ErrSnapshotNotFound when nothing was saved yet.
func (s *SnapshotRepository) LoadLatestSnapshot(ctx context.Context) ([]models.UnifiedRecord, models.SnapshotInfo, error) {
	query, args, err := sq.Select("id", "captured_at", "record_count").
		From(snapshotsTable).
		OrderBy("captured_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, models.SnapshotInfo{}, fmt.Errorf("build select snapshot: %w", err)
	}

	var info models.SnapshotInfo
	var capturedAt string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&info.ID, &capturedAt, &info.RecordCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.SnapshotInfo{}, models.ErrSnapshotNotFound
		}
		return nil, models.SnapshotInfo{}, fmt.Errorf("query snapshot: %w", err)
	}
	info.CapturedAt, err = time.Parse(time.RFC3339Nano, capturedAt)
	if err != nil {
		return nil, models.SnapshotInfo{}, fmt.Errorf("parse captured_at: %w", err)
	}

	query, args, err = sq.Select(recordColumns[2:]...).
		From(recordsTable).
		Where(sq.Eq{"snapshot_id": info.ID}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, models.SnapshotInfo{}, fmt.Errorf("build select records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.SnapshotInfo{}, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := make([]models.UnifiedRecord, 0, info.RecordCount)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, models.SnapshotInfo{}, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, models.SnapshotInfo{}, fmt.Errorf("iterate records: %w", err)
	}

	return records, info, nil
}

func recordValues(snapshotID string, position int, r models.UnifiedRecord) []any {
	return []any{
		snapshotID, position, r.TicketID, r.Status, r.AssigneeID, r.AssigneeName,
		timeText(r.UpdatedAt), timeText(r.SolvedAt), r.Replies,
		rawText(r.SatisfactionRating), rawText(r.CustomFields),
		rawText(r.ReplyTime), rawText(r.FirstResolutionTime), rawText(r.FullResolutionTime),
		rawText(r.AgentWaitTime), rawText(r.RequesterWaitTime),
	}
}

func scanRecord(rows *sql.Rows) (models.UnifiedRecord, error) {
	var r models.UnifiedRecord
	var updatedAt, solvedAt null.String
	var raw [7]null.String

	err := rows.Scan(
		&r.TicketID, &r.Status, &r.AssigneeID, &r.AssigneeName,
		&updatedAt, &solvedAt, &r.Replies,
		&raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5], &raw[6],
	)
	if err != nil {
		return models.UnifiedRecord{}, fmt.Errorf("scan record: %w", err)
	}

	if r.UpdatedAt, err = parseTimeText(updatedAt); err != nil {
		return models.UnifiedRecord{}, fmt.Errorf("ticket %d updated_at: %w", r.TicketID, err)
	}
	if r.SolvedAt, err = parseTimeText(solvedAt); err != nil {
		return models.UnifiedRecord{}, fmt.Errorf("ticket %d solved_at: %w", r.TicketID, err)
	}

	r.SatisfactionRating = rawMessage(raw[0])
	r.CustomFields = rawMessage(raw[1])
	r.ReplyTime = rawMessage(raw[2])
	r.FirstResolutionTime = rawMessage(raw[3])
	r.FullResolutionTime = rawMessage(raw[4])
	r.AgentWaitTime = rawMessage(raw[5])
	r.RequesterWaitTime = rawMessage(raw[6])
	return r, nil
}

func timeText(t null.Time) null.String {
	if !t.Valid {
		return null.String{}
	}
	return null.StringFrom(t.Time.Format(time.RFC3339Nano))
}

func parseTimeText(s null.String) (null.Time, error) {
	if !s.Valid {
		return null.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return null.Time{}, err
	}
	return null.TimeFrom(t), nil
}

func rawText(m json.RawMessage) null.String {
	if len(m) == 0 {
		return null.String{}
	}
	return null.StringFrom(string(m))
}

func rawMessage(s null.String) json.RawMessage {
	if !s.Valid {
		return nil
	}
	return json.RawMessage(s.String)
}
