package zendesk

import (
	"sort"

	"github.com/aarondl/null/v8"

	"github.com/godilite/support-metrics/internal/repository/models"
)

// Unify deduplicates each collection and left-joins tickets with their
// metric set (by ticket id) and assignee (by user id).
func Unify(tickets []Ticket, users []User, metricSets []MetricSet) []models.UnifiedRecord {
	tickets = latestByKey(tickets,
		func(t Ticket) int64 { return t.ID },
		func(t Ticket) null.Time { return t.UpdatedAt })
	users = latestByKey(users,
		func(u User) int64 { return u.ID },
		func(u User) null.Time { return u.UpdatedAt })
	metricSets = latestByKey(metricSets,
		func(m MetricSet) int64 { return m.TicketID },
		func(m MetricSet) null.Time { return m.UpdatedAt })

	metricsByTicket := make(map[int64]MetricSet, len(metricSets))
	for _, m := range metricSets {
		metricsByTicket[m.TicketID] = m
	}
	namesByUser := make(map[int64]null.String, len(users))
	for _, u := range users {
		namesByUser[u.ID] = u.Name
	}

	out := make([]models.UnifiedRecord, 0, len(tickets))
	for _, t := range tickets {
		rec := models.UnifiedRecord{
			TicketID:           t.ID,
			Status:             t.Status,
			AssigneeID:         t.AssigneeID,
			UpdatedAt:          t.UpdatedAt,
			SatisfactionRating: t.SatisfactionRating,
			CustomFields:       t.CustomFields,
		}
		if m, ok := metricsByTicket[t.ID]; ok {
			rec.SolvedAt = m.SolvedAt
			rec.Replies = m.Replies
			rec.ReplyTime = m.ReplyTime
			rec.FirstResolutionTime = m.FirstResolutionTime
			rec.FullResolutionTime = m.FullResolutionTime
			rec.AgentWaitTime = m.AgentWaitTime
			rec.RequesterWaitTime = m.RequesterWaitTime
		}
		if t.AssigneeID.Valid {
			rec.AssigneeName = namesByUser[t.AssigneeID.Int64]
		}
		out = append(out, rec)
	}
	return out
}

// latestByKey stable-sorts items by updated_at ascending (missing timestamps
// last) and keeps the last item per key, in sorted order.
func latestByKey[T any](items []T, key func(T) int64, updated func(T) null.Time) []T {
	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := updated(sorted[i]), updated(sorted[j])
		switch {
		case !a.Valid:
			return false
		case !b.Valid:
			return true
		default:
			return a.Time.Before(b.Time)
		}
	})

	last := make(map[int64]int, len(sorted))
	for i, item := range sorted {
		last[key(item)] = i
	}

	out := make([]T, 0, len(last))
	for i, item := range sorted {
		if last[key(item)] == i {
			out = append(out, item)
		}
	}
	return out
}
