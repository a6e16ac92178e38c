package store

import (
	"context"
	"math"
	"time"

	"concierge-whatsapp/internal/models"
)

type timelineRow struct {
	ConversationID int64     `db:"conversation_id"`
	Sender         string    `db:"sender"`
	CreatedAt      time.Time `db:"created_at"`
}

// Statistics aggregates activity for one tenant, or for every tenant when tenantID is nil.
// HumanMessages counts every message that was not generated by the assistant.
func (s *SQLStore) Statistics(ctx context.Context, tenantID *int64) (models.Statistics, error) {
	var st models.Statistics

	filter, args := "", []any{}
	if tenantID != nil {
		filter = " WHERE c.tenant_id = ?"
		args = append(args, *tenantID)
	}

	if err := s.db.GetContext(ctx, &st.TotalConversations, s.q(`SELECT COUNT(*) FROM conversations c`+filter), args...); err != nil {
		return st, s.wrap(err, "count conversations")
	}

	var counts struct {
		Total int64 `db:"total"`
		AI    int64 `db:"ai"`
	}
	err := s.db.GetContext(ctx, &counts, s.q(`
		SELECT COUNT(m.id) AS total,
			COALESCE(SUM(CASE WHEN m.is_ai THEN 1 ELSE 0 END), 0) AS ai
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id`+filter), args...)
	if err != nil {
		return st, s.wrap(err, "count messages")
	}
	st.TotalMessages = counts.Total
	st.AIMessages = counts.AI
	st.HumanMessages = counts.Total - counts.AI

	rows := []timelineRow{}
	err = s.db.SelectContext(ctx, &rows, s.q(`
		SELECT m.conversation_id, m.sender, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id`+filter+`
		ORDER BY m.conversation_id, m.created_at, m.id`), args...)
	if err != nil {
		return st, s.wrap(err, "load message timeline")
	}
	st.AverageResponseTime = averageResponseSeconds(rows)
	return st, nil
}

// averageResponseSeconds pairs every client message with the next concierge message of the same
// conversation. rows must be sorted by conversation then time.
func averageResponseSeconds(rows []timelineRow) int64 {
	var (
		total   time.Duration
		pairs   int
		waiting []time.Time
		current int64 = -1
	)
	for _, r := range rows {
		if r.ConversationID != current {
			current = r.ConversationID
			waiting = waiting[:0]
		}
		switch r.Sender {
		case models.SenderClient:
			waiting = append(waiting, r.CreatedAt)
		case models.SenderConcierge:
			for _, asked := range waiting {
				total += r.CreatedAt.Sub(asked)
				pairs++
			}
			waiting = waiting[:0]
		}
	}
	if pairs == 0 {
		return 0
	}
	return int64(math.Round(total.Seconds() / float64(pairs)))
}
