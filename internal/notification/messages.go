package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"pulse-server/internal/common/database"
	"pulse-server/internal/common/errors"
	"pulse-server/internal/models"
)

// MessageStore reads the delivery log and job statistics.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

type MessageFilter struct {
	models.ListOptions
	Channel   models.Channel `form:"channel" binding:"omitempty,channel"`
	Recipient string         `form:"recipient"`
}

const messageJoin = ` FROM notification_messages m
 JOIN notification_jobs j ON j.id = m.notification_job_id
 JOIN template_groups g ON g.id = j.template_group_id`

func (s *MessageStore) ListMessages(ctx context.Context, filter MessageFilter) (models.Page[models.MessageListing], error) {
	opts := filter.ListOptions.Normalize("createdAt")

	f := &database.Filter{}
	if filter.Channel != "" {
		f.Eq("j.channel", filter.Channel)
	}
	if filter.Recipient != "" {
		f.Eq("j.recipient", filter.Recipient)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+messageJoin+f.Where(), f.Args()...).Scan(&total); err != nil {
		return models.Page[models.MessageListing]{}, errors.NewDatabaseError("count notification messages", err)
	}

	page, args := f.Page("m.created_at", opts.SortOrder, opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.notification_job_id, m.channel, m.rendered_subject, m.rendered_body, j.payload, m.created_at,
		        j.recipient, j.locale, g.template_key, g.message_type`+messageJoin+f.Where()+page,
		args...)
	if err != nil {
		return models.Page[models.MessageListing]{}, errors.NewDatabaseError("list notification messages", err)
	}
	defer rows.Close()

	var items []models.MessageListing
	for rows.Next() {
		var m models.MessageListing
		var subject sql.NullString
		var payload []byte
		if err := rows.Scan(&m.ID, &m.NotificationJobID, &m.Channel, &subject, &m.RenderedBody, &payload, &m.CreatedAt,
			&m.Recipient, &m.Locale, &m.TemplateKey, &m.MessageType); err != nil {
			return models.Page[models.MessageListing]{}, errors.NewDatabaseError("scan notification message", err)
		}
		if subject.Valid {
			m.RenderedSubject = &subject.String
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &m.Payload); err != nil {
				return models.Page[models.MessageListing]{}, errors.NewInternalError(err)
			}
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.MessageListing]{}, errors.NewDatabaseError("list notification messages", err)
	}
	return models.NewPage(items, total, opts), nil
}

// Stats counts jobs created on the UTC day containing day.
func (s *MessageStore) Stats(ctx context.Context, day time.Time) (*models.DailyStats, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel,
		        COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'SENT'),
		        COUNT(*) FILTER (WHERE status = 'PERMANENTLY_FAILED'),
		        COUNT(*) FILTER (WHERE status IN ('PENDING', 'PROCESSING', 'FAILED'))
		 FROM notification_jobs
		 WHERE created_at >= $1 AND created_at < $2
		 GROUP BY channel`,
		start, start.Add(24*time.Hour),
	)
	if err != nil {
		return nil, errors.NewDatabaseError("job stats", err)
	}
	defer rows.Close()

	stats := &models.DailyStats{Date: start.Format("2006-01-02"), Channels: map[models.Channel]models.DeliveryStats{}}
	for rows.Next() {
		var ch models.Channel
		var c models.DeliveryStats
		if err := rows.Scan(&ch, &c.Total, &c.Succeeded, &c.Failed, &c.Pending); err != nil {
			return nil, errors.NewDatabaseError("scan job stats", err)
		}
		stats.Channels[ch] = c
		stats.Overall.Total += c.Total
		stats.Overall.Succeeded += c.Succeeded
		stats.Overall.Failed += c.Failed
		stats.Overall.Pending += c.Pending
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("job stats", err)
	}
	return stats, nil
}
