package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"pulse-server/internal/models"
)

// MessageRecorder writes notification_messages rows.
type MessageRecorder struct {
	db *sql.DB
}

func NewMessageRecorder(db *sql.DB) *MessageRecorder {
	return &MessageRecorder{db: db}
}

func (r *MessageRecorder) Record(ctx context.Context, jobID string, channel models.Channel, subject *string, body string, payload map[string]interface{}) error {
	var raw interface{}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		raw = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_messages (notification_job_id, channel, rendered_subject, rendered_body, payload)
		 VALUES ($1, $2, $3, $4, $5)`,
		jobID, channel, subject, body, raw,
	)
	if err != nil {
		return fmt.Errorf("insert notification message: %w", err)
	}
	return nil
}
