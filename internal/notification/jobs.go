// Package notification fans send requests out into per-channel jobs and
// drives each job through delivery attempts.
package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"pulse-server/internal/common/errors"
	"pulse-server/internal/models"
)

// JobStore persists notification_jobs rows.
type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = "id, template_group_id, channel, locale, priority, recipient, service, payload, status, attempt, " +
	"last_attempted_at, next_attempt_at, last_error, created_at, updated_at"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*models.NotificationJob, error) {
	var j models.NotificationJob
	var service, lastError sql.NullString
	var payload []byte
	var lastAttemptedAt, nextAttemptAt sql.NullTime
	err := row.Scan(&j.ID, &j.TemplateGroupID, &j.Channel, &j.Locale, &j.Priority, &j.Recipient, &service, &payload,
		&j.Status, &j.Attempt, &lastAttemptedAt, &nextAttemptAt, &lastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if service.Valid {
		j.Service = &service.String
	}
	if lastError.Valid {
		j.LastError = &lastError.String
	}
	if lastAttemptedAt.Valid {
		j.LastAttemptedAt = &lastAttemptedAt.Time
	}
	if nextAttemptAt.Valid {
		j.NextAttemptAt = &nextAttemptAt.Time
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return nil, err
		}
	}
	return &j, nil
}

func encodePayload(payload map[string]interface{}) (interface{}, error) {
	if payload == nil {
		return nil, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Insert stores a new PENDING job and fills in its timestamps.
func (s *JobStore) Insert(ctx context.Context, job *models.NotificationJob) error {
	payload, err := encodePayload(job.Payload)
	if err != nil {
		return errors.NewValidationError("payload", err.Error())
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO notification_jobs (id, template_group_id, channel, locale, priority, recipient, service, payload, status, attempt)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)
		 RETURNING created_at, updated_at`,
		job.ID, job.TemplateGroupID, job.Channel, job.Locale, job.Priority, job.Recipient, job.Service, payload, job.Status,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return errors.FromDB("create notification job", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*models.NotificationJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM notification_jobs WHERE id = $1", id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeJobNotFound)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get notification job", err)
	}
	return job, nil
}

// Outcome is the state written after one execution attempt.
type Outcome struct {
	JobID         string
	PriorAttempt  int
	Status        models.JobStatus
	AttemptedAt   time.Time
	NextAttemptAt *time.Time
	LastError     *string
}

// Record applies an outcome in one conditional update. It reports false when
// the job is already terminal or another execution recorded this attempt
// first.
func (s *JobStore) Record(ctx context.Context, o Outcome) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notification_jobs
		 SET status = $2, attempt = attempt + 1, last_attempted_at = $3, next_attempt_at = $4, last_error = $5, updated_at = $3
		 WHERE id = $1 AND attempt = $6 AND status NOT IN ('SENT', 'PERMANENTLY_FAILED')`,
		o.JobID, o.Status, o.AttemptedAt, o.NextAttemptAt, o.LastError, o.PriorAttempt,
	)
	if err != nil {
		return false, errors.NewDatabaseError("update notification job", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewDatabaseError("update notification job", err)
	}
	return n == 1, nil
}

// ClaimDue moves up to limit runnable jobs to PROCESSING and returns them.
// Runnable means a FAILED job whose retry time has come, or a PENDING or
// PROCESSING job untouched since staleBefore. Rows locked by a concurrent
// claimer are skipped.
func (s *JobStore) ClaimDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]models.NotificationJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE notification_jobs SET status = 'PROCESSING', updated_at = $1
		 WHERE id IN (
		   SELECT id FROM notification_jobs
		   WHERE (status = 'FAILED' AND next_attempt_at <= $1)
		      OR (status IN ('PENDING', 'PROCESSING') AND updated_at <= $2)
		   ORDER BY priority DESC, next_attempt_at NULLS FIRST
		   LIMIT $3
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		now, staleBefore, limit,
	)
	if err != nil {
		return nil, errors.NewDatabaseError("claim due jobs", err)
	}
	defer rows.Close()

	var jobs []models.NotificationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("scan notification job", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("claim due jobs", err)
	}
	return jobs, nil
}
