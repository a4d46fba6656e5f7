// Package checknotificationstatus is the Zeebe task that reports where the
// jobs created by send-notification stand.
package checknotificationstatus

import (
	"context"
	"encoding/json"
	"fmt"

	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "check-notification-status"

type JobReader interface {
	Get(ctx context.Context, id string) (*models.NotificationJob, error)
}

type Handler struct {
	config *Config
	jobs   JobReader
	errors *errors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, jobs JobReader, log logger.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		jobs:   jobs,
		errors: errors.NewErrorHandler(log),
		logger: log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("Processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		err = errors.NewValidationError("variables", err.Error())
		h.errors.HandleJobError(ctx, client, job, err)
		return err
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return err
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, errors.NewInternalError(err))
		return err
	}
	if _, err := cmd.Send(ctx); err != nil {
		return err
	}

	h.logger.Info("Job completed", map[string]interface{}{
		"jobKey":     job.Key,
		"allSettled": output.AllSettled,
		"anyFailed":  output.AnyFailed,
	})
	return nil
}

// Execute looks every job up. An unknown id is a BPMN error; a database
// failure is retried by the engine.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.JobIDs) == 0 {
		return nil, errors.NewValidationError("queuedJobIds", "at least one job id is required")
	}
	if len(input.JobIDs) > h.config.MaxJobIDs {
		return nil, errors.NewValidationError("queuedJobIds", fmt.Sprintf("at most %d job ids per lookup", h.config.MaxJobIDs))
	}

	out := &Output{Jobs: make([]JobState, 0, len(input.JobIDs)), AllSettled: true}
	for _, id := range input.JobIDs {
		job, err := h.jobs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out.Jobs = append(out.Jobs, JobState{
			JobID:     job.ID,
			Channel:   job.Channel,
			Status:    job.Status,
			Attempt:   job.Attempt,
			LastError: job.LastError,
		})
		switch {
		case job.Status == models.JobStatusSent:
			out.Sent++
		case job.Status == models.JobStatusPermanentlyFailed:
			out.AnyFailed = true
		}
		if !settled(job.Status) {
			out.AllSettled = false
		}
	}
	return out, nil
}
