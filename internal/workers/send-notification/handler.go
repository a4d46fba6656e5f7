// Package sendnotification is the Zeebe task that lets a BPMN process send a
// templated notification through the orchestrator.
package sendnotification

import (
	"context"
	"encoding/json"

	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/common/validation"
	"pulse-server/internal/notification"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "send-notification"

type Notifier interface {
	Send(ctx context.Context, req notification.SendRequest) (*notification.SendResponse, error)
}

type Handler struct {
	config   *Config
	notifier Notifier
	errors   *errors.ErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, notifier Notifier, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		notifier: notifier,
		errors:   errors.NewErrorHandler(log),
		logger:   log,
	}
}

// Handle completes the job with the send outcome. A request whose every
// channel failed still completes; the process decides what to do with
// notificationStatus. Unknown templates and invalid variables are thrown as
// BPMN errors.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("Processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.timeout())
	defer cancel()

	output, err := h.Execute(ctx, job.Variables)
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
		"jobKey": job.Key,
		"status": output.NotificationStatus,
		"queued": len(output.QueuedJobIDs),
	})
	return nil
}

// Execute validates the job variables and sends the notification.
func (h *Handler) Execute(ctx context.Context, variables string) (*Output, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &doc); err != nil {
		return nil, errors.NewValidationError("variables", err.Error())
	}

	// Process variables usually carry more than the send request.
	req := map[string]interface{}{}
	for _, key := range []string{"templateKey", "recipients", "payload", "locale", "service"} {
		if v, ok := doc[key]; ok {
			req[key] = v
		}
	}

	result, err := validation.SendRequestSchema.Validate(req)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	if !result.Valid {
		return nil, errors.NewWithDetails(errors.ErrCodeValidationFailed, result.Error())
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	var input notification.SendRequest
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, errors.NewValidationError("variables", err.Error())
	}

	resp, err := h.notifier.Send(ctx, input)
	if err != nil {
		return nil, err
	}
	return newOutput(resp), nil
}
