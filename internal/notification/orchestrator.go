package notification

import (
	"context"
	"sync"

	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/common/metrics"
	"pulse-server/internal/common/observability"
	"pulse-server/internal/common/validation"
	"pulse-server/internal/dispatch"
	"pulse-server/internal/models"
	"pulse-server/internal/template"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type Recipients struct {
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	PushToken string `json:"push,omitempty"`
}

type SendRequest struct {
	TemplateKey string                 `json:"templateKey"`
	Recipients  Recipients             `json:"recipients"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Locale      string                 `json:"locale,omitempty"`
	Service     string                 `json:"service,omitempty"`
}

type ChannelStatus string

const (
	ChannelQueued ChannelStatus = "QUEUED"
	ChannelFailed ChannelStatus = "FAILED"
)

type RequestStatus string

const (
	StatusAccepted        RequestStatus = "ACCEPTED"
	StatusPartialAccepted RequestStatus = "PARTIAL_ACCEPTED"
	StatusFailed          RequestStatus = "FAILED"
)

type ChannelError struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

type ChannelResult struct {
	Channel models.Channel `json:"channel"`
	Status  ChannelStatus  `json:"status"`
	JobID   string         `json:"jobId,omitempty"`
	Locale  string         `json:"locale,omitempty"`
	Error   *ChannelError  `json:"error,omitempty"`
}

type SendResponse struct {
	Status         RequestStatus   `json:"status"`
	ChannelResults []ChannelResult `json:"channelResults"`
}

type TemplateSource interface {
	GetEnabledChannels(ctx context.Context, templateKey string) (*template.EnabledChannels, error)
	ResolveVariant(ctx context.Context, templateKey string, channel models.Channel, locale string) (*models.ResolvedVariant, error)
}

type JobInserter interface {
	Insert(ctx context.Context, job *models.NotificationJob) error
}

// Orchestrator turns one send request into a job per enabled channel.
type Orchestrator struct {
	templates TemplateSource
	jobs      JobInserter
	dispatch  dispatch.Submitter
	obs       *observability.Observability
	log       logger.Logger
	newID     func() string
}

func NewOrchestrator(templates TemplateSource, jobs JobInserter, submitter dispatch.Submitter, obs *observability.Observability, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		templates: templates,
		jobs:      jobs,
		dispatch:  submitter,
		obs:       obs,
		log:       log.WithFields(map[string]interface{}{"component": "orchestrator"}),
		newID:     uuid.NewString,
	}
}

// Send fans the request out over the template's enabled channels. Only an
// unknown template key fails the whole request; every other problem is
// reported on the affected channel.
func (o *Orchestrator) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	ctx, span := o.obs.StartSpan(ctx, "notification.send", attribute.String("template.key", req.TemplateKey))
	defer span.End()

	enabled, err := o.templates.GetEnabledChannels(ctx, req.TemplateKey)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	results := make([]ChannelResult, len(enabled.Settings))
	var wg sync.WaitGroup
	for i, setting := range enabled.Settings {
		wg.Add(1)
		go func(i int, channel models.Channel) {
			defer wg.Done()
			results[i] = o.sendChannel(ctx, channel, req)
		}(i, setting.Channel)
	}
	wg.Wait()

	resp := &SendResponse{Status: aggregate(results), ChannelResults: results}
	metrics.NotificationRequests.WithLabelValues(string(resp.Status)).Inc()
	o.log.Info("Processed notification request", map[string]interface{}{
		"templateKey": req.TemplateKey,
		"status":      resp.Status,
		"channels":    len(results),
	})
	return resp, nil
}

func aggregate(results []ChannelResult) RequestStatus {
	queued := 0
	for _, r := range results {
		if r.Status == ChannelQueued {
			queued++
		}
	}
	switch {
	case queued == len(results):
		return StatusAccepted
	case queued > 0:
		return StatusPartialAccepted
	default:
		return StatusFailed
	}
}

// Every channel must have a case in recipientFor.
var _ = [1]struct{}{}[models.ChannelCount-3]

// recipientFor picks and validates the recipient field the channel reads.
func recipientFor(channel models.Channel, r Recipients) (string, errors.ErrorCode) {
	switch channel {
	case models.ChannelSMS:
		if !validation.IsValidMobile(r.Phone) {
			return "", errors.ErrCodeInvalidPhone
		}
		return r.Phone, ""
	case models.ChannelEmail:
		if !validation.IsValidEmail(r.Email) {
			return "", errors.ErrCodeInvalidEmail
		}
		return r.Email, ""
	case models.ChannelPush:
		if r.PushToken == "" {
			return "", errors.ErrCodeInvalidPushToken
		}
		return r.PushToken, ""
	}
	return "", errors.ErrCodeValidationFailed
}

func channelFailure(channel models.Channel, err error) ChannelResult {
	stdErr := errors.Normalize(err)
	metrics.ChannelResults.WithLabelValues(string(channel), string(ChannelFailed)).Inc()
	return ChannelResult{
		Channel: channel,
		Status:  ChannelFailed,
		Error:   &ChannelError{Code: stdErr.Code, Message: stdErr.Message},
	}
}

func (o *Orchestrator) sendChannel(ctx context.Context, channel models.Channel, req SendRequest) ChannelResult {
	recipient, code := recipientFor(channel, req.Recipients)
	if code != "" {
		return channelFailure(channel, errors.New(code))
	}

	rv, err := o.templates.ResolveVariant(ctx, req.TemplateKey, channel, req.Locale)
	if err != nil {
		o.log.Error("Template resolution failed", map[string]interface{}{"channel": channel, "error": err.Error()})
		return channelFailure(channel, err)
	}
	if rv == nil {
		return channelFailure(channel, errors.New(errors.ErrCodeTemplateNotFound))
	}

	job := &models.NotificationJob{
		ID:              o.newID(),
		TemplateGroupID: rv.Group.ID,
		Channel:         channel,
		Locale:          rv.Variant.Locale,
		Priority:        rv.Group.Priority,
		Recipient:       recipient,
		Payload:         req.Payload,
		Status:          models.JobStatusPending,
	}
	if req.Service != "" {
		service := req.Service
		job.Service = &service
	}
	if err := o.jobs.Insert(ctx, job); err != nil {
		o.log.Error("Failed to create notification job", map[string]interface{}{"channel": channel, "error": err.Error()})
		return channelFailure(channel, err)
	}

	logFields := map[string]interface{}{
		"jobId":       job.ID,
		"channel":     channel,
		"recipient":   logger.MaskRecipient(recipient),
		"templateKey": req.TemplateKey,
		"locale":      job.Locale,
	}
	o.log.Info("Created notification job", logFields)

	// The job is durable at this point. A failed hand-off leaves it PENDING
	// for the sweeper.
	if err := o.dispatch.Submit(ctx, dispatch.Task{Job: *job, Variant: rv}); err != nil {
		logFields["error"] = err.Error()
		o.log.Warn("Job not queued for immediate execution", logFields)
	}

	metrics.ChannelResults.WithLabelValues(string(channel), string(ChannelQueued)).Inc()
	return ChannelResult{Channel: channel, Status: ChannelQueued, JobID: job.ID, Locale: job.Locale}
}
