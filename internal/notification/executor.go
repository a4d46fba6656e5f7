package notification

import (
	"context"
	"unicode/utf8"

	"pulse-server/internal/backoff"
	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/common/metrics"
	"pulse-server/internal/common/observability"
	"pulse-server/internal/common/validation"
	"pulse-server/internal/dispatch"
	"pulse-server/internal/models"
	"pulse-server/internal/provider"
	"pulse-server/internal/routing"

	"go.opentelemetry.io/otel/attribute"
)

const maxErrorLength = 2000

type VariantSource interface {
	GetVariantForGroup(ctx context.Context, groupID int64, channel models.Channel, locale string) (*models.ResolvedVariant, error)
}

type RouteResolver interface {
	Resolve(ctx context.Context, scope routing.Scope) (*models.ResolvedRoute, error)
}

type EndpointSelector interface {
	SelectEndpoint(ctx context.Context, profileID int64, channel models.Channel, priorAttempt int) (*models.SenderEndpoint, error)
}

type Sender interface {
	Send(ctx context.Context, job *models.NotificationJob, endpoint *models.SenderEndpoint, variant *models.TemplateVariant) (provider.Result, error)
}

type OutcomeRecorder interface {
	Record(ctx context.Context, o Outcome) (bool, error)
}

// EventSink receives one event per execution. Emit must not block on slow
// backends for long.
type EventSink interface {
	Emit(ctx context.Context, event models.DeliveryEvent)
}

// Executor makes one delivery attempt for a job and records the outcome.
type Executor struct {
	variants  VariantSource
	routes    RouteResolver
	endpoints EndpointSelector
	sender    Sender
	jobs      OutcomeRecorder
	events    EventSink
	backoff   *backoff.Policy
	obs       *observability.Observability
	log       logger.Logger
}

func NewExecutor(variants VariantSource, routes RouteResolver, endpoints EndpointSelector, sender Sender, jobs OutcomeRecorder,
	events EventSink, policy *backoff.Policy, obs *observability.Observability, log logger.Logger) *Executor {
	return &Executor{
		variants:  variants,
		routes:    routes,
		endpoints: endpoints,
		sender:    sender,
		jobs:      jobs,
		events:    events,
		backoff:   policy,
		obs:       obs,
		log:       log.WithFields(map[string]interface{}{"component": "executor"}),
	}
}

// Handle adapts Execute to the dispatch pool.
func (e *Executor) Handle(ctx context.Context, task dispatch.Task) {
	job := task.Job
	if _, err := e.Execute(ctx, &job, task.Variant); err != nil {
		e.log.Error("Failed to record job outcome", map[string]interface{}{"jobId": job.ID, "error": err.Error()})
	}
}

// region derives the routing region from the recipient. Only SMS recipients
// carry one.
func region(job *models.NotificationJob) string {
	if job.Channel == models.ChannelSMS {
		if r := validation.PhoneRegion(job.Recipient); r != "" {
			return r
		}
	}
	return models.UnknownRegion
}

// truncate cuts s to at most n bytes without splitting a rune; last_error is
// a text column and Postgres refuses invalid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Execute runs one attempt and returns the status written to the job. The
// error is only set when the outcome could not be stored.
func (e *Executor) Execute(ctx context.Context, job *models.NotificationJob, variant *models.ResolvedVariant) (models.JobStatus, error) {
	ctx, span := e.obs.StartSpan(ctx, "notification.execute",
		attribute.String("job.id", job.ID), attribute.String("job.channel", string(job.Channel)))
	defer span.End()

	started := e.backoff.Now()
	attempt := job.Attempt + 1
	service := models.DefaultService
	if job.Service != nil && *job.Service != "" {
		service = *job.Service
	}
	event := models.DeliveryEvent{
		JobID:   job.ID,
		Channel: job.Channel,
		Service: service,
		Attempt: attempt,
	}
	fields := map[string]interface{}{
		"jobId":     job.ID,
		"channel":   job.Channel,
		"recipient": logger.MaskRecipient(job.Recipient),
		"attempt":   attempt,
	}

	outcome := Outcome{JobID: job.ID, PriorAttempt: job.Attempt}
	result, messageType, err := e.attempt(ctx, job, variant, service, &event)
	now := e.backoff.Now()
	outcome.AttemptedAt = now

	switch {
	case err != nil:
		code := errors.CodeOf(err)
		if code == "" {
			code = errors.ErrCodeUnknown
		}
		lastError := string(code)
		outcome.Status = models.JobStatusPermanentlyFailed
		outcome.LastError = &lastError
		event.Error = err.Error()
		span.RecordError(err)
		fields["error"] = err.Error()
		e.log.Error("Job execution failed", fields)
	case result.Success:
		outcome.Status = models.JobStatusSent
	case attempt >= models.MaxAttempts:
		lastError := truncate(result.Error, maxErrorLength)
		outcome.Status = models.JobStatusPermanentlyFailed
		outcome.LastError = &lastError
		event.Error = result.Error
	default:
		lastError := truncate(result.Error, maxErrorLength)
		next := e.backoff.NextAttemptAt(messageType, job.Priority, attempt)
		outcome.Status = models.JobStatusFailed
		outcome.NextAttemptAt = &next
		outcome.LastError = &lastError
		event.Error = result.Error
	}

	event.Status = outcome.Status
	event.Timestamp = now

	metrics.JobsExecuted.WithLabelValues(string(job.Channel), string(outcome.Status)).Inc()
	metrics.JobExecutionDuration.WithLabelValues(string(job.Channel)).Observe(now.Sub(started).Seconds())
	e.obs.RecordJobProcessed(ctx, string(job.Channel), string(outcome.Status))
	e.obs.RecordJobDuration(ctx, now.Sub(started), string(job.Channel))

	applied, recErr := e.jobs.Record(context.WithoutCancel(ctx), outcome)
	if recErr != nil {
		return outcome.Status, recErr
	}
	fields["status"] = outcome.Status
	if !applied {
		e.log.Warn("Job outcome discarded, job already moved on", fields)
		return outcome.Status, nil
	}
	if e.events != nil {
		e.events.Emit(ctx, event)
	}
	e.log.Info("Executed notification job", fields)
	return outcome.Status, nil
}

// attempt resolves everything the provider call needs and makes it. An error
// means the job cannot be delivered at all.
func (e *Executor) attempt(ctx context.Context, job *models.NotificationJob, variant *models.ResolvedVariant, service string, event *models.DeliveryEvent) (provider.Result, models.MessageType, error) {
	if variant == nil {
		rv, err := e.variants.GetVariantForGroup(ctx, job.TemplateGroupID, job.Channel, job.Locale)
		if err != nil {
			return provider.Result{}, "", err
		}
		if rv == nil {
			return provider.Result{}, "", errors.New(errors.ErrCodeTemplateNotFound)
		}
		variant = rv
	}
	messageType := variant.Group.MessageType
	event.TemplateKey = variant.Group.TemplateKey
	event.Region = region(job)

	route, err := e.routes.Resolve(ctx, routing.Scope{Service: service, Region: event.Region, MessageType: messageType})
	if err != nil {
		return provider.Result{}, messageType, err
	}
	event.RoutingRuleID = route.Rule.ID
	event.SenderProfileID = route.Profile.ID

	endpoint, err := e.endpoints.SelectEndpoint(ctx, route.Profile.ID, job.Channel, job.Attempt)
	if err != nil {
		return provider.Result{}, messageType, err
	}
	event.EndpointID = endpoint.ID
	event.Provider = endpoint.Provider

	result, err := e.sender.Send(ctx, job, endpoint, &variant.Variant)
	if err != nil {
		return provider.Result{}, messageType, err
	}
	return result, messageType, nil
}

