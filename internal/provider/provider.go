// Package provider renders a job's template and hands it to the gateway
// behind the chosen sender endpoint.
package provider

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"pulse-server/internal/common/logger"
	"pulse-server/internal/models"

	"github.com/cbroglie/mustache"
)

// Result is the outcome of one provider call. Retriable is only meaningful
// when Success is false.
type Result struct {
	Success   bool
	Retriable bool
	Error     string
}

func succeeded() Result {
	return Result{Success: true}
}

func failed(retriable bool, format string, args ...interface{}) Result {
	return Result{Retriable: retriable, Error: fmt.Sprintf(format, args...)}
}

type EmailAddress struct {
	Name  string
	Email string
}

func (a EmailAddress) String() string {
	if a.Name == "" {
		return a.Email
	}
	return (&mail.Address{Name: a.Name, Address: a.Email}).String()
}

// ParseAddress accepts "Name <addr>" or a bare address. Unparseable input is
// kept verbatim as the address.
func ParseAddress(s string) EmailAddress {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return EmailAddress{Email: s}
	}
	return EmailAddress{Name: addr.Name, Email: addr.Address}
}

type EmailMessage struct {
	JobID   string
	From    EmailAddress
	To      EmailAddress
	Subject string
	Body    string
	Payload map[string]interface{}
}

type SMSMessage struct {
	JobID   string
	From    string
	To      string
	Body    string
	Payload map[string]interface{}
}

type PushMessage struct {
	JobID       string
	AppID       string
	DeviceToken string
	Title       string
	Body        string
	Payload     map[string]interface{}
}

type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) Result
}

type SMSSender interface {
	SendSMS(ctx context.Context, msg SMSMessage) Result
}

type PushSender interface {
	SendPush(ctx context.Context, msg PushMessage) Result
}

// Recorder appends the rendered message to the delivery log.
type Recorder interface {
	Record(ctx context.Context, jobID string, channel models.Channel, subject *string, body string, payload map[string]interface{}) error
}

// Service routes a job to the sender registered for its endpoint's provider.
type Service struct {
	email    map[models.ServiceProvider]EmailSender
	sms      map[models.ServiceProvider]SMSSender
	push     map[models.ServiceProvider]PushSender
	recorder Recorder
	timeout  time.Duration
	log      logger.Logger
}

func NewService(recorder Recorder, timeout time.Duration, log logger.Logger) *Service {
	s := &Service{
		email:    map[models.ServiceProvider]EmailSender{},
		sms:      map[models.ServiceProvider]SMSSender{},
		push:     map[models.ServiceProvider]PushSender{},
		recorder: recorder,
		timeout:  timeout,
		log:      log.WithFields(map[string]interface{}{"component": "provider"}),
	}

	dev := NewDevSender(recorder)
	s.RegisterEmail(models.ProviderDev, dev)
	s.RegisterSMS(models.ProviderDev, dev)
	s.RegisterPush(models.ProviderDev, dev)

	for _, p := range []models.ServiceProvider{models.ProviderSendGrid, models.ProviderTwilio} {
		s.RegisterEmail(p, notImplemented(p))
		s.RegisterSMS(p, notImplemented(p))
		s.RegisterPush(p, notImplemented(p))
	}
	return s
}

func (s *Service) RegisterEmail(p models.ServiceProvider, sender EmailSender) { s.email[p] = sender }
func (s *Service) RegisterSMS(p models.ServiceProvider, sender SMSSender) { s.sms[p] = sender }
func (s *Service) RegisterPush(p models.ServiceProvider, sender PushSender) { s.push[p] = sender }

// Rendered is the mustache output for one job.
type Rendered struct {
	Subject *string
	Body    string
}

// Render applies the job payload to the variant. Subjects default to "NA" for
// channels that need a title.
func Render(variant *models.TemplateVariant, payload map[string]interface{}) (Rendered, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	body, err := mustache.Render(variant.Body, payload)
	if err != nil {
		return Rendered{}, fmt.Errorf("render body: %w", err)
	}

	subjectTemplate := "NA"
	if variant.Subject != nil {
		subjectTemplate = *variant.Subject
	}
	subject, err := mustache.Render(subjectTemplate, payload)
	if err != nil {
		return Rendered{}, fmt.Errorf("render subject: %w", err)
	}
	return Rendered{Subject: &subject, Body: body}, nil
}

// Every channel must have a case in Send.
var _ = [1]struct{}{}[models.ChannelCount-3]

// Send renders and delivers the job through the endpoint's provider. The
// returned error is reserved for failures that are not the gateway's answer,
// such as a template that does not render.
func (s *Service) Send(ctx context.Context, job *models.NotificationJob, endpoint *models.SenderEndpoint, variant *models.TemplateVariant) (Result, error) {
	rendered, err := Render(variant, job.Payload)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var res Result
	switch job.Channel {
	case models.ChannelEmail:
		sender, ok := s.email[endpoint.Provider]
		if !ok {
			return s.unconfigured(endpoint), nil
		}
		res = sender.SendEmail(ctx, EmailMessage{
			JobID:   job.ID,
			From:    ParseAddress(endpoint.Identifier),
			To:      ParseAddress(job.Recipient),
			Subject: *rendered.Subject,
			Body:    rendered.Body,
			Payload: job.Payload,
		})
	case models.ChannelSMS:
		sender, ok := s.sms[endpoint.Provider]
		if !ok {
			return s.unconfigured(endpoint), nil
		}
		rendered.Subject = nil
		res = sender.SendSMS(ctx, SMSMessage{
			JobID:   job.ID,
			From:    endpoint.Identifier,
			To:      job.Recipient,
			Body:    rendered.Body,
			Payload: job.Payload,
		})
	case models.ChannelPush:
		sender, ok := s.push[endpoint.Provider]
		if !ok {
			return s.unconfigured(endpoint), nil
		}
		res = sender.SendPush(ctx, PushMessage{
			JobID:       job.ID,
			AppID:       endpoint.Identifier,
			DeviceToken: job.Recipient,
			Title:       *rendered.Subject,
			Body:        rendered.Body,
			Payload:     job.Payload,
		})
	default:
		return Result{}, fmt.Errorf("unsupported channel %q", job.Channel)
	}

	if ctx.Err() == context.DeadlineExceeded && !res.Success {
		res = failed(true, "provider %s timed out after %s", endpoint.Provider, s.timeout)
	}

	// DEV writes the message itself.
	if res.Success && endpoint.Provider != models.ProviderDev && s.recorder != nil {
		if err := s.recorder.Record(context.WithoutCancel(ctx), job.ID, job.Channel, rendered.Subject, rendered.Body, job.Payload); err != nil {
			s.log.Warn("Delivered message could not be recorded", map[string]interface{}{
				"jobId": job.ID, "error": err.Error(),
			})
		}
	}
	return res, nil
}

func (s *Service) unconfigured(endpoint *models.SenderEndpoint) Result {
	return failed(false, "provider %s is not configured for channel %s", endpoint.Provider, endpoint.Channel)
}

type unimplemented struct {
	provider models.ServiceProvider
}

func notImplemented(p models.ServiceProvider) unimplemented {
	return unimplemented{provider: p}
}

func (u unimplemented) result() Result {
	return failed(false, "provider not implemented: %s", u.provider)
}

func (u unimplemented) SendEmail(context.Context, EmailMessage) Result { return u.result() }
func (u unimplemented) SendSMS(context.Context, SMSMessage) Result { return u.result() }
func (u unimplemented) SendPush(context.Context, PushMessage) Result { return u.result() }
