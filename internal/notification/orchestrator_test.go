package notification

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/dispatch"
	"pulse-server/internal/models"
	"pulse-server/internal/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTemplates struct {
	enabled  *template.EnabledChannels
	err      error
	variants map[models.Channel]*models.ResolvedVariant
	locales  sync.Map
}

func (f *fakeTemplates) GetEnabledChannels(_ context.Context, key string) (*template.EnabledChannels, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.enabled, nil
}

func (f *fakeTemplates) ResolveVariant(_ context.Context, _ string, ch models.Channel, locale string) (*models.ResolvedVariant, error) {
	f.locales.Store(ch, locale)
	return f.variants[ch], nil
}

type fakeJobs struct {
	mu       sync.Mutex
	inserted []models.NotificationJob
	err      error
}

func (f *fakeJobs) Insert(_ context.Context, job *models.NotificationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, *job)
	return nil
}

type fakeSubmitter struct {
	mu    sync.Mutex
	tasks []dispatch.Task
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, task dispatch.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func group() models.TemplateGroup {
	return models.TemplateGroup{ID: 7, TemplateKey: "otp_login", MessageType: models.MessageTypeOTP, Priority: models.PriorityHigh, IsActive: true}
}

func variant(ch models.Channel, locale string) *models.ResolvedVariant {
	return &models.ResolvedVariant{
		Variant: models.TemplateVariant{ID: 1, TemplateGroupID: 7, Channel: ch, Locale: locale, Body: "Code {{code}}", IsActive: true},
		Group:   group(),
	}
}

func enabled(chs ...models.Channel) *template.EnabledChannels {
	e := &template.EnabledChannels{Group: group()}
	for _, ch := range chs {
		e.Settings = append(e.Settings, models.ChannelSetting{TemplateGroupID: 7, Channel: ch, IsEnabled: true})
	}
	return e
}

func newTestOrchestrator(t *testing.T, tpl *fakeTemplates, jobs *fakeJobs, sub *fakeSubmitter) *Orchestrator {
	o := NewOrchestrator(tpl, jobs, sub, nil, logger.NewTestLogger(t))
	n := 0
	var mu sync.Mutex
	o.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "job-" + string(rune('0'+n))
	}
	return o
}

func resultFor(t *testing.T, resp *SendResponse, ch models.Channel) ChannelResult {
	t.Helper()
	for _, r := range resp.ChannelResults {
		if r.Channel == ch {
			return r
		}
	}
	t.Fatalf("no result for %s", ch)
	return ChannelResult{}
}

func TestSend_AllChannelsQueued(t *testing.T) {
	tpl := &fakeTemplates{
		enabled: enabled(models.ChannelEmail, models.ChannelSMS),
		variants: map[models.Channel]*models.ResolvedVariant{
			models.ChannelEmail: variant(models.ChannelEmail, "en-IN"),
			models.ChannelSMS:   variant(models.ChannelSMS, models.DefaultLocale),
		},
	}
	jobs := &fakeJobs{}
	sub := &fakeSubmitter{}
	o := newTestOrchestrator(t, tpl, jobs, sub)

	resp, err := o.Send(context.Background(), SendRequest{
		TemplateKey: "otp_login",
		Recipients:  Recipients{Email: "a@example.com", Phone: "+919876543210"},
		Payload:     map[string]interface{}{"code": "1234"},
		Locale:      "en-IN",
		Service:     "auth",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, resp.Status)
	require.Len(t, resp.ChannelResults, 2)
	assert.Equal(t, models.ChannelEmail, resp.ChannelResults[0].Channel)
	assert.Equal(t, models.ChannelSMS, resp.ChannelResults[1].Channel)

	sms := resultFor(t, resp, models.ChannelSMS)
	assert.Equal(t, ChannelQueued, sms.Status)
	assert.Equal(t, models.DefaultLocale, sms.Locale)
	assert.NotEmpty(t, sms.JobID)

	require.Len(t, jobs.inserted, 2)
	for _, job := range jobs.inserted {
		assert.Equal(t, models.JobStatusPending, job.Status)
		assert.Equal(t, models.PriorityHigh, job.Priority)
		assert.Equal(t, int64(7), job.TemplateGroupID)
		require.NotNil(t, job.Service)
		assert.Equal(t, "auth", *job.Service)
		if job.Channel == models.ChannelSMS {
			assert.Equal(t, "+919876543210", job.Recipient)
		}
	}
	assert.Len(t, sub.tasks, 2)
	locale, _ := tpl.locales.Load(models.ChannelSMS)
	assert.Equal(t, "en-IN", locale)
}

func TestSend_PartialAccepted(t *testing.T) {
	tpl := &fakeTemplates{
		enabled: enabled(models.ChannelEmail, models.ChannelSMS, models.ChannelPush),
		variants: map[models.Channel]*models.ResolvedVariant{
			models.ChannelEmail: variant(models.ChannelEmail, "en-ZZ"),
			models.ChannelSMS:   variant(models.ChannelSMS, "en-ZZ"),
		},
	}
	jobs := &fakeJobs{}
	o := newTestOrchestrator(t, tpl, jobs, &fakeSubmitter{})

	resp, err := o.Send(context.Background(), SendRequest{
		TemplateKey: "otp_login",
		Recipients:  Recipients{Email: "not-an-email", Phone: "+919876543210", PushToken: "tok"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPartialAccepted, resp.Status)

	email := resultFor(t, resp, models.ChannelEmail)
	assert.Equal(t, ChannelFailed, email.Status)
	require.NotNil(t, email.Error)
	assert.Equal(t, errors.ErrCodeInvalidEmail, email.Error.Code)

	push := resultFor(t, resp, models.ChannelPush)
	assert.Equal(t, ChannelFailed, push.Status)
	assert.Equal(t, errors.ErrCodeTemplateNotFound, push.Error.Code)

	assert.Equal(t, ChannelQueued, resultFor(t, resp, models.ChannelSMS).Status)
	assert.Len(t, jobs.inserted, 1)
}

func TestSend_AllFailed(t *testing.T) {
	tpl := &fakeTemplates{enabled: enabled(models.ChannelSMS, models.ChannelPush)}
	o := newTestOrchestrator(t, tpl, &fakeJobs{}, &fakeSubmitter{})

	resp, err := o.Send(context.Background(), SendRequest{TemplateKey: "otp_login", Recipients: Recipients{Phone: "12"}})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, errors.ErrCodeInvalidPhone, resultFor(t, resp, models.ChannelSMS).Error.Code)
	assert.Equal(t, errors.ErrCodeInvalidPushToken, resultFor(t, resp, models.ChannelPush).Error.Code)
}

func TestSend_UnknownTemplate(t *testing.T) {
	tpl := &fakeTemplates{err: errors.New(errors.ErrCodeTemplateGroupNotFound)}
	o := newTestOrchestrator(t, tpl, &fakeJobs{}, &fakeSubmitter{})

	_, err := o.Send(context.Background(), SendRequest{TemplateKey: "missing"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeTemplateGroupNotFound))
}

func TestSend_NoEnabledChannels(t *testing.T) {
	o := newTestOrchestrator(t, &fakeTemplates{enabled: enabled()}, &fakeJobs{}, &fakeSubmitter{})

	resp, err := o.Send(context.Background(), SendRequest{TemplateKey: "otp_login"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Empty(t, resp.ChannelResults)
}

func TestSend_InsertFailureMarksChannelFailed(t *testing.T) {
	tpl := &fakeTemplates{
		enabled:  enabled(models.ChannelSMS),
		variants: map[models.Channel]*models.ResolvedVariant{models.ChannelSMS: variant(models.ChannelSMS, "en-ZZ")},
	}
	jobs := &fakeJobs{err: errors.NewDatabaseError("create notification job", stderrors.New("conn reset"))}
	o := newTestOrchestrator(t, tpl, jobs, &fakeSubmitter{})

	resp, err := o.Send(context.Background(), SendRequest{TemplateKey: "otp_login", Recipients: Recipients{Phone: "+919876543210"}})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, errors.ErrCodeDatabase, resp.ChannelResults[0].Error.Code)
}

func TestSend_QueueFullStillQueued(t *testing.T) {
	tpl := &fakeTemplates{
		enabled:  enabled(models.ChannelSMS),
		variants: map[models.Channel]*models.ResolvedVariant{models.ChannelSMS: variant(models.ChannelSMS, "en-ZZ")},
	}
	jobs := &fakeJobs{}
	o := newTestOrchestrator(t, tpl, jobs, &fakeSubmitter{err: dispatch.ErrQueueFull})

	resp, err := o.Send(context.Background(), SendRequest{TemplateKey: "otp_login", Recipients: Recipients{Phone: "+919876543210"}})
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, resp.Status)
	assert.Equal(t, ChannelQueued, resp.ChannelResults[0].Status)
	assert.Len(t, jobs.inserted, 1)
}
