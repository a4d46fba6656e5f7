package notification

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"pulse-server/internal/backoff"
	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/dispatch"
	"pulse-server/internal/models"
	"pulse-server/internal/provider"
	"pulse-server/internal/routing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var execNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeVariants struct {
	rv    *models.ResolvedVariant
	err   error
	calls int
}

func (f *fakeVariants) GetVariantForGroup(context.Context, int64, models.Channel, string) (*models.ResolvedVariant, error) {
	f.calls++
	return f.rv, f.err
}

type fakeRoutes struct {
	scope routing.Scope
	err   error
}

func (f *fakeRoutes) Resolve(_ context.Context, scope routing.Scope) (*models.ResolvedRoute, error) {
	f.scope = scope
	if f.err != nil {
		return nil, f.err
	}
	return &models.ResolvedRoute{
		Rule:    models.RoutingRule{ID: 3, SenderProfileID: 30},
		Profile: models.SenderProfile{ID: 30, Key: "default", IsActive: true},
	}, nil
}

type fakeEndpoints struct {
	priorAttempt int
	err          error
}

func (f *fakeEndpoints) SelectEndpoint(_ context.Context, profileID int64, ch models.Channel, prior int) (*models.SenderEndpoint, error) {
	f.priorAttempt = prior
	if f.err != nil {
		return nil, f.err
	}
	return &models.SenderEndpoint{ID: 9, SenderProfileID: profileID, Channel: ch, Provider: models.ProviderAWSSNS, Identifier: "PULSE", IsActive: true}, nil
}

type fakeSender struct {
	result provider.Result
	err    error
	calls  int
}

func (f *fakeSender) Send(context.Context, *models.NotificationJob, *models.SenderEndpoint, *models.TemplateVariant) (provider.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeOutcomes struct {
	outcomes []Outcome
	applied  bool
	err      error
}

func (f *fakeOutcomes) Record(_ context.Context, o Outcome) (bool, error) {
	f.outcomes = append(f.outcomes, o)
	return f.applied, f.err
}

type fakeSink struct{ events []models.DeliveryEvent }

func (f *fakeSink) Emit(_ context.Context, e models.DeliveryEvent) { f.events = append(f.events, e) }

type executorFixture struct {
	variants  *fakeVariants
	routes    *fakeRoutes
	endpoints *fakeEndpoints
	sender    *fakeSender
	outcomes  *fakeOutcomes
	sink      *fakeSink
	exec      *Executor
}

func newExecutorFixture(t *testing.T) *executorFixture {
	f := &executorFixture{
		variants:  &fakeVariants{rv: variant(models.ChannelSMS, "en-ZZ")},
		routes:    &fakeRoutes{},
		endpoints: &fakeEndpoints{},
		sender:    &fakeSender{result: provider.Result{Success: true}},
		outcomes:  &fakeOutcomes{applied: true},
		sink:      &fakeSink{},
	}
	policy := &backoff.Policy{Rand: func() float64 { return 0 }, Now: func() time.Time { return execNow }}
	f.exec = NewExecutor(f.variants, f.routes, f.endpoints, f.sender, f.outcomes, f.sink, policy, nil, logger.NewTestLogger(t))
	return f
}

func smsJob(attempt int) *models.NotificationJob {
	return &models.NotificationJob{
		ID:              "job-1",
		TemplateGroupID: 7,
		Channel:         models.ChannelSMS,
		Locale:          "en-ZZ",
		Priority:        models.PriorityHigh,
		Recipient:       "+919876543210",
		Status:          models.JobStatusProcessing,
		Attempt:         attempt,
	}
}

func TestExecute_Success(t *testing.T) {
	f := newExecutorFixture(t)

	status, err := f.exec.Execute(context.Background(), smsJob(0), variant(models.ChannelSMS, "en-ZZ"))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSent, status)

	assert.Equal(t, 0, f.variants.calls)
	assert.Equal(t, routing.Scope{Service: models.DefaultService, Region: "IN", MessageType: models.MessageTypeOTP}, f.routes.scope)
	assert.Equal(t, 0, f.endpoints.priorAttempt)

	require.Len(t, f.outcomes.outcomes, 1)
	o := f.outcomes.outcomes[0]
	assert.Equal(t, 0, o.PriorAttempt)
	assert.Nil(t, o.NextAttemptAt)
	assert.Nil(t, o.LastError)
	assert.Equal(t, execNow, o.AttemptedAt)

	require.Len(t, f.sink.events, 1)
	e := f.sink.events[0]
	assert.Equal(t, 1, e.Attempt)
	assert.Equal(t, int64(9), e.EndpointID)
	assert.Equal(t, models.ProviderAWSSNS, e.Provider)
	assert.Equal(t, "otp_login", e.TemplateKey)
}

func TestExecute_RetriableFailureSchedulesRetry(t *testing.T) {
	f := newExecutorFixture(t)
	f.sender.result = provider.Result{Retriable: true, Error: "throttled"}

	status, err := f.exec.Execute(context.Background(), smsJob(1), nil)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, status)
	assert.Equal(t, 1, f.variants.calls)
	assert.Equal(t, 1, f.endpoints.priorAttempt)

	o := f.outcomes.outcomes[0]
	require.NotNil(t, o.NextAttemptAt)
	// OTP, HIGH priority, attempt 2: 2s * 2^2 * 0.5
	assert.Equal(t, execNow.Add(4*time.Second), *o.NextAttemptAt)
	require.NotNil(t, o.LastError)
	assert.Equal(t, "throttled", *o.LastError)
}

func TestExecute_LastAttemptIsPermanent(t *testing.T) {
	f := newExecutorFixture(t)
	f.sender.result = provider.Result{Retriable: true, Error: "throttled"}

	status, err := f.exec.Execute(context.Background(), smsJob(models.MaxAttempts-1), nil)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPermanentlyFailed, status)
	assert.Nil(t, f.outcomes.outcomes[0].NextAttemptAt)
	assert.Equal(t, models.MaxAttempts, f.sink.events[0].Attempt)
}

func TestExecute_LongErrorTruncated(t *testing.T) {
	f := newExecutorFixture(t)
	f.sender.result = provider.Result{Error: strings.Repeat("x", 5000)}

	_, err := f.exec.Execute(context.Background(), smsJob(0), nil)
	require.NoError(t, err)
	assert.Len(t, *f.outcomes.outcomes[0].LastError, maxErrorLength)
}

func TestTruncate_KeepsRuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "throttled", "throttled"},
		{"two byte rune on boundary", strings.Repeat("x", 9) + "é" + "tail", strings.Repeat("x", 9)},
		{"three byte rune on boundary", strings.Repeat("x", 8) + "€" + "tail", strings.Repeat("x", 8)},
		{"rune ends at boundary", strings.Repeat("x", 8) + "é" + "tail", strings.Repeat("x", 8) + "é"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, 10)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestExecute_LongMultibyteErrorStaysValidUTF8(t *testing.T) {
	f := newExecutorFixture(t)
	f.sender.result = provider.Result{Retriable: true, Error: strings.Repeat("x", maxErrorLength-1) + "é" + "tail"}

	status, err := f.exec.Execute(context.Background(), smsJob(0), nil)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, status)
	lastError := *f.outcomes.outcomes[0].LastError
	assert.True(t, utf8.ValidString(lastError))
	assert.Equal(t, strings.Repeat("x", maxErrorLength-1), lastError)
}

func TestExecute_MissingVariantIsPermanent(t *testing.T) {
	f := newExecutorFixture(t)
	f.variants.rv = nil

	status, err := f.exec.Execute(context.Background(), smsJob(0), nil)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPermanentlyFailed, status)
	assert.Equal(t, 0, f.sender.calls)
	assert.Equal(t, string(errors.ErrCodeTemplateNotFound), *f.outcomes.outcomes[0].LastError)
}

func TestExecute_ResolutionErrorsArePermanent(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *executorFixture)
		want  string
	}{
		{"no route", func(f *executorFixture) { f.routes.err = errors.New(errors.ErrCodeRoutingNotFound) }, "SND_RTR_005"},
		{"no endpoint", func(f *executorFixture) { f.endpoints.err = errors.New(errors.ErrCodeNoEndpointAvailable) }, "SND_EP_001"},
		{"untyped error", func(f *executorFixture) { f.sender.err = stderrors.New("boom") }, "UNKNOWN_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExecutorFixture(t)
			tt.setup(f)

			status, err := f.exec.Execute(context.Background(), smsJob(0), nil)
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusPermanentlyFailed, status)
			assert.Equal(t, tt.want, *f.outcomes.outcomes[0].LastError)
			assert.NotEmpty(t, f.sink.events[0].Error)
		})
	}
}

func TestExecute_RegionAndServiceDerivation(t *testing.T) {
	f := newExecutorFixture(t)
	f.variants.rv = variant(models.ChannelEmail, "en-ZZ")
	job := smsJob(0)
	job.Channel = models.ChannelEmail
	job.Recipient = "a@example.com"
	svc := "billing"
	job.Service = &svc

	_, err := f.exec.Execute(context.Background(), job, nil)
	require.NoError(t, err)
	assert.Equal(t, "billing", f.routes.scope.Service)
	assert.Equal(t, models.UnknownRegion, f.routes.scope.Region)
}

func TestExecute_RecordError(t *testing.T) {
	f := newExecutorFixture(t)
	f.outcomes.err = errors.NewDatabaseError("update notification job", stderrors.New("down"))

	_, err := f.exec.Execute(context.Background(), smsJob(0), nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDatabase))
	assert.Empty(t, f.sink.events)
}

func TestHandle_StaleOutcomeIsNotAnError(t *testing.T) {
	f := newExecutorFixture(t)
	f.outcomes.applied = false

	f.exec.Handle(context.Background(), dispatch.Task{Job: *smsJob(2)})
	require.Len(t, f.outcomes.outcomes, 1)
	assert.Equal(t, 2, f.outcomes.outcomes[0].PriorAttempt)
	assert.Empty(t, f.sink.events)
}
