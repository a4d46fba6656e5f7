package sendnotification

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"pulse-server/internal/common/errors"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/models"
	"pulse-server/internal/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockNotifier struct {
	SendFunc func(ctx context.Context, req notification.SendRequest) (*notification.SendResponse, error)
	got      notification.SendRequest
}

func (m *MockNotifier) Send(ctx context.Context, req notification.SendRequest) (*notification.SendResponse, error) {
	m.got = req
	return m.SendFunc(ctx, req)
}

func newTestHandler(t *testing.T, m *MockNotifier) *Handler {
	return NewHandler(&Config{Timeout: 5 * time.Second}, m, logger.NewTestLogger(t))
}

func TestExecute_SendsAndCollectsJobIDs(t *testing.T) {
	m := &MockNotifier{SendFunc: func(context.Context, notification.SendRequest) (*notification.SendResponse, error) {
		return &notification.SendResponse{
			Status: notification.StatusPartialAccepted,
			ChannelResults: []notification.ChannelResult{
				{Channel: models.ChannelEmail, Status: notification.ChannelQueued, JobID: "job-1"},
				{Channel: models.ChannelSMS, Status: notification.ChannelFailed},
			},
		}, nil
	}}
	h := newTestHandler(t, m)

	out, err := h.Execute(context.Background(), `{
		"templateKey": "application_submitted",
		"recipients": {"email": "seeker@example.com"},
		"payload": {"applicationId": "app-001"},
		"applicationId": "app-001",
		"priority": "high"
	}`)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusPartialAccepted, out.NotificationStatus)
	assert.Equal(t, []string{"job-1"}, out.QueuedJobIDs)
	assert.Len(t, out.ChannelResults, 2)

	assert.Equal(t, "application_submitted", m.got.TemplateKey)
	assert.Equal(t, "seeker@example.com", m.got.Recipients.Email)
	assert.Equal(t, "app-001", m.got.Payload["applicationId"])
}

func TestExecute_InvalidVariables(t *testing.T) {
	m := &MockNotifier{SendFunc: func(context.Context, notification.SendRequest) (*notification.SendResponse, error) {
		t.Fatal("notifier must not be called")
		return nil, nil
	}}
	h := newTestHandler(t, m)

	tests := []struct {
		name      string
		variables string
	}{
		{"malformed json", `{"templateKey":`},
		{"missing template key", `{"recipients": {}}`},
		{"bad recipients", `{"templateKey": "x", "recipients": "a@b.com"}`},
		{"empty recipients", `{"templateKey": "x", "recipients": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Execute(context.Background(), tt.variables)
			assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
		})
	}
}

func TestExecute_UnknownTemplateIsDomainError(t *testing.T) {
	m := &MockNotifier{SendFunc: func(context.Context, notification.SendRequest) (*notification.SendResponse, error) {
		return nil, errors.New(errors.ErrCodeTemplateGroupNotFound)
	}}
	h := newTestHandler(t, m)

	_, err := h.Execute(context.Background(), `{"templateKey": "missing", "recipients": {"push": "device-token"}}`)
	require.Error(t, err)
	assert.True(t, errors.IsDomainError(err))

	bpmn := errors.ConvertToBPMNError(errors.Normalize(err))
	assert.Equal(t, 0, bpmn.Retries)
}

func TestExecute_InfrastructureErrorIsRetried(t *testing.T) {
	m := &MockNotifier{SendFunc: func(context.Context, notification.SendRequest) (*notification.SendResponse, error) {
		return nil, errors.NewDatabaseError("get template group", stderrors.New("connection refused"))
	}}
	h := newTestHandler(t, m)

	_, err := h.Execute(context.Background(), `{"templateKey": "welcome", "recipients": {"push": "device-token"}}`)
	require.Error(t, err)
	bpmn := errors.ConvertToBPMNError(errors.Normalize(err))
	assert.Equal(t, 3, bpmn.Retries)
}

func TestConfigTimeoutDefault(t *testing.T) {
	var c *Config
	assert.Equal(t, 30*time.Second, c.timeout())
}
