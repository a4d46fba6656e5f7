package provider

import (
	"context"

	"pulse-server/internal/models"
)

// DevSender delivers nothing. It records the rendered message so local
// environments can inspect what would have been sent.
type DevSender struct {
	recorder Recorder
}

func NewDevSender(recorder Recorder) *DevSender {
	return &DevSender{recorder: recorder}
}

func (d *DevSender) record(ctx context.Context, jobID string, channel models.Channel, subject *string, body string, payload map[string]interface{}) Result {
	if d.recorder == nil {
		return succeeded()
	}
	if err := d.recorder.Record(ctx, jobID, channel, subject, body, payload); err != nil {
		return failed(true, "record message: %v", err)
	}
	return succeeded()
}

func (d *DevSender) SendEmail(ctx context.Context, msg EmailMessage) Result {
	return d.record(ctx, msg.JobID, models.ChannelEmail, &msg.Subject, msg.Body, msg.Payload)
}

func (d *DevSender) SendSMS(ctx context.Context, msg SMSMessage) Result {
	return d.record(ctx, msg.JobID, models.ChannelSMS, nil, msg.Body, msg.Payload)
}

func (d *DevSender) SendPush(ctx context.Context, msg PushMessage) Result {
	return d.record(ctx, msg.JobID, models.ChannelPush, &msg.Title, msg.Body, msg.Payload)
}
