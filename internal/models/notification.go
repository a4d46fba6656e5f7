// internal/models/notification.go
package models

import "time"

type NotificationJob struct {
	ID              string                 `json:"id"`
	TemplateGroupID int64                  `json:"templateGroupId"`
	Channel         Channel                `json:"channel"`
	Locale          string                 `json:"locale"`
	Priority        Priority               `json:"priority"`
	Recipient       string                 `json:"recipient"`
	Service         *string                `json:"service,omitempty"`
	Payload         map[string]interface{} `json:"payload,omitempty"`
	Status          JobStatus              `json:"status"`
	Attempt         int                    `json:"attempt"`
	LastAttemptedAt *time.Time             `json:"lastAttemptedAt,omitempty"`
	NextAttemptAt   *time.Time             `json:"nextAttemptAt,omitempty"`
	LastError       *string                `json:"lastError,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// NotificationMessage is the append-only record of a rendered message handed
// to a provider.
type NotificationMessage struct {
	ID                int64                  `json:"id"`
	NotificationJobID string                 `json:"notificationJobId"`
	Channel           Channel                `json:"channel"`
	RenderedSubject   *string                `json:"renderedSubject,omitempty"`
	RenderedBody      string                 `json:"renderedBody"`
	Payload           map[string]interface{} `json:"payload,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
}

// MessageListing is a message row joined with its job and template group.
type MessageListing struct {
	NotificationMessage
	Recipient   string      `json:"recipient"`
	Locale      string      `json:"locale"`
	TemplateKey string      `json:"templateKey"`
	MessageType MessageType `json:"messageType"`
}

// DeliveryStats counts jobs by outcome.
type DeliveryStats struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`
}

type DailyStats struct {
	Date     string                    `json:"date"`
	Overall  DeliveryStats             `json:"overall"`
	Channels map[Channel]DeliveryStats `json:"channels"`
}

// DeliveryEvent describes one executor attempt. It is emitted to the audit
// index and never read back by the engine.
type DeliveryEvent struct {
	JobID           string          `json:"jobId"`
	TemplateKey     string          `json:"templateKey,omitempty"`
	Channel         Channel         `json:"channel"`
	Service         string          `json:"service,omitempty"`
	Region          string          `json:"region,omitempty"`
	Attempt         int             `json:"attempt"`
	Status          JobStatus       `json:"status"`
	RoutingRuleID   int64           `json:"routingRuleId,omitempty"`
	SenderProfileID int64           `json:"senderProfileId,omitempty"`
	EndpointID      int64           `json:"endpointId,omitempty"`
	Provider        ServiceProvider `json:"provider,omitempty"`
	Error           string          `json:"error,omitempty"`
	Timestamp       time.Time       `json:"@timestamp"`
}
