// internal/models/enums.go
package models

// Channel is a delivery channel. The set is closed: every switch over a
// Channel in this module is paired with a compile-time length assertion on
// Channels so adding a value breaks the build until it is handled.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
)

// Channels lists every supported channel. It is an array so its length is a
// compile-time constant.
var Channels = [...]Channel{ChannelEmail, ChannelSMS, ChannelPush}

// ChannelCount is the number of channels handled by exhaustive switches.
const ChannelCount = len(Channels)

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

type MessageType string

const (
	MessageTypeOTP           MessageType = "OTP"
	MessageTypeTransactional MessageType = "TRANSACTIONAL"
	MessageTypePromotional   MessageType = "PROMOTIONAL"
)

func (m MessageType) Valid() bool {
	switch m {
	case MessageTypeOTP, MessageTypeTransactional, MessageTypePromotional:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a NotificationJob.
type JobStatus string

const (
	JobStatusPending           JobStatus = "PENDING"
	JobStatusProcessing        JobStatus = "PROCESSING"
	JobStatusSent              JobStatus = "SENT"
	JobStatusFailed            JobStatus = "FAILED"
	JobStatusPermanentlyFailed JobStatus = "PERMANENTLY_FAILED"
)

// Terminal reports whether no further attempt will be made.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSent || s == JobStatusPermanentlyFailed
}

// ServiceProvider identifies the gateway behind a sender endpoint.
type ServiceProvider string

const (
	ProviderAWSSES   ServiceProvider = "AWS_SES"
	ProviderAWSSNS   ServiceProvider = "AWS_SNS"
	ProviderSMTP     ServiceProvider = "SMTP"
	ProviderFirebase ServiceProvider = "FIREBASE"
	ProviderSendGrid ServiceProvider = "SENDGRID"
	ProviderTwilio   ServiceProvider = "TWILIO"
	ProviderDev      ServiceProvider = "DEV"
)

func (p ServiceProvider) Valid() bool {
	switch p {
	case ProviderAWSSES, ProviderAWSSNS, ProviderSMTP, ProviderFirebase, ProviderSendGrid, ProviderTwilio, ProviderDev:
		return true
	}
	return false
}

const (
	// DefaultLocale is the fallback locale used when a requested locale has
	// no active variant.
	DefaultLocale = "en-ZZ"

	// UnknownRegion is used when no region can be derived for a recipient.
	UnknownRegion = "ZZ"

	// DefaultService is the routing service name for jobs created without one.
	DefaultService = "default"

	// MaxAttempts bounds the number of provider calls made for a single job.
	MaxAttempts = 5
)
