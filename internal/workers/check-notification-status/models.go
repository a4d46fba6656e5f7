package checknotificationstatus

import "pulse-server/internal/models"

// Input is usually the queuedJobIds output of send-notification.
type Input struct {
	JobIDs []string `json:"queuedJobIds"`
}

type JobState struct {
	JobID     string           `json:"jobId"`
	Channel   models.Channel   `json:"channel"`
	Status    models.JobStatus `json:"status"`
	Attempt   int              `json:"attempt"`
	LastError *string          `json:"lastError,omitempty"`
}

// Output lets a process loop on allSettled and branch on anyFailed.
type Output struct {
	Jobs       []JobState `json:"notificationJobs"`
	AllSettled bool       `json:"allSettled"`
	AnyFailed  bool       `json:"anyFailed"`
	Sent       int        `json:"sentCount"`
}

func settled(s models.JobStatus) bool {
	return s == models.JobStatusSent || s == models.JobStatusPermanentlyFailed
}
