package sendnotification

import "pulse-server/internal/notification"

// Output is merged into the process instance variables on completion.
type Output struct {
	NotificationStatus notification.RequestStatus   `json:"notificationStatus"`
	ChannelResults     []notification.ChannelResult `json:"channelResults"`
	QueuedJobIDs       []string                     `json:"queuedJobIds"`
}

func newOutput(resp *notification.SendResponse) *Output {
	out := &Output{
		NotificationStatus: resp.Status,
		ChannelResults:     resp.ChannelResults,
		QueuedJobIDs:       []string{},
	}
	for _, r := range resp.ChannelResults {
		if r.JobID != "" {
			out.QueuedJobIDs = append(out.QueuedJobIDs, r.JobID)
		}
	}
	return out
}
