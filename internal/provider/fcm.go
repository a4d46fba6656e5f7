package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	httpclient "pulse-server/internal/common/http"
)

const DefaultFCMEndpoint = "https://fcm.googleapis.com/fcm/send"

// FCMSender posts to the Firebase HTTP send endpoint using a server key.
type FCMSender struct {
	client    *httpclient.Client
	endpoint  string
	serverKey string
}

func NewFCMSender(client *httpclient.Client, endpoint, serverKey string) *FCMSender {
	if endpoint == "" {
		endpoint = DefaultFCMEndpoint
	}
	return &FCMSender{client: client, endpoint: endpoint, serverKey: serverKey}
}

type fcmRequest struct {
	To                    string            `json:"to"`
	RestrictedPackageName string            `json:"restricted_package_name,omitempty"`
	Notification          fcmNotification   `json:"notification"`
	Data                  map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		Error string `json:"error"`
	} `json:"results"`
}

// FCM result errors worth another attempt.
var retriableFCMErrors = map[string]bool{
	"Unavailable":               true,
	"InternalServerError":       true,
	"DeviceMessageRateExceeded": true,
}

func (f *FCMSender) SendPush(ctx context.Context, msg PushMessage) Result {
	req := fcmRequest{
		To:                    msg.DeviceToken,
		RestrictedPackageName: msg.AppID,
		Notification:          fcmNotification{Title: msg.Title, Body: msg.Body},
	}
	if len(msg.Payload) > 0 {
		req.Data = make(map[string]string, len(msg.Payload))
		for k, v := range msg.Payload {
			req.Data[k] = fmt.Sprint(v)
		}
	}

	resp, err := f.client.PostJSON(ctx, f.endpoint, map[string]string{"Authorization": "key=" + f.serverKey}, req)
	if err != nil {
		return failed(true, "fcm: %v", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return failed(true, "fcm status %d", resp.StatusCode)
	}
	if !resp.IsSuccess() {
		return failed(false, "fcm status %d: %s", resp.StatusCode, string(resp.Body))
	}

	var body fcmResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return failed(true, "fcm: decode response: %v", err)
	}
	if body.Failure > 0 {
		reason := "unknown"
		if len(body.Results) > 0 && body.Results[0].Error != "" {
			reason = body.Results[0].Error
		}
		return failed(retriableFCMErrors[reason], "fcm: %s", reason)
	}
	return succeeded()
}
