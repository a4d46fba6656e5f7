package provider

import (
	"context"
	"errors"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
)

// SESService is the part of the SES client the email sender needs.
type SESService interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// SNSService is the part of the SNS client the SMS sender needs.
type SNSService interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
	SMSType() string
}

var retriableAWSCodes = map[string]bool{
	"Throttling":                   true,
	"ThrottlingException":          true,
	"ThrottledException":           true,
	"ServiceUnavailable":           true,
	"InternalFailure":              true,
	"InternalError":                true,
	"RequestTimeout":               true,
	"KMSThrottlingException":       true,
	"EndpointDisabled":             false,
	"MessageRejected":              false,
	"InvalidParameter":             false,
	"InvalidParameterValue":        false,
	"OptedOut":                     false,
	"AuthorizationError":           false,
	"MailFromDomainNotVerified":    false,
	"ConfigurationSetDoesNotExist": false,
}

// classifyAWS maps an SDK error to a Result. Errors without an API code are
// transport failures and are retried.
func classifyAWS(service string, err error) Result {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return failed(true, "%s: %v", service, err)
	}
	code := strings.TrimSuffix(apiErr.ErrorCode(), "Exception")
	retriable, known := retriableAWSCodes[code]
	if !known {
		retriable, known = retriableAWSCodes[apiErr.ErrorCode()]
	}
	if !known {
		retriable = apiErr.ErrorFault() == smithy.FaultServer
	}
	return failed(retriable, "%s %s: %s", service, apiErr.ErrorCode(), apiErr.ErrorMessage())
}

type SESSender struct {
	client SESService
}

func NewSESSender(client SESService) *SESSender {
	return &SESSender{client: client}
}

func (s *SESSender) SendEmail(ctx context.Context, msg EmailMessage) Result {
	utf8 := awssdk.String("UTF-8")
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      awssdk.String(msg.From.String()),
		Destination: &sestypes.Destination{ToAddresses: []string{msg.To.String()}},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: awssdk.String(msg.Subject), Charset: utf8},
			Body: &sestypes.Body{
				Html: &sestypes.Content{Data: awssdk.String(msg.Body), Charset: utf8},
			},
		},
		Tags: []sestypes.MessageTag{{Name: awssdk.String("job_id"), Value: awssdk.String(msg.JobID)}},
	})
	if err != nil {
		return classifyAWS("ses", err)
	}
	return succeeded()
}

type SNSSender struct {
	client SNSService
}

func NewSNSSender(client SNSService) *SNSSender {
	return &SNSSender{client: client}
}

// SendSMS publishes directly to the phone number. An endpoint identifier
// starting with "+" is an origination number; anything else is a sender ID.
func (s *SNSSender) SendSMS(ctx context.Context, msg SMSMessage) Result {
	attrs := map[string]snstypes.MessageAttributeValue{}
	if smsType := s.client.SMSType(); smsType != "" {
		attrs["AWS.SNS.SMS.SMSType"] = snstypes.MessageAttributeValue{DataType: awssdk.String("String"), StringValue: awssdk.String(smsType)}
	}
	if msg.From != "" {
		key := "AWS.SNS.SMS.SenderID"
		if strings.HasPrefix(msg.From, "+") {
			key = "AWS.MM.SMS.OriginationNumber"
		}
		attrs[key] = snstypes.MessageAttributeValue{DataType: awssdk.String("String"), StringValue: awssdk.String(msg.From)}
	}

	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       awssdk.String(msg.To),
		Message:           awssdk.String(msg.Body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return classifyAWS("sns", err)
	}
	return succeeded()
}
