// Package aws builds the SES and SNS clients used by the email and SMS
// providers.
package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

func LoadConfig(ctx context.Context, region string) (awssdk.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return awssdk.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

type SESClient struct {
	client           *ses.Client
	configurationSet string
}

func NewSESClient(cfg awssdk.Config, configurationSet string) *SESClient {
	return &SESClient{client: ses.NewFromConfig(cfg), configurationSet: configurationSet}
}

// SendEmail sends through SES, tagging the message with the configured
// configuration set when the caller did not choose one.
func (s *SESClient) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	if input.ConfigurationSetName == nil && s.configurationSet != "" {
		input.ConfigurationSetName = awssdk.String(s.configurationSet)
	}
	return s.client.SendEmail(ctx, input)
}

type SNSClient struct {
	client  *sns.Client
	smsType string
}

func NewSNSClient(cfg awssdk.Config, smsType string) *SNSClient {
	return &SNSClient{client: sns.NewFromConfig(cfg), smsType: smsType}
}

func (s *SNSClient) SMSType() string {
	return s.smsType
}

func (s *SNSClient) Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	return s.client.Publish(ctx, input)
}
