package report

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// EmailConfig holds SES delivery settings.
type EmailConfig struct {
	Region     string
	AccessKey  string
	SecretKey  string
	From       string
	Recipients []string
	Timeout    time.Duration
}

// EmailSender delivers reports through AWS SES v2.
type EmailSender struct {
	client     *sesv2.Client
	from       string
	recipients []string
	timeout    time.Duration
}

// NewEmailSender creates the SES client. Static credentials are used when
// provided; otherwise the default chain applies.
func NewEmailSender(ctx context.Context, cfg EmailConfig) (*EmailSender, error) {
	if cfg.From == "" || len(cfg.Recipients) == 0 {
		return nil, fmt.Errorf("report: from address and recipients are required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &EmailSender{
		client:     sesv2.NewFromConfig(awsCfg),
		from:       cfg.From,
		recipients: cfg.Recipients,
		timeout:    cfg.Timeout,
	}, nil
}

// Send delivers one plain-text email to all configured recipients.
func (e *EmailSender) Send(ctx context.Context, subject, body string) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	_, err := e.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(e.from),
		Destination: &types.Destination{
			ToAddresses: e.recipients,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
