package integrations

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAdapter probes and uses AWS SES v2 for the email channel.
type SESAdapter struct {
	client    *sesv2.Client
	fromEmail string
	fromName  string
}

// SESConfig holds AWS SES credentials and sender identity.
type SESConfig struct {
	Region    string
	AccessKey string
	SecretKey string
	FromEmail string
	FromName  string
}

// NewSESAdapter creates an SES adapter. Static credentials are used when
// provided; otherwise the default AWS credential chain applies.
func NewSESAdapter(ctx context.Context, cfg SESConfig) (*SESAdapter, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SESAdapter{
		client:    sesv2.NewFromConfig(awsCfg),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}, nil
}

// Name implements Adapter.
func (a *SESAdapter) Name() string { return NameEmail }

// GetStatus checks account-level sending health. SES has no per-tenant
// sub-identity in this deployment, so every tenant shares the account probe.
func (a *SESAdapter) GetStatus(ctx context.Context, tenantID string) StatusResult {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := a.client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return failure(fmt.Errorf("ses account probe: %w", err))
	}

	if !out.SendingEnabled {
		return StatusResult{OK: true, Active: false, Details: "account sending disabled"}
	}
	details := "sending enabled"
	if out.EnforcementStatus != nil {
		details = fmt.Sprintf("sending enabled, enforcement %s", *out.EnforcementStatus)
	}
	return StatusResult{OK: true, Active: true, Details: details}
}

// SendEmail sends a plain-text email via SES.
func (a *SESAdapter) SendEmail(ctx context.Context, to, subject, content string) (SendResult, error) {
	from := a.fromEmail
	if a.fromName != "" {
		from = fmt.Sprintf("%s <%s>", a.fromName, a.fromEmail)
	}

	out, err := a.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(content)},
				},
			},
		},
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("ses send: %w", err)
	}

	id := ""
	if out.MessageId != nil {
		id = *out.MessageId
	}
	return SendResult{Success: true, ID: id}, nil
}
