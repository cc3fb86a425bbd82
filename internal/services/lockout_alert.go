package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/smartcore/vaultgate/internal/models"
	"github.com/smartcore/vaultgate/pkg/logger"
)

// LockoutNotifier alerts operators when a user reaches the lockout threshold
type LockoutNotifier interface {
	NotifyLockout(ctx context.Context, identity *models.Identity, status models.LockoutStatus, ipAddress string) error
}

// SESClient is the subset of the SES API used for alerts
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESLockoutNotifier emails lockout alerts through AWS SES
type SESLockoutNotifier struct {
	client      SESClient
	fromAddress string
	recipients  []string
	logger      *slog.Logger
}

// NewSESLockoutNotifier loads the default AWS config for region and creates a notifier
func NewSESLockoutNotifier(region, fromAddress string, recipients []string, log *slog.Logger) (*SESLockoutNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESLockoutNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, recipients, log), nil
}

// NewSESLockoutNotifierWithClient creates a notifier around an existing client
func NewSESLockoutNotifierWithClient(client SESClient, fromAddress string, recipients []string, log *slog.Logger) *SESLockoutNotifier {
	return &SESLockoutNotifier{
		client:      client,
		fromAddress: fromAddress,
		recipients:  recipients,
		logger:      log,
	}
}

// NotifyLockout sends one alert email to all recipients
func (n *SESLockoutNotifier) NotifyLockout(ctx context.Context, identity *models.Identity, status models.LockoutStatus, ipAddress string) error {
	if len(n.recipients) == 0 {
		return nil
	}

	unlockAt := time.Now().UTC().Add(status.RetryAfter).Format(time.RFC1123)
	textBody := fmt.Sprintf(`Vault lockout

The vault PIN was entered incorrectly %d times within the lockout window.

Account: %s
Source IP: %s
Further attempts are refused until %s.

If this was not you, rotate the vault PIN and review the vault audit log.
`, status.FailuresInWindow, logger.SanitizedEmail(identity.Email), ipAddress, unlockAt)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: n.recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("[SmartCore] Vault locked after repeated PIN failures"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send lockout alert: %w", err)
	}

	n.logger.Info("lockout alert sent",
		slog.String("user_id", identity.UserID),
		slog.String("recipients", strings.Join(n.recipients, ",")),
		slog.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

// NewLockoutNotifier returns an SES notifier when alerts are configured, nil otherwise
func NewLockoutNotifier(region, fromAddress string, recipients []string, log *slog.Logger) LockoutNotifier {
	if fromAddress == "" || len(recipients) == 0 {
		log.Info("lockout alerts disabled (ALERT_FROM_ADDRESS or ALERT_RECIPIENTS not set)")
		return nil
	}

	notifier, err := NewSESLockoutNotifier(region, fromAddress, recipients, log)
	if err != nil {
		log.Warn("lockout alerts disabled", slog.Any("error", err))
		return nil
	}
	return notifier
}
