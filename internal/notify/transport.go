package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"tender-alerts/internal/config"
	"tender-alerts/internal/models"
)

// Sender delivers one rendered notification job and returns the provider's
// delivery id. Failures come back as *DeliveryError; nothing is swallowed
// here — the processor decides what a failed send means.
type Sender interface {
	Send(ctx context.Context, job *models.NotificationJob) (string, error)
}

// DeliveryError is a per-recipient send failure with provider diagnostics.
type DeliveryError struct {
	Recipient string
	Provider  string
	Detail    string
	Err       error
}

func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("deliver to %s via %s failed", e.Recipient, e.Provider)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewSender picks the transport at process start: SendGrid when an API key
// is configured, plain SMTP otherwise. A missing API key is a logged
// capability downgrade; no usable transport at all is a fatal error.
func NewSender(cfg *config.Config, logger *zap.Logger) (Sender, error) {
	if cfg.SendGridAPIKey != "" {
		logger.Info("mail transport initialized", zap.String("provider", "sendgrid"))
		return &sendgridSender{
			client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
			from:   cfg.EmailFrom,
		}, nil
	}

	logger.Warn("SENDGRID_API_KEY not set, falling back to SMTP transport")

	if cfg.SMTPHost == "" || cfg.SMTPUser == "" || cfg.SMTPPassword == "" {
		return nil, fmt.Errorf("no usable mail transport: neither SendGrid API key nor full SMTP credentials configured")
	}

	logger.Info("mail transport initialized",
		zap.String("provider", "smtp"),
		zap.String("host", cfg.SMTPHost),
		zap.Int("port", cfg.SMTPPort),
	)

	return &smtpSender{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:   cfg.EmailFrom,
	}, nil
}

type sendgridSender struct {
	client *sendgrid.Client
	from   string
}

func (s *sendgridSender) Send(ctx context.Context, job *models.NotificationJob) (string, error) {
	from := mail.NewEmail("", s.from)
	to := mail.NewEmail("", job.Recipient)
	message := mail.NewSingleEmail(from, job.Subject, to, job.TextBody, job.HTMLBody)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return "", &DeliveryError{
			Recipient: job.Recipient,
			Provider:  "sendgrid",
			Err:       err,
		}
	}

	if resp.StatusCode >= 300 {
		return "", &DeliveryError{
			Recipient: job.Recipient,
			Provider:  "sendgrid",
			Detail:    fmt.Sprintf("status %d: %s", resp.StatusCode, resp.Body),
		}
	}

	deliveryID := resp.Headers["X-Message-Id"]
	if len(deliveryID) > 0 {
		return deliveryID[0], nil
	}

	return fmt.Sprintf("sendgrid-%d", time.Now().UnixNano()), nil
}

type smtpSender struct {
	dialer *gomail.Dialer
	from   string
}

func (s *smtpSender) Send(_ context.Context, job *models.NotificationJob) (string, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", job.Recipient)
	m.SetHeader("Subject", job.Subject)
	m.SetBody("text/plain", job.TextBody)
	m.AddAlternative("text/html", job.HTMLBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return "", &DeliveryError{
			Recipient: job.Recipient,
			Provider:  "smtp",
			Err:       err,
		}
	}

	return fmt.Sprintf("smtp-%d", time.Now().UnixNano()), nil
}
