package notify_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tender-alerts/internal/config"
	"tender-alerts/internal/notify"
)

func TestNewSender_PrefersSendGrid(t *testing.T) {
	cfg := &config.Config{
		SendGridAPIKey: "SG.test-key",
		EmailFrom:      "alerts@example.com",
	}

	sender, err := notify.NewSender(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, sender)
}

func TestNewSender_FallsBackToSMTP(t *testing.T) {
	cfg := &config.Config{
		EmailFrom:    "alerts@example.com",
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
		SMTPUser:     "mailer",
		SMTPPassword: "secret",
	}

	sender, err := notify.NewSender(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, sender)
}

func TestNewSender_FailsWithoutAnyTransport(t *testing.T) {
	cfg := &config.Config{
		EmailFrom: "alerts@example.com",
		SMTPHost:  "smtp.example.com", // user/pass missing
	}

	_, err := notify.NewSender(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable mail transport")
}

func TestDeliveryError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &notify.DeliveryError{
		Recipient: "a@example.com",
		Provider:  "smtp",
		Err:       cause,
	}

	assert.Contains(t, err.Error(), "a@example.com")
	assert.Contains(t, err.Error(), "smtp")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

func TestDeliveryError_WithProviderDetail(t *testing.T) {
	err := &notify.DeliveryError{
		Recipient: "a@example.com",
		Provider:  "sendgrid",
		Detail:    "status 429: too many requests",
	}

	assert.Contains(t, err.Error(), "status 429")
}
