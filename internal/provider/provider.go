package provider

import (
	"context"
	"fmt"

	"github.com/Cypherspark/sms-survey/internal/config"
)

// Provider sends one SMS and returns the provider's message id.
type Provider interface {
	Send(ctx context.Context, to, body string) (providerMsgID string, err error)
}

// FromConfig builds the provider named by SMS_PROVIDER.
func FromConfig(cfg *config.Config) (Provider, error) {
	switch cfg.SMSProvider {
	case "textbelt":
		return NewTextBelt(TextBeltOptions{
			URL:             cfg.TextBeltURL,
			APIKey:          cfg.TextBeltAPIKey,
			ReplyWebhookURL: cfg.WebhookURL,
			Timeout:         cfg.SendTimeout,
		}), nil
	case "dummy", "":
		return NewDummy(), nil
	}
	return nil, fmt.Errorf("unknown SMS_PROVIDER %q", cfg.SMSProvider)
}
