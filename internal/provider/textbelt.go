package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrRejected = errors.New("provider_rejected")

type TextBeltOptions struct {
	URL    string
	APIKey string
	// ReplyWebhookURL asks TextBelt to POST replies to our webhook.
	ReplyWebhookURL string
	Timeout         time.Duration
}

// TextBelt sends through the TextBelt HTTP API.
type TextBelt struct {
	opt    TextBeltOptions
	client *http.Client
}

func NewTextBelt(opt TextBeltOptions) *TextBelt {
	if opt.URL == "" {
		opt.URL = "https://textbelt.com/text"
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Second
	}
	return &TextBelt{opt: opt, client: &http.Client{Timeout: opt.Timeout}}
}

type textBeltResponse struct {
	Success        bool   `json:"success"`
	TextID         string `json:"textId"`
	QuotaRemaining int    `json:"quotaRemaining"`
	Error          string `json:"error"`
}

func (t *TextBelt) Send(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("phone", to)
	form.Set("message", body)
	form.Set("key", t.opt.APIKey)
	if t.opt.ReplyWebhookURL != "" {
		form.Set("replyWebhookUrl", t.opt.ReplyWebhookURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opt.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("textbelt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("textbelt send: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("textbelt read: %w", err)
	}
	var out textBeltResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("textbelt decode (status %d): %w", res.StatusCode, err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "unknown error"
		}
		return "", fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return out.TextID, nil
}
