package notify

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/graaaaa/raidlog-companion/internal/appinfo"
	"github.com/graaaaa/raidlog-companion/internal/config"
	"github.com/graaaaa/raidlog-companion/internal/version"
)

// SendResult indicates the outcome of a send attempt.
type SendResult int

const (
	// SendOK indicates successful delivery.
	SendOK SendResult = iota
	// SendRetryable indicates a transient error (429, 5xx, network).
	SendRetryable
	// SendFatal indicates an error retrying cannot fix (deleted or
	// malformed webhook); the pending raids are dropped.
	SendFatal
)

// Sender abstracts webhook delivery.
type Sender interface {
	// Send posts one batch of raid embeds and returns the result plus any
	// server-requested retry delay.
	Send(ctx context.Context, payload DiscordPayload) (SendResult, time.Duration)
}

// DiscordSender posts raid summaries to a Discord webhook.
type DiscordSender struct {
	webhookURL config.Secret
	client     *http.Client
	logger     *slog.Logger
}

// SenderOption configures a DiscordSender.
type SenderOption func(*DiscordSender)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) SenderOption {
	return func(s *DiscordSender) { s.client = client }
}

// WithSenderLogger sets the logger.
func WithSenderLogger(logger *slog.Logger) SenderOption {
	return func(s *DiscordSender) { s.logger = logger }
}

// NewDiscordSender creates a Discord sender. The URL stays redacted in
// logs.
func NewDiscordSender(webhookURL config.Secret, opts ...SenderOption) *DiscordSender {
	s := &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send implements Sender. Each embed in payload is one archived raid.
func (s *DiscordSender) Send(ctx context.Context, payload DiscordPayload) (SendResult, time.Duration) {
	raids := len(payload.Embeds)
	if s.webhookURL.IsEmpty() {
		s.logger.Warn("raid summary dropped, discord webhook not configured", "raids", raids)
		return SendFatal, 0
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("encode raid summary", "raids", raids, "error", err)
		return SendFatal, 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL.Value(), bytes.NewReader(body))
	if err != nil {
		s.logger.Error("build raid summary request", "webhook_url", s.webhookURL, "error", err)
		return SendFatal, 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", appinfo.DirName+"/"+version.String())

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("raid summary post failed", "raids", raids, "error", err)
		return SendRetryable, 0
	}
	defer resp.Body.Close()

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		s.logger.Debug("raid summary delivered", "status", code, "raids", raids)
		return SendOK, 0
	case code == http.StatusTooManyRequests:
		retryAfter := rateLimitDelay(resp)
		s.logger.Warn("discord rate limited raid summary", "raids", raids, "retry_after", retryAfter)
		return SendRetryable, retryAfter
	case code >= 400 && code < 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		s.logger.Error("discord webhook rejected raid summary", "status", code, "raids", raids, "webhook_url", s.webhookURL)
		return SendFatal, 0
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		s.logger.Warn("discord server error, raid summary kept", "status", code, "raids", raids)
		return SendRetryable, 0
	}
}

// rateLimitDelay prefers the Retry-After header and falls back to the
// retry_after field Discord puts in 429 bodies.
func rateLimitDelay(resp *http.Response) time.Duration {
	if d := parseRetryAfter(resp.Header.Get("Retry-After")); d > 0 {
		return d
	}
	var body struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&body); err != nil || body.RetryAfter <= 0 {
		return 0
	}
	return time.Duration(body.RetryAfter * float64(time.Second))
}

// parseRetryAfter accepts whole or fractional seconds.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
