package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/florinutz/binsync/internal/backoff"
	"github.com/florinutz/binsync/metrics"
	"github.com/florinutz/binsync/syncerr"
)

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = 1 * time.Second
	defaultBackoffCap  = 10 * time.Second
	defaultTimeout     = 10 * time.Second
	userAgent          = "binsync/1.0"
)

// Webhook posts alerts as JSON to an HTTP endpoint.
type Webhook struct {
	url         string
	headers     map[string]string
	signingKey  string
	maxRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration
	client      *http.Client
	logger      *slog.Logger
}

// WebhookConfig configures a Webhook notifier. Zero durations and retry
// counts take defaults.
type WebhookConfig struct {
	URL         string
	Headers     map[string]string
	SigningKey  string
	MaxRetries  int
	Timeout     time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

type alertPayload struct {
	Text   string    `json:"text"`
	Source string    `json:"source"`
	SentAt time.Time `json:"sent_at"`
}

func NewWebhook(cfg WebhookConfig, logger *slog.Logger) *Webhook {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:         cfg.URL,
		headers:     cfg.Headers,
		signingKey:  cfg.SigningKey,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		backoffCap:  cfg.BackoffCap,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      logger.With("notifier", "webhook"),
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Notify posts msg, retrying network errors, 5xx and 429 with jittered
// backoff. Other 4xx responses fail immediately.
func (w *Webhook) Notify(ctx context.Context, msg string) error {
	body, err := json.Marshal(alertPayload{Text: msg, Source: "binsync", SentAt: time.Now().UTC()})
	if err != nil {
		return &syncerr.NotifyError{Notifier: w.Name(), Err: fmt.Errorf("marshal alert: %w", err)}
	}

	var lastErr error
	for attempt := range w.maxRetries {
		if attempt > 0 {
			metrics.WebhookRetries.Inc()
			wait := backoff.Jitter(attempt, w.backoffBase, w.backoffCap)
			w.logger.Info("retrying alert delivery", "attempt", attempt+1, "backoff", wait)
			if err := backoff.Sleep(ctx, wait); err != nil {
				return &syncerr.NotifyError{Notifier: w.Name(), Err: err}
			}
		}

		status, err := w.post(ctx, body)
		if err != nil {
			lastErr = err
			w.logger.Warn("alert request failed", "attempt", attempt+1, "error", err)
			continue
		}
		if status >= 200 && status < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook %s returned %d", w.url, status)
		if status != http.StatusTooManyRequests && status < 500 {
			break
		}
	}
	return &syncerr.NotifyError{Notifier: w.Name(), Err: lastErr}
}

func (w *Webhook) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	if w.signingKey != "" {
		mac := hmac.New(sha256.New, []byte(w.signingKey))
		mac.Write(body)
		req.Header.Set("X-Binsync-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
