package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/florinutz/binsync/syncerr"
)

func fastWebhook(url string, retries int) *Webhook {
	return NewWebhook(WebhookConfig{
		URL:         url,
		MaxRetries:  retries,
		BackoffBase: time.Millisecond,
		BackoffCap:  time.Millisecond,
		Timeout:     2 * time.Second,
	}, nil)
}

func TestWebhook_Delivers(t *testing.T) {
	var got alertPayload
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(WebhookConfig{URL: srv.URL, Headers: map[string]string{"X-Team": "search"}}, nil)
	if err := w.Notify(context.Background(), "sink elasticsearch: boom"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got.Text != "sink elasticsearch: boom" || got.Source != "binsync" {
		t.Errorf("payload = %+v", got)
	}
	if headers.Get("Content-Type") != "application/json" {
		t.Errorf("content-type = %q", headers.Get("Content-Type"))
	}
	if headers.Get("X-Team") != "search" {
		t.Errorf("custom header missing: %v", headers)
	}
	if headers.Get("X-Binsync-Signature") != "" {
		t.Error("unexpected signature without signing key")
	}
}

func TestWebhook_Signature(t *testing.T) {
	const key = "s3cret"
	var body []byte
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		sig = r.Header.Get("X-Binsync-Signature")
	}))
	defer srv.Close()

	w := NewWebhook(WebhookConfig{URL: srv.URL, SigningKey: key}, nil)
	if err := w.Notify(context.Background(), "msg"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if sig != want {
		t.Errorf("signature = %q, want %q", sig, want)
	}
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := fastWebhook(srv.URL, 3).Notify(context.Background(), "msg"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := fastWebhook(srv.URL, 3).Notify(context.Background(), "msg")
	var ne *syncerr.NotifyError
	if !errors.As(err, &ne) || ne.Notifier != "webhook" {
		t.Fatalf("err = %v, want NotifyError from webhook", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestWebhook_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if err := fastWebhook(srv.URL, 2).Notify(context.Background(), "msg"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestWebhook_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := NewWebhook(WebhookConfig{URL: srv.URL, MaxRetries: 5, BackoffBase: time.Hour, BackoffCap: time.Hour}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := w.Notify(ctx, "msg")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Notify did not return promptly after cancellation")
	}
}
