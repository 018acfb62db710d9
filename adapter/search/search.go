package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/florinutz/binsync/event"
	"github.com/florinutz/binsync/internal/backoff"
	"github.com/florinutz/binsync/metrics"
	"github.com/florinutz/binsync/syncerr"
	"github.com/florinutz/binsync/tracing"
	"golang.org/x/time/rate"
)

// Engines understood by New.
const (
	Elasticsearch = "elasticsearch"
	OpenSearch    = "opensearch"
	Typesense     = "typesense"
	Meilisearch   = "meilisearch"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultBackoffBase = 1 * time.Second
	defaultBackoffCap  = 30 * time.Second
	maxErrorBody       = 4 << 10
)

// Config describes the search backend.
type Config struct {
	Engine      string
	URL         string
	Username    string // basic auth (elasticsearch/opensearch)
	Password    string
	APIKey      string
	DocTypes    bool // send _type in bulk metadata (elasticsearch < 7)
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// RequestsPerSecond caps outgoing requests, retries included. Zero
	// means unlimited.
	RequestsPerSecond float64
	Burst             int
}

// Sink commits batches to a search engine over HTTP. Every engine receives
// the batch's operations in order; consecutive operations with the same
// action and target are sent as one request.
type Sink struct {
	cfg     Config
	url     string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a search sink. The engine must be one of elasticsearch,
// opensearch, typesense or meilisearch.
func New(cfg Config, logger *slog.Logger) (*Sink, error) {
	switch cfg.Engine {
	case Elasticsearch, OpenSearch, Typesense, Meilisearch:
	default:
		return nil, fmt.Errorf("unsupported search engine %q", cfg.Engine)
	}
	if cfg.URL == "" {
		return nil, errors.New("search: url is required")
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
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		cfg:    cfg,
		url:    strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("sink", cfg.Engine),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := max(cfg.Burst, 1)
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return s, nil
}

func (s *Sink) Name() string { return s.cfg.Engine }

// Validate probes the engine's health endpoint.
func (s *Sink) Validate(ctx context.Context) error {
	path := "/health"
	if s.elastic() {
		path = "/"
	}
	if _, err := s.do(ctx, http.MethodGet, s.url+path, "", nil); err != nil {
		return fmt.Errorf("%s health check: %w", s.cfg.Engine, err)
	}
	return nil
}

// Commit sends the batch. Any rejected operation fails the whole commit.
func (s *Sink) Commit(ctx context.Context, b event.Batch) error {
	if len(b) == 0 {
		return nil
	}

	var err error
	if s.elastic() {
		err = s.commitBulk(ctx, b)
	} else {
		for _, run := range runs(b) {
			if s.cfg.Engine == Typesense {
				err = s.commitTypesense(ctx, run)
			} else {
				err = s.commitMeilisearch(ctx, run)
			}
			if err != nil {
				break
			}
		}
	}
	if err == nil {
		return nil
	}

	ce := &syncerr.SinkCommitError{Sink: s.cfg.Engine, Ops: len(b), Err: err}
	var se *statusError
	if errors.As(err, &se) {
		ce.StatusCode = se.code
	}
	return ce
}

func (s *Sink) elastic() bool {
	return s.cfg.Engine == Elasticsearch || s.cfg.Engine == OpenSearch
}

// target is the index or collection an operation is written to. Typeless
// engines get one target per table.
func (s *Sink) target(op event.Operation) string {
	if s.elastic() && s.cfg.DocTypes {
		return op.Index
	}
	return op.Index + "_" + op.DocType
}

// runs splits a batch into maximal runs of consecutive operations sharing
// action, index and doc type.
func runs(b event.Batch) []event.Batch {
	var out []event.Batch
	start := 0
	for i := 1; i <= len(b); i++ {
		if i == len(b) || b[i].Action != b[start].Action || b[i].Index != b[start].Index || b[i].DocType != b[start].DocType {
			out = append(out, b[start:i])
			start = i
		}
	}
	return out
}

// withID returns a copy of the document body carrying the operation id in
// the "id" field, which typesense and meilisearch use as document key. A
// non-null "id" column holding anything else is refused rather than
// overwritten.
func withID(op event.Operation) (event.Row, error) {
	doc := op.Body.Clone()
	if doc == nil {
		doc = event.Row{}
	}
	if v, ok := doc["id"]; ok && !v.IsNull() && v.String() != op.ID {
		return nil, fmt.Errorf("document %s/%s/%s: column id holds %q but the document key is %q; "+
			"key the table by id via mysql.primary_keys or list id in policy.exclude", op.Index, op.DocType, op.ID, v.String(), op.ID)
	}
	doc["id"] = event.StringValue(op.ID)
	return doc, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("status %d", e.code)
	}
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// do performs one logical request with retries on transport errors, 5xx and
// 429. It returns the body of the first 2xx response.
func (s *Sink) do(ctx context.Context, method, url, contentType string, body []byte) ([]byte, error) {
	var out []byte
	err := backoff.Retry(ctx, s.cfg.MaxRetries+1, s.cfg.BackoffBase, s.cfg.BackoffCap, retryable,
		func(attempt int) error {
			if attempt > 0 {
				metrics.SinkRetries.WithLabelValues(s.cfg.Engine).Inc()
				s.logger.WarnContext(ctx, "retrying search request", "method", method, "url", url, "attempt", attempt)
			}
			var err error
			out, err = s.once(ctx, method, url, contentType, body)
			return err
		})
	return out, err
}

// throttle blocks until the rate limit admits one more request.
func (s *Sink) throttle(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	start := time.Now()
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.SinkThrottled.WithLabelValues(s.cfg.Engine).Observe(waited.Seconds())
	}
	return nil
}

func (s *Sink) once(ctx context.Context, method, url, contentType string, body []byte) ([]byte, error) {
	if err := s.throttle(ctx); err != nil {
		return nil, err
	}
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	tracing.InjectHTTP(ctx, req.Header)
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

func (s *Sink) authorize(req *http.Request) {
	switch {
	case s.cfg.Engine == Typesense:
		req.Header.Set("X-TYPESENSE-API-KEY", s.cfg.APIKey)
	case s.cfg.Engine == Meilisearch:
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	case s.cfg.APIKey != "":
		req.Header.Set("Authorization", "ApiKey "+s.cfg.APIKey)
	case s.cfg.Username != "":
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}
}
