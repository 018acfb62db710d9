package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"
)

var knownEngines = []string{"elasticsearch", "opensearch", "typesense", "meilisearch", "stdout"}

// Validate performs structural validation on the config without touching
// the network.
func (c Config) Validate() error {
	var errs []string

	checkDur := func(path string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be > 0", path))
		}
	}

	// --- Top-level ---
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("unknown log_format %q (expected text or json)", c.LogFormat))
	}
	checkDur("shutdown_timeout", c.ShutdownTimeout)

	// --- MySQL ---
	if _, _, err := net.SplitHostPort(c.MySQL.Addr); err != nil {
		errs = append(errs, fmt.Sprintf("mysql.addr %q: %v", c.MySQL.Addr, err))
	}
	if c.MySQL.User == "" {
		errs = append(errs, "mysql.user is required")
	}
	if c.MySQL.ServerID == 0 {
		errs = append(errs, "mysql.server_id must be > 0")
	}
	if c.MySQL.Flavor != "mysql" && c.MySQL.Flavor != "mariadb" {
		errs = append(errs, fmt.Sprintf("unknown mysql.flavor %q (expected mysql or mariadb)", c.MySQL.Flavor))
	}
	if len(c.MySQL.Schemas) == 0 {
		errs = append(errs, "mysql.schemas: at least one schema is required")
	}
	for _, t := range c.MySQL.Tables {
		if !qualified(t) {
			errs = append(errs, fmt.Sprintf("mysql.tables entry %q must be schema.table", t))
		}
	}
	for i, o := range c.MySQL.PrimaryKeys {
		if !qualified(o.Table) {
			errs = append(errs, fmt.Sprintf("mysql.primary_keys[%d].table %q must be schema.table", i, o.Table))
		}
		if o.Column == "" {
			errs = append(errs, fmt.Sprintf("mysql.primary_keys[%d].column is empty", i))
		}
	}

	// --- Sink ---
	if !slices.Contains(knownEngines, c.Sink.Engine) {
		errs = append(errs, fmt.Sprintf("unknown sink.engine %q", c.Sink.Engine))
	}
	if c.Sink.Engine != "stdout" {
		if c.Sink.URL == "" {
			errs = append(errs, "sink.url is required")
		}
		checkDur("sink.timeout", c.Sink.Timeout)
		checkDur("sink.backoff_base", c.Sink.BackoffBase)
		checkDur("sink.backoff_cap", c.Sink.BackoffCap)
		if c.Sink.RateLimit < 0 {
			errs = append(errs, "sink.rate_limit must not be negative")
		}
		if c.Sink.MaxRetries < 0 {
			errs = append(errs, "sink.max_retries must be >= 0")
		}
	}
	if (c.Sink.Engine == "typesense" || c.Sink.Engine == "meilisearch") && c.Sink.APIKey == "" {
		errs = append(errs, fmt.Sprintf("sink.api_key is required for %s", c.Sink.Engine))
	}

	// --- Batch ---
	if c.Batch.MaxCount < 1 {
		errs = append(errs, "batch.max_count must be >= 1")
	}
	if c.Batch.MaxBytes < 0 {
		errs = append(errs, "batch.max_bytes must be >= 0")
	}
	checkDur("batch.max_interval", c.Batch.MaxInterval)

	// --- Checkpoint ---
	switch c.Checkpoint.Backend {
	case "file":
		if c.Checkpoint.Path == "" {
			errs = append(errs, "checkpoint.path is required for the file backend")
		}
	case "postgres":
		if c.Checkpoint.DatabaseURL == "" {
			errs = append(errs, "checkpoint.database_url is required for the postgres backend")
		}
		if c.Checkpoint.Name == "" {
			errs = append(errs, "checkpoint.name is required for the postgres backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown checkpoint.backend %q (expected file or postgres)", c.Checkpoint.Backend))
	}

	// --- Notify ---
	if s := c.Notify.SMTP; s.Host != "" {
		if s.From == "" {
			errs = append(errs, "notify.smtp.from is required")
		}
		if len(s.To) == 0 {
			errs = append(errs, "notify.smtp.to: at least one recipient is required")
		}
		if s.Port <= 0 || s.Port > 65535 {
			errs = append(errs, fmt.Sprintf("notify.smtp.port %d out of range", s.Port))
		}
		checkDur("notify.smtp.timeout", s.Timeout)
	}
	if w := c.Notify.Webhook; w.URL != "" {
		checkDur("notify.webhook.timeout", w.Timeout)
		checkDur("notify.webhook.backoff_base", w.BackoffBase)
		checkDur("notify.webhook.backoff_cap", w.BackoffCap)
	}

	// --- OTel ---
	if !slices.Contains([]string{"", "none", "stdout", "otlp"}, c.OTel.Exporter) {
		errs = append(errs, fmt.Sprintf("unknown otel.exporter %q", c.OTel.Exporter))
	}
	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		errs = append(errs, "otel.sample_ratio must be within [0, 1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation: %s", strings.Join(errs, "; "))
	}
	return nil
}

func qualified(name string) bool {
	schema, table, ok := strings.Cut(name, ".")
	return ok && schema != "" && table != ""
}
