package config

import (
	"strings"
	"testing"
	"time"
)

func valid() Config {
	c := Default()
	c.MySQL.Schemas = []string{"shop"}
	return c
}

func TestValidate_DefaultsWithSchema(t *testing.T) {
	if err := valid().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no schemas", func(c *Config) { c.MySQL.Schemas = nil }, "mysql.schemas"},
		{"bad addr", func(c *Config) { c.MySQL.Addr = "localhost" }, "mysql.addr"},
		{"zero server id", func(c *Config) { c.MySQL.ServerID = 0 }, "mysql.server_id"},
		{"bad flavor", func(c *Config) { c.MySQL.Flavor = "percona" }, "mysql.flavor"},
		{"unqualified table", func(c *Config) { c.MySQL.Tables = []string{"orders"} }, "mysql.tables"},
		{"unqualified pk override", func(c *Config) { c.MySQL.PrimaryKeys = []PrimaryKeyOverride{{Table: "orders", Column: "id"}} }, "mysql.primary_keys"},
		{"empty pk column", func(c *Config) {
			c.MySQL.PrimaryKeys = []PrimaryKeyOverride{{Table: "shop.orders"}}
		}, "mysql.primary_keys[0].column"},
		{"unknown engine", func(c *Config) { c.Sink.Engine = "solr" }, "sink.engine"},
		{"missing url", func(c *Config) { c.Sink.URL = "" }, "sink.url"},
		{"typesense without key", func(c *Config) { c.Sink.Engine = "typesense" }, "sink.api_key"},
		{"zero max count", func(c *Config) { c.Batch.MaxCount = 0 }, "batch.max_count"},
		{"negative max bytes", func(c *Config) { c.Batch.MaxBytes = -1 }, "batch.max_bytes"},
		{"zero interval", func(c *Config) { c.Batch.MaxInterval = 0 }, "batch.max_interval"},
		{"unknown backend", func(c *Config) { c.Checkpoint.Backend = "redis" }, "checkpoint.backend"},
		{"postgres without url", func(c *Config) { c.Checkpoint.Backend = "postgres" }, "checkpoint.database_url"},
		{"smtp without recipients", func(c *Config) { c.Notify.SMTP.Host = "mail"; c.Notify.SMTP.From = "a@b" }, "notify.smtp.to"},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown_timeout"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad exporter", func(c *Config) { c.OTel.Exporter = "jaeger" }, "otel.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_StdoutNeedsNoURL(t *testing.T) {
	c := valid()
	c.Sink.Engine = "stdout"
	c.Sink.URL = ""
	c.Sink.Timeout = 0
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	c := valid()
	c.Batch.MaxCount = 0
	c.Batch.MaxInterval = -time.Second
	err := c.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "batch.max_count") || !strings.Contains(err.Error(), "batch.max_interval") {
		t.Errorf("expected both batch errors, got %q", err)
	}
}
