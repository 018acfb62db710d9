package config

import "time"

// Config is the fully resolved binsync configuration. It is populated once by
// viper from flags, BINSYNC_* environment variables and binsync.yaml.
type Config struct {
	LogLevel        string           `mapstructure:"log_level"`
	LogFormat       string           `mapstructure:"log_format"`
	ShutdownTimeout time.Duration    `mapstructure:"shutdown_timeout"`
	MetricsAddr     string           `mapstructure:"metrics_addr"`
	MySQL           MySQLConfig      `mapstructure:"mysql"`
	Sink            SinkConfig       `mapstructure:"sink"`
	Batch           BatchConfig      `mapstructure:"batch"`
	Policy          PolicyConfig     `mapstructure:"policy"`
	Checkpoint      CheckpointConfig `mapstructure:"checkpoint"`
	Notify          NotifyConfig     `mapstructure:"notify"`
	OTel            OTelConfig       `mapstructure:"otel"`
}

type MySQLConfig struct {
	Addr        string               `mapstructure:"addr"` // host:port
	User        string               `mapstructure:"user"`
	Password    string               `mapstructure:"password"`
	ServerID    uint32               `mapstructure:"server_id"`
	Flavor      string               `mapstructure:"flavor"` // "mysql" or "mariadb"
	Schemas     []string             `mapstructure:"schemas"`
	Tables      []string             `mapstructure:"tables"` // schema.table filter
	PrimaryKeys []PrimaryKeyOverride `mapstructure:"primary_keys"`
}

// PrimaryKeyOverride names the document-id column of one table. It is a list
// entry rather than a map key because viper splits keys on dots.
type PrimaryKeyOverride struct {
	Table  string `mapstructure:"table"` // schema.table
	Column string `mapstructure:"column"`
}

// PrimaryKeyMap returns the overrides keyed by schema.table.
func (c MySQLConfig) PrimaryKeyMap() map[string]string {
	m := make(map[string]string, len(c.PrimaryKeys))
	for _, o := range c.PrimaryKeys {
		m[o.Table] = o.Column
	}
	return m
}

type SinkConfig struct {
	Engine      string        `mapstructure:"engine"` // elasticsearch, opensearch, typesense, meilisearch, stdout
	URL         string        `mapstructure:"url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	APIKey      string        `mapstructure:"api_key"`
	IndexPrefix string        `mapstructure:"index_prefix"`
	DocTypes    bool          `mapstructure:"doc_types"` // emit _type for pre-7.x clusters
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
	RateLimit   float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst   int           `mapstructure:"rate_burst"`
}

type BatchConfig struct {
	MaxCount    int           `mapstructure:"max_count"`
	MaxBytes    int           `mapstructure:"max_bytes"` // 0 disables the byte trigger
	MaxInterval time.Duration `mapstructure:"max_interval"`
}

type PolicyConfig struct {
	Exclude []string `mapstructure:"exclude"`
}

type CheckpointConfig struct {
	Backend     string `mapstructure:"backend"` // "file" or "postgres"
	Path        string `mapstructure:"path"`
	DatabaseURL string `mapstructure:"database_url"`
	Name        string `mapstructure:"name"`
}

type NotifyConfig struct {
	SMTP    SMTPConfig    `mapstructure:"smtp"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	To       []string      `mapstructure:"to"`
	Subject  string        `mapstructure:"subject"`
	StartTLS bool          `mapstructure:"starttls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type WebhookConfig struct {
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	SigningKey  string            `mapstructure:"signing_key"`
	MaxRetries  int               `mapstructure:"max_retries"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	BackoffBase time.Duration     `mapstructure:"backoff_base"`
	BackoffCap  time.Duration     `mapstructure:"backoff_cap"`
}

type OTelConfig struct {
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func Default() Config {
	return Config{
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 10 * time.Second,
		MySQL: MySQLConfig{
			Addr:     "127.0.0.1:3306",
			User:     "root",
			ServerID: 1001,
			Flavor:   "mysql",
		},
		Sink: SinkConfig{
			Engine:      "elasticsearch",
			URL:         "http://127.0.0.1:9200",
			Timeout:     30 * time.Second,
			MaxRetries:  3,
			BackoffBase: 1 * time.Second,
			BackoffCap:  30 * time.Second,
		},
		Batch: BatchConfig{
			MaxCount:    500,
			MaxBytes:    5 * 1024 * 1024, // 5 MB
			MaxInterval: 1 * time.Second,
		},
		Checkpoint: CheckpointConfig{
			Backend: "file",
			Path:    "binlog.mark",
			Name:    "default",
		},
		Notify: NotifyConfig{
			SMTP: SMTPConfig{
				Port:     587,
				Subject:  "Binlog Sync Exception",
				StartTLS: true,
				Timeout:  10 * time.Second,
			},
			Webhook: WebhookConfig{
				Headers:     map[string]string{},
				MaxRetries:  3,
				Timeout:     10 * time.Second,
				BackoffBase: 1 * time.Second,
				BackoffCap:  10 * time.Second,
			},
		},
		OTel: OTelConfig{
			Exporter:    "none",
			SampleRatio: 1.0,
		},
	}
}
