package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/florinutz/binsync/adapter"
	"github.com/florinutz/binsync/adapter/search"
	"github.com/florinutz/binsync/adapter/stdout"
	"github.com/florinutz/binsync/checkpoint"
	mysqldetector "github.com/florinutz/binsync/detector/mysql"
	"github.com/florinutz/binsync/internal/config"
	"github.com/florinutz/binsync/normalize"
	"github.com/florinutz/binsync/notify"
)

// loadConfig resolves the configuration once: defaults, then the config
// file, env vars and flags through viper.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func buildSink(cfg config.SinkConfig, out io.Writer, logger *slog.Logger) (adapter.Sink, error) {
	if cfg.Engine == "stdout" {
		return stdout.New(out, logger), nil
	}
	return search.New(search.Config{
		Engine:      cfg.Engine,
		URL:         cfg.URL,
		Username:    cfg.Username,
		Password:    cfg.Password,
		APIKey:      cfg.APIKey,
		DocTypes:    cfg.DocTypes,
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
		BackoffCap:  cfg.BackoffCap,

		RequestsPerSecond: cfg.RateLimit,
		Burst:             cfg.RateBurst,
	}, logger)
}

func buildStore(cfg config.CheckpointConfig, logger *slog.Logger) (checkpoint.Store, error) {
	switch cfg.Backend {
	case "file", "":
		return checkpoint.NewFileStore(cfg.Path, logger), nil
	case "postgres":
		return checkpoint.NewPGStore(cfg.DatabaseURL, cfg.Name, logger), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q (expected file or postgres)", cfg.Backend)
	}
}

// buildNotifier always logs the failure report and additionally mails or
// posts it when those channels are configured.
func buildNotifier(cfg config.NotifyConfig, logger *slog.Logger) notify.Notifier {
	channels := notify.Multi{notify.NewLog(logger)}
	if s := cfg.SMTP; s.Host != "" {
		channels = append(channels, notify.NewSMTP(notify.SMTPConfig{
			Host:     s.Host,
			Port:     s.Port,
			Username: s.Username,
			Password: s.Password,
			From:     s.From,
			To:       s.To,
			Subject:  s.Subject,
			StartTLS: s.StartTLS,
			Timeout:  s.Timeout,
		}, logger))
	}
	if w := cfg.Webhook; w.URL != "" {
		channels = append(channels, notify.NewWebhook(notify.WebhookConfig{
			URL:         w.URL,
			Headers:     w.Headers,
			SigningKey:  w.SigningKey,
			MaxRetries:  w.MaxRetries,
			Timeout:     w.Timeout,
			BackoffBase: w.BackoffBase,
			BackoffCap:  w.BackoffCap,
		}, logger))
	}
	if len(channels) == 1 {
		return channels[0]
	}
	return channels
}

func buildOpener(cfg config.MySQLConfig, logger *slog.Logger) *mysqldetector.Opener {
	return mysqldetector.NewOpener(mysqldetector.Config{
		Addr:        cfg.Addr,
		User:        cfg.User,
		Password:    cfg.Password,
		ServerID:    cfg.ServerID,
		Flavor:      cfg.Flavor,
		Schemas:     cfg.Schemas,
		Tables:      cfg.Tables,
		PrimaryKeys: cfg.PrimaryKeyMap(),
	}, logger)
}

func buildNormalizer(cfg config.Config) *normalize.Normalizer {
	return normalize.New(normalize.NewPolicy(cfg.Policy.Exclude...), normalize.WithIndexPrefix(cfg.Sink.IndexPrefix))
}
