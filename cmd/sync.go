package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/florinutz/binsync"
	"github.com/florinutz/binsync/batch"
	"github.com/florinutz/binsync/internal/config"
	"github.com/florinutz/binsync/internal/safegoroutine"
	"github.com/florinutz/binsync/internal/server"
	"github.com/florinutz/binsync/tracing"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Stream binlog row changes into the search index",
	Long: `Connects to MySQL as a replication client, resumes from the stored
checkpoint (or the current binlog tail when there is none) and commits every
insert, update and delete on the configured schemas to the search index.

SIGINT/SIGTERM flush the pending batch and save a final checkpoint. Any other
stop alerts the configured notifiers and exits non-zero; restarting replays
from the last checkpoint.`,
	RunE: runSync,
}

func init() {
	d := config.Default()
	f := syncCmd.Flags()

	f.String("mysql-addr", d.MySQL.Addr, "MySQL address (host:port)")
	f.String("mysql-user", d.MySQL.User, "MySQL replication user")
	f.String("mysql-password", "", "MySQL password (env: BINSYNC_MYSQL_PASSWORD)")
	f.Uint32("server-id", d.MySQL.ServerID, "replica server id, unique across the replication topology")
	f.String("flavor", d.MySQL.Flavor, "server flavor: mysql or mariadb")
	f.StringSliceP("schema", "s", nil, "schemas to replicate (repeatable)")
	f.StringSliceP("table", "t", nil, "restrict to schema.table (repeatable)")

	f.String("sink", d.Sink.Engine, "sink: elasticsearch, opensearch, typesense, meilisearch, stdout")
	f.String("sink-url", d.Sink.URL, "search engine base URL")
	f.String("sink-username", "", "basic auth user (elasticsearch/opensearch)")
	f.String("sink-password", "", "basic auth password (env: BINSYNC_SINK_PASSWORD)")
	f.String("sink-api-key", "", "API key (env: BINSYNC_SINK_API_KEY)")
	f.String("index-prefix", "", "prefix prepended to every index name")
	f.Bool("doc-types", false, "send _type in bulk requests (elasticsearch < 7)")
	f.Int("sink-retries", d.Sink.MaxRetries, "HTTP retries per sink request on 5xx/429")
	f.Duration("sink-timeout", d.Sink.Timeout, "per-request sink timeout")
	f.Float64("sink-rate-limit", 0, "max sink requests per second (0 = unlimited)")

	f.Int("batch-max-count", d.Batch.MaxCount, "operations per batch (1 = commit every change)")
	f.Int("batch-max-bytes", d.Batch.MaxBytes, "bulk body size per batch in bytes (0 = unlimited)")
	f.Duration("batch-max-interval", d.Batch.MaxInterval, "maximum age of a pending batch")
	f.StringSlice("exclude", nil, "fields stripped from every document (repeatable)")

	f.String("checkpoint-backend", d.Checkpoint.Backend, "checkpoint store: file or postgres")
	f.String("checkpoint-path", d.Checkpoint.Path, "checkpoint file path")
	f.String("checkpoint-db", "", "PostgreSQL URL for the postgres checkpoint store")

	f.String("metrics-addr", "", "metrics/health server address (e.g. :9090)")
	f.Duration("shutdown-timeout", d.ShutdownTimeout, "bound on the final flush and alert delivery")
	f.String("otel-exporter", d.OTel.Exporter, "trace exporter: none, stdout, otlp")
	f.Float64("otel-sample-ratio", d.OTel.SampleRatio, "trace sample ratio")

	mustBindPFlag("mysql.addr", f.Lookup("mysql-addr"))
	mustBindPFlag("mysql.user", f.Lookup("mysql-user"))
	mustBindPFlag("mysql.password", f.Lookup("mysql-password"))
	mustBindPFlag("mysql.server_id", f.Lookup("server-id"))
	mustBindPFlag("mysql.flavor", f.Lookup("flavor"))
	mustBindPFlag("mysql.schemas", f.Lookup("schema"))
	mustBindPFlag("mysql.tables", f.Lookup("table"))

	mustBindPFlag("sink.engine", f.Lookup("sink"))
	mustBindPFlag("sink.url", f.Lookup("sink-url"))
	mustBindPFlag("sink.username", f.Lookup("sink-username"))
	mustBindPFlag("sink.password", f.Lookup("sink-password"))
	mustBindPFlag("sink.api_key", f.Lookup("sink-api-key"))
	mustBindPFlag("sink.index_prefix", f.Lookup("index-prefix"))
	mustBindPFlag("sink.doc_types", f.Lookup("doc-types"))
	mustBindPFlag("sink.max_retries", f.Lookup("sink-retries"))
	mustBindPFlag("sink.timeout", f.Lookup("sink-timeout"))
	mustBindPFlag("sink.rate_limit", f.Lookup("sink-rate-limit"))

	mustBindPFlag("batch.max_count", f.Lookup("batch-max-count"))
	mustBindPFlag("batch.max_bytes", f.Lookup("batch-max-bytes"))
	mustBindPFlag("batch.max_interval", f.Lookup("batch-max-interval"))
	mustBindPFlag("policy.exclude", f.Lookup("exclude"))

	mustBindPFlag("checkpoint.backend", f.Lookup("checkpoint-backend"))
	mustBindPFlag("checkpoint.path", f.Lookup("checkpoint-path"))
	mustBindPFlag("checkpoint.database_url", f.Lookup("checkpoint-db"))

	mustBindPFlag("metrics_addr", f.Lookup("metrics-addr"))
	mustBindPFlag("shutdown_timeout", f.Lookup("shutdown-timeout"))
	mustBindPFlag("otel.exporter", f.Lookup("otel-exporter"))
	mustBindPFlag("otel.sample_ratio", f.Lookup("otel-sample-ratio"))
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.Default()

	// Root context: cancelled on SIGINT or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Exporter:       cfg.OTel.Exporter,
		Endpoint:       cfg.OTel.Endpoint,
		SampleRatio:    cfg.OTel.SampleRatio,
		ServiceVersion: Version,
		Sink:           cfg.Sink.Engine,
	}, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer shutdownTracing()

	sink, err := buildSink(cfg.Sink, cmd.OutOrStdout(), logger)
	if err != nil {
		return fmt.Errorf("build sink: %w", err)
	}
	store, err := buildStore(cfg.Checkpoint, logger)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}

	p := binsync.NewPipeline(buildOpener(cfg.MySQL, logger), sink,
		binsync.WithCheckpointStore(store),
		binsync.WithNotifier(buildNotifier(cfg.Notify, logger)),
		binsync.WithNormalizer(buildNormalizer(cfg)),
		binsync.WithBatch(batch.Config{
			MaxCount:    cfg.Batch.MaxCount,
			MaxBytes:    cfg.Batch.MaxBytes,
			MaxInterval: cfg.Batch.MaxInterval,
		}),
		binsync.WithShutdownTimeout(cfg.ShutdownTimeout),
		binsync.WithLogger(logger),
	)

	g, gCtx := errgroup.WithContext(ctx)

	safegoroutine.Go(g, logger, "pipeline", func() error {
		return p.Run(gCtx)
	})

	if cfg.MetricsAddr != "" {
		metricsServer := server.NewMetricsServer(cfg.MetricsAddr, p.Health())

		safegoroutine.Go(g, logger, "metrics-server", func() error {
			logger.Info("metrics server starting", "addr", cfg.MetricsAddr)
			ln, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				return fmt.Errorf("metrics listen: %w", err)
			}
			if err := metricsServer.Serve(ln); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics serve: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			logger.Info("shutting down metrics server")
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()

	// context.Canceled is expected on clean shutdown.
	if err != nil && errors.Is(err, context.Canceled) {
		logger.Info("shutdown complete")
		return nil
	}
	return err
}
