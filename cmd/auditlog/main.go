package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/smukkama/pvsite-server/internal/audit"
	"github.com/smukkama/pvsite-server/internal/queue"
	"github.com/smukkama/pvsite-server/pkg/config"
	"github.com/smukkama/pvsite-server/pkg/logging"
)

const (
	minRetryDelay = 100 * time.Millisecond
	maxRetryDelay = 5 * time.Second
)

// messageSource is the part of queue.Consumer the consume loop uses
type messageSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	logger.Info("starting audit log consumer", "topic", cfg.Kafka.TopicAudit)

	if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicAudit,
		cfg.Kafka.AuditPartitions, cfg.Kafka.ReplicationFactor, logger); err != nil {
		// The broker may auto-create topics, so keep consuming
		logger.Warn("could not ensure audit topic", "error", err)
	}

	// Serve metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", cfg.Metrics.Addr)

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAudit, "pvsite-auditlog")
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consume(ctx, consumer, logger, sleep)

	stats := consumer.Stats()
	logger.Info("shutting down",
		"messages", stats.Messages,
		"errors", stats.Errors,
		"lag", stats.Lag,
		"rebalances", stats.Rebalances,
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}
}

// consume handles messages until ctx ends. Fetch failures back off
// exponentially, from minRetryDelay up to maxRetryDelay.
func consume(ctx context.Context, src messageSource, logger *slog.Logger, wait func(context.Context, time.Duration) bool) {
	var delay time.Duration
	for {
		msg, err := src.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay = nextDelay(delay)
			logger.Error("failed to consume message", "error", err, "retry_in", delay)
			if !wait(ctx, delay) {
				return
			}
			continue
		}
		delay = 0

		if _, err := audit.Handle(logger, msg.Value); err != nil {
			// Undecodable events are skipped, not retried
			logger.Error("dropping audit message", "error", err, "offset", msg.Offset)
		}

		if err := src.Commit(ctx, msg); err != nil {
			logger.Error("failed to commit offset", "error", err)
		}
	}
}

func nextDelay(d time.Duration) time.Duration {
	if d < minRetryDelay {
		return minRetryDelay
	}
	d *= 2
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
