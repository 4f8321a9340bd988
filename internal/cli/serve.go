package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aegis/internal/alert"
	"github.com/ppiankov/aegis/internal/audit"
	"github.com/ppiankov/aegis/internal/config"
	"github.com/ppiankov/aegis/internal/engine"
	"github.com/ppiankov/aegis/internal/intake"
	"github.com/ppiankov/aegis/internal/metrics"
	"github.com/ppiankov/aegis/internal/server"
)

var (
	serveAddr        string
	serveSpool       string
	serveAuditLog    string
	serveMetricsAddr string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "gRPC listen address (overrides server.grpc_addr)")
	serveCmd.Flags().StringVar(&serveSpool, "spool", "", "Spool directory for command files (overrides spool.dir)")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to audit journal JSONL (overrides audit_log)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Prometheus listen address (overrides server.metrics_addr)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the command gate",
	Long: "Starts one validation session and exposes it over gRPC, plus optional spool-directory\n" +
		"intake and Prometheus metrics. Keys and alert webhooks hot-reload from the config file.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}
	cfg, hash, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cfg)

	kr, err := cfg.Keyring()
	if err != nil {
		return err
	}
	if len(kr.IDs()) == 0 {
		logger.Warn("no keys configured; every command will fail verification")
	}
	ec, err := cfg.Engine()
	if err != nil {
		return err
	}

	health := server.NewHealth()
	alerts := server.NewAlertSink(alert.NewDispatcher(cfg.Alerts, ec.SessionID, logger))
	collector := metrics.New()
	sinks := []engine.Sink{health, alerts, collector}

	if cfg.AuditLog != "" {
		journal, err := audit.Open(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer journal.Close()
		sinks = append(sinks, audit.NewJournal(journal, ec.SessionID, hash, logger))
	}

	e, err := engine.New(ec, kr, engine.WithLogger(logger), engine.WithSink(sinks...))
	if err != nil {
		return err
	}
	defer e.Close()

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	srv := server.New(server.Config{Addr: cfg.Server.GRPCAddr, ConfigPath: path, ConfigHash: hash}, e,
		server.WithKeyring(kr), server.WithHealth(health), server.WithAlerts(alerts), server.WithLogger(logger))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error(name+" stopped", "error", err)
			}
		}()
	}

	if reloader, err := server.NewReloader(srv); err != nil {
		logger.Warn("hot-reload disabled", "error", err)
	} else {
		run("reloader", reloader.Run)
	}

	if cfg.Server.MetricsAddr != "" {
		run("metrics", func(ctx context.Context) error {
			return serveMetrics(ctx, cfg.Server.MetricsAddr, collector)
		})
	}

	if cfg.Spool.Dir != "" {
		spool := intake.NewSpool(cfg.Spool.Dir, e, logger)
		if cfg.Spool.PollInterval > 0 {
			spool.PollInterval = cfg.Spool.PollInterval
		}
		run("spool", spool.Run)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		srv.GracefulStop()
	}()

	err = srv.Serve()
	cancel()
	wg.Wait()
	alerts.Current().Wait()
	return err
}

func applyServeFlags(cfg *config.Config) {
	if serveAddr != "" {
		cfg.Server.GRPCAddr = serveAddr
	}
	if serveSpool != "" {
		cfg.Spool.Dir = serveSpool
	}
	if serveAuditLog != "" {
		cfg.AuditLog = serveAuditLog
	}
	if serveMetricsAddr != "" {
		cfg.Server.MetricsAddr = serveMetricsAddr
	}
}

func serveMetrics(ctx context.Context, addr string, collector *metrics.Collector) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	hs := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdown)
	}()

	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
