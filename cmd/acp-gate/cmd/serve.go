package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/Sentinel-Gate/acp-gate/internal/adapter/inbound/httpmw"
	"github.com/Sentinel-Gate/acp-gate/internal/adapter/inbound/httpproxy"
	"github.com/Sentinel-Gate/acp-gate/internal/adapter/inbound/shellgate"
	"github.com/Sentinel-Gate/acp-gate/internal/adapter/outbound/audit"
	"github.com/Sentinel-Gate/acp-gate/internal/adapter/outbound/channel"
	"github.com/Sentinel-Gate/acp-gate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/acp-gate/internal/config"
	domainaudit "github.com/Sentinel-Gate/acp-gate/internal/domain/audit"
	domainchannel "github.com/Sentinel-Gate/acp-gate/internal/domain/channel"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/policy"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/acp-gate/internal/service"
	"github.com/Sentinel-Gate/acp-gate/internal/telemetry"
)

var serveDevMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the shell-gate and proxy listeners",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDevMode, "dev", false, "enable development mode (policy.dev.yaml and terminal channel if none configured, timestamped trace output)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serveDevMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	shutdownTracing, err := telemetry.InitTracing(ctx, os.Stderr, cfg.DevMode, Version)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	gatePolicy, err := config.LoadPolicyFile(cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to load policy file: %w", err)
	}
	engine := policy.NewEngine(gatePolicy, ratelimit.New())
	logger.Info("policy loaded", "path", cfg.PolicyFile, "rules", len(gatePolicy.Rules), "default_action", gatePolicy.DefaultAction)

	watcher, err := config.WatchPolicyFile(cfg.PolicyFile, engine, logger)
	if err != nil {
		logger.Warn("policy hot-reload disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	approvalChannel, err := buildChannel(cfg.Channel, logger)
	if err != nil {
		return fmt.Errorf("failed to build channel: %w", err)
	}

	hostCache := memory.NewHostApprovalCache()
	auditSink, auditCloser, err := buildAuditSink(cfg.Audit, logger)
	if err != nil {
		return fmt.Errorf("failed to build audit sink: %w", err)
	}
	defer auditCloser()

	hostApprovalTTL := time.Duration(cfg.HostApprovalTTLSec) * time.Second
	gate := service.New(engine, approvalChannel, hostCache, auditSink, hostApprovalTTL, logger, metrics)

	tokens := memory.NewTokenStore()
	go sweepTokens(ctx, tokens, metrics)

	shellGateHandler := shellgate.New(gate, tokens, logger)
	proxyHandler := httpproxy.New(gate, tokens, logger)
	proxyHandler.SetMetrics(metrics)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	requestID := httpmw.RequestID(logger)
	shellGateSrv := &http.Server{Addr: cfg.Server.ShellGateAddr, Handler: requestID(shellGateHandler)}
	proxySrv := &http.Server{Addr: cfg.Server.ProxyAddr, Handler: requestID(proxyHandler)}
	metricsSrv := &http.Server{Addr: metricsAddr(cfg.Server.ShellGateAddr), Handler: metricsMux}

	errCh := make(chan error, 3)
	go serveOne(shellGateSrv, "shell-gate", logger, errCh)
	go serveOne(proxySrv, "proxy", logger, errCh)
	go serveOne(metricsSrv, "metrics", logger, errCh)

	logger.Info("acp-gate starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"shell_gate_addr", cfg.Server.ShellGateAddr,
		"proxy_addr", cfg.Server.ProxyAddr,
		"channel", cfg.Channel.Kind,
		"audit_output", cfg.Audit.Output,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("listener failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var shutdownErr error
	shutdownErr = multierr.Append(shutdownErr, shellGateSrv.Shutdown(shutdownCtx))
	shutdownErr = multierr.Append(shutdownErr, proxySrv.Shutdown(shutdownCtx))
	shutdownErr = multierr.Append(shutdownErr, metricsSrv.Shutdown(shutdownCtx))
	if shutdownErr != nil {
		logger.Warn("listener shutdown reported errors", "error", shutdownErr)
	}

	logger.Info("acp-gate stopped")
	return nil
}

func serveOne(srv *http.Server, name string, logger *slog.Logger, errCh chan<- error) {
	logger.Info("listener starting", "name", name, "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%s: %w", name, err)
	}
}

// metricsAddr derives the /metrics listener from the shell-gate address by
// shifting to port+100 on the same host (port 9090 when the address has no
// port), so a bare "127.0.0.1:8443" config doesn't need a fourth address
// field.
func metricsAddr(shellGateAddr string) string {
	host, port := splitAddr(shellGateAddr)
	n := 9090
	if port > 0 {
		n = port + 100
	}
	return fmt.Sprintf("%s:%d", host, n)
}

func splitAddr(addr string) (string, int) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, 0
	}
	host := addr[:idx]
	var port int
	_, _ = fmt.Sscanf(addr[idx+1:], "%d", &port)
	return host, port
}

func sweepTokens(ctx context.Context, tokens *memory.TokenStore, metrics *telemetry.Metrics) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tokens.Sweep(ctx)
			metrics.TokensActive.Set(float64(tokens.Count()))
		}
	}
}

func buildChannel(cfg config.ChannelConfig, logger *slog.Logger) (domainchannel.Channel, error) {
	switch cfg.Kind {
	case config.ChannelWebhook:
		return channel.NewWebhook(cfg.WebhookURL, cfg.SharedSecret, logger), nil
	case config.ChannelPush:
		return channel.NewPush(cfg.PushBaseURL, cfg.PushChatID, logger), nil
	case config.ChannelTerminal, "":
		return channel.NewTerminal(os.Stdin, os.Stdout, logger), nil
	default:
		return nil, fmt.Errorf("unknown channel kind %q", cfg.Kind)
	}
}

func buildAuditSink(cfg config.AuditConfig, logger *slog.Logger) (domainaudit.Sink, func(), error) {
	switch cfg.Output {
	case "file":
		store, err := audit.NewFileStore(audit.FileStoreConfig{
			Dir:           cfg.Dir,
			RetentionDays: cfg.RetentionDays,
			MaxFileSizeMB: cfg.MaxFileSizeMB,
			CacheSize:     cfg.CacheSize,
		}, logger)
		if err != nil {
			return nil, nil, err
		}

		queryStore, err := audit.NewSQLiteQueryStore(filepath.Join(cfg.Dir, "audit.db"))
		if err != nil {
			logger.Warn("audit query supplement disabled", "error", err)
			return store, func() { _ = store.Close() }, nil
		}

		sink := audit.NewTeeSink(store, queryStore, logger)
		return sink, func() { _ = sink.Close() }, nil
	case "stdout", "":
		store := memory.NewAuditStoreWithWriter(os.Stdout, cfg.CacheSize)
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown audit output %q", cfg.Output)
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
