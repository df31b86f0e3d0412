// Package main runs the simmirror client headless: it mirrors the snapshot
// and log streams, serves metrics and health, logs a periodic summary and
// optionally forwards stdin lines to the command stream.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/simmirror/config"
	"github.com/c360/simmirror/events/natssink"
	"github.com/c360/simmirror/metric"
	"github.com/c360/simmirror/mirror"
	"github.com/c360/simmirror/reconcile"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "simmirror"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(flag.CommandLine)
		return nil
	}

	logger := setupLogger(os.Stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		logger.Info("Configuration is valid")
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting simmirror",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	registry := metric.NewMetricsRegistry()
	client, err := mirror.New(mirror.Deps{Config: cfg, MetricsRegistry: registry, Logger: logger})
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	live := config.NewSafeConfig(cfg)
	rl := &reloader{path: cliCfg.ConfigPath, live: live, client: client, logger: logger}

	if cfg.Events.Enabled {
		conn, err := natssink.Connect(ctx, cfg.Events, logger)
		if err != nil {
			return fmt.Errorf("connect event sink: %w", err)
		}
		defer conn.Close()
		client.Subscribe(natssink.New(conn, cfg.Events, natssink.Deps{MetricsRegistry: registry, Logger: logger}))
	}

	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		server.SetHealthHandler(client.Health().Handler(appName))
		server.Handle("/config", configHandler(live))
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() { _ = server.Stop() }()
		logger.Info("Serving metrics", "address", server.Address())
	}

	var lines <-chan string
	if cliCfg.StdinCommands {
		lines = readLines(ctx, os.Stdin)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	if err := client.Start(); err != nil {
		logger.Warn("Some streams failed to start", "error", err)
	}
	defer client.Stop()

	runLoop(ctx, client, cfg.Client.TickInterval, cliCfg.SummaryInterval, lines, hup, rl.reload, logger)
	logger.Info("Shutdown complete")
	return nil
}

// runLoop ticks the client until ctx is done. Command lines and reloads are
// handled on the tick goroutine because the client is not safe for
// concurrent use.
func runLoop(ctx context.Context, client *mirror.Client, tick, summaryEvery time.Duration,
	lines <-chan string, hup <-chan os.Signal, reload func(), logger *slog.Logger) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	last := time.Now()
	var sinceSummary time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			reload()
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := client.Send(line); err != nil {
				logger.Warn("Command not sent", "line", line, "error", err)
			}
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			client.Tick(dt)

			sinceSummary += dt
			if summaryEvery > 0 && sinceSummary >= summaryEvery {
				sinceSummary = 0
				logger.Info("Mirror summary", summary(client)...)
			}
		}
	}
}

// summary lists the session, turn, collection sizes and stream states.
func summary(client *mirror.Client) []any {
	state := client.State()
	attrs := []any{"session", client.Session()}
	if turn, ok := state.Turn(); ok {
		attrs = append(attrs, "turn", turn)
	}
	for _, cat := range reconcile.Categories {
		attrs = append(attrs, string(cat), state.Len(cat))
	}
	attrs = append(attrs,
		"log_records", client.Logs().Len(),
		"log_evicted", client.Logs().Evicted(),
		mirror.ChannelSnapshot, client.Status(mirror.ChannelSnapshot).String(),
		mirror.ChannelLog, client.Status(mirror.ChannelLog).String(),
		mirror.ChannelCommand, client.Status(mirror.ChannelCommand).String(),
	)
	return attrs
}

// readLines forwards non-empty lines from r until EOF or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string, 64)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := sc.Text()
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// reloader re-reads the config file on SIGHUP. The log filter applies at
// once; stream, buffer and sink settings take effect on the next restart.
type reloader struct {
	path   string
	live   *config.SafeConfig
	client *mirror.Client
	logger *slog.Logger
}

func (r *reloader) reload() {
	cfg, err := loadConfig(r.path)
	if err != nil {
		r.logger.Warn("Configuration reload failed", "error", err)
		return
	}
	if err := r.live.Update(cfg); err != nil {
		r.logger.Warn("Configuration reload rejected", "error", err)
		return
	}
	r.client.ApplyLogFilter(cfg.LogBuffer)
	r.logger.Info("Configuration reloaded",
		"min_level", cfg.LogBuffer.MinLevel,
		"target", cfg.LogBuffer.Target)
}

// configHandler serves the live configuration with secrets masked.
func configHandler(live *config.SafeConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, live.Get().String())
	})
}

// loadConfig loads path over the defaults; an empty path applies only
// environment overrides.
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader.AddLayer(path)
	}
	return loader.Load()
}
