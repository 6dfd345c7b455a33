// Herald is an automated community-chat agent.
//
// It connects to a chat platform's websocket gateway, registers its
// command surface, greets every community it belongs to, and then
// dispatches commands and messages on a single cooperative loop until
// a termination signal triggers the farewell broadcast and a clean
// disconnect. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	herald serve      Connect to the gateway and run the agent
//	herald version    Print version and build information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nugget/herald/internal/audit"
	"github.com/nugget/herald/internal/buildinfo"
	"github.com/nugget/herald/internal/command"
	"github.com/nugget/herald/internal/config"
	"github.com/nugget/herald/internal/dispatch"
	"github.com/nugget/herald/internal/events"
	"github.com/nugget/herald/internal/handlers"
	"github.com/nugget/herald/internal/lifecycle"
	"github.com/nugget/herald/internal/mqttpub"
	"github.com/nugget/herald/internal/platform"
	"github.com/nugget/herald/internal/roulette"
	"github.com/nugget/herald/internal/schedule"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the herald command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:]. Parsed manually rather than with the flag
//     package to avoid global state that interferes with parallel
//     tests.
//
// run returns nil on clean shutdown and a non-nil error for any
// failure. The caller (main) is responsible for printing the error and
// exiting.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var cmd string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && cmd == "":
			cmd = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch cmd {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Herald - Community Chat Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: herald [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve     Connect to the gateway and run the agent")
	fmt.Fprintln(w, "  version   Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./herald.yaml, ~/.config/herald/config.yaml, /etc/herald/config.yaml")
	return nil
}

// loadConfig finds and loads the configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

// newLogger builds the process logger in the configured format.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// runServe handles the "herald serve" subcommand. It is the primary
// operating mode: loads config, opens the stores, connects to the
// gateway, and runs the dispatch loop until a termination signal
// completes the farewell sequence.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM enqueues the lifecycle shutdown task
//  2. The task sends the farewell broadcast and closes the gateway
//  3. The closed gateway drains the event channel and the loop returns
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Herald", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level and format are
	// known. The initial text logger covers only the startup banner.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			// Already validated by config.Validate.
			level, _ = config.ParseLogLevel(cfg.LogLevel)
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	if !cfg.Gateway.Configured() {
		return fmt.Errorf("gateway url and token must be configured (config: %s)", cfgPath)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"gateway", cfg.Gateway.URL,
		"data_dir", cfg.DataDir,
	)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Stores ---
	schedules := schedule.NewStore(cfg.ScheduleFile)

	auditStore, err := audit.NewStore(filepath.Join(cfg.DataDir, "audit.db"))
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer auditStore.Close()

	// --- Gateway client and operational bus ---
	client := platform.NewClient(cfg.Gateway.URL, cfg.Gateway.Token, logger)
	bus := events.New()

	// --- Command surface ---
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	picker := roulette.NewPicker(client, client, cfg.HistoryLimit, rng)

	registry := command.New()
	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Registry: registry,
		Sender:   client,
		Prefix:   cfg.Prefix,
		Logger:   logger,
		Bus:      bus,
		Recorder: auditStore,
	})

	deps := handlers.Deps{
		Schedules:      schedules,
		Picker:         picker,
		Gateway:        client,
		Enqueuer:       dispatcher,
		Rand:           rng,
		Logger:         logger,
		DataDir:        cfg.DataDir,
		ForwardChannel: cfg.Forward.Channel,
		ForwardUser:    cfg.Forward.UserID,
	}
	if err := handlers.RegisterAll(registry, deps); err != nil {
		return err
	}
	if obs := handlers.NewForwardObserver(deps); obs != nil {
		dispatcher.AddObserver(obs)
		logger.Info("question forwarding enabled", "channel", cfg.Forward.Channel)
	}

	// --- Lifecycle ---
	notifier := lifecycle.NewNotifier(lifecycle.NotifierConfig{
		Gateway:  client,
		Registry: registry,
		Channel:  cfg.Broadcast.Channel,
		Greeting: cfg.Broadcast.Greeting,
		Farewell: cfg.Broadcast.Farewell,
		Logger:   logger,
		Bus:      bus,
	})
	dispatcher.SetReadyHandler(notifier.HandleReady)

	stopSignals := startSignalBridge(dispatcher, notifier, logger)
	defer stopSignals()

	// --- Optional MQTT status publisher ---
	var publisher *mqttpub.Publisher
	if cfg.MQTT.Configured() {
		mqttCtx, mqttCancel := context.WithCancel(ctx)
		defer mqttCancel()

		publisher = mqttpub.New(cfg.MQTT, &gatewayStats{client: client}, bus, logger)
		go func() {
			if err := publisher.Start(mqttCtx); err != nil {
				logger.Warn("mqtt publisher stopped", "error", err)
			}
		}()
	}

	// --- Connect and dispatch ---
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect gateway: %w", err)
	}

	runErr := dispatcher.Run(ctx, client.Events())

	if publisher != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		publisher.Stop(stopCtx)
		stopCancel()
	}

	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("dispatch loop: %w", runErr)
	}
	logger.Info("herald stopped")
	return nil
}

// gatewayStats adapts the gateway client to the MQTT stats interface.
type gatewayStats struct {
	client *platform.Client
}

func (s *gatewayStats) Uptime() time.Duration  { return buildinfo.Uptime() }
func (s *gatewayStats) Version() string        { return buildinfo.Version }
func (s *gatewayStats) Communities() int       { return len(s.client.Communities()) }
func (s *gatewayStats) Latency() time.Duration { return s.client.Latency() }
