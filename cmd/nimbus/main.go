// Nimbus is a conversational weather and clothing-advice assistant.
//
// It exposes an HTTP API for agent chat (plain, SSE, and WebSocket)
// plus direct weather lookups, and a CLI for one-shot questions.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	nimbus serve             Start the API server
//	nimbus init [dir]        Initialize a working directory with defaults
//	nimbus ask <question>    Ask a single question (for testing)
//	nimbus version           Print version and build information
//	nimbus -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimbusai/nimbus/internal/agent"
	"github.com/nimbusai/nimbus/internal/api"
	"github.com/nimbusai/nimbus/internal/archive"
	"github.com/nimbusai/nimbus/internal/buildinfo"
	"github.com/nimbusai/nimbus/internal/config"
	"github.com/nimbusai/nimbus/internal/gazetteer"
	"github.com/nimbusai/nimbus/internal/llm"
	"github.com/nimbusai/nimbus/internal/session"
	"github.com/nimbusai/nimbus/internal/tools"
	"github.com/nimbusai/nimbus/internal/weather"
	"github.com/nimbusai/nimbus/internal/weatherquery"
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

// run is the real entry point for the nimbus command. All OS-level
// dependencies are injected as parameters. Arguments are parsed by
// hand: the flag package relies on package-level globals, which makes
// it impossible to call run() concurrently from tests, and the surface
// here is small enough that manual parsing is clearer than a CLI
// framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: nimbus ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
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
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Nimbus - Weather and Clothing Advice Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: nimbus [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/nimbus/config.yaml, /etc/nimbus/config.yaml")
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// buildLoop assembles the agent from configuration: gazetteer, weather
// client, tool registry, session store, and the orchestration loop.
func buildLoop(cfg *config.Config, logger *slog.Logger) (*agent.Loop, *weatherquery.Service, error) {
	gaz, err := gazetteer.Load(cfg.Gazetteer.CSVPath, cfg.Gazetteer.HotCities, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("load gazetteer %s: %w", cfg.Gazetteer.CSVPath, err)
	}
	logger.Info("gazetteer loaded", "path", cfg.Gazetteer.CSVPath, "cities", gaz.Len())

	wx := weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.APIKey, weather.Options{
		Timeout: time.Duration(cfg.Weather.TimeoutSec) * time.Second,
		Retries: cfg.Weather.Retries,
		Logger:  logger,
	})

	llmClient := llm.NewOllamaClient(cfg.LLM.URL, cfg.LLM.Model,
		time.Duration(cfg.LLM.TimeoutSec)*time.Second)

	registry := tools.NewWeatherRegistry(gaz, wx, logger)
	store := session.NewStore(cfg.Session.MaxMessages,
		time.Duration(cfg.Session.TTLMinutes)*time.Minute, logger)

	loop := agent.NewLoop(llmClient, registry, store, logger)
	query := weatherquery.NewService(gaz, wx, logger)
	return loop, query, nil
}

// runServe starts the API server and blocks until the process receives
// SIGINT/SIGTERM or the server fails.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Nimbus",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known. The
	// initial Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.LLM.Model,
		"llm_url", cfg.LLM.URL,
	)

	loop, query, err := buildLoop(cfg, logger)
	if err != nil {
		return err
	}

	listen := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	server := api.NewServer(listen, loop, query, logger)

	if cfg.Archive.Enabled {
		arch, err := archive.NewStore(cfg.Archive.Path)
		if err != nil {
			return fmt.Errorf("open archive %s: %w", cfg.Archive.Path, err)
		}
		defer arch.Close()
		server.SetArchive(arch)
		logger.Info("archive opened", "path", cfg.Archive.Path)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// runAsk handles the "nimbus ask <question>" subcommand. It boots the
// agent without the HTTP server and runs a single turn, printing the
// answer to stdout. Useful for smoke tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)

	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	loop, _, err := buildLoop(cfg, logger)
	if err != nil {
		return err
	}

	result, err := loop.Run(ctx, "", "", question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("ask: %s", result.ErrorMessage)
	}

	fmt.Fprintln(stdout, result.Content)
	return nil
}
