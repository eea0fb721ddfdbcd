// ABOUTME: Entry point for the opsdesk operator console
// ABOUTME: Live-chat takeover client: sidebar, message view, session control

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/opsdesk/livechat/internal/auth"
	"github.com/opsdesk/livechat/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                        _           _
   ___  _ __  ___    __| | ___  ___| | __
  / _ \| '_ \/ __|  / _' |/ _ \/ __| |/ /
 | (_) | |_) \__ \ | (_| |  __/\__ \   <
  \___/| .__/|___/  \__,_|\___||___/_|\_\
       |_|
`

// getConfigPath returns the path to the console config file.
// Priority: OPSDESK_CONFIG env var > XDG_CONFIG_HOME/opsdesk/console.yaml > ~/.config/opsdesk/console.yaml
func getConfigPath() string {
	if envPath := os.Getenv("OPSDESK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "console.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "opsdesk", "console.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: opsdesk-console <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  run        Start the interactive console")
		fmt.Println("  token      Show the configured credential's identity and expiry")
		fmt.Println("  version    Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runConsole(ctx)
	case "token":
		err = runToken()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runToken inspects the configured bearer token without connecting.
func runToken() error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	token, err := cfg.ResolveToken()
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("no token configured")
	}

	info, err := auth.Inspect(token)
	if err != nil && info.Subject == "" {
		return fmt.Errorf("inspecting token: %w", err)
	}

	fmt.Printf("Subject: %s\n", info.Subject)
	if info.ExpiresAt.IsZero() {
		fmt.Println("Expires: never")
	} else {
		fmt.Printf("Expires: %s\n", info.ExpiresAt.Format(time.RFC3339))
	}
	if err != nil {
		yellow := color.New(color.FgYellow)
		yellow.Printf("Warning: %v\n", err)
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Stdout belongs to the interactive UI, so logs go to the configured
	// file, falling back to stderr.
	var out io.Writer = os.Stderr
	cleanup := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		cleanup = func() { f.Close() }
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), cleanup, nil
}
