package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/radquest/radquest/internal/config"
	"github.com/radquest/radquest/internal/daemon"
	mcpserver "github.com/radquest/radquest/internal/mcp"
)

// cmdMCP serves the game over MCP on stdio. Stdout carries the protocol so
// logs go to a file.
func cmdMCP() error {
	dir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("ensure radquest dir: %w", err)
	}
	cfg, err := config.LoadFrom(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "logs", "radquest-mcp.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: cfg.LogLevel()}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Same services as the daemon, without the HTTP listener
	srv, err := daemon.NewServer(ctx, daemon.ServerConfig{
		Config:  cfg,
		DataDir: dir,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create services: %w", err)
	}
	defer srv.Close()

	mcpSrv := mcpserver.NewServer(mcpserver.Config{
		Ledger:      srv.Ledger(),
		Progression: srv.Progression(),
		Lifecycle:   srv.Lifecycle(),
	})

	logger.Info("serving MCP on stdio")
	return mcpSrv.ServeStdio(ctx)
}
