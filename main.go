// polychat TUI - a multi-chat terminal client for OpenRouter models.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/polychat-tui/internal/chat"
	"github.com/jeranaias/polychat-tui/internal/config"
	"github.com/jeranaias/polychat-tui/internal/stream"
	"github.com/jeranaias/polychat-tui/internal/ui/app"
	"github.com/jeranaias/polychat-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Global program reference for async store notifications
var (
	programRef *tea.Program
	programMu  sync.Mutex
)

func main() {
	for _, arg := range os.Args[1:] {
		switch arg {
		case "--version", "-v", "version":
			fmt.Printf("polychat %s (%s, built %s)\n", Version, GitCommit, BuildDate)
			return
		case "--help", "-h", "help":
			printUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()
	scaffoldConfig(logger)
	styles.ApplyTheme(cfg.UI.Theme)

	cat, err := cfg.Catalog()
	if err != nil {
		return fmt.Errorf("building model catalog: %w", err)
	}

	client := stream.NewClient(stream.Config{
		APIKey:            cfg.API.OpenRouterKey,
		BaseURL:           cfg.API.BaseURL,
		MaxRetries:        cfg.API.MaxRetries,
		RequestsPerMinute: cfg.API.RequestsPerMinute,
	})

	store := chat.NewStore(chat.Config{
		Catalog:      cat,
		Streamer:     client,
		TitleModelID: cfg.Title.ModelID,
		Logger:       logger,
		OnChange:     notifyProgram,
	})

	m := app.New(store, cfg)
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	programMu.Lock()
	programRef = p
	programMu.Unlock()

	if watcher := startConfigWatcher(logger); watcher != nil {
		defer watcher.Close()
	}

	_, err = p.Run()

	programMu.Lock()
	programRef = nil
	programMu.Unlock()

	if err != nil {
		return fmt.Errorf("running interface: %w", err)
	}
	return nil
}

// notifyProgram forwards a store change into the Bubble Tea loop. The store
// calls it from streaming goroutines, so the program reference is read
// under the mutex.
func notifyProgram() {
	programMu.Lock()
	p := programRef
	programMu.Unlock()

	if p != nil {
		p.Send(app.StoreChangedMsg{})
	}
}

// scaffoldConfig writes the default config file on first run so users have
// a template to edit. Defaults only: the env-sourced API key never goes to
// disk.
func scaffoldConfig(logger *slog.Logger) {
	path, err := config.Path()
	if err != nil {
		return
	}
	if _, err := os.Stat(path); err == nil || !os.IsNotExist(err) {
		return
	}
	if err := config.Save(config.Default()); err != nil {
		logger.Warn("could not write default config", "path", path, "error", err)
	}
}

// startConfigWatcher wires live config reload. A watcher failure only costs
// the reload feature, so it is logged and the TUI starts without it.
func startConfigWatcher(logger *slog.Logger) *config.Watcher {
	path, err := config.Path()
	if err != nil {
		logger.Warn("config watcher disabled", "error", err)
		return nil
	}

	watcher, err := config.NewWatcher(path, logger, func(cfg *config.Config) {
		programMu.Lock()
		p := programRef
		programMu.Unlock()

		if p != nil {
			p.Send(app.ConfigReloadedMsg{Config: cfg})
		}
	})
	if err != nil {
		logger.Warn("config watcher disabled", "error", err)
		return nil
	}

	if err := watcher.Watch(); err != nil {
		logger.Warn("config watcher disabled", "error", err)
		watcher.Close()
		return nil
	}
	return watcher
}

// newLogger logs to a file under the config directory. The TUI owns the
// terminal, so stderr is not an option while the program runs.
func newLogger() *slog.Logger {
	dir, err := config.Dir()
	if err != nil {
		return discardLogger()
	}
	if err := config.EnsureDir(); err != nil {
		return discardLogger()
	}

	f, err := os.OpenFile(filepath.Join(dir, "polychat.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return discardLogger()
	}
	return slog.New(slog.NewTextHandler(f, nil))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func printUsage() {
	fmt.Println(`polychat - multi-chat terminal client for OpenRouter models

Usage:
  polychat              start the chat interface
  polychat --version    print version information
  polychat --help       show this help

Configuration:
  ~/.polychat/config.toml   settings and custom model catalog
  OPENROUTER_API_KEY        API key (required for requests)

Keys:
  enter    send          ctrl+n  new chat       tab      next chat
  esc      abort         ctrl+w  close chat     ctrl+o   cycle model
  ctrl+r   retry         ctrl+s  toggle search  ctrl+t   toggle reasoning
  ctrl+h   help          ctrl+c  quit`)
}
