// Package main runs a local stand-in for the spreadsheet sync script.
//
// The emulator speaks the same contract as the deployed script: POST / with
// {"action":"push",...} replaces the Transactions and Accounts sheets, and
// GET /?action=pull returns both as JSON arrays.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shunichi-ikebuchi/smartspend/emulator/internal/api"
	"github.com/shunichi-ikebuchi/smartspend/emulator/internal/store"
)

const (
	defaultPort   = "8080"
	defaultDBPath = "./data/sheets.db"
)

func main() {
	// Setup structured JSON logging.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Get configuration from environment variables.
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		slog.Error("failed to create data directory", "error", err, "db_path", dbPath)
		os.Exit(1)
	}

	// Initialize store.
	st, err := store.New(dbPath)
	if err != nil {
		slog.Error("failed to initialize store", "error", err, "db_path", dbPath)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()

	slog.Info("database initialized", "db_path", dbPath)

	handler := api.NewRouter(st, api.RouterConfig{
		Key:    os.Getenv("EMULATOR_KEY"),
		Logger: logger,
	})

	// Start server.
	addr := fmt.Sprintf(":%s", port)
	slog.Info("starting sheets emulator", "addr", addr, "port", port)

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		slog.Info("shutting down server")
		if err := server.Close(); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
