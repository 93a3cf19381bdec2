package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/threatcomb/threatcomb/app/analysis"
	"github.com/threatcomb/threatcomb/app/api"
	"github.com/threatcomb/threatcomb/app/cfg"
	"github.com/threatcomb/threatcomb/app/database"
	"github.com/threatcomb/threatcomb/app/feed"
	"github.com/threatcomb/threatcomb/app/llm"
	"github.com/threatcomb/threatcomb/app/tasks"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if c == nil {
		// Help was requested
		return
	}

	logLevel := slog.LevelInfo
	if c.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting ThreatComb server", "version", c.Version)

	db, err := database.NewConnection(c.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", c.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", c.DBPath, "schema_version", version, "dirty", dirty)

	feedRepo := database.NewFeedRepository(db)
	entryRepo := database.NewEntryRepository(db)
	analysisRepo := database.NewAnalysisRepository(db)

	httpClient := &http.Client{
		Timeout: time.Duration(c.FetchTimeout) * time.Second,
	}

	feedParser := feed.NewParser()
	fetcher := feed.NewFetcher(httpClient, feedParser, c.UserAgent, time.Duration(c.FetchTimeout)*time.Second)
	deduplicator := feed.NewDeduplicator()
	extractor := feed.NewContentExtractor()

	modelClient := llm.NewClient(c.OllamaURL, c.OllamaModel, time.Duration(c.LLMTimeout)*time.Second)
	slog.Info("Model client configured", "url", c.OllamaURL, "model", c.OllamaModel)

	orchestrator := analysis.NewOrchestrator(modelClient, feedRepo, entryRepo, analysisRepo)

	scheduler := tasks.NewScheduler(feedRepo, entryRepo, fetcher, deduplicator, extractor,
		orchestrator, httpClient)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Background scheduler started", "workers", c.WorkerCount,
		"interval", (time.Duration(c.SchedulerInterval) * time.Second).String())

	apiHandler := api.NewHandler(feedRepo, entryRepo, analysisRepo, orchestrator, modelClient, scheduler)
	router := api.NewServer(apiHandler, c.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + c.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", c.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}
