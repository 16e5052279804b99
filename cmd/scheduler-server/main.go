package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/photonqc/scheduler/internal/app"
)

func main() {
	configPath := os.Getenv("SCHEDULER_CONFIG")

	ctx := context.Background()
	a, err := app.NewApp(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize scheduler: %v\n", err)
		os.Exit(1)
	}

	// Both surfaces run in the same process and share the job manager.
	errChan := make(chan error, 2)
	go func() {
		if err := a.Submission.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("submission server failed: %w", err)
		}
	}()
	go func() {
		if err := a.Execution.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("execution server failed: %w", err)
		}
	}()

	a.Logger.Info().
		Int("submission_port", a.Config.Submission.Port).
		Int("execution_port", a.Config.Execution.Port).
		Msg("Scheduler ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		a.Logger.Info().Msg("Shutdown signal received")
	case err := <-errChan:
		a.Logger.Error().Err(err).Msg("Server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Submission.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("Submission server shutdown failed")
	}
	if err := a.Execution.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("Execution server shutdown failed")
	}

	a.Logger.Info().Msg("Scheduler stopped")
}
