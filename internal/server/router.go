// SPDX-License-Identifier: AGPL-3.0-or-later
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/wardd-org/wardd/internal/coredb"
	"github.com/wardd-org/wardd/internal/engine"
	"github.com/wardd-org/wardd/internal/events"
	"github.com/wardd-org/wardd/internal/paths"
	"github.com/wardd-org/wardd/internal/safety"
	"github.com/wardd-org/wardd/internal/server/approvalstore"
	"github.com/wardd-org/wardd/internal/server/handlers"
	"github.com/wardd-org/wardd/internal/server/metrics"
	"github.com/wardd-org/wardd/internal/server/planstore"
)

// Run boots the HTTP server until the context is canceled or an
// unrecoverable error occurs.
func Run(ctx context.Context, cfg Config) error {
	if cfg.DataDir != "" {
		paths.SetDataDirOverride(cfg.DataDir)
	}
	norm := cfg.normalize()
	paths.SetDataDirOverride(norm.DataDir)

	db, err := coredb.Open(ctx, norm.CoreDBOptions)
	if err != nil {
		return fmt.Errorf("open core db: %w", err)
	}
	defer db.Close()
	norm.CoreDB = db

	logger := newLogger(norm)
	if norm.MetricsEnabled {
		version := os.Getenv("WARDD_VERSION")
		if version == "" {
			version = "dev"
		}
		metrics.Default.SetBuildInfo(map[string]string{"version": version})
	}

	server := &http.Server{
		Addr:    norm.Bind,
		Handler: buildHandler(norm, logger),
	}

	logger.Info("wardd listening", "bind", norm.Bind, "data_dir", norm.DataDir)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), norm.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func buildHandler(cfg Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusNoContent)
	})
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", metrics.Default.Handler())
	}

	state := safety.NewState(cfg.Limits, safety.NewRateLimiter())
	for _, rl := range cfg.RateLimits {
		state.SetRateLimit(rl.Category, rl.MaxRequests, rl.WindowSeconds)
	}

	journal := coredb.NewJournal(cfg.CoreDB, cfg.CoreDBOptions.JournalMaxBytes)
	memorySink := events.NewMemorySink(cfg.AuditBuffer)
	audit := events.NewCompositeSink(
		coredb.NewJournalSink(journal, logger),
		memorySink,
		events.NewEmitter(cfg.AuditStream, true),
	)

	plans := planstore.New()
	approvals := approvalstore.New()
	mgr := engine.NewManager(engine.Options{
		Safety:        state,
		Approvals:     approvals,
		Audit:         audit,
		Logger:        logger,
		Registry:      metrics.Default,
		Executor:      cfg.Executor,
		MaxConcurrent: cfg.MaxConcurrent,
	})

	plansCfg := handlers.PlansConfig{
		Safety:    state,
		Plans:     plans,
		Approvals: approvals,
		Engine:    mgr,
		Audit:     audit,
		Registry:  metrics.Default,
	}
	approvalsCfg := handlers.ApprovalsConfig{
		Safety:    state,
		Approvals: approvals,
		Engine:    mgr,
		Audit:     audit,
		Registry:  metrics.Default,
	}

	mux.Handle("/plans", handlers.NewPlansHandler(plansCfg))
	mux.Handle("/plans/", handlers.NewPlanItemHandler(plansCfg))
	mux.Handle("/executions", handlers.NewExecutionsHandler(mgr))
	mux.Handle("/executions/", handlers.NewExecutionItemHandler(mgr))
	mux.Handle("/approvals", handlers.NewApprovalsHandler(approvalsCfg))
	mux.Handle("/approvals/", handlers.NewApprovalItemHandler(approvalsCfg))
	mux.Handle("/safety/settings", handlers.NewSafetySettingsHandler(state))
	mux.Handle("/safety/rate-limit", handlers.NewRateLimitHandler(state))
	mux.Handle("/safety/sudo-limit", handlers.NewSafetyLimitHandler("max_sudo_escalations", state.SetSudoLimit))
	mux.Handle("/safety/max-iterations", handlers.NewSafetyLimitHandler("max_iterations", state.SetMaxIterations))
	mux.Handle("/safety/wall-clock-timeout", handlers.NewSafetyLimitHandler("wall_clock_timeout_seconds", state.SetWallClockTimeout))
	mux.Handle("/safety/command-length", handlers.NewSafetyLimitHandler("max_command_length", state.SetCommandLength))
	mux.Handle("/audit/events", handlers.NewAuditHandler(handlers.AuditConfig{
		Journal: journal,
		Memory:  memorySink,
	}))
	mux.Handle("/health/storage", handlers.NewStorageHealthHandler(cfg.CoreDB))

	return chainMiddleware(mux,
		metricsMiddleware(cfg),
		loggingMiddleware(logger),
		authMiddleware(cfg, state, audit),
	)
}
