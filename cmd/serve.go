// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wardd-org/wardd/internal/configloader"
	"github.com/wardd-org/wardd/internal/server"
)

// NewServeCmd creates the serve command that bootstraps the HTTP daemon.
func NewServeCmd() *cobra.Command {
	var (
		configPath     string
		bindAddr       string
		logFormat      string
		dataDir        string
		auditLogPath   string
		metricsEnabled bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the wardd safety daemon (REST API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := configloader.Load(configPath)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			cfg := server.FromFile(file)
			cfg.StdOut = os.Stdout
			cfg.StdErr = os.Stderr
			cfg.MetricsEnabled = metricsEnabled
			cfg.MetricsConfigured = true
			if cmd.Flags().Changed("bind") {
				cfg.Bind = bindAddr
			}
			if cmd.Flags().Changed("log") {
				cfg.LogFormat = logFormat
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			if auditLogPath != "" {
				f, err := os.OpenFile(auditLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return fmt.Errorf("serve: open audit log: %w", err)
				}
				defer f.Close()
				cfg.AuditStream = f
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := server.Run(ctx, cfg); err != nil {
				if ctx.Err() != nil {
					// Shutdown initiated; surface as exit 0 after graceful stop.
					return nil
				}
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config.yaml (overrides WARDD_CONFIG)")
	cmd.Flags().StringVar(&bindAddr, "bind", "127.0.0.1:8787", "Address for HTTP server to listen on")
	cmd.Flags().StringVar(&logFormat, "log", "text", "Log output format (text|json)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for the audit journal database")
	cmd.Flags().StringVar(&auditLogPath, "audit-log", "", "Append audit events as JSON lines to this file")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics", true, "Expose Prometheus /metrics endpoint")

	return cmd
}
