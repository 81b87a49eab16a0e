// SPDX-License-Identifier: AGPL-3.0-or-later
package server

import (
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/wardd-org/wardd/internal/configloader"
	"github.com/wardd-org/wardd/internal/coredb"
	"github.com/wardd-org/wardd/internal/events"
	"github.com/wardd-org/wardd/internal/executor"
	"github.com/wardd-org/wardd/internal/paths"
	"github.com/wardd-org/wardd/internal/safety"
	"github.com/wardd-org/wardd/internal/types"
)

const (
	defaultBindAddress     = "127.0.0.1:8787"
	defaultLogFormat       = "text"
	defaultShutdownTimeout = 15 * time.Second
	defaultMaxConcurrent   = 4
	defaultAuditBuffer     = 1000
)

// Config carries serve-mode runtime settings derived from the config file,
// CLI flags and env vars.
type Config struct {
	Bind            string
	LogFormat       string
	LogLevel        string
	AuthToken       string
	StdOut          io.Writer
	StdErr          io.Writer
	ShutdownTimeout time.Duration

	DataDir       string
	CoreDBOptions coredb.Options
	CoreDB        *coredb.DB

	Limits        safety.Limits
	RateLimits    []types.RateLimitConfig
	Executor      executor.Config
	// RedactValues are literal secrets masked out of captured command
	// output before it reaches snapshots or the audit trail. The auth
	// token is always included.
	RedactValues  []string
	MaxConcurrent int64
	AuditBuffer   int
	// AuditStream receives every audit event as one JSON line when set.
	AuditStream io.Writer

	MetricsEnabled              bool
	MetricsConfigured           bool
	MetricsAllowUnauthenticated bool
}

// FromFile maps a loaded config file onto serve-mode settings. Zero safety
// values fall back to the defaults rather than clamping to the minimum.
func FromFile(file *configloader.FileConfig) Config {
	cfg := Config{
		Bind:          file.Bind,
		LogFormat:     file.Log.Format,
		LogLevel:      file.Log.Level,
		AuthToken:     file.AuthToken,
		DataDir:       file.DataDir,
		RateLimits:    file.RateLimits,
		MaxConcurrent: int64(file.MaxConcurrentExecutions),
		Limits:        safety.DefaultLimits(),
		Executor: executor.Config{
			Shell:          file.Exec.Shell,
			WorkDir:        file.Exec.WorkDir,
			MaxOutputBytes: file.Exec.MaxOutputBytes,
		},
		RedactValues: file.Exec.RedactValues,
	}
	cfg.CoreDBOptions.JournalMaxBytes = file.JournalQuotaBytes
	if file.Safety.MaxIterations > 0 {
		cfg.Limits.MaxOperations = file.Safety.MaxIterations
	}
	if file.Safety.WallClockTimeoutSeconds > 0 {
		cfg.Limits.WallClockSeconds = file.Safety.WallClockTimeoutSeconds
	}
	if file.Safety.MaxSudoEscalations != nil {
		cfg.Limits.MaxSudo = *file.Safety.MaxSudoEscalations
	}
	if file.Safety.CheckpointAfterRecoveries > 0 {
		cfg.Limits.CheckpointAfter = file.Safety.CheckpointAfterRecoveries
	}
	if file.Safety.MaxCommandLength > 0 {
		cfg.Limits.MaxCommandLength = file.Safety.MaxCommandLength
	}
	return cfg
}

// normalize applies defaults when values are not supplied.
func (c Config) normalize() Config {
	if c.Bind == "" {
		c.Bind = defaultBindAddress
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	if c.DataDir == "" {
		c.DataDir = paths.DataDir()
	}
	if c.CoreDBOptions.DataDir == "" {
		c.CoreDBOptions.DataDir = c.DataDir
	}
	if c.Limits == (safety.Limits{}) {
		c.Limits = safety.DefaultLimits()
	}
	c.Limits = c.Limits.Clamped()
	if c.Executor.Redact == nil {
		secrets := append(append([]string(nil), c.RedactValues...), c.AuthToken)
		c.Executor.Redact = events.NewLineRedactor(secrets)
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	if c.AuditBuffer <= 0 {
		c.AuditBuffer = defaultAuditBuffer
	}
	if c.StdOut == nil {
		c.StdOut = os.Stdout
	}
	if c.StdErr == nil {
		c.StdErr = os.Stderr
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if !c.MetricsConfigured {
		c.MetricsEnabled = true
	}
	if c.MetricsEnabled {
		c.MetricsAllowUnauthenticated = isLoopbackAddress(c.Bind)
	} else {
		c.MetricsAllowUnauthenticated = false
	}
	return c
}

func isLoopbackAddress(bind string) bool {
	host := bind
	if strings.Contains(bind, ":") {
		parsedHost, _, err := net.SplitHostPort(bind)
		if err == nil {
			host = parsedHost
		}
	}
	if host == "" {
		host = "0.0.0.0"
	}
	if host == "*" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
