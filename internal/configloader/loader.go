// SPDX-License-Identifier: AGPL-3.0-or-later

// Package configloader reads the wardd YAML configuration file and applies
// environment overrides. Every value is optional; the zero config yields a
// daemon bound to loopback with the default safety limits.
package configloader

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wardd-org/wardd/internal/paths"
	"github.com/wardd-org/wardd/internal/types"
)

const (
	envConfigPath = "WARDD_CONFIG"
	envBind       = "WARDD_BIND"
	envAuthToken  = "WARDD_AUTH_TOKEN"
	envDataDir    = "WARDD_DATA_DIR"
)

// LogConfig selects log output shape and verbosity.
type LogConfig struct {
	Format string `yaml:"format"` // text or json
	Level  string `yaml:"level"`  // debug, info, warn, error
}

// SafetyConfig carries the circuit breaker and input ceilings. Values
// outside the allowed ranges are clamped when applied, never rejected.
// MaxSudoEscalations is a pointer because zero is meaningful: it denies
// every escalation.
type SafetyConfig struct {
	MaxIterations             int  `yaml:"max_iterations"`
	WallClockTimeoutSeconds   int  `yaml:"wall_clock_timeout_seconds"`
	MaxSudoEscalations        *int `yaml:"max_sudo_escalations"`
	CheckpointAfterRecoveries int  `yaml:"checkpoint_after_recoveries"`
	MaxCommandLength          int  `yaml:"max_command_length"`
}

// ExecConfig shapes how step commands are dispatched.
type ExecConfig struct {
	Shell          string   `yaml:"shell"`
	WorkDir        string   `yaml:"work_dir"`
	MaxOutputBytes int      `yaml:"max_output_bytes"`
	RedactValues   []string `yaml:"redact_values"`
}

// FileConfig mirrors config.yaml.
type FileConfig struct {
	Bind                    string                  `yaml:"bind"`
	Log                     LogConfig               `yaml:"log"`
	AuthToken               string                  `yaml:"auth_token"`
	DataDir                 string                  `yaml:"data_dir"`
	JournalQuotaBytes       int64                   `yaml:"journal_quota_bytes"`
	MaxConcurrentExecutions int                     `yaml:"max_concurrent_executions"`
	Safety                  SafetyConfig            `yaml:"safety"`
	RateLimits              []types.RateLimitConfig `yaml:"rate_limits"`
	Exec                    ExecConfig              `yaml:"exec"`
}

var knownCategories = map[string]struct{}{
	types.CategoryAuth:      {},
	types.CategorySudo:      {},
	types.CategoryService:   {},
	types.CategoryContainer: {},
	types.CategoryPackage:   {},
	types.CategoryApproval:  {},
}

// Load reads the config file at path, or at $WARDD_CONFIG when path is
// empty. No path at all is not an error: env overrides still apply on top
// of the zero config. An explicitly named file must exist and parse.
func Load(path string) (*FileConfig, error) {
	if path == "" {
		path = os.Getenv(envConfigPath)
	}

	var cfg FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Data directory precedence: config file > WARDD_DATA_DIR > platform
	// default. The resolved value is pinned so every package sees the same
	// location.
	if cfg.DataDir != "" {
		paths.SetDataDirOverride(cfg.DataDir)
	}
	cfg.DataDir = paths.DataDir()
	paths.SetDataDirOverride(cfg.DataDir)

	return &cfg, nil
}

func (c *FileConfig) applyEnv() {
	if bind := os.Getenv(envBind); bind != "" {
		c.Bind = bind
	}
	if token := os.Getenv(envAuthToken); token != "" {
		c.AuthToken = token
	}
	if dir := os.Getenv(envDataDir); dir != "" && c.DataDir == "" {
		c.DataDir = dir
	}
}

func (c *FileConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.Log.Format)
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	seen := make(map[string]struct{}, len(c.RateLimits))
	for i, rl := range c.RateLimits {
		category := strings.ToLower(strings.TrimSpace(rl.Category))
		if _, ok := knownCategories[category]; !ok {
			return fmt.Errorf("rate_limits[%d]: unknown category %q", i, rl.Category)
		}
		if _, dup := seen[category]; dup {
			return fmt.Errorf("rate_limits[%d]: duplicate category %q", i, category)
		}
		seen[category] = struct{}{}
		c.RateLimits[i].Category = category
	}
	return nil
}
