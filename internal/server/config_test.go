package server

import (
	"strings"
	"testing"

	"github.com/wardd-org/wardd/internal/configloader"
	"github.com/wardd-org/wardd/internal/safety"
)

func TestConfigNormalizeDefaults(t *testing.T) {
	cfg := Config{}.normalize()

	if cfg.Bind != defaultBindAddress {
		t.Fatalf("bind = %q", cfg.Bind)
	}
	if cfg.Limits != safety.DefaultLimits() {
		t.Fatalf("limits = %+v", cfg.Limits)
	}
	if cfg.MaxConcurrent != defaultMaxConcurrent || cfg.AuditBuffer != defaultAuditBuffer {
		t.Fatalf("concurrency defaults: %+v", cfg)
	}
	if !cfg.MetricsEnabled || !cfg.MetricsAllowUnauthenticated {
		t.Fatalf("metrics defaults: enabled=%v unauthenticated=%v", cfg.MetricsEnabled, cfg.MetricsAllowUnauthenticated)
	}
}

func TestConfigNormalizeClampsLimits(t *testing.T) {
	cfg := Config{Limits: safety.Limits{
		MaxOperations:    500,
		WallClockSeconds: 1,
		MaxSudo:          99,
		CheckpointAfter:  0,
		MaxCommandLength: 10,
	}}.normalize()

	if cfg.Limits.MaxOperations != safety.MaxOperationsCeil {
		t.Fatalf("max operations = %d", cfg.Limits.MaxOperations)
	}
	if cfg.Limits.WallClockSeconds != safety.MinWallClock {
		t.Fatalf("wall clock = %d", cfg.Limits.WallClockSeconds)
	}
	if cfg.Limits.MaxSudo != safety.MaxSudoCeil {
		t.Fatalf("max sudo = %d", cfg.Limits.MaxSudo)
	}
	if cfg.Limits.MaxCommandLength != safety.MinCommandLength {
		t.Fatalf("command length = %d", cfg.Limits.MaxCommandLength)
	}
}

func TestConfigNormalizeBuildsOutputRedactor(t *testing.T) {
	cfg := Config{
		AuthToken:    "tok3n",
		RedactValues: []string{"dbpass"},
	}.normalize()

	if cfg.Executor.Redact == nil {
		t.Fatal("no redactor built")
	}
	got := cfg.Executor.Redact("auth tok3n and dbpass here")
	if strings.Contains(got, "tok3n") || strings.Contains(got, "dbpass") {
		t.Fatalf("secrets survived: %q", got)
	}

	// No secrets configured means no redactor at all.
	if plain := (Config{}).normalize(); plain.Executor.Redact != nil {
		t.Fatal("redactor built with nothing to mask")
	}
}

func TestConfigNormalizeNonLoopbackBindGuardsMetrics(t *testing.T) {
	cfg := Config{Bind: "0.0.0.0:8787"}.normalize()
	if cfg.MetricsAllowUnauthenticated {
		t.Fatal("metrics must require auth on non-loopback binds")
	}
}

func TestFromFileMapsSafety(t *testing.T) {
	zero := 0
	file := &configloader.FileConfig{
		Bind:              "127.0.0.1:9000",
		AuthToken:         "tok",
		JournalQuotaBytes: 1 << 20,
		Safety: configloader.SafetyConfig{
			MaxIterations:             12,
			WallClockTimeoutSeconds:   60,
			MaxSudoEscalations:        &zero,
			CheckpointAfterRecoveries: 4,
		},
		Exec: configloader.ExecConfig{RedactValues: []string{"dbpass"}},
	}

	cfg := FromFile(file)
	if cfg.Bind != "127.0.0.1:9000" || cfg.AuthToken != "tok" {
		t.Fatalf("config: %+v", cfg)
	}
	if cfg.Limits.MaxOperations != 12 || cfg.Limits.WallClockSeconds != 60 {
		t.Fatalf("limits: %+v", cfg.Limits)
	}
	if cfg.Limits.MaxSudo != 0 {
		t.Fatalf("max sudo = %d, want 0", cfg.Limits.MaxSudo)
	}
	if cfg.Limits.CheckpointAfter != 4 {
		t.Fatalf("checkpoint after = %d", cfg.Limits.CheckpointAfter)
	}
	if cfg.CoreDBOptions.JournalMaxBytes != 1<<20 {
		t.Fatalf("journal quota = %d", cfg.CoreDBOptions.JournalMaxBytes)
	}
	// Unset safety fields keep the shipped defaults.
	if cfg.Limits.MaxCommandLength != safety.DefaultLimits().MaxCommandLength {
		t.Fatalf("command length = %d", cfg.Limits.MaxCommandLength)
	}
	if len(cfg.RedactValues) != 1 || cfg.RedactValues[0] != "dbpass" {
		t.Fatalf("redact values: %v", cfg.RedactValues)
	}
}

func TestIsLoopbackAddress(t *testing.T) {
	cases := []struct {
		bind string
		want bool
	}{
		{"127.0.0.1:8787", true},
		{"localhost:8787", true},
		{"[::1]:8787", true},
		{"0.0.0.0:8787", false},
		{"10.0.0.5:8787", false},
		{"*", false},
	}
	for _, tc := range cases {
		if got := isLoopbackAddress(tc.bind); got != tc.want {
			t.Errorf("isLoopbackAddress(%q) = %v, want %v", tc.bind, got, tc.want)
		}
	}
}
