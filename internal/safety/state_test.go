// SPDX-License-Identifier: AGPL-3.0-or-later
package safety

import (
	"errors"
	"strings"
	"testing"

	"github.com/wardd-org/wardd/internal/types"
)

func TestStateSudoCeiling(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxSudo = 2
	s := NewState(limits, nil)

	if err := s.RecordSudo(); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSudo(); err != nil {
		t.Fatal(err)
	}

	err := s.RecordSudo()
	var be *BreakerError
	if !errors.As(err, &be) {
		t.Fatalf("want BreakerError, got %v", err)
	}
	if be.Reason != types.ReasonPrivilegeLimit {
		t.Fatalf("reason = %q, want %q", be.Reason, types.ReasonPrivilegeLimit)
	}
	if s.SudoCount() != 2 {
		t.Fatalf("counter moved past ceiling: %d", s.SudoCount())
	}
}

func TestStateSudoLimitZeroDeniesAll(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxSudo = 0
	s := NewState(limits, nil)

	err := s.RecordSudo()
	var be *BreakerError
	if !errors.As(err, &be) {
		t.Fatalf("want BreakerError, got %v", err)
	}
	if be.Current != 0 {
		t.Fatalf("current = %d, want 0", be.Current)
	}
}

func TestStateSettersClamp(t *testing.T) {
	s := NewState(DefaultLimits(), nil)

	tests := []struct {
		name string
		got  int
		want int
	}{
		{"iterations below floor", s.SetMaxIterations(0), MinOperations},
		{"iterations above ceil", s.SetMaxIterations(100000), MaxOperationsCeil},
		{"wall clock below floor", s.SetWallClockTimeout(1), MinWallClock},
		{"wall clock above ceil", s.SetWallClockTimeout(86400), MaxWallClockCeil},
		{"sudo below floor", s.SetSudoLimit(-1), MinSudo},
		{"sudo above ceil", s.SetSudoLimit(500), MaxSudoCeil},
		{"command length below floor", s.SetCommandLength(10), MinCommandLength},
		{"command length above ceil", s.SetCommandLength(1 << 20), MaxCommandLenCeil},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, tt.got, tt.want)
		}
	}

	cfg := s.SetRateLimit("sudo", 0, 100000)
	if cfg.MaxRequests != MinRateRequests || cfg.WindowSeconds != MaxRateWindowSecs {
		t.Fatalf("rate limit not clamped: %+v", cfg)
	}
}

func TestStateSetterInRangeApplied(t *testing.T) {
	s := NewState(DefaultLimits(), nil)
	if got := s.SetMaxIterations(50); got != 50 {
		t.Fatalf("got %d, want 50", got)
	}
	if s.Limits().MaxOperations != 50 {
		t.Fatalf("limits not updated: %+v", s.Limits())
	}
}

func TestStateValidateCommand(t *testing.T) {
	s := NewState(DefaultLimits(), nil)

	if err := s.ValidateCommand("ls -la"); err != nil {
		t.Fatal(err)
	}
	if err := s.ValidateCommand(""); err == nil {
		t.Fatal("empty command accepted")
	}
	long := strings.Repeat("a", 4097)
	if err := s.ValidateCommand(long); err == nil {
		t.Fatal("oversized command accepted")
	}
	var ve *ValidationError
	if !errors.As(s.ValidateCommand(long), &ve) {
		t.Fatal("want ValidationError")
	}
}

func TestStateSettingsSnapshot(t *testing.T) {
	s := NewState(DefaultLimits(), nil)
	_ = s.RecordSudo()

	got := s.Settings(23, 17)
	if got.CurrentSudoCount != 1 || got.MaxSudoEscalations != 3 {
		t.Fatalf("sudo = %d/%d", got.CurrentSudoCount, got.MaxSudoEscalations)
	}
	if got.MaxIterations != 25 || got.WallClockTimeoutSecs != 300 {
		t.Fatalf("limits = %d/%ds", got.MaxIterations, got.WallClockTimeoutSecs)
	}
	if got.DangerousPatternCount != 23 || got.InjectionPatternCount != 17 {
		t.Fatalf("pattern counts = %d/%d", got.DangerousPatternCount, got.InjectionPatternCount)
	}
	if len(got.RateLimits) != 6 {
		t.Fatalf("rate limit categories = %d, want 6", len(got.RateLimits))
	}
}

func TestValidateIdentifiers(t *testing.T) {
	s := NewState(DefaultLimits(), nil)

	valid := []struct {
		name string
		err  error
	}{
		{"nginx", s.ValidateServiceName("nginx")},
		{"unit with instance", s.ValidateServiceName("getty@tty1.service")},
		{"container", s.ValidateContainerID("web-1")},
		{"package", s.ValidatePackageName("libssl1.1")},
	}
	for _, tt := range valid {
		if tt.err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, tt.err)
		}
	}

	invalid := []struct {
		name string
		err  error
	}{
		{"empty", s.ValidateServiceName("")},
		{"semicolon", s.ValidateServiceName("nginx; rm -rf /")},
		{"substitution", s.ValidatePackageName("pkg$(id)")},
		{"backtick", s.ValidateContainerID("web`id`")},
		{"leading dash", s.ValidateServiceName("-f")},
		{"too long", s.ValidateServiceName(strings.Repeat("a", 257))},
	}
	for _, tt := range invalid {
		if tt.err == nil {
			t.Errorf("%s: accepted", tt.name)
		}
	}
}

func TestValidateTargets(t *testing.T) {
	s := NewState(DefaultLimits(), nil)

	ok := []string{
		"systemctl restart nginx",
		"docker stop web-1",
		"apt-get install libssl1.1",
		"ls -la /tmp",
	}
	for _, cmd := range ok {
		if err := s.ValidateTargets(cmd); err != nil {
			t.Errorf("ValidateTargets(%q): %v", cmd, err)
		}
	}

	bad := []struct {
		name string
		cmd  string
	}{
		{"oversized unit", "systemctl restart " + strings.Repeat("a", 257)},
		{"oversized container", "docker rm " + strings.Repeat("c", 257)},
		{"oversized package", "sudo apt-get remove " + strings.Repeat("p", 257)},
	}
	for _, tt := range bad {
		var ve *ValidationError
		if err := s.ValidateTargets(tt.cmd); !errors.As(err, &ve) {
			t.Errorf("%s: want ValidationError, got %v", tt.name, err)
		}
	}
}
