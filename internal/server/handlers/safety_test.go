package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wardd-org/wardd/internal/safety"
	"github.com/wardd-org/wardd/internal/types"
)

func TestSafetySettingsSnapshot(t *testing.T) {
	state := safety.NewState(safety.DefaultLimits(), safety.NewRateLimiter())
	h := NewSafetySettingsHandler(state)

	req := httptest.NewRequest(http.MethodGet, "/safety/settings", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var settings types.SafetySettings
	if err := json.Unmarshal(rec.Body.Bytes(), &settings); err != nil {
		t.Fatal(err)
	}
	if settings.MaxIterations != 25 || settings.WallClockTimeoutSecs != 300 {
		t.Fatalf("settings: %+v", settings)
	}
	if settings.DangerousPatternCount == 0 || settings.InjectionPatternCount == 0 {
		t.Fatalf("pattern counts missing: %+v", settings)
	}
}

func TestRateLimitUpdateClamps(t *testing.T) {
	state := safety.NewState(safety.DefaultLimits(), safety.NewRateLimiter())
	h := NewRateLimitHandler(state)

	rec := postJSON(t, h, "/safety/rate-limit",
		`{"category": "sudo", "max_requests": 99999, "window_seconds": 0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var effective types.RateLimitConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &effective); err != nil {
		t.Fatal(err)
	}
	if effective.MaxRequests != safety.MaxRateRequests || effective.WindowSeconds != safety.MinRateWindowSecs {
		t.Fatalf("effective: %+v", effective)
	}
}

func TestRateLimitUpdateRejectsUnknownCategory(t *testing.T) {
	state := safety.NewState(safety.DefaultLimits(), safety.NewRateLimiter())
	rec := postJSON(t, NewRateLimitHandler(state), "/safety/rate-limit",
		`{"category": "filesystem", "max_requests": 5, "window_seconds": 60}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSafetyLimitHandlers(t *testing.T) {
	state := safety.NewState(safety.DefaultLimits(), safety.NewRateLimiter())

	cases := []struct {
		field string
		apply func(int) int
		value int
		want  int
	}{
		{"max_sudo_escalations", state.SetSudoLimit, 99, safety.MaxSudoCeil},
		{"max_sudo_escalations", state.SetSudoLimit, 0, 0},
		{"max_iterations", state.SetMaxIterations, 0, safety.MinOperations},
		{"wall_clock_timeout_seconds", state.SetWallClockTimeout, 7200, safety.MaxWallClockCeil},
		{"max_command_length", state.SetCommandLength, 1, safety.MinCommandLength},
	}
	for _, tc := range cases {
		h := NewSafetyLimitHandler(tc.field, tc.apply)
		rec := postJSON(t, h, "/safety/"+tc.field,
			`{"`+tc.field+`": `+jsonInt(tc.value)+`}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tc.field, rec.Code)
		}
		var out map[string]int
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatal(err)
		}
		if out[tc.field] != tc.want {
			t.Errorf("%s(%d) = %d, want %d", tc.field, tc.value, out[tc.field], tc.want)
		}
	}
}

func TestSafetyLimitHandlerMissingField(t *testing.T) {
	state := safety.NewState(safety.DefaultLimits(), safety.NewRateLimiter())
	h := NewSafetyLimitHandler("max_iterations", state.SetMaxIterations)
	rec := postJSON(t, h, "/safety/max-iterations", `{"other": 5}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
}

func jsonInt(v int) string {
	b, _ := json.Marshal(v)
	return string(b)
}
