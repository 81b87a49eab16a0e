package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wardd-org/wardd/internal/events"
)

func seedMemorySink() *events.MemorySink {
	sink := events.NewMemorySink(100)
	events.Record(sink, events.Event{Type: events.TypeCommandExecuted, ExecutionID: "e1", Command: "uptime"})
	events.Record(sink, events.Event{Type: events.TypeCommandExecuted, ExecutionID: "e2", Command: "df -h"})
	events.Record(sink, events.Event{Type: events.TypeSudoUsed, ExecutionID: "e1", Command: "sudo reboot"})
	return sink
}

func getAuditEvents(t *testing.T, h http.Handler, target string) []events.Event {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Events []events.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	return payload.Events
}

func TestAuditMemoryFallback(t *testing.T) {
	h := NewAuditHandler(AuditConfig{Memory: seedMemorySink()})

	all := getAuditEvents(t, h, "/audit/events")
	if len(all) != 3 {
		t.Fatalf("events: %d", len(all))
	}
	// Newest first.
	if all[0].Type != events.TypeSudoUsed {
		t.Fatalf("order: %+v", all)
	}

	byType := getAuditEvents(t, h, "/audit/events?type=command_executed")
	if len(byType) != 2 {
		t.Fatalf("filtered by type: %d", len(byType))
	}

	byExec := getAuditEvents(t, h, "/audit/events?execution_id=e1")
	if len(byExec) != 2 {
		t.Fatalf("filtered by execution: %d", len(byExec))
	}

	limited := getAuditEvents(t, h, "/audit/events?limit=1")
	if len(limited) != 1 {
		t.Fatalf("limited: %d", len(limited))
	}
}

func TestAuditRejectsBadLimit(t *testing.T) {
	h := NewAuditHandler(AuditConfig{Memory: seedMemorySink()})
	req := httptest.NewRequest(http.MethodGet, "/audit/events?limit=zero", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuditEmptyWithoutSources(t *testing.T) {
	h := NewAuditHandler(AuditConfig{})
	if got := getAuditEvents(t, h, "/audit/events"); len(got) != 0 {
		t.Fatalf("events: %+v", got)
	}
}
