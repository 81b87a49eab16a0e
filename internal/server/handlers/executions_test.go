package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wardd-org/wardd/internal/engine"
	"github.com/wardd-org/wardd/internal/events"
	"github.com/wardd-org/wardd/internal/safety"
	"github.com/wardd-org/wardd/internal/server/metrics"
	"github.com/wardd-org/wardd/internal/types"
)

func newEngine(t *testing.T) *engine.Manager {
	t.Helper()
	return engine.NewManager(engine.Options{
		Safety:   safety.NewState(safety.DefaultLimits(), safety.NewRateLimiter()),
		Audit:    events.NewMemorySink(100),
		Registry: metrics.NewRegistry(),
	})
}

func waitForTerminal(t *testing.T, mgr *engine.Manager, id string) types.Execution {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		snap, err := mgr.Snapshot(id)
		if err != nil {
			t.Fatal(err)
		}
		if types.IsTerminalExecutionState(snap.State) {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("execution never finished: %+v", snap)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestExecutionGetAndList(t *testing.T) {
	mgr := newEngine(t)
	exec, err := mgr.Start(types.Plan{ID: "p1", Steps: []types.Step{{ID: "s1", Number: 1, Command: "echo hi"}}})
	if err != nil {
		t.Fatal(err)
	}
	waitForTerminal(t, mgr, exec.ID)

	item := NewExecutionItemHandler(mgr)
	req := httptest.NewRequest(http.MethodGet, "/executions/"+exec.ID, nil)
	rec := httptest.NewRecorder()
	item.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got types.Execution
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.State != types.ExecutionCompleted {
		t.Fatalf("execution: %+v", got)
	}

	list := NewExecutionsHandler(mgr)
	req = httptest.NewRequest(http.MethodGet, "/executions", nil)
	rec = httptest.NewRecorder()
	list.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var payload struct {
		Executions []types.Execution `json:"executions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Executions) != 1 {
		t.Fatalf("executions: %+v", payload.Executions)
	}
}

func TestExecutionNotFound(t *testing.T) {
	item := NewExecutionItemHandler(newEngine(t))
	req := httptest.NewRequest(http.MethodGet, "/executions/missing", nil)
	rec := httptest.NewRecorder()
	item.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestExecutionKillTerminalConflict(t *testing.T) {
	mgr := newEngine(t)
	exec, err := mgr.Start(types.Plan{ID: "p1", Steps: []types.Step{{ID: "s1", Number: 1, Command: "true"}}})
	if err != nil {
		t.Fatal(err)
	}
	waitForTerminal(t, mgr, exec.ID)

	item := NewExecutionItemHandler(mgr)
	rec := postJSON(t, item, "/executions/"+exec.ID+":kill", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
