package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wardd-org/wardd/internal/engine"
	"github.com/wardd-org/wardd/internal/events"
	"github.com/wardd-org/wardd/internal/safety"
	"github.com/wardd-org/wardd/internal/server/approvalstore"
	"github.com/wardd-org/wardd/internal/server/metrics"
	"github.com/wardd-org/wardd/internal/types"
)

func newApprovalsFixture(t *testing.T) (ApprovalsConfig, *events.MemorySink) {
	t.Helper()
	state := safety.NewState(safety.DefaultLimits(), safety.NewRateLimiter())
	approvals := approvalstore.New()
	sink := events.NewMemorySink(100)
	reg := metrics.NewRegistry()
	cfg := ApprovalsConfig{
		Safety:    state,
		Approvals: approvals,
		Engine: engine.NewManager(engine.Options{
			Safety:    state,
			Approvals: approvals,
			Audit:     sink,
			Registry:  reg,
		}),
		Audit:    sink,
		Registry: reg,
	}
	return cfg, sink
}

func createApproval(t *testing.T, cfg ApprovalsConfig, command string) types.Approval {
	t.Helper()
	rec := postJSON(t, NewApprovalsHandler(cfg), "/approvals", `{"command": `+mustQuote(command)+`}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var approval types.Approval
	if err := json.Unmarshal(rec.Body.Bytes(), &approval); err != nil {
		t.Fatal(err)
	}
	return approval
}

func mustQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestApprovalCreateClassifies(t *testing.T) {
	cfg, sink := newApprovalsFixture(t)
	approval := createApproval(t, cfg, "rm -rf /var/log/old")

	if approval.Status != types.ApprovalPending || !approval.IsDestructive {
		t.Fatalf("approval: %+v", approval)
	}
	if approval.RiskLevel != types.RiskCritical && approval.RiskLevel != types.RiskHigh {
		t.Fatalf("risk level = %s", approval.RiskLevel)
	}
	if got := sink.List(events.TypeApprovalRequested, 10); len(got) != 1 {
		t.Fatalf("approval_requested events: %d", len(got))
	}
}

func TestApprovalCreateRejectsEmptyCommand(t *testing.T) {
	cfg, _ := newApprovalsFixture(t)
	rec := postJSON(t, NewApprovalsHandler(cfg), "/approvals", `{"command": ""}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestApprovalCreateRejectsOversizedTarget(t *testing.T) {
	cfg, sink := newApprovalsFixture(t)
	cmd := "systemctl restart " + strings.Repeat("a", 300)
	rec := postJSON(t, NewApprovalsHandler(cfg), "/approvals", `{"command": `+mustQuote(cmd)+`}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := sink.List(events.TypeValidationFailed, 10); len(got) != 1 {
		t.Fatalf("validation_failed events: %d", len(got))
	}
}

func TestApprovalRejectIsTerminal(t *testing.T) {
	cfg, sink := newApprovalsFixture(t)
	approval := createApproval(t, cfg, "systemctl stop nginx")
	item := NewApprovalItemHandler(cfg)

	rec := postJSON(t, item, "/approvals/"+approval.ID+":respond", `{"approved": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payload approvalRespondPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Approval.Status != types.ApprovalRejected || payload.Approval.DecidedAt == nil {
		t.Fatalf("approval: %+v", payload.Approval)
	}
	if got := sink.List(events.TypeApprovalDenied, 10); len(got) != 1 {
		t.Fatalf("approval_denied events: %d", len(got))
	}

	// A second decision is a conflict, not a change of mind.
	rec = postJSON(t, item, "/approvals/"+approval.ID+":respond", `{"approved": true}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second respond status = %d", rec.Code)
	}
}

func TestApprovalEditRaisingRiskIsBlocked(t *testing.T) {
	cfg, sink := newApprovalsFixture(t)
	approval := createApproval(t, cfg, "systemctl restart nginx")
	item := NewApprovalItemHandler(cfg)

	rec := postJSON(t, item, "/approvals/"+approval.ID+":respond",
		`{"approved": true, "edited_command": "rm -rf /etc/nginx"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := sink.List(events.TypeApprovalEdited, 10); len(got) != 1 {
		t.Fatalf("approval_edited events: %d", len(got))
	}

	// The approval survives the blocked edit and stays decidable.
	stored, _ := cfg.Approvals.Get(approval.ID)
	if stored.Status != types.ApprovalPending {
		t.Fatalf("status = %s", stored.Status)
	}
}

func TestApprovalApproveWithSafeEdit(t *testing.T) {
	cfg, _ := newApprovalsFixture(t)
	approval := createApproval(t, cfg, "echo hello")
	item := NewApprovalItemHandler(cfg)

	rec := postJSON(t, item, "/approvals/"+approval.ID+":respond",
		`{"approved": true, "edited_command": "echo hello world"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payload approvalRespondPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Approval.EditedCommand != "echo hello world" {
		t.Fatalf("approval: %+v", payload.Approval)
	}
	// The edited command, not the original, is what ran.
	if payload.Result == nil || payload.Result.OutputPreview != "hello world" {
		t.Fatalf("result: %+v", payload.Result)
	}
}

func TestApprovalRespondRateLimited(t *testing.T) {
	cfg, _ := newApprovalsFixture(t)
	cfg.Safety.Limiter().Configure(types.CategoryApproval, 1, 60)
	first := createApproval(t, cfg, "uptime")
	second := createApproval(t, cfg, "df -h")
	item := NewApprovalItemHandler(cfg)

	rec := postJSON(t, item, "/approvals/"+first.ID+":respond", `{"approved": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec = postJSON(t, item, "/approvals/"+second.ID+":respond", `{"approved": true}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}

func TestApprovalApproveExecutesStandalone(t *testing.T) {
	cfg, sink := newApprovalsFixture(t)
	approval := createApproval(t, cfg, "echo approved")
	item := NewApprovalItemHandler(cfg)

	rec := postJSON(t, item, "/approvals/"+approval.ID+":respond",
		`{"approved": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payload approvalRespondPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Result == nil || !payload.Result.Success {
		t.Fatalf("result: %+v", payload.Result)
	}
	if got := sink.List(events.TypeCommandExecuted, 10); len(got) != 1 {
		t.Fatalf("command_executed events: %d", len(got))
	}
}

func TestApprovalListFiltersByConversation(t *testing.T) {
	cfg, _ := newApprovalsFixture(t)
	collection := NewApprovalsHandler(cfg)
	rec := postJSON(t, collection, "/approvals", `{"command": "rm -rf /tmp/a", "conversation_id": "conv-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	rec = postJSON(t, collection, "/approvals", `{"command": "rm -rf /tmp/b", "conversation_id": "conv-2"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/approvals?conversation_id=conv-1", nil)
	rec = httptest.NewRecorder()
	collection.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var payload struct {
		Approvals []types.Approval `json:"approvals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Approvals) != 1 || payload.Approvals[0].ConversationID != "conv-1" {
		t.Fatalf("approvals: %+v", payload.Approvals)
	}
}

func TestApprovalExplain(t *testing.T) {
	cfg, _ := newApprovalsFixture(t)
	approval := createApproval(t, cfg, "mv /etc/app.conf /etc/app.conf.bak")
	item := NewApprovalItemHandler(cfg)

	req := httptest.NewRequest(http.MethodGet, "/approvals/"+approval.ID+"/explain", nil)
	rec := httptest.NewRecorder()
	item.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payload approvalExplainPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.ApprovalID != approval.ID || payload.Command != approval.Command {
		t.Fatalf("payload: %+v", payload)
	}
	if payload.Preview.UndoCommand == "" {
		t.Fatal("expected a synthesized undo command for mv")
	}

	req = httptest.NewRequest(http.MethodGet, "/approvals/missing/explain", nil)
	rec = httptest.NewRecorder()
	item.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestApprovalGetNotFound(t *testing.T) {
	cfg, _ := newApprovalsFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/approvals/missing", nil)
	rec := httptest.NewRecorder()
	NewApprovalItemHandler(cfg).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
