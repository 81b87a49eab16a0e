package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wardd-org/wardd/internal/engine"
	"github.com/wardd-org/wardd/internal/events"
	"github.com/wardd-org/wardd/internal/plan"
	"github.com/wardd-org/wardd/internal/risk"
	"github.com/wardd-org/wardd/internal/safety"
	"github.com/wardd-org/wardd/internal/server/approvalstore"
	"github.com/wardd-org/wardd/internal/server/metrics"
	"github.com/wardd-org/wardd/internal/server/planstore"
	"github.com/wardd-org/wardd/internal/server/requestctx"
	"github.com/wardd-org/wardd/internal/server/response"
	"github.com/wardd-org/wardd/internal/types"
)

// PlansConfig wires the plan endpoints to their collaborators.
type PlansConfig struct {
	Safety    *safety.State
	Plans     *planstore.Store
	Approvals *approvalstore.Store
	Engine    *engine.Manager
	Audit     events.Sink
	Registry  *metrics.Registry
}

func (c PlansConfig) registry() *metrics.Registry {
	if c.Registry != nil {
		return c.Registry
	}
	return metrics.Default
}

type planPayload struct {
	Plan     types.Plan              `json:"plan"`
	Findings []plan.InjectionFinding `json:"injection_findings,omitempty"`
}

// NewPlansHandler returns the handler for /plans: POST submits a plan for
// risk annotation, GET lists known plans.
func NewPlansHandler(cfg PlansConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlePlanCreate(cfg, w, r)
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"plans": cfg.Plans.List()})
		default:
			response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
		}
	})
}

func handlePlanCreate(cfg PlansConfig, w http.ResponseWriter, r *http.Request) {
	var in plan.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Write(w, response.New(http.StatusBadRequest, "invalid JSON body",
			response.WithType(response.TypeValidation),
			response.WithDetail(err.Error()),
		))
		return
	}

	result, err := plan.Build(cfg.Safety, in)
	if err != nil {
		var ve *safety.ValidationError
		if errors.As(err, &ve) {
			events.Record(cfg.Audit, events.Event{
				Type: events.TypeValidationFailed,
				Data: map[string]interface{}{"field": ve.Field, "message": ve.Msg},
			})
		}
		requestctx.LogSafetyDecision(r.Context(), "plan", "blocked", "422", err.Error())
		response.WriteError(w, r.URL.Path, err)
		return
	}

	built := result.Plan
	for _, step := range built.Steps {
		cfg.registry().RecordClassification(string(step.RiskLevel))
	}
	cfg.Plans.Create(built)

	// Destructive steps each get a pending approval before anything can run.
	for _, step := range built.Steps {
		if !step.IsDestructive {
			continue
		}
		preview := risk.BuildPreview(step.Command)
		approval := types.Approval{
			ID:             uuid.NewString(),
			Command:        step.Command,
			Explanation:    step.Explanation,
			RiskLevel:      step.RiskLevel,
			IsDestructive:  true,
			UndoCommand:    step.UndoCommand,
			AffectedPaths:  preview.AffectedPaths,
			PlanID:         built.ID,
			StepID:         step.ID,
			ConversationID: built.ConversationID,
			CreatedAt:      time.Now().UTC(),
		}
		cfg.Approvals.Create(approval)
		cfg.Plans.SetStepApproval(built.ID, step.ID, approval.ID)
		events.Record(cfg.Audit, events.Event{
			Type:       events.TypeApprovalRequested,
			Command:    step.Command,
			PlanID:     built.ID,
			ApprovalID: approval.ID,
			Data:       map[string]interface{}{"risk_level": string(step.RiskLevel), "step": step.Number},
		})
	}

	for _, finding := range result.Findings {
		events.Record(cfg.Audit, events.Event{
			Type:   events.TypeInjectionDetected,
			PlanID: built.ID,
			Data: map[string]interface{}{
				"step":       finding.StepNumber,
				"confidence": finding.Report.Confidence,
				"patterns":   finding.Report.Patterns,
			},
		})
	}

	stored, _ := cfg.Plans.Get(built.ID)
	writeJSON(w, http.StatusCreated, planPayload{Plan: stored, Findings: result.Findings})
}

// NewPlanItemHandler returns the handler for /plans/{id} and
// /plans/{id}:approve.
func NewPlanItemHandler(cfg PlansConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/plans/")
		if approveID, ok := strings.CutSuffix(rest, ":approve"); ok {
			if r.Method != http.MethodPost {
				response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
				return
			}
			handlePlanApprove(cfg, w, r, approveID)
			return
		}
		if r.Method != http.MethodGet {
			response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
			return
		}
		p, ok := cfg.Plans.Get(rest)
		if !ok {
			writePlanNotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, planPayload{Plan: p})
	})
}

func handlePlanApprove(cfg PlansConfig, w http.ResponseWriter, r *http.Request, id string) {
	p, ok := cfg.Plans.Get(id)
	if !ok {
		writePlanNotFound(w, r)
		return
	}
	exec, err := cfg.Engine.Start(p)
	if err != nil {
		if errors.Is(err, engine.ErrPlanExecuted) {
			response.Write(w, response.New(http.StatusConflict, "plan already has an execution",
				response.WithType(response.TypeConflict),
				response.WithInstance(r.URL.Path),
				response.WithExtension("execution_id", exec.ID),
			))
			return
		}
		if errors.Is(err, engine.ErrCapacity) {
			response.Write(w, response.New(http.StatusServiceUnavailable, "execution capacity exhausted",
				response.WithType(response.TypeCapacity),
				response.WithInstance(r.URL.Path),
			))
			return
		}
		response.WriteError(w, r.URL.Path, err)
		return
	}
	requestctx.LogSafetyDecision(r.Context(), p.ID, "allowed", "202", "execution started")
	writeJSON(w, http.StatusAccepted, exec)
}

func writePlanNotFound(w http.ResponseWriter, r *http.Request) {
	response.Write(w, response.New(http.StatusNotFound, "plan not found",
		response.WithType(response.TypeNotFound),
		response.WithInstance(r.URL.Path),
	))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
