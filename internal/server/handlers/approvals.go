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
	"github.com/wardd-org/wardd/internal/risk"
	"github.com/wardd-org/wardd/internal/safety"
	"github.com/wardd-org/wardd/internal/server/approvalstore"
	"github.com/wardd-org/wardd/internal/server/metrics"
	"github.com/wardd-org/wardd/internal/server/requestctx"
	"github.com/wardd-org/wardd/internal/server/response"
	"github.com/wardd-org/wardd/internal/types"
)

// ApprovalsConfig wires the approval endpoints to their collaborators.
type ApprovalsConfig struct {
	Safety    *safety.State
	Approvals *approvalstore.Store
	Engine    *engine.Manager
	Audit     events.Sink
	Registry  *metrics.Registry
}

func (c ApprovalsConfig) registry() *metrics.Registry {
	if c.Registry != nil {
		return c.Registry
	}
	return metrics.Default
}

type approvalCreateRequest struct {
	Command        string `json:"command"`
	Explanation    string `json:"explanation,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type approvalRespondRequest struct {
	Approved      bool   `json:"approved"`
	EditedCommand string `json:"edited_command,omitempty"`
}

type approvalRespondPayload struct {
	Approval types.Approval    `json:"approval"`
	Result   *types.StepResult `json:"result,omitempty"`
}

// NewApprovalsHandler returns the handler for /approvals: POST requests a
// standalone approval, GET lists approvals with an optional status filter.
func NewApprovalsHandler(cfg ApprovalsConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handleApprovalCreate(cfg, w, r)
		case http.MethodGet:
			status := r.URL.Query().Get("status")
			list := cfg.Approvals.List(status)
			if conv := r.URL.Query().Get("conversation_id"); conv != "" {
				filtered := make([]types.Approval, 0, len(list))
				for _, a := range list {
					if a.ConversationID == conv {
						filtered = append(filtered, a)
					}
				}
				list = filtered
			}
			writeJSON(w, http.StatusOK, map[string]any{"approvals": list})
		default:
			response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
		}
	})
}

func handleApprovalCreate(cfg ApprovalsConfig, w http.ResponseWriter, r *http.Request) {
	var in approvalCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Write(w, response.New(http.StatusBadRequest, "invalid JSON body",
			response.WithType(response.TypeValidation),
			response.WithDetail(err.Error()),
		))
		return
	}
	err := cfg.Safety.ValidateCommand(in.Command)
	if err == nil {
		err = cfg.Safety.ValidateTargets(in.Command)
	}
	if err != nil {
		events.Record(cfg.Audit, events.Event{
			Type:    events.TypeValidationFailed,
			Command: in.Command,
			Data:    map[string]interface{}{"message": err.Error()},
		})
		response.WriteError(w, r.URL.Path, err)
		return
	}

	cls := risk.Classify(in.Command)
	preview := risk.BuildPreview(in.Command)
	cfg.registry().RecordClassification(string(cls.Level))

	approval := types.Approval{
		ID:             uuid.NewString(),
		Command:        in.Command,
		Explanation:    in.Explanation,
		RiskLevel:      cls.Level,
		IsDestructive:  cls.IsDestructive,
		UndoCommand:    preview.UndoCommand,
		AffectedPaths:  preview.AffectedPaths,
		ConversationID: in.ConversationID,
		CreatedAt:      time.Now().UTC(),
	}
	cfg.Approvals.Create(approval)
	events.Record(cfg.Audit, events.Event{
		Type:       events.TypeApprovalRequested,
		Command:    in.Command,
		ApprovalID: approval.ID,
		Data:       map[string]interface{}{"risk_level": string(cls.Level)},
	})

	stored, _ := cfg.Approvals.Get(approval.ID)
	writeJSON(w, http.StatusCreated, stored)
}

// NewApprovalItemHandler returns the handler for /approvals/{id} and
// /approvals/{id}:respond.
func NewApprovalItemHandler(cfg ApprovalsConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/approvals/")
		if id, ok := strings.CutSuffix(rest, ":respond"); ok {
			if r.Method != http.MethodPost {
				response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
				return
			}
			handleApprovalRespond(cfg, w, r, id)
			return
		}
		if id, ok := strings.CutSuffix(rest, "/explain"); ok {
			if r.Method != http.MethodGet {
				response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
				return
			}
			handleApprovalExplain(cfg, w, r, id)
			return
		}
		if r.Method != http.MethodGet {
			response.Write(w, response.New(http.StatusMethodNotAllowed, "method not allowed"))
			return
		}
		approval, ok := cfg.Approvals.Get(rest)
		if !ok {
			writeApprovalNotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, approval)
	})
}

type approvalExplainPayload struct {
	ApprovalID  string              `json:"approval_id"`
	Command     string              `json:"command"`
	Explanation string              `json:"explanation,omitempty"`
	Status      string              `json:"status"`
	Category    string              `json:"category"`
	Risk        risk.Classification `json:"risk"`
	Preview     risk.Preview        `json:"preview"`
}

func handleApprovalExplain(cfg ApprovalsConfig, w http.ResponseWriter, r *http.Request, id string) {
	approval, ok := cfg.Approvals.Get(id)
	if !ok {
		writeApprovalNotFound(w, r)
		return
	}
	cmd := approval.EffectiveCommand()
	writeJSON(w, http.StatusOK, approvalExplainPayload{
		ApprovalID:  approval.ID,
		Command:     cmd,
		Explanation: approval.Explanation,
		Status:      approval.Status,
		Category:    risk.Category(cmd),
		Risk:        risk.Classify(cmd),
		Preview:     risk.BuildPreview(cmd),
	})
}

func handleApprovalRespond(cfg ApprovalsConfig, w http.ResponseWriter, r *http.Request, id string) {
	// Every decision draws from the approval rate category so a runaway
	// client cannot machine-gun the gate.
	if err := cfg.Safety.Limiter().Allow(types.CategoryApproval); err != nil {
		cfg.registry().RecordDenial("rate_limit")
		events.Record(cfg.Audit, events.Event{
			Type:       events.TypeRateLimitExceeded,
			ApprovalID: id,
			Data:       map[string]interface{}{"category": types.CategoryApproval},
		})
		requestctx.LogSafetyDecision(r.Context(), id, "rate_limited", "429", "approval category exhausted")
		response.WriteError(w, r.URL.Path, err)
		return
	}

	var in approvalRespondRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Write(w, response.New(http.StatusBadRequest, "invalid JSON body",
			response.WithType(response.TypeValidation),
			response.WithDetail(err.Error()),
		))
		return
	}

	original, ok := cfg.Approvals.Get(id)
	if !ok {
		writeApprovalNotFound(w, r)
		return
	}

	edited := strings.TrimSpace(in.EditedCommand)
	if in.Approved && edited != "" && edited != original.Command {
		if blocked := vetEditedCommand(cfg, w, r, original, edited); blocked {
			return
		}
	} else {
		edited = ""
	}

	resolved, err := cfg.Approvals.Resolve(id, in.Approved, edited)
	switch {
	case errors.Is(err, approvalstore.ErrNotFound):
		writeApprovalNotFound(w, r)
		return
	case errors.Is(err, approvalstore.ErrAlreadyResolved):
		response.Write(w, response.New(http.StatusConflict, "approval already resolved",
			response.WithType(response.TypeConflict),
			response.WithInstance(r.URL.Path),
		))
		return
	case err != nil:
		response.WriteError(w, r.URL.Path, err)
		return
	}

	if in.Approved {
		cfg.registry().RecordApproval("granted")
		events.Record(cfg.Audit, events.Event{
			Type:       events.TypeApprovalGranted,
			Command:    resolved.EffectiveCommand(),
			PlanID:     resolved.PlanID,
			ApprovalID: resolved.ID,
		})
	} else {
		cfg.registry().RecordApproval("denied")
		events.Record(cfg.Audit, events.Event{
			Type:       events.TypeApprovalDenied,
			Command:    resolved.Command,
			PlanID:     resolved.PlanID,
			ApprovalID: resolved.ID,
		})
	}
	requestctx.LogSafetyDecision(r.Context(), resolved.ID, decisionWord(in.Approved), "200", "")

	payload := approvalRespondPayload{Approval: resolved}

	// Standalone approvals execute inline on approve; plan-bound ones are
	// picked up by the engine goroutine waiting on the decision.
	if in.Approved && resolved.PlanID == "" {
		result, err := cfg.Engine.ExecuteApproved(r.Context(), resolved)
		if err != nil {
			response.WriteError(w, r.URL.Path, err)
			return
		}
		payload.Result = &result
	}

	writeJSON(w, http.StatusOK, payload)
}

// vetEditedCommand re-classifies an operator-edited command. An edit that
// raises the risk level above the approved one is rejected; the operator
// must submit a fresh approval for the more dangerous command.
func vetEditedCommand(cfg ApprovalsConfig, w http.ResponseWriter, r *http.Request, original types.Approval, edited string) bool {
	if err := cfg.Safety.ValidateCommand(edited); err != nil {
		response.WriteError(w, r.URL.Path, err)
		return true
	}
	if err := cfg.Safety.ValidateTargets(edited); err != nil {
		response.WriteError(w, r.URL.Path, err)
		return true
	}
	cls := risk.Classify(edited)
	cfg.registry().RecordClassification(string(cls.Level))
	events.Record(cfg.Audit, events.Event{
		Type:       events.TypeApprovalEdited,
		Command:    edited,
		PlanID:     original.PlanID,
		ApprovalID: original.ID,
		Data: map[string]interface{}{
			"original_command": original.Command,
			"risk_level":       string(cls.Level),
		},
	})
	if cls.Level.MoreSevere(original.RiskLevel) {
		cfg.registry().RecordDenial("unsafe_edit")
		requestctx.LogSafetyDecision(r.Context(), original.ID, "blocked", "422", "edited command raises risk level")
		response.Write(w, response.New(http.StatusUnprocessableEntity, "edited command raises risk level",
			response.WithType(response.TypeValidation),
			response.WithInstance(r.URL.Path),
			response.WithExtension("original_risk_level", string(original.RiskLevel)),
			response.WithExtension("edited_risk_level", string(cls.Level)),
		))
		return true
	}
	return false
}

func decisionWord(approved bool) string {
	if approved {
		return "allowed"
	}
	return "denied"
}

func writeApprovalNotFound(w http.ResponseWriter, r *http.Request) {
	response.Write(w, response.New(http.StatusNotFound, "approval not found",
		response.WithType(response.TypeNotFound),
		response.WithInstance(r.URL.Path),
	))
}
