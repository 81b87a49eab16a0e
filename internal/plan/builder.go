// SPDX-License-Identifier: AGPL-3.0-or-later

// Package plan turns submitted step lists into immutable, risk-annotated
// plans. All risk fields are computed once here; nothing downstream
// re-derives them.
package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wardd-org/wardd/internal/risk"
	"github.com/wardd-org/wardd/internal/safety"
	"github.com/wardd-org/wardd/internal/types"
)

// StepInput is one candidate command as submitted.
type StepInput struct {
	Title       string `json:"title"`
	Command     string `json:"command"`
	Explanation string `json:"explanation,omitempty"`
}

// Input is the plan submission payload.
type Input struct {
	Title          string      `json:"title"`
	Steps          []StepInput `json:"steps"`
	OnFailure      string      `json:"on_failure,omitempty"`
	ConversationID string      `json:"conversation_id,omitempty"`
}

// InjectionFinding flags one step whose submitted text looks like a prompt
// injection attempt. Findings do not block the plan; they are surfaced and
// audited so the human deciding on approvals sees them.
type InjectionFinding struct {
	StepNumber int                  `json:"step_number"`
	Report     risk.InjectionReport `json:"report"`
}

// Result is a built plan plus any injection findings from the boundary scan.
type Result struct {
	Plan     types.Plan
	Findings []InjectionFinding
}

// Build validates, classifies, and annotates a submitted plan. The step
// count is checked against the operation cap up front so a plan that could
// never finish is rejected before anything runs.
func Build(state *safety.State, in Input) (Result, error) {
	if len(in.Steps) == 0 {
		return Result{}, &safety.ValidationError{Field: "steps", Msg: "must contain at least one step"}
	}
	limits := state.Limits()
	if len(in.Steps) > limits.MaxOperations {
		return Result{}, &safety.BreakerError{
			Reason:  types.ReasonOperationCap,
			Current: len(in.Steps),
			Limit:   limits.MaxOperations,
		}
	}
	switch in.OnFailure {
	case "":
		in.OnFailure = types.OnFailureStop
	case types.OnFailureStop, types.OnFailureContinue:
	default:
		return Result{}, &safety.ValidationError{Field: "on_failure", Msg: "must be stop or continue"}
	}

	out := Result{
		Plan: types.Plan{
			ID:             uuid.NewString(),
			Title:          in.Title,
			OnFailure:      in.OnFailure,
			ConversationID: in.ConversationID,
			CreatedAt:      time.Now().UTC(),
			Steps:          make([]types.Step, 0, len(in.Steps)),
		},
	}

	for i, si := range in.Steps {
		if err := state.ValidateCommand(si.Command); err != nil {
			if ve, ok := err.(*safety.ValidationError); ok {
				return Result{}, &safety.ValidationError{
					Field: fmt.Sprintf("steps[%d].command", i),
					Msg:   ve.Msg,
				}
			}
			return Result{}, err
		}
		if err := state.ValidateTargets(si.Command); err != nil {
			if ve, ok := err.(*safety.ValidationError); ok {
				return Result{}, &safety.ValidationError{
					Field: fmt.Sprintf("steps[%d].%s", i, ve.Field),
					Msg:   ve.Msg,
				}
			}
			return Result{}, err
		}

		cls := risk.Classify(si.Command)
		preview := risk.BuildPreview(si.Command)

		step := types.Step{
			ID:              uuid.NewString(),
			Number:          i + 1,
			Title:           si.Title,
			Command:         si.Command,
			Explanation:     si.Explanation,
			RiskLevel:       cls.Level,
			IsDestructive:   cls.IsDestructive,
			UndoCommand:     preview.UndoCommand,
			MatchedPatterns: cls.MatchedPatterns,
			Category:        risk.Category(si.Command),
		}
		out.Plan.Steps = append(out.Plan.Steps, step)

		if rep := risk.DetectInjection(si.Explanation + "\n" + si.Title); rep.Suspicious {
			out.Findings = append(out.Findings, InjectionFinding{
				StepNumber: step.Number,
				Report:     rep,
			})
		}
	}

	out.Plan.Complexity = deriveComplexity(out.Plan.Steps)
	if len(out.Findings) > 0 {
		out.Plan.Complexity = types.ComplexityRisky
	}
	return out, nil
}

// deriveComplexity labels the plan from its steps' risk profile.
func deriveComplexity(steps []types.Step) string {
	allSafe := true
	anyHigh := false
	for _, s := range steps {
		if s.RiskLevel != types.RiskSafe {
			allSafe = false
		}
		if s.RiskLevel == types.RiskHigh || s.RiskLevel == types.RiskCritical {
			anyHigh = true
		}
	}
	switch {
	case anyHigh:
		return types.ComplexityRisky
	case allSafe:
		return types.ComplexityDiagnostic
	case len(steps) > 3:
		return types.ComplexityComplex
	default:
		return types.ComplexitySimple
	}
}
