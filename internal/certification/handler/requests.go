package handler

import (
	"sort"
	"time"

	"certflow/internal/certification/assignment"
	"certflow/internal/certification/models"
	"certflow/internal/certification/process"
)

type createProcessRequest struct {
	CompetencyID string `json:"competency_id" validate:"required,max=64"`
	Level        int    `json:"level" validate:"required,min=1"`
}

type submitDocumentRequest struct {
	Kind string `json:"kind" validate:"required,max=64"`
}

type assignRequest struct {
	EvaluatorID string `json:"evaluator_id" validate:"required,uuid"`
	Note        string `json:"note" validate:"max=2000"`
}

type evaluationRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=approved rejected inconclusive"`
	Note    string `json:"note" validate:"max=4000"`
}

type sweepRequest struct {
	At *time.Time `json:"at"`
}

type documentsResponse struct {
	Complete bool `json:"complete"`
}

type evaluationsResponse struct {
	Evaluations []*models.Evaluation `json:"evaluations"`
}

type assignmentResponse struct {
	Process        *models.Process `json:"process"`
	EvaluatorID    string          `json:"evaluator_id"`
	Deadline       *time.Time      `json:"deadline,omitempty"`
	NotifyFailures []string        `json:"notify_failures,omitempty"`
}

func toAssignmentResponse(res *assignment.Result) assignmentResponse {
	out := assignmentResponse{
		Process:     res.Process,
		EvaluatorID: res.Evaluator.ID.String(),
		Deadline:    res.Deadline,
	}
	for recipient := range res.NotifyErrors {
		out.NotifyFailures = append(out.NotifyFailures, recipient.String())
	}
	sort.Strings(out.NotifyFailures)
	return out
}

type evaluationResponse struct {
	Process      *models.Process     `json:"process"`
	Evaluation   *models.Evaluation  `json:"evaluation"`
	Certificate  *models.Certificate `json:"certificate,omitempty"`
	NotifyFailed bool                `json:"notify_failed,omitempty"`
}

func toEvaluationResponse(res *process.EvaluationResult) evaluationResponse {
	return evaluationResponse{
		Process:      res.Process,
		Evaluation:   res.Evaluation,
		Certificate:  res.Certificate,
		NotifyFailed: res.NotifyErr != nil,
	}
}

type availableEvaluator struct {
	EvaluatorID       string `json:"evaluator_id"`
	Name              string `json:"name"`
	Capacity          int    `json:"capacity"`
	ActiveAssignments int    `json:"active_assignments"`
	Remaining         int    `json:"remaining"`
}

type availableResponse struct {
	Evaluators []availableEvaluator `json:"evaluators"`
}

func toAvailableResponse(available []*assignment.Available) availableResponse {
	out := availableResponse{Evaluators: make([]availableEvaluator, 0, len(available))}
	for _, a := range available {
		out.Evaluators = append(out.Evaluators, availableEvaluator{
			EvaluatorID:       a.Evaluator.ID.String(),
			Name:              a.Evaluator.Name,
			Capacity:          a.Evaluator.Capacity,
			ActiveAssignments: a.ActiveAssignments,
			Remaining:         a.Remaining,
		})
	}
	return out
}
