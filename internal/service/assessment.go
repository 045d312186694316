package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/reviewhub/review-engine/internal/audit"
	"github.com/reviewhub/review-engine/internal/models"
	"github.com/reviewhub/review-engine/internal/scoring"
	"github.com/reviewhub/review-engine/internal/store"
)

type StartAssessmentRequest struct {
	Scores         []models.CriterionScore `json:"scores"`
	OverallComment string                  `json:"overallComment"`
	COIConfirmed   bool                    `json:"coiConfirmed"`
	COIDetails     string                  `json:"coiDetails"`
}

// StartAssessment creates the assessment for an assignment on first access
// and returns the existing one unchanged on every later call. Creation drives
// the assignment to in_progress; an idempotent hit changes nothing. The
// create is an atomic insert-if-absent in the store, so concurrent starts for
// the same assignment cannot produce two records.
func (s *Service) StartAssessment(ctx context.Context, assignmentID uuid.UUID, req StartAssessmentRequest) (models.Assessment, error) {
	assignment, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return models.Assessment{}, err
	}

	assessment, created, err := s.store.CreateAssessmentIfAbsent(ctx, store.AssessmentInput{
		AssignmentID:   assignmentID,
		Scores:         req.Scores,
		OverallScore:   scoring.OverallScore(req.Scores),
		OverallComment: req.OverallComment,
		COIConfirmed:   req.COIConfirmed,
		COIDetails:     req.COIDetails,
	})
	if err != nil {
		return models.Assessment{}, fmt.Errorf("start assessment: %w", err)
	}
	if !created {
		return assessment, nil
	}

	if _, err := s.store.SetAssignmentStatus(ctx, assignmentID, models.AssignmentInProgress); err != nil {
		return models.Assessment{}, fmt.Errorf("mark assignment in progress: %w", err)
	}
	appID := assignment.ApplicationID
	assessmentID := assessment.ID
	s.emit(ctx, audit.Event{
		Type:          audit.EventAssessmentStarted,
		ApplicationID: &appID,
		AssignmentID:  &assignmentID,
		AssessmentID:  &assessmentID,
	})
	return assessment, nil
}

type UpdateAssessmentRequest struct {
	Scores         *[]models.CriterionScore `json:"scores,omitempty"`
	OverallComment *string                  `json:"overallComment,omitempty"`
	COIConfirmed   *bool                    `json:"coiConfirmed,omitempty"`
	COIDetails     *string                  `json:"coiDetails,omitempty"`
}

func (r UpdateAssessmentRequest) empty() bool {
	return r.Scores == nil && r.OverallComment == nil && r.COIConfirmed == nil && r.COIDetails == nil
}

// UpdateAssessment applies a partial edit. Replacing the scores recomputes
// the overall score in the same write. Editing a returned assessment resumes
// the cycle: the assessment drops back to draft and its assignment re-enters
// in_progress (started_at keeps its original value). An empty request reads
// back the current record without writing.
func (s *Service) UpdateAssessment(ctx context.Context, id uuid.UUID, req UpdateAssessmentRequest) (models.Assessment, error) {
	current, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return models.Assessment{}, err
	}
	if req.empty() {
		return current, nil
	}

	update := store.AssessmentUpdate{
		ID:             id,
		OverallComment: req.OverallComment,
		COIConfirmed:   req.COIConfirmed,
		COIDetails:     req.COIDetails,
	}
	if req.Scores != nil {
		overall := scoring.OverallScore(*req.Scores)
		update.Scores = req.Scores
		update.OverallScore = &overall
	}
	resumed := current.Status == models.AssessmentReturned
	if resumed {
		draft := models.AssessmentDraft
		update.Status = &draft
	}

	updated, err := s.store.UpdateAssessment(ctx, update)
	if err != nil {
		return models.Assessment{}, err
	}
	if resumed {
		if _, err := s.store.SetAssignmentStatus(ctx, updated.AssignmentID, models.AssignmentInProgress); err != nil {
			return models.Assessment{}, fmt.Errorf("resume assignment: %w", err)
		}
	}
	return updated, nil
}

// SubmitAssessment finalizes the assessor's work: assessment becomes
// submitted with a fresh submitted_at, and the owning assignment is driven to
// completed. completed_at is reset on every submission, including
// re-submission after a returned cycle.
func (s *Service) SubmitAssessment(ctx context.Context, id uuid.UUID) (models.Assessment, error) {
	assessment, err := s.store.MarkAssessmentSubmitted(ctx, id)
	if err != nil {
		return models.Assessment{}, err
	}
	assignment, err := s.store.SetAssignmentStatus(ctx, assessment.AssignmentID, models.AssignmentCompleted)
	if err != nil {
		return models.Assessment{}, fmt.Errorf("complete assignment: %w", err)
	}
	appID := assignment.ApplicationID
	assignmentID := assignment.ID
	assessmentID := assessment.ID
	s.emit(ctx, audit.Event{
		Type:          audit.EventAssessmentSubmitted,
		ApplicationID: &appID,
		AssignmentID:  &assignmentID,
		AssessmentID:  &assessmentID,
		Payload:       map[string]interface{}{"overallScore": assessment.OverallScore},
	})
	return assessment, nil
}

// ReturnForRevision sends a submitted assessment back to its assessor: both
// the assessment and its assignment enter returned. A missing assessment is
// an error, consistent with update and submit.
func (s *Service) ReturnForRevision(ctx context.Context, id uuid.UUID, reason string) error {
	assessment, err := s.store.MarkAssessmentReturned(ctx, id)
	if err != nil {
		return err
	}
	assignment, err := s.store.SetAssignmentStatus(ctx, assessment.AssignmentID, models.AssignmentReturned)
	if err != nil {
		return fmt.Errorf("return assignment: %w", err)
	}
	appID := assignment.ApplicationID
	assignmentID := assignment.ID
	assessmentID := assessment.ID
	s.emit(ctx, audit.Event{
		Type:          audit.EventAssessmentReturned,
		ApplicationID: &appID,
		AssignmentID:  &assignmentID,
		AssessmentID:  &assessmentID,
		Payload:       map[string]interface{}{"reason": reason},
	})
	return nil
}

// GetAssessment returns one assessment or store.ErrNotFound.
func (s *Service) GetAssessment(ctx context.Context, id uuid.UUID) (models.Assessment, error) {
	return s.store.GetAssessment(ctx, id)
}

// GetAssignmentAssessment returns the assessment belonging to an assignment,
// without creating one.
func (s *Service) GetAssignmentAssessment(ctx context.Context, assignmentID uuid.UUID) (models.Assessment, error) {
	return s.store.GetAssessmentByAssignment(ctx, assignmentID)
}

// DeleteAssessment removes an assessment alone, leaving the assignment in
// place. Coordinator-only escape hatch.
func (s *Service) DeleteAssessment(ctx context.Context, id uuid.UUID) error {
	assessment, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAssessment(ctx, id); err != nil {
		return err
	}
	assessmentID := assessment.ID
	assignmentID := assessment.AssignmentID
	s.emit(ctx, audit.Event{
		Type:         audit.EventAssessmentDeleted,
		AssignmentID: &assignmentID,
		AssessmentID: &assessmentID,
	})
	return nil
}
