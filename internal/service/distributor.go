package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reviewhub/review-engine/internal/audit"
	"github.com/reviewhub/review-engine/internal/models"
	"github.com/reviewhub/review-engine/internal/store"
)

type BulkAssignmentRequest struct {
	ApplicationIDs []uuid.UUID `json:"applicationIds"`
	AssessorIDs    []uuid.UUID `json:"assessorIds"`
	AssignedBy     uuid.UUID   `json:"assignedBy"`
	DueAt          *time.Time  `json:"dueAt,omitempty"`
}

// DistributeBulk allocates applications to assessors round-robin: application
// i goes to assessor i mod len(assessors). Pairs that already exist are
// silently skipped; the batch is one storage transaction, so any other
// failure leaves no partial state. Empty input on either side is a no-op.
func (s *Service) DistributeBulk(ctx context.Context, req BulkAssignmentRequest) ([]models.Assignment, error) {
	if len(req.ApplicationIDs) == 0 || len(req.AssessorIDs) == 0 {
		return nil, nil
	}
	inputs := make([]store.AssignmentInput, 0, len(req.ApplicationIDs))
	for i, applicationID := range req.ApplicationIDs {
		inputs = append(inputs, store.AssignmentInput{
			ApplicationID: applicationID,
			AssessorID:    req.AssessorIDs[i%len(req.AssessorIDs)],
			AssignedBy:    req.AssignedBy,
			DueAt:         req.DueAt,
		})
	}
	created, err := s.store.CreateAssignments(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("distribute assignments: %w", err)
	}
	for _, assignment := range created {
		appID := assignment.ApplicationID
		assignmentID := assignment.ID
		s.emit(ctx, audit.Event{
			Type:          audit.EventAssignmentCreated,
			ApplicationID: &appID,
			AssignmentID:  &assignmentID,
			Payload: map[string]interface{}{
				"assessorId": assignment.AssessorID.String(),
				"assignedBy": assignment.AssignedBy.String(),
			},
		})
	}
	return created, nil
}

// GetAssignment returns one assignment or store.ErrNotFound.
func (s *Service) GetAssignment(ctx context.Context, id uuid.UUID) (models.Assignment, error) {
	return s.store.GetAssignment(ctx, id)
}

// ListApplicationAssignments returns the assignments for one application in
// assignment order.
func (s *Service) ListApplicationAssignments(ctx context.Context, applicationID uuid.UUID) ([]models.Assignment, error) {
	return s.store.ListAssignmentsByApplication(ctx, applicationID)
}

// ListAssessorAssignments returns an assessor's workload in assignment order.
func (s *Service) ListAssessorAssignments(ctx context.Context, assessorID uuid.UUID) ([]models.Assignment, error) {
	return s.store.ListAssignmentsByAssessor(ctx, assessorID)
}

// DeleteAssignment removes an assignment and its assessment. Coordinator-only
// escape hatch; assignments are otherwise never deleted.
func (s *Service) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	assignment, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAssignment(ctx, id); err != nil {
		return err
	}
	appID := assignment.ApplicationID
	assignmentID := assignment.ID
	s.emit(ctx, audit.Event{
		Type:          audit.EventAssignmentDeleted,
		ApplicationID: &appID,
		AssignmentID:  &assignmentID,
	})
	return nil
}
