package acceptance

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/reviewhub/review-engine/internal/models"
	"github.com/reviewhub/review-engine/internal/service"
	"github.com/reviewhub/review-engine/internal/store"
)

func TestDistributeAssessAggregateFlow(t *testing.T) {
	ctx := context.Background()
	memStore := store.NewMemoryStore()
	svc := service.New(memStore, nil, nil)

	coordinator := uuid.New()
	appA, appB, appC := uuid.New(), uuid.New(), uuid.New()
	assessorX, assessorY := uuid.New(), uuid.New()
	memStore.SetAssessorName(assessorX, "X. Laurent")
	memStore.SetAssessorName(assessorY, "Y. Moreno")
	memStore.SetCallSettings(appA, models.CallSettings{AssessorsPerApplication: 2, VarianceThreshold: 20})

	created, err := svc.DistributeBulk(ctx, service.BulkAssignmentRequest{
		ApplicationIDs: []uuid.UUID{appA, appB, appC},
		AssessorIDs:    []uuid.UUID{assessorX, assessorY},
		AssignedBy:     coordinator,
	})
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(created))
	}
	if created[0].AssessorID != assessorX || created[1].AssessorID != assessorY || created[2].AssessorID != assessorX {
		t.Fatalf("round-robin pairing broken: %v", created)
	}

	// give appA a second assessor so a full panel exists
	extra, err := svc.DistributeBulk(ctx, service.BulkAssignmentRequest{
		ApplicationIDs: []uuid.UUID{appA},
		AssessorIDs:    []uuid.UUID{assessorY},
		AssignedBy:     coordinator,
	})
	if err != nil {
		t.Fatalf("distribute extra: %v", err)
	}
	if len(extra) != 1 {
		t.Fatalf("expected 1 extra assignment, got %d", len(extra))
	}

	// assessor X reviews appA
	assessmentX, err := svc.StartAssessment(ctx, created[0].ID, service.StartAssessmentRequest{
		Scores: []models.CriterionScore{
			{CriterionID: "impact", Name: "Impact", Score: 55, MaxScore: 100},
			{CriterionID: "feasibility", Name: "Feasibility", Score: 65, MaxScore: 100},
		},
		OverallComment: "methodology underspecified",
	})
	if err != nil {
		t.Fatalf("start assessment: %v", err)
	}
	if assessmentX.OverallScore != 60 {
		t.Fatalf("overall score = %v, want 60", assessmentX.OverallScore)
	}
	if _, err := svc.SubmitAssessment(ctx, assessmentX.ID); err != nil {
		t.Fatalf("submit X: %v", err)
	}

	// assessor Y reviews appA
	assessmentY, err := svc.StartAssessment(ctx, extra[0].ID, service.StartAssessmentRequest{
		Scores: []models.CriterionScore{
			{CriterionID: "impact", Name: "Impact", Score: 95, MaxScore: 100},
			{CriterionID: "feasibility", Name: "Feasibility", Score: 85, MaxScore: 100},
		},
		OverallComment: "outstanding proposal",
	})
	if err != nil {
		t.Fatalf("start Y: %v", err)
	}
	if _, err := svc.SubmitAssessment(ctx, assessmentY.ID); err != nil {
		t.Fatalf("submit Y: %v", err)
	}

	result, err := svc.ApplicationResult(ctx, appA)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.AverageScore != 75 || result.TotalScore != 150 {
		t.Fatalf("aggregate = avg %v total %v, want 75/150", result.AverageScore, result.TotalScore)
	}
	if result.Variance != 40 || !result.VarianceFlagged {
		t.Fatalf("variance = %v flagged=%v, want 40/true", result.Variance, result.VarianceFlagged)
	}
	if !result.IsComplete {
		t.Fatalf("expected complete panel")
	}

	// coordinator sends X's assessment back; the cycle resumes and completes again
	if err := svc.ReturnForRevision(ctx, assessmentX.ID, "please reconcile with panel"); err != nil {
		t.Fatalf("return: %v", err)
	}
	scores := []models.CriterionScore{
		{CriterionID: "impact", Name: "Impact", Score: 80, MaxScore: 100},
		{CriterionID: "feasibility", Name: "Feasibility", Score: 80, MaxScore: 100},
	}
	revised, err := svc.UpdateAssessment(ctx, assessmentX.ID, service.UpdateAssessmentRequest{Scores: &scores})
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if revised.Status != models.AssessmentDraft || revised.OverallScore != 80 {
		t.Fatalf("revised = %s/%v, want draft/80", revised.Status, revised.OverallScore)
	}
	if _, err := svc.SubmitAssessment(ctx, assessmentX.ID); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	result, err = svc.ApplicationResult(ctx, appA)
	if err != nil {
		t.Fatalf("result after revision: %v", err)
	}
	if result.AverageScore != 85 {
		t.Fatalf("average after revision = %v, want 85", result.AverageScore)
	}
	if result.VarianceFlagged {
		t.Fatalf("variance should no longer be flagged, got %v%%", result.Variance)
	}

	assignment, err := svc.GetAssignment(ctx, created[0].ID)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if assignment.Status != models.AssignmentCompleted {
		t.Fatalf("assignment status = %s, want completed", assignment.Status)
	}
	if assignment.StartedAt == nil || assignment.CompletedAt == nil {
		t.Fatalf("assignment timestamps missing: %+v", assignment)
	}
}
