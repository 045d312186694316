package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/reviewhub/review-engine/internal/audit"
	"github.com/reviewhub/review-engine/internal/models"
	"github.com/reviewhub/review-engine/internal/scoring"
)

// ComputeApplicationResult aggregates the submitted assessments for one
// application. expectedAssessments and varianceThreshold come from the
// application's funding call and are passed explicitly; zero submitted
// assessments yields an all-zero, unflagged result.
func (s *Service) ComputeApplicationResult(ctx context.Context, applicationID uuid.UUID, expectedAssessments int, varianceThreshold float64) (models.ApplicationResult, error) {
	submitted, err := s.store.ListSubmittedAssessments(ctx, applicationID)
	if err != nil {
		return models.ApplicationResult{}, fmt.Errorf("compute application result: %w", err)
	}

	assessorScores := make([]models.AssessorScore, 0, len(submitted))
	overallScores := make([]float64, 0, len(submitted))
	for _, sa := range submitted {
		assessorScores = append(assessorScores, models.AssessorScore{
			AssessorID:     sa.AssessorID,
			AssessorName:   sa.AssessorName,
			Scores:         sa.Scores,
			OverallScore:   sa.OverallScore,
			OverallComment: sa.OverallComment,
			SubmittedAt:    sa.SubmittedAt,
		})
		overallScores = append(overallScores, sa.OverallScore)
	}

	summary := scoring.Aggregate(overallScores, varianceThreshold)
	return models.ApplicationResult{
		ApplicationID:   applicationID,
		AssessorScores:  assessorScores,
		AverageScore:    summary.Average,
		TotalScore:      summary.Total,
		Variance:        summary.Variance,
		VarianceFlagged: summary.Flagged,
		SubmittedCount:  len(submitted),
		ExpectedCount:   expectedAssessments,
		IsComplete:      len(submitted) >= expectedAssessments,
	}, nil
}

// ApplicationResult reads the funding call's review settings for the
// application and aggregates with them.
func (s *Service) ApplicationResult(ctx context.Context, applicationID uuid.UUID) (models.ApplicationResult, error) {
	settings, err := s.store.GetCallSettings(ctx, applicationID)
	if err != nil {
		return models.ApplicationResult{}, err
	}
	return s.ComputeApplicationResult(ctx, applicationID, settings.AssessorsPerApplication, settings.VarianceThreshold)
}

// Progress is the submitted-versus-expected view used by coordinators.
type Progress struct {
	ApplicationID  uuid.UUID `json:"applicationId"`
	SubmittedCount int       `json:"submittedCount"`
	ExpectedCount  int       `json:"expectedCount"`
	IsComplete     bool      `json:"isComplete"`
}

func (s *Service) ApplicationProgress(ctx context.Context, applicationID uuid.UUID) (Progress, error) {
	settings, err := s.store.GetCallSettings(ctx, applicationID)
	if err != nil {
		return Progress{}, err
	}
	submitted, err := s.store.ListSubmittedAssessments(ctx, applicationID)
	if err != nil {
		return Progress{}, fmt.Errorf("application progress: %w", err)
	}
	return Progress{
		ApplicationID:  applicationID,
		SubmittedCount: len(submitted),
		ExpectedCount:  settings.AssessorsPerApplication,
		IsComplete:     len(submitted) >= settings.AssessorsPerApplication,
	}, nil
}

// ArchiveApplicationResult computes the current result and uploads a snapshot
// through the configured archiver. Returns the stored object key.
func (s *Service) ArchiveApplicationResult(ctx context.Context, applicationID uuid.UUID) (string, error) {
	if s.archiver == nil {
		return "", fmt.Errorf("no archiver configured")
	}
	result, err := s.ApplicationResult(ctx, applicationID)
	if err != nil {
		return "", err
	}
	key, err := s.archiver.ArchiveResult(ctx, result)
	if err != nil {
		return "", fmt.Errorf("archive result: %w", err)
	}
	appID := applicationID
	s.emit(ctx, audit.Event{
		Type:          audit.EventResultArchived,
		ApplicationID: &appID,
		Payload:       map[string]interface{}{"key": key},
	})
	return key, nil
}
