package models

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentStatus tracks where an (application, assessor) pairing is in its
// review cycle. Transitions are driven by assessment lifecycle events only.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentReturned   AssignmentStatus = "returned"
)

// AssessmentStatus tracks the assessor's work product. A returned assessment
// is re-editable; editing it resumes the draft cycle.
type AssessmentStatus string

const (
	AssessmentDraft     AssessmentStatus = "draft"
	AssessmentSubmitted AssessmentStatus = "submitted"
	AssessmentReturned  AssessmentStatus = "returned"
)

// Assignment pairs one application with one assessor. At most one assignment
// exists per (application, assessor) pair; the store enforces this.
type Assignment struct {
	ID            uuid.UUID        `json:"id"`
	ApplicationID uuid.UUID        `json:"applicationId"`
	AssessorID    uuid.UUID        `json:"assessorId"`
	AssignedBy    uuid.UUID        `json:"assignedBy"`
	AssignedAt    time.Time        `json:"assignedAt"`
	DueAt         *time.Time       `json:"dueAt,omitempty"`
	Status        AssignmentStatus `json:"status"`
	StartedAt     *time.Time       `json:"startedAt,omitempty"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
}

// CriterionScore is one scored criterion within an assessment. The slice on
// an assessment is replaced wholesale on every update.
type CriterionScore struct {
	CriterionID string  `json:"criterionId"`
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"maxScore"`
	Comment     string  `json:"comment,omitempty"`
}

// Assessment is the work product for exactly one assignment. OverallScore is
// derived: always the mean of Scores (0 when empty).
type Assessment struct {
	ID             uuid.UUID        `json:"id"`
	AssignmentID   uuid.UUID        `json:"assignmentId"`
	Scores         []CriterionScore `json:"scores"`
	OverallScore   float64          `json:"overallScore"`
	OverallComment string           `json:"overallComment,omitempty"`
	COIConfirmed   bool             `json:"coiConfirmed"`
	COIDetails     string           `json:"coiDetails,omitempty"`
	Status         AssessmentStatus `json:"status"`
	SubmittedAt    *time.Time       `json:"submittedAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// AssessorScore is one assessor's contribution to an application result.
type AssessorScore struct {
	AssessorID     uuid.UUID        `json:"assessorId"`
	AssessorName   string           `json:"assessorName"`
	Scores         []CriterionScore `json:"scores"`
	OverallScore   float64          `json:"overallScore"`
	OverallComment string           `json:"overallComment,omitempty"`
	SubmittedAt    time.Time        `json:"submittedAt"`
}

// ApplicationResult is the aggregated read model for one application,
// computed on demand from its submitted assessments.
type ApplicationResult struct {
	ApplicationID   uuid.UUID       `json:"applicationId"`
	AssessorScores  []AssessorScore `json:"assessorScores"`
	AverageScore    float64         `json:"averageScore"`
	TotalScore      float64         `json:"totalScore"`
	Variance        float64         `json:"variance"`
	VarianceFlagged bool            `json:"varianceFlagged"`
	SubmittedCount  int             `json:"submittedCount"`
	ExpectedCount   int             `json:"expectedCount"`
	IsComplete      bool            `json:"isComplete"`
}

// CallSettings is the per-funding-call review configuration read alongside an
// application. Passed explicitly into aggregation, never held as global state.
type CallSettings struct {
	AssessorsPerApplication int     `json:"assessorsPerApplication"`
	VarianceThreshold       float64 `json:"varianceThreshold"`
}
