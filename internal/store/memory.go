package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reviewhub/review-engine/internal/models"
)

type pairKey struct {
	applicationID uuid.UUID
	assessorID    uuid.UUID
}

// MemoryStore mirrors PGStore semantics for tests: the same uniqueness rules
// (one assignment per pair, one assessment per assignment) and the same
// timestamp behavior, guarded by one mutex.
type MemoryStore struct {
	mu            sync.RWMutex
	assignments   map[uuid.UUID]models.Assignment
	pairs         map[pairKey]uuid.UUID
	assessments   map[uuid.UUID]models.Assessment
	byAssignment  map[uuid.UUID]uuid.UUID
	assessorNames map[uuid.UUID]string
	callSettings  map[uuid.UUID]models.CallSettings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assignments:   map[uuid.UUID]models.Assignment{},
		pairs:         map[pairKey]uuid.UUID{},
		assessments:   map[uuid.UUID]models.Assessment{},
		byAssignment:  map[uuid.UUID]uuid.UUID{},
		assessorNames: map[uuid.UUID]string{},
		callSettings:  map[uuid.UUID]models.CallSettings{},
	}
}

// SetAssessorName seeds assessor reference data for result reads.
func (m *MemoryStore) SetAssessorName(id uuid.UUID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessorNames[id] = name
}

// SetCallSettings seeds per-call review configuration for an application.
func (m *MemoryStore) SetCallSettings(applicationID uuid.UUID, settings models.CallSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callSettings[applicationID] = settings
}

func copyScores(scores []models.CriterionScore) []models.CriterionScore {
	out := make([]models.CriterionScore, len(scores))
	copy(out, scores)
	return out
}

func (m *MemoryStore) CreateAssignments(ctx context.Context, in []AssignmentInput) ([]models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var created []models.Assignment
	for _, input := range in {
		key := pairKey{applicationID: input.ApplicationID, assessorID: input.AssessorID}
		if _, exists := m.pairs[key]; exists {
			continue
		}
		id := input.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		assignment := models.Assignment{
			ID:            id,
			ApplicationID: input.ApplicationID,
			AssessorID:    input.AssessorID,
			AssignedBy:    input.AssignedBy,
			AssignedAt:    time.Now().UTC(),
			DueAt:         input.DueAt,
			Status:        models.AssignmentPending,
		}
		m.assignments[id] = assignment
		m.pairs[key] = id
		created = append(created, assignment)
	}
	return created, nil
}

func (m *MemoryStore) GetAssignment(ctx context.Context, id uuid.UUID) (models.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	assignment, ok := m.assignments[id]
	if !ok {
		return models.Assignment{}, ErrNotFound
	}
	return assignment, nil
}

func (m *MemoryStore) listAssignments(match func(models.Assignment) bool) []models.Assignment {
	var out []models.Assignment
	for _, a := range m.assignments {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.Before(out[j].AssignedAt) })
	return out
}

func (m *MemoryStore) ListAssignmentsByApplication(ctx context.Context, applicationID uuid.UUID) ([]models.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAssignments(func(a models.Assignment) bool { return a.ApplicationID == applicationID }), nil
}

func (m *MemoryStore) ListAssignmentsByAssessor(ctx context.Context, assessorID uuid.UUID) ([]models.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAssignments(func(a models.Assignment) bool { return a.AssessorID == assessorID }), nil
}

func (m *MemoryStore) SetAssignmentStatus(ctx context.Context, id uuid.UUID, status models.AssignmentStatus) (models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	assignment, ok := m.assignments[id]
	if !ok {
		return models.Assignment{}, ErrNotFound
	}
	now := time.Now().UTC()
	assignment.Status = status
	switch status {
	case models.AssignmentInProgress:
		if assignment.StartedAt == nil {
			assignment.StartedAt = &now
		}
	case models.AssignmentCompleted:
		assignment.CompletedAt = &now
	}
	m.assignments[id] = assignment
	return assignment, nil
}

func (m *MemoryStore) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	assignment, ok := m.assignments[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.assignments, id)
	delete(m.pairs, pairKey{applicationID: assignment.ApplicationID, assessorID: assignment.AssessorID})
	if assessmentID, ok := m.byAssignment[id]; ok {
		delete(m.assessments, assessmentID)
		delete(m.byAssignment, id)
	}
	return nil
}

func (m *MemoryStore) CreateAssessmentIfAbsent(ctx context.Context, in AssessmentInput) (models.Assessment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existingID, ok := m.byAssignment[in.AssignmentID]; ok {
		return m.assessments[existingID], false, nil
	}
	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now().UTC()
	assessment := models.Assessment{
		ID:             id,
		AssignmentID:   in.AssignmentID,
		Scores:         copyScores(in.Scores),
		OverallScore:   in.OverallScore,
		OverallComment: in.OverallComment,
		COIConfirmed:   in.COIConfirmed,
		COIDetails:     in.COIDetails,
		Status:         models.AssessmentDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.assessments[id] = assessment
	m.byAssignment[in.AssignmentID] = id
	return assessment, true, nil
}

func (m *MemoryStore) GetAssessment(ctx context.Context, id uuid.UUID) (models.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	assessment, ok := m.assessments[id]
	if !ok {
		return models.Assessment{}, ErrNotFound
	}
	return assessment, nil
}

func (m *MemoryStore) GetAssessmentByAssignment(ctx context.Context, assignmentID uuid.UUID) (models.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byAssignment[assignmentID]
	if !ok {
		return models.Assessment{}, ErrNotFound
	}
	return m.assessments[id], nil
}

func (m *MemoryStore) UpdateAssessment(ctx context.Context, in AssessmentUpdate) (models.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	assessment, ok := m.assessments[in.ID]
	if !ok {
		return models.Assessment{}, ErrNotFound
	}
	if in.Scores != nil {
		assessment.Scores = copyScores(*in.Scores)
		if in.OverallScore != nil {
			assessment.OverallScore = *in.OverallScore
		}
	}
	if in.OverallComment != nil {
		assessment.OverallComment = *in.OverallComment
	}
	if in.COIConfirmed != nil {
		assessment.COIConfirmed = *in.COIConfirmed
	}
	if in.COIDetails != nil {
		assessment.COIDetails = *in.COIDetails
	}
	if in.Status != nil {
		assessment.Status = *in.Status
	}
	assessment.UpdatedAt = time.Now().UTC()
	m.assessments[in.ID] = assessment
	return assessment, nil
}

func (m *MemoryStore) MarkAssessmentSubmitted(ctx context.Context, id uuid.UUID) (models.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	assessment, ok := m.assessments[id]
	if !ok {
		return models.Assessment{}, ErrNotFound
	}
	now := time.Now().UTC()
	assessment.Status = models.AssessmentSubmitted
	assessment.SubmittedAt = &now
	assessment.UpdatedAt = now
	m.assessments[id] = assessment
	return assessment, nil
}

func (m *MemoryStore) MarkAssessmentReturned(ctx context.Context, id uuid.UUID) (models.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	assessment, ok := m.assessments[id]
	if !ok {
		return models.Assessment{}, ErrNotFound
	}
	assessment.Status = models.AssessmentReturned
	assessment.UpdatedAt = time.Now().UTC()
	m.assessments[id] = assessment
	return assessment, nil
}

func (m *MemoryStore) DeleteAssessment(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	assessment, ok := m.assessments[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.assessments, id)
	delete(m.byAssignment, assessment.AssignmentID)
	return nil
}

func (m *MemoryStore) ListSubmittedAssessments(ctx context.Context, applicationID uuid.UUID) ([]SubmittedAssessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SubmittedAssessment
	for _, assessment := range m.assessments {
		if assessment.Status != models.AssessmentSubmitted || assessment.SubmittedAt == nil {
			continue
		}
		assignment, ok := m.assignments[assessment.AssignmentID]
		if !ok || assignment.ApplicationID != applicationID {
			continue
		}
		out = append(out, SubmittedAssessment{
			AssessmentID:   assessment.ID,
			AssignmentID:   assignment.ID,
			AssessorID:     assignment.AssessorID,
			AssessorName:   m.assessorNames[assignment.AssessorID],
			Scores:         copyScores(assessment.Scores),
			OverallScore:   assessment.OverallScore,
			OverallComment: assessment.OverallComment,
			SubmittedAt:    *assessment.SubmittedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (m *MemoryStore) GetCallSettings(ctx context.Context, applicationID uuid.UUID) (models.CallSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	settings, ok := m.callSettings[applicationID]
	if !ok {
		return models.CallSettings{}, ErrNotFound
	}
	// unset columns fall back to the defaults, as the SQL COALESCE does
	if settings.AssessorsPerApplication == 0 {
		settings.AssessorsPerApplication = DefaultCallSettings.AssessorsPerApplication
	}
	if settings.VarianceThreshold == 0 {
		settings.VarianceThreshold = DefaultCallSettings.VarianceThreshold
	}
	return settings, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
