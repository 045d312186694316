package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reviewhub/review-engine/internal/models"
)

var ErrNotFound = errors.New("not found")

// DefaultCallSettings fills in review parameters for funding calls that leave
// them unset.
var DefaultCallSettings = models.CallSettings{
	AssessorsPerApplication: 2,
	VarianceThreshold:       10,
}

type Store interface {
	CreateAssignments(ctx context.Context, in []AssignmentInput) ([]models.Assignment, error)
	GetAssignment(ctx context.Context, id uuid.UUID) (models.Assignment, error)
	ListAssignmentsByApplication(ctx context.Context, applicationID uuid.UUID) ([]models.Assignment, error)
	ListAssignmentsByAssessor(ctx context.Context, assessorID uuid.UUID) ([]models.Assignment, error)
	SetAssignmentStatus(ctx context.Context, id uuid.UUID, status models.AssignmentStatus) (models.Assignment, error)
	DeleteAssignment(ctx context.Context, id uuid.UUID) error
	CreateAssessmentIfAbsent(ctx context.Context, in AssessmentInput) (models.Assessment, bool, error)
	GetAssessment(ctx context.Context, id uuid.UUID) (models.Assessment, error)
	GetAssessmentByAssignment(ctx context.Context, assignmentID uuid.UUID) (models.Assessment, error)
	UpdateAssessment(ctx context.Context, in AssessmentUpdate) (models.Assessment, error)
	MarkAssessmentSubmitted(ctx context.Context, id uuid.UUID) (models.Assessment, error)
	MarkAssessmentReturned(ctx context.Context, id uuid.UUID) (models.Assessment, error)
	DeleteAssessment(ctx context.Context, id uuid.UUID) error
	ListSubmittedAssessments(ctx context.Context, applicationID uuid.UUID) ([]SubmittedAssessment, error)
	GetCallSettings(ctx context.Context, applicationID uuid.UUID) (models.CallSettings, error)
	Ping(ctx context.Context) error
}

type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

type AssignmentInput struct {
	ID            uuid.UUID
	ApplicationID uuid.UUID
	AssessorID    uuid.UUID
	AssignedBy    uuid.UUID
	DueAt         *time.Time
}

type AssessmentInput struct {
	ID             uuid.UUID
	AssignmentID   uuid.UUID
	Scores         []models.CriterionScore
	OverallScore   float64
	OverallComment string
	COIConfirmed   bool
	COIDetails     string
}

// AssessmentUpdate carries a partial edit; nil fields are left untouched.
// Scores and OverallScore travel together: the caller recomputes the overall
// whenever it replaces the scores and both land in one UPDATE.
type AssessmentUpdate struct {
	ID             uuid.UUID
	Scores         *[]models.CriterionScore
	OverallScore   *float64
	OverallComment *string
	COIConfirmed   *bool
	COIDetails     *string
	Status         *models.AssessmentStatus
}

// SubmittedAssessment is the read-model row for result aggregation: one
// submitted assessment joined to its assignment and assessor name.
type SubmittedAssessment struct {
	AssessmentID   uuid.UUID
	AssignmentID   uuid.UUID
	AssessorID     uuid.UUID
	AssessorName   string
	Scores         []models.CriterionScore
	OverallScore   float64
	OverallComment string
	SubmittedAt    time.Time
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func marshalScores(scores []models.CriterionScore) ([]byte, error) {
	if scores == nil {
		scores = []models.CriterionScore{}
	}
	raw, err := json.Marshal(scores)
	if err != nil {
		return nil, fmt.Errorf("marshal scores: %w", err)
	}
	return raw, nil
}

func unmarshalScores(raw []byte) ([]models.CriterionScore, error) {
	scores := []models.CriterionScore{}
	if len(raw) == 0 {
		return scores, nil
	}
	if err := json.Unmarshal(raw, &scores); err != nil {
		return nil, fmt.Errorf("unmarshal scores: %w", err)
	}
	return scores, nil
}

const assignmentColumns = `id, application_id, assessor_id, assigned_by, assigned_at, due_at, status, started_at, completed_at`

func scanAssignment(row rowScanner) (models.Assignment, error) {
	var (
		a           models.Assignment
		dueAt       sql.NullTime
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&a.ID,
		&a.ApplicationID,
		&a.AssessorID,
		&a.AssignedBy,
		&a.AssignedAt,
		&dueAt,
		&a.Status,
		&startedAt,
		&completedAt,
	); err != nil {
		return models.Assignment{}, err
	}
	if dueAt.Valid {
		t := dueAt.Time
		a.DueAt = &t
	}
	if startedAt.Valid {
		t := startedAt.Time
		a.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return a, nil
}

const assessmentColumns = `id, assignment_id, scores, overall_score, overall_comment, coi_confirmed, coi_details, status, submitted_at, created_at, updated_at`

func scanAssessment(row rowScanner) (models.Assessment, error) {
	var (
		a           models.Assessment
		scores      []byte
		submittedAt sql.NullTime
	)
	if err := row.Scan(
		&a.ID,
		&a.AssignmentID,
		&scores,
		&a.OverallScore,
		&a.OverallComment,
		&a.COIConfirmed,
		&a.COIDetails,
		&a.Status,
		&submittedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return models.Assessment{}, err
	}
	parsed, err := unmarshalScores(scores)
	if err != nil {
		return models.Assessment{}, err
	}
	a.Scores = parsed
	if submittedAt.Valid {
		t := submittedAt.Time
		a.SubmittedAt = &t
	}
	return a, nil
}

// CreateAssignments inserts the batch inside one transaction. Duplicate
// (application, assessor) pairs hit the unique constraint and are skipped via
// ON CONFLICT DO NOTHING; any other failure rolls the whole batch back.
func (s *PGStore) CreateAssignments(ctx context.Context, in []AssignmentInput) ([]models.Assignment, error) {
	if len(in) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO assignments (id, application_id, assessor_id, assigned_by, due_at, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (application_id, assessor_id) DO NOTHING
		RETURNING ` + assignmentColumns

	var created []models.Assignment
	for _, input := range in {
		if input.ID == uuid.Nil {
			input.ID = uuid.New()
		}
		row := tx.QueryRowContext(ctx, query, input.ID, input.ApplicationID, input.AssessorID, input.AssignedBy, input.DueAt, models.AssignmentPending)
		assignment, err := scanAssignment(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// pair already assigned, benign skip
				continue
			}
			return nil, fmt.Errorf("insert assignment: %w", err)
		}
		created = append(created, assignment)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit assignments: %w", err)
	}
	return created, nil
}

func (s *PGStore) GetAssignment(ctx context.Context, id uuid.UUID) (models.Assignment, error) {
	const query = `SELECT ` + assignmentColumns + ` FROM assignments WHERE id=$1`
	assignment, err := scanAssignment(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Assignment{}, ErrNotFound
		}
		return models.Assignment{}, fmt.Errorf("get assignment: %w", err)
	}
	return assignment, nil
}

func (s *PGStore) listAssignments(ctx context.Context, query string, arg interface{}) ([]models.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []models.Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return out, nil
}

func (s *PGStore) ListAssignmentsByApplication(ctx context.Context, applicationID uuid.UUID) ([]models.Assignment, error) {
	const query = `SELECT ` + assignmentColumns + ` FROM assignments WHERE application_id=$1 ORDER BY assigned_at`
	return s.listAssignments(ctx, query, applicationID)
}

func (s *PGStore) ListAssignmentsByAssessor(ctx context.Context, assessorID uuid.UUID) ([]models.Assignment, error) {
	const query = `SELECT ` + assignmentColumns + ` FROM assignments WHERE assessor_id=$1 ORDER BY assigned_at`
	return s.listAssignments(ctx, query, assessorID)
}

// SetAssignmentStatus applies the status plus its timestamp rule: first entry
// into in_progress sets started_at once, every entry into completed resets
// completed_at. It does not validate the transition; the lifecycle manager is
// the only caller and owns legality.
func (s *PGStore) SetAssignmentStatus(ctx context.Context, id uuid.UUID, status models.AssignmentStatus) (models.Assignment, error) {
	var query string
	switch status {
	case models.AssignmentInProgress:
		query = `UPDATE assignments SET status=$2, started_at=COALESCE(started_at, NOW()) WHERE id=$1 RETURNING ` + assignmentColumns
	case models.AssignmentCompleted:
		query = `UPDATE assignments SET status=$2, completed_at=NOW() WHERE id=$1 RETURNING ` + assignmentColumns
	default:
		query = `UPDATE assignments SET status=$2 WHERE id=$1 RETURNING ` + assignmentColumns
	}
	assignment, err := scanAssignment(s.db.QueryRowContext(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Assignment{}, ErrNotFound
		}
		return models.Assignment{}, fmt.Errorf("set assignment status: %w", err)
	}
	return assignment, nil
}

func (s *PGStore) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	// assessments.assignment_id is ON DELETE CASCADE
	res, err := s.db.ExecContext(ctx, `DELETE FROM assignments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAssessmentIfAbsent is the race-safe createOrGet primitive: an atomic
// insert-ignore on the assignment_id unique constraint followed by a read when
// the row already existed. The bool reports whether this call created the row.
func (s *PGStore) CreateAssessmentIfAbsent(ctx context.Context, in AssessmentInput) (models.Assessment, bool, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	scores, err := marshalScores(in.Scores)
	if err != nil {
		return models.Assessment{}, false, err
	}
	const query = `
		INSERT INTO assessments (id, assignment_id, scores, overall_score, overall_comment, coi_confirmed, coi_details, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (assignment_id) DO NOTHING
		RETURNING ` + assessmentColumns
	row := s.db.QueryRowContext(ctx, query, in.ID, in.AssignmentID, scores, in.OverallScore, in.OverallComment, in.COIConfirmed, in.COIDetails, models.AssessmentDraft)
	assessment, err := scanAssessment(row)
	if err == nil {
		return assessment, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Assessment{}, false, fmt.Errorf("insert assessment: %w", err)
	}
	existing, err := s.GetAssessmentByAssignment(ctx, in.AssignmentID)
	if err != nil {
		return models.Assessment{}, false, err
	}
	return existing, false, nil
}

func (s *PGStore) GetAssessment(ctx context.Context, id uuid.UUID) (models.Assessment, error) {
	const query = `SELECT ` + assessmentColumns + ` FROM assessments WHERE id=$1`
	assessment, err := scanAssessment(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Assessment{}, ErrNotFound
		}
		return models.Assessment{}, fmt.Errorf("get assessment: %w", err)
	}
	return assessment, nil
}

func (s *PGStore) GetAssessmentByAssignment(ctx context.Context, assignmentID uuid.UUID) (models.Assessment, error) {
	const query = `SELECT ` + assessmentColumns + ` FROM assessments WHERE assignment_id=$1`
	assessment, err := scanAssessment(s.db.QueryRowContext(ctx, query, assignmentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Assessment{}, ErrNotFound
		}
		return models.Assessment{}, fmt.Errorf("get assessment by assignment: %w", err)
	}
	return assessment, nil
}

func (s *PGStore) UpdateAssessment(ctx context.Context, in AssessmentUpdate) (models.Assessment, error) {
	set := "updated_at=NOW()"
	args := []interface{}{in.ID}
	argPos := 2
	if in.Scores != nil {
		if in.OverallScore == nil {
			return models.Assessment{}, fmt.Errorf("update assessment: scores require overall score")
		}
		raw, err := marshalScores(*in.Scores)
		if err != nil {
			return models.Assessment{}, err
		}
		set += fmt.Sprintf(", scores=$%d, overall_score=$%d", argPos, argPos+1)
		args = append(args, raw, *in.OverallScore)
		argPos += 2
	}
	if in.OverallComment != nil {
		set += fmt.Sprintf(", overall_comment=$%d", argPos)
		args = append(args, *in.OverallComment)
		argPos++
	}
	if in.COIConfirmed != nil {
		set += fmt.Sprintf(", coi_confirmed=$%d", argPos)
		args = append(args, *in.COIConfirmed)
		argPos++
	}
	if in.COIDetails != nil {
		set += fmt.Sprintf(", coi_details=$%d", argPos)
		args = append(args, *in.COIDetails)
		argPos++
	}
	if in.Status != nil {
		set += fmt.Sprintf(", status=$%d", argPos)
		args = append(args, *in.Status)
		argPos++
	}

	query := `UPDATE assessments SET ` + set + ` WHERE id=$1 RETURNING ` + assessmentColumns
	assessment, err := scanAssessment(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Assessment{}, ErrNotFound
		}
		return models.Assessment{}, fmt.Errorf("update assessment: %w", err)
	}
	return assessment, nil
}

func (s *PGStore) MarkAssessmentSubmitted(ctx context.Context, id uuid.UUID) (models.Assessment, error) {
	const query = `
		UPDATE assessments
		SET status=$2, submitted_at=NOW(), updated_at=NOW()
		WHERE id=$1
		RETURNING ` + assessmentColumns
	assessment, err := scanAssessment(s.db.QueryRowContext(ctx, query, id, models.AssessmentSubmitted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Assessment{}, ErrNotFound
		}
		return models.Assessment{}, fmt.Errorf("mark assessment submitted: %w", err)
	}
	return assessment, nil
}

func (s *PGStore) MarkAssessmentReturned(ctx context.Context, id uuid.UUID) (models.Assessment, error) {
	const query = `
		UPDATE assessments
		SET status=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING ` + assessmentColumns
	assessment, err := scanAssessment(s.db.QueryRowContext(ctx, query, id, models.AssessmentReturned))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Assessment{}, ErrNotFound
		}
		return models.Assessment{}, fmt.Errorf("mark assessment returned: %w", err)
	}
	return assessment, nil
}

func (s *PGStore) DeleteAssessment(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assessments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListSubmittedAssessments(ctx context.Context, applicationID uuid.UUID) ([]SubmittedAssessment, error) {
	const query = `
		SELECT a.id, a.assignment_id, g.assessor_id, COALESCE(r.name, ''), a.scores, a.overall_score, a.overall_comment, a.submitted_at
		FROM assessments a
		JOIN assignments g ON g.id = a.assignment_id
		LEFT JOIN assessors r ON r.id = g.assessor_id
		WHERE g.application_id=$1 AND a.status=$2
		ORDER BY a.submitted_at
	`
	rows, err := s.db.QueryContext(ctx, query, applicationID, models.AssessmentSubmitted)
	if err != nil {
		return nil, fmt.Errorf("list submitted assessments: %w", err)
	}
	defer rows.Close()

	var out []SubmittedAssessment
	for rows.Next() {
		var (
			sa     SubmittedAssessment
			scores []byte
		)
		if err := rows.Scan(&sa.AssessmentID, &sa.AssignmentID, &sa.AssessorID, &sa.AssessorName, &scores, &sa.OverallScore, &sa.OverallComment, &sa.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan submitted assessment: %w", err)
		}
		parsed, err := unmarshalScores(scores)
		if err != nil {
			return nil, err
		}
		sa.Scores = parsed
		out = append(out, sa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list submitted assessments: %w", err)
	}
	return out, nil
}

func (s *PGStore) GetCallSettings(ctx context.Context, applicationID uuid.UUID) (models.CallSettings, error) {
	const query = `
		SELECT COALESCE(c.assessors_per_application, $2), COALESCE(c.variance_threshold, $3)
		FROM applications ap
		JOIN funding_calls c ON c.id = ap.call_id
		WHERE ap.id=$1
	`
	var settings models.CallSettings
	err := s.db.QueryRowContext(ctx, query, applicationID, DefaultCallSettings.AssessorsPerApplication, DefaultCallSettings.VarianceThreshold).
		Scan(&settings.AssessorsPerApplication, &settings.VarianceThreshold)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CallSettings{}, ErrNotFound
		}
		return models.CallSettings{}, fmt.Errorf("get call settings: %w", err)
	}
	return settings, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}
