package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewhub/review-engine/internal/models"
	"github.com/reviewhub/review-engine/internal/store"
)

var assignmentCols = []string{"id", "application_id", "assessor_id", "assigned_by", "assigned_at", "due_at", "status", "started_at", "completed_at"}

var assessmentCols = []string{"id", "assignment_id", "scores", "overall_score", "overall_comment", "coi_confirmed", "coi_details", "status", "submitted_at", "created_at", "updated_at"}

func assignmentRow(id, appID, assessorID, by uuid.UUID, status string) *sqlmock.Rows {
	return sqlmock.NewRows(assignmentCols).
		AddRow(id.String(), appID.String(), assessorID.String(), by.String(), time.Now(), nil, status, nil, nil)
}

func TestCreateAssignmentsSkipsDuplicates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewPGStore(db)
	appA, appB := uuid.New(), uuid.New()
	assessor, by := uuid.New(), uuid.New()
	idA := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO assignments").
		WillReturnRows(assignmentRow(idA, appA, assessor, by, "pending"))
	// duplicate pair: ON CONFLICT DO NOTHING returns no row
	mock.ExpectQuery("INSERT INTO assignments").
		WillReturnRows(sqlmock.NewRows(assignmentCols))
	mock.ExpectCommit()

	created, err := st.CreateAssignments(context.Background(), []store.AssignmentInput{
		{ApplicationID: appA, AssessorID: assessor, AssignedBy: by},
		{ApplicationID: appB, AssessorID: assessor, AssignedBy: by},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, idA, created[0].ID)
	assert.Equal(t, models.AssignmentPending, created[0].Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAssignmentsRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewPGStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO assignments").
		WillReturnRows(assignmentRow(uuid.New(), uuid.New(), uuid.New(), uuid.New(), "pending"))
	mock.ExpectQuery("INSERT INTO assignments").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = st.CreateAssignments(context.Background(), []store.AssignmentInput{
		{ApplicationID: uuid.New(), AssessorID: uuid.New()},
		{ApplicationID: uuid.New(), AssessorID: uuid.New()},
	})
	require.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAssignmentsEmptyInputNoWrites(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewPGStore(db)
	created, err := st.CreateAssignments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAssignmentStatusInProgressKeepsStartedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewPGStore(db)
	id := uuid.New()
	started := time.Now().Add(-time.Hour)

	rows := sqlmock.NewRows(assignmentCols).
		AddRow(id.String(), uuid.New().String(), uuid.New().String(), uuid.New().String(), time.Now(), nil, "in_progress", started, nil)
	mock.ExpectQuery("started_at=COALESCE").
		WithArgs(id, models.AssignmentInProgress).
		WillReturnRows(rows)

	assignment, err := st.SetAssignmentStatus(context.Background(), id, models.AssignmentInProgress)
	require.NoError(t, err)
	require.NotNil(t, assignment.StartedAt)
	assert.WithinDuration(t, started, *assignment.StartedAt, time.Second)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAssignmentStatusCompletedResetsCompletedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewPGStore(db)
	id := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows(assignmentCols).
		AddRow(id.String(), uuid.New().String(), uuid.New().String(), uuid.New().String(), now, nil, "completed", now, now)
	mock.ExpectQuery("completed_at=NOW").
		WithArgs(id, models.AssignmentCompleted).
		WillReturnRows(rows)

	assignment, err := st.SetAssignmentStatus(context.Background(), id, models.AssignmentCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentCompleted, assignment.Status)
	assert.NotNil(t, assignment.CompletedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAssignmentStatusNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewPGStore(db)
	mock.ExpectQuery("UPDATE assignments SET status").
		WillReturnRows(sqlmock.NewRows(assignmentCols))

	_, err = st.SetAssignmentStatus(context.Background(), uuid.New(), models.AssignmentReturned)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateAssessmentIfAbsentReadsExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewPGStore(db)
	assignmentID := uuid.New()
	existingID := uuid.New()
	now := time.Now()

	// insert loses the conflict, so the existing row is read back
	mock.ExpectQuery("INSERT INTO assessments").
		WillReturnRows(sqlmock.NewRows(assessmentCols))
	mock.ExpectQuery("SELECT (.+) FROM assessments WHERE assignment_id").
		WithArgs(assignmentID).
		WillReturnRows(sqlmock.NewRows(assessmentCols).
			AddRow(existingID.String(), assignmentID.String(), []byte(`[]`), 0.0, "", false, "", "draft", nil, now, now))

	assessment, created, err := st.CreateAssessmentIfAbsent(context.Background(), store.AssessmentInput{AssignmentID: assignmentID})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existingID, assessment.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAssessmentIfAbsentCreates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewPGStore(db)
	assignmentID := uuid.New()
	newID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("INSERT INTO assessments").
		WillReturnRows(sqlmock.NewRows(assessmentCols).
			AddRow(newID.String(), assignmentID.String(), []byte(`[{"criterionId":"c1","name":"Impact","score":70,"maxScore":100}]`), 70.0, "", false, "", "draft", nil, now, now))

	assessment, created, err := st.CreateAssessmentIfAbsent(context.Background(), store.AssessmentInput{
		AssignmentID: assignmentID,
		Scores:       []models.CriterionScore{{CriterionID: "c1", Name: "Impact", Score: 70, MaxScore: 100}},
		OverallScore: 70,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 70.0, assessment.OverallScore)
	require.Len(t, assessment.Scores, 1)
	assert.Equal(t, "c1", assessment.Scores[0].CriterionID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAssessmentScoresAndOverallTogether(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewPGStore(db)
	id := uuid.New()
	now := time.Now()
	scores := []models.CriterionScore{{CriterionID: "c1", Score: 50, MaxScore: 100}}
	overall := 50.0

	mock.ExpectQuery("UPDATE assessments SET updated_at=NOW").
		WillReturnRows(sqlmock.NewRows(assessmentCols).
			AddRow(id.String(), uuid.New().String(), []byte(`[{"criterionId":"c1","score":50,"maxScore":100}]`), 50.0, "", false, "", "draft", nil, now, now))

	assessment, err := st.UpdateAssessment(context.Background(), store.AssessmentUpdate{
		ID:           id,
		Scores:       &scores,
		OverallScore: &overall,
	})
	require.NoError(t, err)
	assert.Equal(t, 50.0, assessment.OverallScore)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAssessmentScoresWithoutOverallRejected(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewPGStore(db)
	scores := []models.CriterionScore{{CriterionID: "c1", Score: 50}}
	_, err = st.UpdateAssessment(context.Background(), store.AssessmentUpdate{ID: uuid.New(), Scores: &scores})
	assert.Error(t, err)
}

func TestGetAssessmentNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewPGStore(db)
	mock.ExpectQuery("SELECT (.+) FROM assessments WHERE id").
		WillReturnRows(sqlmock.NewRows(assessmentCols))

	_, err = st.GetAssessment(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListSubmittedAssessmentsOrdersBySubmission(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewPGStore(db)
	appID := uuid.New()
	first, second := uuid.New(), uuid.New()
	t1 := time.Now().Add(-time.Hour)
	t2 := time.Now()

	cols := []string{"id", "assignment_id", "assessor_id", "name", "scores", "overall_score", "overall_comment", "submitted_at"}
	mock.ExpectQuery("FROM assessments").
		WithArgs(appID, models.AssessmentSubmitted).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(first.String(), uuid.New().String(), uuid.New().String(), "Dr. Vega", []byte(`[]`), 60.0, "solid", t1).
			AddRow(second.String(), uuid.New().String(), uuid.New().String(), "Dr. Okafor", []byte(`[]`), 90.0, "strong", t2))

	submitted, err := st.ListSubmittedAssessments(context.Background(), appID)
	require.NoError(t, err)
	require.Len(t, submitted, 2)
	assert.Equal(t, "Dr. Vega", submitted[0].AssessorName)
	assert.Equal(t, 90.0, submitted[1].OverallScore)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCallSettingsDefaults(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewPGStore(db)
	appID := uuid.New()

	mock.ExpectQuery("FROM applications").
		WithArgs(appID, store.DefaultCallSettings.AssessorsPerApplication, store.DefaultCallSettings.VarianceThreshold).
		WillReturnRows(sqlmock.NewRows([]string{"assessors_per_application", "variance_threshold"}).AddRow(3, 15.0))

	settings, err := st.GetCallSettings(context.Background(), appID)
	require.NoError(t, err)
	assert.Equal(t, 3, settings.AssessorsPerApplication)
	assert.Equal(t, 15.0, settings.VarianceThreshold)

	assert.NoError(t, mock.ExpectationsWereMet())
}
