package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mbolis/survey-intake/log"
	"github.com/mbolis/survey-intake/model"
)

func (st *Surveys) IsUserAssigned(ctx context.Context, surveyID, userID int) (bool, error) {
	var assigned bool
	err := st.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM survey_assignment
			WHERE survey_id = ? AND user_id = ? AND is_removed = 0
		)`,
		surveyID, userID,
	).Scan(&assigned)
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return assigned, nil
}

// Assign grants the user an assignment, reactivating a removed one.
func (st *Surveys) Assign(ctx context.Context, surveyID, userID int) (*model.SurveyAssignment, error) {
	now := st.now()
	_, err := st.db.ExecContext(ctx, `
		INSERT INTO survey_assignment (survey_id, user_id, is_removed, assigned_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT (survey_id, user_id) DO UPDATE
			SET is_removed = 0, updated_at = excluded.updated_at`,
		surveyID, userID, now, now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("assign user: %w", err)
	}

	a := model.SurveyAssignment{}
	err = st.db.QueryRowContext(ctx, `
		SELECT a.id, a.survey_id, a.user_id, u.username, a.is_removed, a.assigned_at, a.updated_at
		FROM survey_assignment a
		INNER JOIN user u ON (u.id = a.user_id)
		WHERE a.survey_id = ? AND a.user_id = ?`,
		surveyID, userID,
	).Scan(&a.ID, &a.SurveyID, &a.UserID, &a.Username, &a.IsRemoved, &a.AssignedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &a, nil
}

// Unassign flags the assignment removed; the row stays for auditing.
func (st *Surveys) Unassign(ctx context.Context, surveyID, userID int) error {
	res, err := st.db.ExecContext(ctx, `
		UPDATE survey_assignment
		SET is_removed = 1, updated_at = ?
		WHERE survey_id = ? AND user_id = ? AND is_removed = 0`,
		st.now(), surveyID, userID,
	)
	if err != nil {
		return fmt.Errorf("unassign user: %w", err)
	}
	if n, _ := res.RowsAffected(); n < 1 {
		return ErrNotFound
	}
	return nil
}

func (st *Surveys) ListAssignments(ctx context.Context, surveyID int) ([]model.SurveyAssignment, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT a.id, a.survey_id, a.user_id, u.username, a.is_removed, a.assigned_at, a.updated_at
		FROM survey_assignment a
		INNER JOIN user u ON (u.id = a.user_id)
		WHERE a.survey_id = ?
		ORDER BY a.id`,
		surveyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	assignments := []model.SurveyAssignment{}
	for rows.Next() {
		a := model.SurveyAssignment{}
		err = rows.Scan(&a.ID, &a.SurveyID, &a.UserID, &a.Username, &a.IsRemoved, &a.AssignedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// autoAssignIfPublic grants every active plain user an assignment once the survey is
// published and public. Existing rows are reactivated, never duplicated.
func autoAssignIfPublic(ctx context.Context, tx *sql.Tx, survey *model.Survey, now time.Time) error {
	if survey == nil || !survey.IsPublished || !survey.IsPublic {
		return nil
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO survey_assignment (survey_id, user_id, is_removed, assigned_at, updated_at)
		SELECT ?, u.id, 0, ?, ?
		FROM user u
		WHERE u.role = ? AND u.is_active = 1
		ON CONFLICT (survey_id, user_id) DO UPDATE
			SET is_removed = 0, updated_at = excluded.updated_at
			WHERE survey_assignment.is_removed = 1`,
		survey.ID, now, now, model.RoleUser,
	)
	if err != nil {
		return fmt.Errorf("auto assign survey %d: %w", survey.ID, err)
	}

	n, _ := res.RowsAffected()
	log.WithFields(log.Fields{"survey": survey.ID, "assigned": n}).Debug("survey.auto_assign")
	return nil
}
