package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mbolis/survey-intake/model"
)

type Surveys struct {
	db  *sql.DB
	now func() time.Time
}

func NewSurveys(db *sql.DB) *Surveys {
	return &Surveys{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const surveyColumns = `
	s.id, s.version, COALESCE(s.owner_id, 0), s.title, s.description,
	s.is_published, s.is_anonymous, s.is_public, s.is_archived,
	s.starts_at, s.ends_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSurvey(row rowScanner) (model.Survey, error) {
	s := model.Survey{}
	var startsAt, endsAt sql.NullTime
	err := row.Scan(
		&s.ID, &s.Version, &s.OwnerID, &s.Title, &s.Description,
		&s.IsPublished, &s.IsAnonymous, &s.IsPublic, &s.IsArchived,
		&startsAt, &endsAt,
	)
	s.StartsAt = timePtr(startsAt)
	s.EndsAt = timePtr(endsAt)
	return s, err
}

// GetSurveyWithQuestions loads a survey with its questions and options in display order.
// A missing survey yields (nil, nil).
func (st *Surveys) GetSurveyWithQuestions(ctx context.Context, surveyID int) (*model.Survey, error) {
	return getSurveyWithQuestions(ctx, st.db, surveyID)
}

func getSurveyWithQuestions(ctx context.Context, q queryer, surveyID int) (*model.Survey, error) {
	survey, err := scanSurvey(q.QueryRowContext(ctx, `
		SELECT`+surveyColumns+`
		FROM survey s
		WHERE s.id = ?`,
		surveyID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT
			q.id, q.text, q.type, q.is_required, q.has_other, q.position,
			o.id, o.text, o.position
		FROM question q
		LEFT OUTER JOIN question_option o ON (q.id = o.question_id)
		WHERE q.survey_id = ?
		ORDER BY q.position, q.id, o.position, o.id`,
		surveyID,
	)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		qn := model.Question{SurveyID: surveyID}
		var optID, optPos sql.NullInt64
		var optText sql.NullString
		err = rows.Scan(
			&qn.ID, &qn.Text, &qn.Type, &qn.IsRequired, &qn.HasOther, &qn.Position,
			&optID, &optText, &optPos,
		)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}

		last := len(survey.Questions) - 1
		if last < 0 || survey.Questions[last].ID != qn.ID {
			survey.Questions = append(survey.Questions, qn)
			last++
		}
		if optID.Valid {
			survey.Questions[last].Options = append(survey.Questions[last].Options, model.QuestionOption{
				ID:         int(optID.Int64),
				QuestionID: qn.ID,
				Text:       optText.String,
				Position:   int(optPos.Int64),
			})
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}

	return &survey, nil
}

func (st *Surveys) ListSurveys(ctx context.Context) ([]model.Survey, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT`+surveyColumns+`
		FROM survey s
		ORDER BY s.id`)
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	defer rows.Close()

	surveys := []model.Survey{}
	for rows.Next() {
		s, err := scanSurvey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan survey: %w", err)
		}
		surveys = append(surveys, s)
	}
	return surveys, rows.Err()
}

// ListAvailable returns the surveys a caller may answer right now: every active public
// survey and, for an authenticated caller, every active survey assigned to them.
// Submitted is set when the caller already answered.
func (st *Surveys) ListAvailable(ctx context.Context, caller *model.Caller) ([]model.Survey, error) {
	userID := 0
	if caller != nil {
		userID = caller.ID
	}

	rows, err := st.db.QueryContext(ctx, `
		SELECT`+surveyColumns+`,
			EXISTS (SELECT 1 FROM response r WHERE r.survey_id = s.id AND r.user_id = ?1)
			OR EXISTS (SELECT 1 FROM anonymous_survey_response a WHERE a.survey_id = s.id AND a.user_id = ?1)
		FROM survey s
		WHERE s.is_published = 1
			AND s.is_archived = 0
			AND (
				s.is_public = 1
				OR EXISTS (
					SELECT 1 FROM survey_assignment sa
					WHERE sa.survey_id = s.id AND sa.user_id = ?1 AND sa.is_removed = 0
				)
			)
		ORDER BY s.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list available surveys: %w", err)
	}
	defer rows.Close()

	now := st.now()
	surveys := []model.Survey{}
	for rows.Next() {
		s := model.Survey{}
		var startsAt, endsAt sql.NullTime
		err = rows.Scan(
			&s.ID, &s.Version, &s.OwnerID, &s.Title, &s.Description,
			&s.IsPublished, &s.IsAnonymous, &s.IsPublic, &s.IsArchived,
			&startsAt, &endsAt, &s.Submitted,
		)
		if err != nil {
			return nil, fmt.Errorf("scan survey: %w", err)
		}
		s.StartsAt = timePtr(startsAt)
		s.EndsAt = timePtr(endsAt)
		if !s.Active(now) {
			continue
		}
		if caller == nil {
			s.Submitted = false
		}
		surveys = append(surveys, s)
	}
	return surveys, rows.Err()
}

// CreateSurvey inserts the survey with its questions and options, filling in the new ids.
func (st *Surveys) CreateSurvey(ctx context.Context, survey *model.Survey) error {
	return inTx(ctx, st.db, func(tx *sql.Tx) error {
		now := st.now()
		var owner sql.NullInt64
		if survey.OwnerID > 0 {
			owner = sql.NullInt64{Int64: int64(survey.OwnerID), Valid: true}
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO survey (
				owner_id, title, description,
				is_published, is_anonymous, is_public, is_archived,
				starts_at, ends_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id, version`,
			owner, survey.Title, survey.Description,
			survey.IsPublished, survey.IsAnonymous, survey.IsPublic, survey.IsArchived,
			nullTime(survey.StartsAt), nullTime(survey.EndsAt), now, now,
		).Scan(&survey.ID, &survey.Version)
		if err != nil {
			return fmt.Errorf("insert survey: %w", err)
		}

		if err = insertQuestions(ctx, tx, survey); err != nil {
			return err
		}
		return autoAssignIfPublic(ctx, tx, survey, now)
	})
}

func insertQuestions(ctx context.Context, tx *sql.Tx, survey *model.Survey) error {
	qStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO question (survey_id, text, type, is_required, has_other, position)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`)
	if err != nil {
		return fmt.Errorf("prepare questions: %w", err)
	}
	defer qStmt.Close()

	oStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO question_option (question_id, text, position)
		VALUES (?, ?, ?)
		RETURNING id`)
	if err != nil {
		return fmt.Errorf("prepare options: %w", err)
	}
	defer oStmt.Close()

	for i := range survey.Questions {
		q := &survey.Questions[i]
		q.SurveyID = survey.ID
		q.Position = i
		err = qStmt.QueryRowContext(ctx, survey.ID, q.Text, q.Type, q.IsRequired, q.HasOther, q.Position).Scan(&q.ID)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}

		for j := range q.Options {
			o := &q.Options[j]
			o.QuestionID = q.ID
			o.Position = j
			err = oStmt.QueryRowContext(ctx, q.ID, o.Text, o.Position).Scan(&o.ID)
			if err != nil {
				return fmt.Errorf("insert option %d of question %d: %w", j, i, err)
			}
		}
	}
	return nil
}

// UpdateSurvey applies the survey's fields under the optimistic lock on Version.
// Questions are replaced only while the survey has no responses; otherwise a
// change to them is rejected with ErrConflict.
func (st *Surveys) UpdateSurvey(ctx context.Context, survey *model.Survey) error {
	return inTx(ctx, st.db, func(tx *sql.Tx) error {
		now := st.now()

		current, err := getSurveyWithQuestions(ctx, tx, survey.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrNotFound
		}

		if survey.Questions != nil {
			answered, err := hasResponses(ctx, tx, survey.ID)
			if err != nil {
				return err
			}
			if answered {
				return fmt.Errorf("%w: survey %d already has responses", ErrConflict, survey.ID)
			}

			_, err = tx.ExecContext(ctx, `DELETE FROM question WHERE survey_id = ?`, survey.ID)
			if err != nil {
				return fmt.Errorf("delete questions: %w", err)
			}
			if err = insertQuestions(ctx, tx, survey); err != nil {
				return err
			}
		} else {
			survey.Questions = current.Questions
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE survey
			SET
				title = ?,
				description = ?,
				is_published = ?,
				is_anonymous = ?,
				is_public = ?,
				starts_at = ?,
				ends_at = ?,
				updated_at = ?,
				version = version+1
			WHERE id = ?
				AND version = ?`,
			survey.Title,
			survey.Description,
			survey.IsPublished,
			survey.IsAnonymous,
			survey.IsPublic,
			nullTime(survey.StartsAt),
			nullTime(survey.EndsAt),
			now,
			survey.ID,
			survey.Version,
		)
		if err != nil {
			return fmt.Errorf("update survey: %w", err)
		}
		// optimistic lock
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update survey: %w", err)
		}
		if n < 1 {
			return fmt.Errorf("%w: stale version %d", ErrConflict, survey.Version)
		}
		survey.Version++
		survey.OwnerID = current.OwnerID
		survey.IsArchived = current.IsArchived

		return autoAssignIfPublic(ctx, tx, survey, now)
	})
}

// SetPublished toggles publication and returns the updated survey.
func (st *Surveys) SetPublished(ctx context.Context, surveyID int, published bool) (*model.Survey, error) {
	var survey *model.Survey
	err := inTx(ctx, st.db, func(tx *sql.Tx) error {
		now := st.now()
		res, err := tx.ExecContext(ctx, `
			UPDATE survey
			SET is_published = ?, updated_at = ?, version = version+1
			WHERE id = ?`,
			published, now, surveyID,
		)
		if err != nil {
			return fmt.Errorf("publish survey: %w", err)
		}
		if n, _ := res.RowsAffected(); n < 1 {
			return ErrNotFound
		}

		survey, err = getSurveyWithQuestions(ctx, tx, surveyID)
		if err != nil {
			return err
		}
		return autoAssignIfPublic(ctx, tx, survey, now)
	})
	return survey, err
}

func (st *Surveys) Archive(ctx context.Context, surveyID int) error {
	res, err := st.db.ExecContext(ctx, `
		UPDATE survey
		SET is_archived = 1, updated_at = ?, version = version+1
		WHERE id = ?`,
		st.now(), surveyID,
	)
	if err != nil {
		return fmt.Errorf("archive survey: %w", err)
	}
	if n, _ := res.RowsAffected(); n < 1 {
		return ErrNotFound
	}
	return nil
}

// DeleteSurvey removes a survey nobody answered yet; answered surveys can only be archived.
func (st *Surveys) DeleteSurvey(ctx context.Context, surveyID int) error {
	return inTx(ctx, st.db, func(tx *sql.Tx) error {
		answered, err := hasResponses(ctx, tx, surveyID)
		if err != nil {
			return err
		}
		if answered {
			return fmt.Errorf("%w: survey %d already has responses", ErrConflict, surveyID)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM survey WHERE id = ?`, surveyID)
		if err != nil {
			return fmt.Errorf("delete survey: %w", err)
		}
		if n, _ := res.RowsAffected(); n < 1 {
			return ErrNotFound
		}
		return nil
	})
}

func hasResponses(ctx context.Context, q queryer, surveyID int) (bool, error) {
	var answered bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM response WHERE survey_id = ?)`,
		surveyID,
	).Scan(&answered)
	if err != nil {
		return false, fmt.Errorf("check responses: %w", err)
	}
	return answered, nil
}
