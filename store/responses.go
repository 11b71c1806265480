package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mbolis/survey-intake/model"
)

// ResponseTx writes the rows of one response inside a single transaction.
type ResponseTx interface {
	// CreateResponse inserts the response and sets its ID. A second identified response
	// to the same survey fails with ErrAlreadyExists.
	CreateResponse(ctx context.Context, r *model.Response) error
	CreateAnswer(ctx context.Context, a *model.Answer) error
	CreateSelectedOption(ctx context.Context, o model.SelectedOption) error
	TryCreateAnonymousRecord(ctx context.Context, rec model.AnonymousSurveyResponse) (CreateResult, error)
}

type Responses struct {
	db *sql.DB
}

func NewResponses(db *sql.DB) *Responses {
	return &Responses{db: db}
}

// FindResponse returns the caller's response to the survey, or (nil, nil).
func (st *Responses) FindResponse(ctx context.Context, surveyID, userID int) (*model.Response, error) {
	r, err := scanResponse(st.db.QueryRowContext(ctx, `
		SELECT`+responseColumns+`
		FROM response r
		WHERE r.survey_id = ? AND r.user_id = ?`,
		surveyID, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find response: %w", err)
	}
	return &r, nil
}

func (st *Responses) FindAnonymousRecord(ctx context.Context, surveyID, userID int) (bool, error) {
	var found bool
	err := st.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM anonymous_survey_response
			WHERE survey_id = ? AND user_id = ?
		)`,
		surveyID, userID,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("find anonymous record: %w", err)
	}
	return found, nil
}

// WithTx runs fn in a transaction, committing only when fn returns nil.
func (st *Responses) WithTx(ctx context.Context, fn func(tx ResponseTx) error) error {
	return inTx(ctx, st.db, func(tx *sql.Tx) error {
		return fn(&responseTx{tx: tx})
	})
}

type responseTx struct {
	tx *sql.Tx
}

func (rt *responseTx) CreateResponse(ctx context.Context, r *model.Response) error {
	err := rt.tx.QueryRowContext(ctx, `
		INSERT INTO response (survey_id, user_id, respondent_email, submitted_at, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		r.SurveyID,
		nullInt(r.UserID),
		nullString(r.RespondentEmail),
		r.SubmittedAt.UTC(),
		nullString(r.IPAddress),
		nullString(r.UserAgent),
	).Scan(&r.ID)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

func (rt *responseTx) CreateAnswer(ctx context.Context, a *model.Answer) error {
	err := rt.tx.QueryRowContext(ctx, `
		INSERT INTO answer (response_id, question_id, value)
		VALUES (?, ?, ?)
		RETURNING id`,
		a.ResponseID, a.QuestionID, a.Value,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert answer for question %d: %w", a.QuestionID, err)
	}
	return nil
}

func (rt *responseTx) CreateSelectedOption(ctx context.Context, o model.SelectedOption) error {
	_, err := rt.tx.ExecContext(ctx, `
		INSERT INTO selected_option (response_id, question_id, option_id)
		VALUES (?, ?, ?)`,
		o.ResponseID, o.QuestionID, o.OptionID,
	)
	if err != nil {
		return fmt.Errorf("insert option %d for question %d: %w", o.OptionID, o.QuestionID, err)
	}
	return nil
}

func (rt *responseTx) TryCreateAnonymousRecord(ctx context.Context, rec model.AnonymousSurveyResponse) (CreateResult, error) {
	_, err := rt.tx.ExecContext(ctx, `
		INSERT INTO anonymous_survey_response (survey_id, user_id, submitted_at)
		VALUES (?, ?, ?)`,
		rec.SurveyID, rec.UserID, rec.SubmittedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return AlreadyExists, nil
	}
	if err != nil {
		return Created, fmt.Errorf("insert anonymous record: %w", err)
	}
	return Created, nil
}

const responseColumns = `
	r.id, r.survey_id, r.user_id, r.respondent_email, r.submitted_at, r.ip_address, r.user_agent`

func scanResponse(row rowScanner) (model.Response, error) {
	r := model.Response{}
	var userID sql.NullInt64
	var email, ip, agent sql.NullString
	err := row.Scan(&r.ID, &r.SurveyID, &userID, &email, &r.SubmittedAt, &ip, &agent)
	r.UserID = intPtr(userID)
	r.RespondentEmail = stringPtr(email)
	r.IPAddress = stringPtr(ip)
	r.UserAgent = stringPtr(agent)
	return r, err
}

// ListResponses returns every response to the survey with its answers, oldest first.
func (st *Responses) ListResponses(ctx context.Context, surveyID int) ([]model.Response, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT`+responseColumns+`
		FROM response r
		WHERE r.survey_id = ?
		ORDER BY r.submitted_at, r.id`,
		surveyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	responses := []model.Response{}
	index := map[int]int{}
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		r.Answers = []model.Answer{}
		index[r.ID] = len(responses)
		responses = append(responses, r)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	answers, err := st.db.QueryContext(ctx, `
		SELECT a.id, a.response_id, a.question_id, a.value,
			(SELECT group_concat(so.option_id)
			 FROM selected_option so
			 WHERE so.response_id = a.response_id AND so.question_id = a.question_id)
		FROM answer a
		INNER JOIN response r ON (r.id = a.response_id)
		INNER JOIN question q ON (q.id = a.question_id)
		WHERE r.survey_id = ?
		ORDER BY a.response_id, q.position, q.id`,
		surveyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer answers.Close()

	for answers.Next() {
		a := model.Answer{}
		var selected sql.NullString
		err = answers.Scan(&a.ID, &a.ResponseID, &a.QuestionID, &a.Value, &selected)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.SelectedOptionIDs = parseIDList(selected.String)
		i, ok := index[a.ResponseID]
		if !ok {
			continue
		}
		responses[i].Answers = append(responses[i].Answers, a)
	}
	return responses, answers.Err()
}

// Tally counts selections per option for every choice question of the survey,
// including options nobody picked.
func (st *Responses) Tally(ctx context.Context, surveyID int) ([]model.Tally, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT q.id, o.id, o.text, COUNT(so.option_id)
		FROM question q
		INNER JOIN question_option o ON (o.question_id = q.id)
		LEFT OUTER JOIN selected_option so ON (so.question_id = q.id AND so.option_id = o.id)
		WHERE q.survey_id = ?
		GROUP BY q.id, o.id, o.text
		ORDER BY q.position, q.id, o.position, o.id`,
		surveyID,
	)
	if err != nil {
		return nil, fmt.Errorf("tally: %w", err)
	}
	defer rows.Close()

	tallies := []model.Tally{}
	for rows.Next() {
		t := model.Tally{}
		if err = rows.Scan(&t.QuestionID, &t.OptionID, &t.OptionText, &t.Count); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		tallies = append(tallies, t)
	}
	return tallies, rows.Err()
}
