package intake

import (
	"context"
	"database/sql"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/survey-intake/database"
	"github.com/mbolis/survey-intake/model"
	"github.com/mbolis/survey-intake/store"
)

type sqliteFixture struct {
	db      *sql.DB
	surveys *store.Surveys
	svc     *Service
	user    *model.Caller
}

func newSQLiteFixture(t *testing.T, opts ...Option) *sqliteFixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "intake.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	u, err := store.NewUsers(db).CreateUser(context.Background(), "u", "u@example.com", "pw", model.RoleUser)
	require.NoError(t, err)

	surveys := store.NewSurveys(db)
	return &sqliteFixture{
		db:      db,
		surveys: surveys,
		svc:     NewService(surveys, store.NewResponses(db), opts...),
		user:    &model.Caller{ID: u.ID, Email: u.Email, Role: u.Role},
	}
}

func (f *sqliteFixture) createSurvey(t *testing.T, anonymous, public bool) *model.Survey {
	t.Helper()
	s := &model.Survey{
		Title:       "Weather",
		IsPublished: true,
		IsAnonymous: anonymous,
		IsPublic:    public,
		Questions: []model.Question{
			{Text: "Say hi", Type: model.Text, IsRequired: true},
			{Text: "Seasons", Type: model.MultipleChoice, Options: []model.QuestionOption{
				{Text: "spring"}, {Text: "summer"}, {Text: "autumn"},
			}},
			{Text: "Favourite", Type: model.SingleChoice, HasOther: true, Options: []model.QuestionOption{
				{Text: "sun"}, {Text: "rain"},
			}},
		},
	}
	require.NoError(t, f.surveys.CreateSurvey(context.Background(), s))
	return s
}

func (f *sqliteFixture) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestSQLiteIdentifiedSubmission(t *testing.T) {
	ctx := context.Background()
	f := newSQLiteFixture(t, RequireAssignment(true))
	s := f.createSurvey(t, false, false)
	_, err := f.surveys.Assign(ctx, s.ID, f.user.ID)
	require.NoError(t, err)

	seasons := s.Questions[1]
	first, third := seasons.Options[0].ID, seasons.Options[2].ID
	choice := model.TextAnswer(strconv.Itoa(first) + "," + strconv.Itoa(third))

	resp, err := f.svc.Submit(ctx, Request{
		SurveyID: s.ID,
		Caller:   f.user,
		Answers: []model.SubmittedAnswer{
			answer(s.Questions[0].ID, model.TextAnswer("hello")),
			answer(seasons.ID, choice),
		},
		IPAddress: "192.0.2.1",
	})
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, *resp.UserID)
	assert.Equal(t, []int{first, third}, resp.Answers[1].SelectedOptionIDs)

	var userID sql.NullInt64
	var email, ip sql.NullString
	require.NoError(t, f.db.QueryRow(`SELECT user_id, respondent_email, ip_address FROM response WHERE id = ?`, resp.ID).
		Scan(&userID, &email, &ip))
	assert.Equal(t, int64(f.user.ID), userID.Int64)
	assert.Equal(t, "u@example.com", email.String)
	assert.Equal(t, "192.0.2.1", ip.String)

	assert.Equal(t, 2, f.count(t, `SELECT COUNT(*) FROM answer WHERE response_id = ?`, resp.ID))
	assert.Equal(t, 2, f.count(t, `SELECT COUNT(*) FROM selected_option WHERE response_id = ? AND question_id = ?`, resp.ID, seasons.ID))

	_, err = f.svc.Submit(ctx, Request{SurveyID: s.ID, Caller: f.user, Answers: helloFor(s)})
	require.ErrorIs(t, err, ErrAlreadyResponded)
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM response`))
}

func TestSQLiteAnonymousSubmissionStoresNoIdentity(t *testing.T) {
	ctx := context.Background()
	f := newSQLiteFixture(t)
	s := f.createSurvey(t, true, false)

	resp, err := f.svc.Submit(ctx, Request{
		SurveyID:  s.ID,
		Caller:    f.user,
		Answers:   append(helloFor(s), answer(s.Questions[2].ID, model.TextAnswer("OTHER: snow"))),
		IPAddress: "192.0.2.1",
		UserAgent: "curl/8",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.count(t, `
		SELECT COUNT(*) FROM response
		WHERE id = ? AND user_id IS NULL AND respondent_email IS NULL
			AND ip_address IS NULL AND user_agent IS NULL`, resp.ID))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM anonymous_survey_response WHERE survey_id = ? AND user_id = ?`, s.ID, f.user.ID))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM answer WHERE value = 'OTHER: snow'`))
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM selected_option`))

	_, err = f.svc.Submit(ctx, Request{SurveyID: s.ID, Caller: f.user, Answers: helloFor(s)})
	require.ErrorIs(t, err, ErrAlreadyResponded)
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM anonymous_survey_response`))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM response`))
}

func TestSQLiteMissingRequiredWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newSQLiteFixture(t)
	s := f.createSurvey(t, true, true)

	_, err := f.svc.Submit(ctx, Request{SurveyID: s.ID, Answers: []model.SubmittedAnswer{
		answer(s.Questions[1].ID, model.TextAnswer("1")),
	}})
	require.ErrorIs(t, err, ErrMissingRequiredAnswer)
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM response`))
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM answer`))
}

func helloFor(s *model.Survey) []model.SubmittedAnswer {
	return []model.SubmittedAnswer{answer(s.Questions[0].ID, model.TextAnswer("hello"))}
}
