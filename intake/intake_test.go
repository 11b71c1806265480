package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/survey-intake/model"
)

var testNow = time.Date(2025, 9, 17, 12, 0, 0, 0, time.UTC)

const (
	qText   = 10
	qMulti  = 11
	qSingle = 12
)

func testSurvey(published, anonymous, public bool) *model.Survey {
	return &model.Survey{
		ID:          1,
		Title:       "Weather",
		IsPublished: published,
		IsAnonymous: anonymous,
		IsPublic:    public,
		Questions: []model.Question{
			{ID: qText, Text: "Say hi", Type: model.Text, IsRequired: true},
			{ID: qMulti, Text: "Seasons", Type: model.MultipleChoice, Options: []model.QuestionOption{
				{ID: 3, Text: "spring"}, {ID: 4, Text: "summer"}, {ID: 5, Text: "autumn"},
			}},
			{ID: qSingle, Text: "Favourite", Type: model.SingleChoice, HasOther: true, Options: []model.QuestionOption{
				{ID: 7, Text: "sun"}, {ID: 8, Text: "rain"},
			}},
		},
	}
}

func answer(qid int, value model.AnswerValue) model.SubmittedAnswer {
	return model.SubmittedAnswer{QuestionID: model.NewRefID(qid), Value: value}
}

func hello() []model.SubmittedAnswer {
	return []model.SubmittedAnswer{answer(qText, model.TextAnswer("hello"))}
}

var alice = &model.Caller{ID: 42, Email: "alice@example.com", Role: model.RoleUser}

func newTestService(repo *fakeRepo, opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewService(repo, repo, opts...)
}

func submit(svc *Service, caller *model.Caller, answers []model.SubmittedAnswer) (*model.Response, error) {
	return svc.Submit(context.Background(), Request{
		SurveyID:  1,
		Answers:   answers,
		Caller:    caller,
		IPAddress: "10.0.0.1",
		UserAgent: "curl/8",
	})
}

func TestSubmitUnknownSurvey(t *testing.T) {
	svc := newTestService(newFakeRepo())
	_, err := submit(svc, alice, hello())
	require.ErrorIs(t, err, ErrSurveyNotFound)
}

func TestSubmitInactiveSurvey(t *testing.T) {
	archived := testSurvey(true, false, false)
	archived.IsArchived = true

	future := testNow.Add(time.Hour)
	past := testNow.Add(-time.Hour)
	notStarted := testSurvey(true, false, false)
	notStarted.StartsAt = &future
	ended := testSurvey(true, false, false)
	ended.EndsAt = &past

	tests := []struct {
		name   string
		survey *model.Survey
		caller *model.Caller
		want   error
	}{
		{"unpublished", testSurvey(false, false, false), alice, ErrSurveyNotActive},
		{"unpublished anonymous public", testSurvey(false, true, true), nil, ErrSurveyNotActive},
		// activity is checked before authentication
		{"unpublished without caller", testSurvey(false, false, false), nil, ErrSurveyNotActive},
		{"archived", archived, alice, ErrSurveyNotActive},
		{"not started", notStarted, alice, ErrSurveyNotStarted},
		{"ended", ended, alice, ErrSurveyEnded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo(tt.survey)
			_, err := submit(newTestService(repo), tt.caller, hello())
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, repo.responses)
		})
	}
}

func TestSubmitWithinWindow(t *testing.T) {
	s := testSurvey(true, false, false)
	start, end := testNow.Add(-time.Hour), testNow.Add(time.Hour)
	s.StartsAt, s.EndsAt = &start, &end

	_, err := submit(newTestService(newFakeRepo(s)), alice, hello())
	require.NoError(t, err)
}

func TestSubmitPublicAnonymousAllowsRepeats(t *testing.T) {
	repo := newFakeRepo(testSurvey(true, true, true))
	svc := newTestService(repo)

	for i := 0; i < 3; i++ {
		resp, err := submit(svc, alice, hello())
		require.NoError(t, err)
		assert.Nil(t, resp.UserID)
		assert.Nil(t, resp.RespondentEmail)
		assert.Nil(t, resp.IPAddress)
		assert.Nil(t, resp.UserAgent)
	}
	_, err := submit(svc, nil, hello())
	require.NoError(t, err)

	assert.Len(t, repo.responses, 4)
	assert.Empty(t, repo.anonymous)
}

func TestSubmitPrivateAnonymousOncePerUser(t *testing.T) {
	repo := newFakeRepo(testSurvey(true, true, false))
	svc := newTestService(repo)

	resp, err := submit(svc, alice, hello())
	require.NoError(t, err)
	assert.Nil(t, resp.UserID, "anonymous responses must not link to the caller")
	assert.Nil(t, resp.RespondentEmail)
	assert.True(t, repo.anonymous[userSurvey{1, alice.ID}])

	_, err = submit(svc, alice, hello())
	require.ErrorIs(t, err, ErrAlreadyResponded)
	assert.Len(t, repo.responses, 1)
	assert.Len(t, repo.anonymous, 1)

	// unauthenticated submissions cannot be deduplicated
	for i := 0; i < 2; i++ {
		_, err = submit(svc, nil, hello())
		require.NoError(t, err)
	}
	assert.Len(t, repo.responses, 3)
	assert.Len(t, repo.anonymous, 1)
}

func TestSubmitPrivateAnonymousRaceRollsBack(t *testing.T) {
	repo := newFakeRepo(testSurvey(true, true, false))
	repo.anonymous[userSurvey{1, alice.ID}] = true
	repo.hideAnonymous = true

	_, err := submit(newTestService(repo), alice, hello())
	require.ErrorIs(t, err, ErrAlreadyResponded)
	assert.Empty(t, repo.responses)
	assert.Empty(t, repo.answers)
}

func TestSubmitIdentifiedSurvey(t *testing.T) {
	for _, public := range []bool{false, true} {
		repo := newFakeRepo(testSurvey(true, false, public))
		svc := newTestService(repo)

		_, err := submit(svc, nil, hello())
		require.ErrorIs(t, err, ErrAuthenticationRequired)

		resp, err := submit(svc, alice, hello())
		require.NoError(t, err)
		require.NotNil(t, resp.UserID)
		assert.Equal(t, alice.ID, *resp.UserID)
		assert.Equal(t, alice.Email, *resp.RespondentEmail)
		assert.Equal(t, "10.0.0.1", *resp.IPAddress)
		assert.Equal(t, "curl/8", *resp.UserAgent)

		_, err = submit(svc, alice, hello())
		require.ErrorIs(t, err, ErrAlreadyResponded)
		assert.Len(t, repo.responses, 1)
	}
}

func TestSubmitIdentifiedRaceMapsUniqueViolation(t *testing.T) {
	repo := newFakeRepo(testSurvey(true, false, false))
	svc := newTestService(repo)
	_, err := submit(svc, alice, hello())
	require.NoError(t, err)

	// pretend the read-side check missed the first response
	stale := &staleFinder{fakeRepo: repo}
	svc = NewService(repo, stale, WithClock(func() time.Time { return testNow }))
	_, err = submit(svc, alice, hello())
	require.ErrorIs(t, err, ErrAlreadyResponded)
	assert.Len(t, repo.responses, 1)
}

type staleFinder struct{ *fakeRepo }

func (staleFinder) FindResponse(context.Context, int, int) (*model.Response, error) {
	return nil, nil
}

func TestSubmitExampleScenario(t *testing.T) {
	s := &model.Survey{
		ID: 1, IsPublished: true,
		Questions: []model.Question{{ID: qText, Type: model.Text, IsRequired: true}},
	}
	repo := newFakeRepo(s)
	repo.assigned[userSurvey{1, alice.ID}] = true

	resp, err := submit(newTestService(repo, RequireAssignment(true)), alice, hello())
	require.NoError(t, err)
	assert.Equal(t, alice.ID, *resp.UserID)

	want := []model.Answer{{ID: 1, ResponseID: resp.ID, QuestionID: qText, Value: "hello"}}
	if diff := cmp.Diff(want, repo.answers); diff != "" {
		t.Fatalf("answers mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, repo.selected)
}

func TestSubmitRequireAssignment(t *testing.T) {
	repo := newFakeRepo(testSurvey(true, false, false))
	svc := newTestService(repo, RequireAssignment(true))

	_, err := submit(svc, alice, hello())
	require.ErrorIs(t, err, ErrNotAssigned)

	// public surveys never look at assignments
	repo = newFakeRepo(testSurvey(true, false, true))
	_, err = submit(newTestService(repo, RequireAssignment(true)), alice, hello())
	require.NoError(t, err)
}

func TestSubmitMultipleChoice(t *testing.T) {
	values := map[string]model.AnswerValue{
		"text":  model.TextAnswer("3,5"),
		"array": model.ChoiceAnswer("3", "5"),
	}
	for name, value := range values {
		t.Run(name, func(t *testing.T) {
			repo := newFakeRepo(testSurvey(true, false, false))
			resp, err := submit(newTestService(repo), alice, []model.SubmittedAnswer{
				answer(qText, model.TextAnswer("hello")),
				answer(qMulti, value),
			})
			require.NoError(t, err)

			require.Len(t, repo.answers, 2)
			assert.Equal(t, "3,5", repo.answers[1].Value)
			assert.ElementsMatch(t, []model.SelectedOption{
				{ResponseID: resp.ID, QuestionID: qMulti, OptionID: 3},
				{ResponseID: resp.ID, QuestionID: qMulti, OptionID: 5},
			}, repo.selected)
			assert.Equal(t, []int{3, 5}, resp.Answers[1].SelectedOptionIDs)
		})
	}
}

func TestSubmitOtherValue(t *testing.T) {
	repo := newFakeRepo(testSurvey(true, false, false))
	_, err := submit(newTestService(repo), alice, []model.SubmittedAnswer{
		answer(qText, model.TextAnswer("hello")),
		answer(qSingle, model.TextAnswer("OTHER: snow")),
	})
	require.NoError(t, err)

	require.Len(t, repo.answers, 2)
	assert.Equal(t, "OTHER: snow", repo.answers[1].Value)
	assert.Empty(t, repo.selected)
}

func TestSubmitLenientAnswers(t *testing.T) {
	repo := newFakeRepo(testSurvey(true, false, false))
	_, err := submit(newTestService(repo), alice, []model.SubmittedAnswer{
		answer(qText, model.TextAnswer("hello")),
		answer(999, model.TextAnswer("unknown question")),
		{QuestionID: refID(t, `"abc"`), Value: model.TextAnswer("non-numeric id")},
		answer(qMulti, model.TextAnswer("3, 99, spring, 3")),
		{QuestionID: refID(t, `"12"`)},
	})
	require.NoError(t, err)

	require.Len(t, repo.answers, 3)
	assert.Equal(t, "3, 99, spring, 3", repo.answers[1].Value)
	assert.Equal(t, qSingle, repo.answers[2].QuestionID)
	assert.Equal(t, "", repo.answers[2].Value)
	assert.Equal(t, []model.SelectedOption{{ResponseID: 1, QuestionID: qMulti, OptionID: 3}}, repo.selected)
}

func TestSubmitLastDuplicateAnswerWins(t *testing.T) {
	repo := newFakeRepo(testSurvey(true, false, false))
	_, err := submit(newTestService(repo), alice, []model.SubmittedAnswer{
		answer(qText, model.TextAnswer("first")),
		answer(qText, model.TextAnswer("second")),
	})
	require.NoError(t, err)
	require.Len(t, repo.answers, 1)
	assert.Equal(t, "second", repo.answers[0].Value)
}

func TestSubmitMissingRequiredAnswer(t *testing.T) {
	cases := map[string][]model.SubmittedAnswer{
		"absent":     {answer(qMulti, model.TextAnswer("3"))},
		"blank":      {answer(qText, model.TextAnswer("   "))},
		"null":       {answer(qText, model.AnswerValue{})},
		"wrong id":   {answer(999, model.TextAnswer("hello"))},
		"empty list": {answer(qText, model.ChoiceAnswer())},
	}
	for name, answers := range cases {
		t.Run(name, func(t *testing.T) {
			repo := newFakeRepo(testSurvey(true, false, false))
			_, err := submit(newTestService(repo), alice, answers)
			require.ErrorIs(t, err, ErrMissingRequiredAnswer)

			var missing *MissingAnswerError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, qText, missing.QuestionID)
			assert.Empty(t, repo.responses)
		})
	}
}

func TestSubmitDuplicateBeforeValidation(t *testing.T) {
	repo := newFakeRepo(testSurvey(true, false, false))
	svc := newTestService(repo)
	_, err := submit(svc, alice, hello())
	require.NoError(t, err)

	_, err = submit(svc, alice, nil)
	require.ErrorIs(t, err, ErrAlreadyResponded)
}

func TestSubmitAnswerFailureIsIsolated(t *testing.T) {
	repo := newFakeRepo(testSurvey(true, false, false))
	repo.failAnswers = map[int]bool{qMulti: true}

	resp, err := submit(newTestService(repo), alice, []model.SubmittedAnswer{
		answer(qText, model.TextAnswer("hello")),
		answer(qMulti, model.TextAnswer("3")),
		answer(qSingle, model.TextAnswer("7")),
	})
	require.NoError(t, err)
	assert.Len(t, repo.responses, 1)
	assert.Len(t, resp.Answers, 2)
	assert.Equal(t, []model.SelectedOption{{ResponseID: resp.ID, QuestionID: qSingle, OptionID: 7}}, repo.selected)
}

func TestSubmitStorageFailures(t *testing.T) {
	repo := newFakeRepo(testSurvey(true, false, false))
	repo.getSurveyErr = errors.New("database is locked")
	_, err := submit(newTestService(repo), alice, hello())
	require.ErrorIs(t, err, ErrStorage)

	repo = newFakeRepo(testSurvey(true, false, false))
	repo.createRespErr = errors.New("disk full")
	_, err = submit(newTestService(repo), alice, hello())
	require.ErrorIs(t, err, ErrStorage)
	assert.Empty(t, repo.responses)
	assert.Empty(t, repo.answers)
}

func refID(t *testing.T, raw string) model.RefID {
	t.Helper()
	var id model.RefID
	require.NoError(t, id.UnmarshalJSON([]byte(raw)))
	return id
}
