package intake

import (
	"context"
	"errors"

	"github.com/mbolis/survey-intake/model"
	"github.com/mbolis/survey-intake/store"
)

type userSurvey struct{ survey, user int }

// fakeRepo is an in-memory implementation of both repositories. Writes made inside
// WithTx are only kept when the callback succeeds.
type fakeRepo struct {
	surveys  map[int]*model.Survey
	assigned map[userSurvey]bool

	responses []model.Response
	answers   []model.Answer
	selected  []model.SelectedOption
	anonymous map[userSurvey]bool

	// hideAnonymous makes FindAnonymousRecord miss existing rows, as when a
	// concurrent submission commits between the check and the insert.
	hideAnonymous  bool
	failAnswers    map[int]bool
	getSurveyErr   error
	createRespErr  error
	nextResponseID int
}

func newFakeRepo(surveys ...*model.Survey) *fakeRepo {
	r := &fakeRepo{
		surveys:   map[int]*model.Survey{},
		assigned:  map[userSurvey]bool{},
		anonymous: map[userSurvey]bool{},
	}
	for _, s := range surveys {
		r.surveys[s.ID] = s
	}
	return r
}

func (r *fakeRepo) GetSurveyWithQuestions(_ context.Context, surveyID int) (*model.Survey, error) {
	if r.getSurveyErr != nil {
		return nil, r.getSurveyErr
	}
	return r.surveys[surveyID], nil
}

func (r *fakeRepo) IsUserAssigned(_ context.Context, surveyID, userID int) (bool, error) {
	return r.assigned[userSurvey{surveyID, userID}], nil
}

func (r *fakeRepo) FindResponse(_ context.Context, surveyID, userID int) (*model.Response, error) {
	for i := range r.responses {
		resp := r.responses[i]
		if resp.SurveyID == surveyID && resp.UserID != nil && *resp.UserID == userID {
			return &resp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) FindAnonymousRecord(_ context.Context, surveyID, userID int) (bool, error) {
	if r.hideAnonymous {
		return false, nil
	}
	return r.anonymous[userSurvey{surveyID, userID}], nil
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(tx store.ResponseTx) error) error {
	tx := &fakeTx{repo: r, anonymous: map[userSurvey]bool{}}
	if err := fn(tx); err != nil {
		return err
	}
	r.responses = append(r.responses, tx.responses...)
	r.answers = append(r.answers, tx.answers...)
	r.selected = append(r.selected, tx.selected...)
	for k := range tx.anonymous {
		r.anonymous[k] = true
	}
	return nil
}

type fakeTx struct {
	repo      *fakeRepo
	responses []model.Response
	answers   []model.Answer
	selected  []model.SelectedOption
	anonymous map[userSurvey]bool
}

func (tx *fakeTx) CreateResponse(_ context.Context, resp *model.Response) error {
	if tx.repo.createRespErr != nil {
		return tx.repo.createRespErr
	}
	if resp.UserID != nil {
		for _, prev := range tx.repo.responses {
			if prev.SurveyID == resp.SurveyID && prev.UserID != nil && *prev.UserID == *resp.UserID {
				return store.ErrAlreadyExists
			}
		}
	}
	tx.repo.nextResponseID++
	resp.ID = tx.repo.nextResponseID
	tx.responses = append(tx.responses, *resp)
	return nil
}

func (tx *fakeTx) CreateAnswer(_ context.Context, a *model.Answer) error {
	if tx.repo.failAnswers[a.QuestionID] {
		return errors.New("disk on fire")
	}
	a.ID = len(tx.repo.answers) + len(tx.answers) + 1
	tx.answers = append(tx.answers, *a)
	return nil
}

func (tx *fakeTx) CreateSelectedOption(_ context.Context, o model.SelectedOption) error {
	tx.selected = append(tx.selected, o)
	return nil
}

func (tx *fakeTx) TryCreateAnonymousRecord(_ context.Context, rec model.AnonymousSurveyResponse) (store.CreateResult, error) {
	key := userSurvey{rec.SurveyID, rec.UserID}
	if tx.repo.anonymous[key] || tx.anonymous[key] {
		return store.AlreadyExists, nil
	}
	tx.anonymous[key] = true
	return store.Created, nil
}
