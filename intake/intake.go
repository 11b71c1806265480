// Package intake validates and stores survey response submissions.
//
// A submission goes through three phases: eligibility (is this caller allowed to
// answer this survey now, and have they answered already), normalization of the raw
// answers, and persistence of the response with its answers and selected options in
// a single transaction.
package intake

import (
	"context"
	"errors"
	"time"

	"github.com/mbolis/survey-intake/log"
	"github.com/mbolis/survey-intake/model"
	"github.com/mbolis/survey-intake/store"
)

type SurveyRepository interface {
	// GetSurveyWithQuestions returns (nil, nil) for an unknown survey.
	GetSurveyWithQuestions(ctx context.Context, surveyID int) (*model.Survey, error)
	IsUserAssigned(ctx context.Context, surveyID, userID int) (bool, error)
}

type ResponseRepository interface {
	FindResponse(ctx context.Context, surveyID, userID int) (*model.Response, error)
	FindAnonymousRecord(ctx context.Context, surveyID, userID int) (bool, error)
	WithTx(ctx context.Context, fn func(tx store.ResponseTx) error) error
}

type Service struct {
	surveys           SurveyRepository
	responses         ResponseRepository
	now               func() time.Time
	requireAssignment bool
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// RequireAssignment restricts non-public surveys to users holding an active assignment.
func RequireAssignment(enabled bool) Option {
	return func(s *Service) { s.requireAssignment = enabled }
}

func NewService(surveys SurveyRepository, responses ResponseRepository, opts ...Option) *Service {
	s := &Service{
		surveys:   surveys,
		responses: responses,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request is a submission as received from the transport layer.
type Request struct {
	SurveyID  int
	Answers   []model.SubmittedAnswer
	Caller    *model.Caller
	IPAddress string
	UserAgent string
}

// Submit checks that the caller may answer the survey and stores their response.
// Eligibility and validation failures are returned before anything is written.
func (s *Service) Submit(ctx context.Context, req Request) (*model.Response, error) {
	survey, err := s.surveys.GetSurveyWithQuestions(ctx, req.SurveyID)
	if err != nil {
		return nil, storageError("get survey", err)
	}
	if survey == nil {
		return nil, ErrSurveyNotFound
	}

	if err = s.checkEligibility(ctx, survey, req.Caller); err != nil {
		return nil, err
	}

	answers := normalize(survey, req.Answers)
	if err = checkRequired(survey, answers); err != nil {
		return nil, err
	}

	return s.persist(ctx, survey, req, answers)
}

func (s *Service) persist(ctx context.Context, survey *model.Survey, req Request, answers []normalizedAnswer) (*model.Response, error) {
	var saved *model.Response
	err := s.responses.WithTx(ctx, func(tx store.ResponseTx) error {
		resp := &model.Response{
			SurveyID:    survey.ID,
			SubmittedAt: s.now(),
			Answers:     []model.Answer{},
		}
		if !survey.IsAnonymous {
			resp.UserID = &req.Caller.ID
			resp.RespondentEmail = optional(req.Caller.Email)
			resp.IPAddress = optional(req.IPAddress)
			resp.UserAgent = optional(req.UserAgent)
		}

		err := tx.CreateResponse(ctx, resp)
		if errors.Is(err, store.ErrAlreadyExists) {
			return ErrAlreadyResponded
		}
		if err != nil {
			return storageError("create response", err)
		}

		if survey.IsAnonymous && !survey.IsPublic && req.Caller != nil {
			res, err := tx.TryCreateAnonymousRecord(ctx, model.AnonymousSurveyResponse{
				SurveyID:    survey.ID,
				UserID:      req.Caller.ID,
				SubmittedAt: resp.SubmittedAt,
			})
			if err != nil {
				return storageError("create anonymous record", err)
			}
			if res == store.AlreadyExists {
				// a concurrent submission got there first
				return ErrAlreadyResponded
			}
		}

		for _, a := range answers {
			answer := model.Answer{ResponseID: resp.ID, QuestionID: a.question.ID, Value: a.value}
			if err := tx.CreateAnswer(ctx, &answer); err != nil {
				warnAnswer(survey.ID, a.question.ID, err).Warn("intake.answer.persist")
				continue
			}

			for _, optionID := range a.optionIDs {
				err := tx.CreateSelectedOption(ctx, model.SelectedOption{
					ResponseID: resp.ID,
					QuestionID: a.question.ID,
					OptionID:   optionID,
				})
				if err != nil {
					warnAnswer(survey.ID, a.question.ID, err).Warn("intake.selected_option.persist")
					continue
				}
				answer.SelectedOptionIDs = append(answer.SelectedOptionIDs, optionID)
			}
			resp.Answers = append(resp.Answers, answer)
		}

		saved = resp
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyResponded) || errors.Is(err, ErrStorage) {
			return nil, err
		}
		return nil, storageError("commit response", err)
	}

	log.WithFields(log.Fields{
		"survey":   survey.ID,
		"response": saved.ID,
		"answers":  len(saved.Answers),
	}).Info("intake.submitted")
	return saved, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
