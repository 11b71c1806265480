package intake

import (
	"context"

	"github.com/mbolis/survey-intake/model"
)

// checkEligibility applies, in order: activity, time window, authentication,
// assignment (when required) and duplicate submission.
func (s *Service) checkEligibility(ctx context.Context, survey *model.Survey, caller *model.Caller) error {
	if !survey.IsPublished || survey.IsArchived {
		return ErrSurveyNotActive
	}

	now := s.now()
	if survey.StartsAt != nil && survey.StartsAt.After(now) {
		return ErrSurveyNotStarted
	}
	if survey.EndsAt != nil && survey.EndsAt.Before(now) {
		return ErrSurveyEnded
	}

	if !survey.IsAnonymous && caller == nil {
		return ErrAuthenticationRequired
	}

	if s.requireAssignment && !survey.IsPublic && caller != nil {
		assigned, err := s.surveys.IsUserAssigned(ctx, survey.ID, caller.ID)
		if err != nil {
			return storageError("check assignment", err)
		}
		if !assigned {
			return ErrNotAssigned
		}
	}

	switch {
	case survey.IsPublic && survey.IsAnonymous:
		// open to unlimited submissions

	case survey.IsAnonymous:
		if caller == nil {
			// unauthenticated anonymous submissions cannot be deduplicated
			return nil
		}
		found, err := s.responses.FindAnonymousRecord(ctx, survey.ID, caller.ID)
		if err != nil {
			return storageError("find anonymous record", err)
		}
		if found {
			return ErrAlreadyResponded
		}

	default:
		prev, err := s.responses.FindResponse(ctx, survey.ID, caller.ID)
		if err != nil {
			return storageError("find response", err)
		}
		if prev != nil {
			return ErrAlreadyResponded
		}
	}
	return nil
}

// checkRequired reports the first required question, in display order, without a
// non-empty answer.
func checkRequired(survey *model.Survey, answers []normalizedAnswer) error {
	answered := make(map[int]bool, len(answers))
	for _, a := range answers {
		if !a.empty {
			answered[a.question.ID] = true
		}
	}

	for _, q := range survey.Questions {
		if q.IsRequired && !answered[q.ID] {
			return &MissingAnswerError{QuestionID: q.ID}
		}
	}
	return nil
}
