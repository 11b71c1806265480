package intake

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mbolis/survey-intake/log"
	"github.com/mbolis/survey-intake/model"
)

// OtherPrefix marks a free-form "other" entry in a choice answer.
const OtherPrefix = "OTHER:"

type normalizedAnswer struct {
	question  *model.Question
	value     string
	empty     bool
	optionIDs []int
}

// normalize resolves submitted answers against the survey's questions. Answers to
// unknown questions are dropped; when a question is answered twice the last answer wins.
func normalize(survey *model.Survey, submitted []model.SubmittedAnswer) []normalizedAnswer {
	answers := make([]normalizedAnswer, 0, len(submitted))
	seen := make(map[int]int, len(submitted))

	for _, sa := range submitted {
		qid, ok := sa.QuestionID.Int()
		if !ok {
			log.WithFields(log.Fields{"survey": survey.ID, "question": sa.QuestionID.String()}).
				Warn("intake.answer.invalid_question_id")
			continue
		}
		q := survey.Question(qid)
		if q == nil {
			warnAnswer(survey.ID, qid, nil).Warn("intake.answer.unknown_question")
			continue
		}

		a := normalizedAnswer{
			question: q,
			value:    sa.Value.String(),
			empty:    sa.Value.IsEmpty(),
		}
		if q.Type.IsChoice() {
			a.optionIDs = selectedOptions(survey.ID, q, sa.Value)
		}

		if i, dup := seen[qid]; dup {
			answers[i] = a
			continue
		}
		seen[qid] = len(answers)
		answers = append(answers, a)
	}
	return answers
}

// selectedOptions maps choice tokens to option ids of q. "Other" entries and tokens
// that match no option produce no selection.
func selectedOptions(surveyID int, q *model.Question, value model.AnswerValue) []int {
	var ids []int
	picked := map[int]bool{}
	for _, token := range value.ChoiceTokens() {
		if strings.HasPrefix(token, OtherPrefix) {
			if !q.HasOther {
				warnAnswer(surveyID, q.ID, nil).WithField("token", token).Warn("intake.answer.other_not_allowed")
			}
			continue
		}

		id, err := strconv.Atoi(token)
		if err != nil {
			warnAnswer(surveyID, q.ID, nil).WithField("token", token).Warn("intake.answer.invalid_option")
			continue
		}
		if q.Option(id) == nil {
			warnAnswer(surveyID, q.ID, nil).WithField("option", id).Warn("intake.answer.unknown_option")
			continue
		}
		if picked[id] {
			continue
		}
		picked[id] = true
		ids = append(ids, id)
	}
	return ids
}

func warnAnswer(surveyID, questionID int, err error) *logrus.Entry {
	entry := log.WithFields(log.Fields{"survey": surveyID, "question": questionID})
	if err != nil {
		entry = entry.WithError(err)
	}
	return entry
}
