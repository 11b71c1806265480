package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	"github.com/mbolis/survey-intake/intake"
	"github.com/mbolis/survey-intake/log"
)

// Will log an error, and send an HTTP response with status 500 and default text
func LogInternalError(w http.ResponseWriter, code string, err error) {
	log.Errorf("%s: %s", code, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Will log a debug message, and send an HTTP response with status 404 and default text
func LogNotFound(w http.ResponseWriter, code string, id any) {
	log.Debugf("%s: not found (%v)", code, id)
	http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
}

// Will log an error code at the given level, and send
// an HTTP response with status and default text
func LogStatus(w http.ResponseWriter, status int, level log.Level, code string) {
	log.Log(level, code)
	http.Error(w, http.StatusText(status), status)
}

// Will log an error code and message at the given level,
// and send an HTTP response with the given status and formatted message
func LogStatusMsg(w http.ResponseWriter, status int, level log.Level, code string, msg string, args ...any) {
	errMsg := fmt.Sprintf(msg, args...)
	log.Log(level, code+":", errMsg)
	http.Error(w, errMsg, status)
}

// ErrorBody is the JSON shape of a rejected submission.
type ErrorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	QuestionID int    `json:"questionId,omitempty"`
}

var intakeErrors = []struct {
	err    error
	status int
	kind   string
}{
	{intake.ErrSurveyNotFound, http.StatusNotFound, "survey_not_found"},
	{intake.ErrSurveyNotActive, http.StatusBadRequest, "survey_not_active"},
	{intake.ErrSurveyNotStarted, http.StatusBadRequest, "survey_not_started"},
	{intake.ErrSurveyEnded, http.StatusBadRequest, "survey_ended"},
	{intake.ErrAuthenticationRequired, http.StatusUnauthorized, "authentication_required"},
	{intake.ErrNotAssigned, http.StatusForbidden, "not_assigned"},
	{intake.ErrAlreadyResponded, http.StatusConflict, "already_responded"},
	{intake.ErrMissingRequiredAnswer, http.StatusBadRequest, "missing_required_answer"},
}

// LogIntakeError maps a submission failure to its status and JSON body.
// Anything unrecognised is treated as a storage failure.
func LogIntakeError(w http.ResponseWriter, r *http.Request, code string, err error) {
	for _, e := range intakeErrors {
		if !errors.Is(err, e.err) {
			continue
		}

		body := ErrorBody{Error: e.kind, Message: e.err.Error()}
		var missing *intake.MissingAnswerError
		if errors.As(err, &missing) {
			body.QuestionID = missing.QuestionID
		}

		log.Debugf("%s: %s", code, err)
		render.Status(r, e.status)
		render.JSON(w, r, body)
		return
	}

	log.Errorf("%s: %s", code, err)
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, ErrorBody{Error: "storage_failure", Message: "could not save the response, please retry"})
}
