package routes

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/survey-intake/app"
	"github.com/mbolis/survey-intake/httpx"
	"github.com/mbolis/survey-intake/intake"
	"github.com/mbolis/survey-intake/log"
	"github.com/mbolis/survey-intake/model"
	"github.com/mbolis/survey-intake/routes/middlewares"
)

func PublicListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveys, err := app.Surveys.ListAvailable(r.Context(), middlewares.CallerFrom(r.Context()))
		if err != nil {
			httpx.LogInternalError(w, "db.get_surveys", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"surveys": surveys,
		})
	}
}

func PublicGetSurveyById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		survey, err := app.Surveys.GetSurveyWithQuestions(r.Context(), surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey", err)
			return
		}
		if survey == nil || !survey.Active(time.Now()) {
			httpx.LogNotFound(w, "get_survey", surveyId)
			return
		}

		if caller := middlewares.CallerFrom(r.Context()); caller != nil {
			if survey.IsAnonymous {
				survey.Submitted, err = app.Responses.FindAnonymousRecord(r.Context(), surveyId, caller.ID)
			} else {
				var resp *model.Response
				resp, err = app.Responses.FindResponse(r.Context(), surveyId, caller.ID)
				survey.Submitted = resp != nil
			}
			if err != nil {
				httpx.LogInternalError(w, "db.get_survey.submitted", err)
				return
			}
		}

		render.JSON(w, r, survey)
	}
}

func SubmitResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submission := model.Submission{}
		err := render.DecodeJSON(r.Body, &submission)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body", "malformed request body")
			return
		}

		surveyId, ok := submission.SurveyID.Int()
		if !ok {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "request.survey_id", "invalid surveyId %q", submission.SurveyID)
			return
		}

		resp, err := app.Intake.Submit(r.Context(), intake.Request{
			SurveyID:  surveyId,
			Answers:   submission.Answers,
			Caller:    middlewares.CallerFrom(r.Context()),
			IPAddress: remoteIP(r),
			UserAgent: r.UserAgent(),
		})
		if err != nil {
			httpx.LogIntakeError(w, r, "intake.submit", err)
			return
		}

		// request metadata stays out of the 201 body
		resp.IPAddress = nil
		resp.UserAgent = nil

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, resp)
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
