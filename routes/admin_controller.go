package routes

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/survey-intake/app"
	"github.com/mbolis/survey-intake/httpx"
	"github.com/mbolis/survey-intake/log"
	"github.com/mbolis/survey-intake/model"
	"github.com/mbolis/survey-intake/routes/middlewares"
	"github.com/mbolis/survey-intake/store"
)

func CreateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		survey := model.Survey{}
		err := render.DecodeJSON(r.Body, &survey)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		err = validate.Struct(survey)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "request.validate", "%s", describeValidation(err))
			return
		}

		survey.ID = 0
		survey.IsArchived = false
		if caller := middlewares.CallerFrom(r.Context()); caller != nil {
			survey.OwnerID = caller.ID
		}

		err = app.Surveys.CreateSurvey(r.Context(), &survey)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":      survey.ID,
			"version": survey.Version,
		})
	}
}

func ListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveys, err := app.Surveys.ListSurveys(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "db.get_surveys", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"surveys": surveys,
		})
	}
}

func GetSurveyById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := surveyIdParam(w, r)
		if !ok {
			return
		}

		survey, err := app.Surveys.GetSurveyWithQuestions(r.Context(), surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey", err)
			return
		}
		if survey == nil {
			httpx.LogNotFound(w, "get_survey", surveyId)
			return
		}

		render.JSON(w, r, survey)
	}
}

func UpdateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := surveyIdParam(w, r)
		if !ok {
			return
		}

		survey := model.Survey{}
		err := render.DecodeJSON(r.Body, &survey)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		err = validate.Struct(survey)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "request.validate", "%s", describeValidation(err))
			return
		}

		survey.ID = surveyId
		err = app.Surveys.UpdateSurvey(r.Context(), &survey)
		if err != nil {
			logStoreError(w, "db.update_survey", surveyId, err)
			return
		}

		render.JSON(w, r, map[string]any{
			"id":      survey.ID,
			"version": survey.Version,
		})
	}
}

func DeleteSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := surveyIdParam(w, r)
		if !ok {
			return
		}

		err := app.Surveys.DeleteSurvey(r.Context(), surveyId)
		if err != nil {
			logStoreError(w, "db.delete_survey", surveyId, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type publishRequest struct {
	Published *bool `json:"published"`
}

// PublishSurvey publishes the survey, or withdraws it with {"published": false}.
func PublishSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := surveyIdParam(w, r)
		if !ok {
			return
		}

		req := publishRequest{}
		if r.ContentLength != 0 {
			err := render.DecodeJSON(r.Body, &req)
			if err != nil {
				httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
				return
			}
		}
		published := req.Published == nil || *req.Published

		survey, err := app.Surveys.SetPublished(r.Context(), surveyId, published)
		if err != nil {
			logStoreError(w, "db.publish_survey", surveyId, err)
			return
		}

		render.JSON(w, r, survey)
	}
}

func ArchiveSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := surveyIdParam(w, r)
		if !ok {
			return
		}

		err := app.Surveys.Archive(r.Context(), surveyId)
		if err != nil {
			logStoreError(w, "db.archive_survey", surveyId, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func ListAssignments(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := surveyIdParam(w, r)
		if !ok {
			return
		}

		assignments, err := app.Surveys.ListAssignments(r.Context(), surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_assignments", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"assignments": assignments,
		})
	}
}

type assignRequest struct {
	UserID int `json:"userId" validate:"required,gt=0"`
}

func AssignSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := surveyIdParam(w, r)
		if !ok {
			return
		}

		req := assignRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		err = validate.Struct(req)
		if err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "request.validate", "%s", describeValidation(err))
			return
		}

		assignment, err := app.Surveys.Assign(r.Context(), surveyId, req.UserID)
		if err != nil {
			logStoreError(w, "db.assign_survey", surveyId, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, assignment)
	}
}

func UnassignSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, ok := surveyIdParam(w, r)
		if !ok {
			return
		}
		userId, err := strconv.Atoi(chi.URLParam(r, "userId"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.user_id")
			return
		}

		err = app.Surveys.Unassign(r.Context(), surveyId, userId)
		if err != nil {
			logStoreError(w, "db.unassign_survey", surveyId, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func GetSurveyResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		survey, ok := loadSurvey(app, w, r)
		if !ok {
			return
		}

		responses, err := app.Responses.ListResponses(r.Context(), survey.ID)
		if err != nil {
			httpx.LogInternalError(w, "db.get_responses", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"responses": responses,
		})
	}
}

// ExportSurveyResponses writes one CSV row per response, one column per question.
func ExportSurveyResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		survey, ok := loadSurvey(app, w, r)
		if !ok {
			return
		}

		responses, err := app.Responses.ListResponses(r.Context(), survey.ID)
		if err != nil {
			httpx.LogInternalError(w, "db.get_responses", err)
			return
		}

		header := []string{"response_id", "submitted_at", "user_id", "respondent_email"}
		column := make(map[int]int, len(survey.Questions))
		for i, q := range survey.Questions {
			header = append(header, q.Text)
			column[q.ID] = 4 + i
		}

		w.Header().Set("content-type", "text/csv; charset=utf-8")
		w.Header().Set("content-disposition", fmt.Sprintf(`attachment; filename="survey-%d-responses.csv"`, survey.ID))

		out := csv.NewWriter(w)
		out.Write(header)
		for _, resp := range responses {
			row := make([]string, len(header))
			row[0] = strconv.Itoa(resp.ID)
			row[1] = resp.SubmittedAt.UTC().Format(time.RFC3339)
			if resp.UserID != nil {
				row[2] = strconv.Itoa(*resp.UserID)
			}
			if resp.RespondentEmail != nil {
				row[3] = *resp.RespondentEmail
			}
			for _, a := range resp.Answers {
				if i, ok := column[a.QuestionID]; ok {
					row[i] = a.Value
				}
			}
			out.Write(row)
		}
		out.Flush()

		if err = out.Error(); err != nil {
			log.Error("csv.write_responses:", err)
		}
	}
}

func GetSurveyResults(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		survey, ok := loadSurvey(app, w, r)
		if !ok {
			return
		}

		tally, err := app.Responses.Tally(r.Context(), survey.ID)
		if err != nil {
			httpx.LogInternalError(w, "db.get_results", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"results": tally,
		})
	}
}

func surveyIdParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
		return 0, false
	}
	return surveyId, true
}

func loadSurvey(app app.App, w http.ResponseWriter, r *http.Request) (*model.Survey, bool) {
	surveyId, ok := surveyIdParam(w, r)
	if !ok {
		return nil, false
	}

	survey, err := app.Surveys.GetSurveyWithQuestions(r.Context(), surveyId)
	if err != nil {
		httpx.LogInternalError(w, "db.get_survey", err)
		return nil, false
	}
	if survey == nil {
		httpx.LogNotFound(w, "get_survey", surveyId)
		return nil, false
	}
	return survey, true
}

func logStoreError(w http.ResponseWriter, code string, id int, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpx.LogNotFound(w, code, id)
	case errors.Is(err, store.ErrConflict):
		httpx.LogStatusMsg(w, http.StatusConflict, log.DebugLevel, code+".conflict", "%s", err)
	default:
		httpx.LogInternalError(w, code, err)
	}
}
