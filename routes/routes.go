package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mbolis/survey-intake/app"
	"github.com/mbolis/survey-intake/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	api.Group(func(r chi.Router) {
		r.Use(middlewares.Identity(app.TokenSecret, app.IdP))

		r.Get("/surveys", PublicListSurveys(app))
		r.Get(`/surveys/{id:^\d+$}`, PublicGetSurveyById(app))
		r.Post("/responses", SubmitResponse(app))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middlewares.Admin)

			// CRUD survey
			r.Post("/surveys", CreateSurvey(app))
			r.Get("/surveys", ListSurveys(app))
			r.Get(`/surveys/{id:^\d+$}`, GetSurveyById(app))
			r.Put(`/surveys/{id:^\d+$}`, UpdateSurvey(app))
			r.Delete(`/surveys/{id:^\d+$}`, DeleteSurvey(app))

			r.Post(`/surveys/{id:^\d+$}/publish`, PublishSurvey(app))
			r.Post(`/surveys/{id:^\d+$}/archive`, ArchiveSurvey(app))

			r.Get(`/surveys/{id:^\d+$}/assignments`, ListAssignments(app))
			r.Post(`/surveys/{id:^\d+$}/assignments`, AssignSurvey(app))
			r.Delete(`/surveys/{id:^\d+$}/assignments/{userId:^\d+$}`, UnassignSurvey(app))

			r.Get(`/surveys/{id:^\d+$}/responses`, GetSurveyResponses(app))
			r.Get(`/surveys/{id:^\d+$}/responses.csv`, ExportSurveyResponses(app))
			r.Get(`/surveys/{id:^\d+$}/results`, GetSurveyResults(app))
		})
	})

	return api
}
