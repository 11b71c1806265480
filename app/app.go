package app

import (
	"database/sql"

	"github.com/go-chi/oauth"

	"github.com/mbolis/survey-intake/config"
	"github.com/mbolis/survey-intake/httpx"
	"github.com/mbolis/survey-intake/intake"
	"github.com/mbolis/survey-intake/store"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config

	IdP       *httpx.IdentityProvider
	Surveys   *store.Surveys
	Responses *store.Responses
	Users     *store.Users
	Intake    *intake.Service
}

func New(db *sql.DB, cfg config.Config) App {
	surveys := store.NewSurveys(db)
	responses := store.NewResponses(db)
	users := store.NewUsers(db)

	return App{
		DB:           db,
		BearerServer: httpx.NewBearerServer(users, cfg),
		Config:       cfg,

		IdP:       httpx.NewIdentityProvider(cfg.IdPSecret, users),
		Surveys:   surveys,
		Responses: responses,
		Users:     users,
		Intake:    intake.NewService(surveys, responses, intake.RequireAssignment(cfg.RequireAssignment)),
	}
}
