package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbolis/survey-intake/app"
	"github.com/mbolis/survey-intake/config"
	"github.com/mbolis/survey-intake/database"
	"github.com/mbolis/survey-intake/log"
	"github.com/mbolis/survey-intake/model"
	"github.com/mbolis/survey-intake/routes"
	"github.com/mbolis/survey-intake/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("main.config:", err)
	}

	if err = newRootCmd(&cfg).Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "survey-intake",
		Short:         "Survey authoring and response intake server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.ConfigureLogging()
		},
	}
	cfg.BindFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(cfg),
		newMigrateCmd(cfg),
		newUserCmd(cfg),
	)
	return root
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cfg.Validate()
			if err != nil {
				return fmt.Errorf("main.config: %w", err)
			}

			db, err := database.Open(cfg.DBUrl)
			if err != nil {
				return fmt.Errorf("main.db.open: %w", err)
			}
			defer db.Close()

			handler := routes.Wire(app.New(db, *cfg))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = runServer(ctx, *cfg, handler)
			if err != nil {
				return fmt.Errorf("main.server: %w", err)
			}
			return nil
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info("Listening on " + cfg.Url())
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return err
	}
	if err = <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(cfg.DBUrl)
			if err != nil {
				return fmt.Errorf("main.db.open: %w", err)
			}
			defer db.Close()

			log.Info("Database ready at " + cfg.DBUrl)
			return nil
		},
	}
}

func newUserCmd(cfg *config.Config) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage local accounts",
	}

	var username, email, password, role string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a local account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(cfg.DBUrl)
			if err != nil {
				return fmt.Errorf("main.db.open: %w", err)
			}
			defer db.Close()

			u, err := store.NewUsers(db).CreateUser(cmd.Context(), username, email, password, role)
			if err != nil {
				return fmt.Errorf("main.user.add: %w", err)
			}

			log.WithFields(log.Fields{"id": u.ID, "username": u.Username, "role": u.Role}).Info("user.created")
			return nil
		},
	}
	addCmd.Flags().StringVar(&username, "username", "", "login name")
	addCmd.Flags().StringVar(&email, "email", "", "e-mail address")
	addCmd.Flags().StringVar(&password, "password", "", "password")
	addCmd.Flags().StringVar(&role, "role", model.RoleUser, "admin or user")
	addCmd.MarkFlagRequired("username")
	addCmd.MarkFlagRequired("password")

	userCmd.AddCommand(addCmd)
	return userCmd
}
