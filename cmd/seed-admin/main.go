package main

import (
	"context"
	"os"
	"strings"

	"github.com/playmatatu/pairrooms/internal/admin"
	"github.com/playmatatu/pairrooms/internal/config"
	"github.com/playmatatu/pairrooms/internal/database"
	"github.com/playmatatu/pairrooms/internal/logging"
	"github.com/playmatatu/pairrooms/internal/migrations"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.Environment, cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required to seed an admin account")
	}

	if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin"
		log.Info().Str("username", username).Msg("using default admin username")
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "change-me-in-production"
		log.Warn().Msg("using default admin password; set ADMIN_PASSWORD in production")
	}

	displayName := os.Getenv("ADMIN_DISPLAY_NAME")
	if displayName == "" {
		displayName = "Admin"
	}

	roles := []string{"super_admin"}
	if v := os.Getenv("ADMIN_ROLES"); v != "" {
		roles = strings.Split(v, ",")
	}

	if err := admin.CreateAdminAccount(db, username, displayName, password, roles); err != nil {
		log.Fatal().Err(err).Msg("failed to create admin account")
	}

	log.Info().Str("username", username).Str("display_name", displayName).Strs("roles", roles).
		Msg("admin account created/updated; log in at POST /api/v1/admin/login")
}
