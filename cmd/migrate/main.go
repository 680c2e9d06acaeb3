package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/course-feedback-api/internal/repository"
	"github.com/noah-isme/course-feedback-api/pkg/config"
	"github.com/noah-isme/course-feedback-api/pkg/database"
	"github.com/noah-isme/course-feedback-api/pkg/logger"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	adminEmail := flag.String("admin-email", "", "seed an admin account with this email")
	adminPassword := flag.String("admin-password", "", "password for the seeded admin account")
	adminName := flag.String("admin-name", "Administrator", "display name for the seeded admin account")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	sugar := logr.Sugar()

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, cfg.Database.Name)
	if err != nil {
		sugar.Fatalw("failed to prepare migrations", "error", err)
	}

	switch strings.ToLower(*direction) {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down()
	default:
		sugar.Fatalw("unknown direction", "direction", *direction)
	}
	if err != nil {
		sugar.Fatalw("migration failed", "direction", *direction, "error", err)
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		sugar.Fatalw("failed to read schema version", "error", err)
	}
	sugar.Infow("migrations complete", "direction", *direction, "version", version, "dirty", dirty)

	if *adminEmail == "" {
		return
	}
	if len(*adminPassword) < 6 {
		sugar.Fatalw("admin password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*adminPassword), bcrypt.DefaultCost)
	if err != nil {
		sugar.Fatalw("failed to hash admin password", "error", err)
	}
	created, err := repository.NewUserRepository(db).EnsureAdmin(ctx, *adminEmail, string(hash), *adminName)
	if err != nil {
		sugar.Fatalw("failed to seed admin", "error", err)
	}
	sugar.Infow("admin account", "email", *adminEmail, "created", created)
}
