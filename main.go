package main

import (
	"context"
	"log"

	"flexwta/adapters/fsstore"
	"flexwta/internal/api"
	"flexwta/internal/config"
	"flexwta/internal/errors"
	"flexwta/internal/migration"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// initDatabase connects the optional PostgreSQL mirror and brings its schema
// up to date. The monitor itself reads from the filesystem store; the
// database only has to exist when statistics mirroring is enabled.
func initDatabase(appConfig *config.Config) (*sqlx.DB, error) {
	if appConfig.Database.URL == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}

	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	// Run migrations
	migrator := migration.NewRunner()
	if err := migrator.Run(context.Background(), db); err != nil {
		return nil, errors.Wrap(err, "database migration failed")
	}

	return db, nil
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load application configuration
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if appConfig.Database.Enabled {
		db, err := initDatabase(appConfig)
		if err != nil {
			log.Fatal("Failed to initialize database:", err)
		}
		defer db.Close()
	}

	store, err := fsstore.NewStore(appConfig.Paths.ArtifactDir)
	if err != nil {
		log.Fatalf("Failed to open artifact store: %v", err)
	}

	gin.SetMode(appConfig.Server.GinMode)
	registry := api.NewRunRegistry()
	hub := api.NewSSEHub()
	server := api.NewServer(registry, hub, store, appConfig.Paths.ResultDir)

	log.Printf("Run monitor listening on port %s", appConfig.Server.Port)
	log.Fatal(server.Start(":" + appConfig.Server.Port))
}
