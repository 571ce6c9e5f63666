package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/handlers"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/mapper"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/models"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/repository"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/service"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/common/config"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/common/middleware"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
)

// ============================================================
// Annotator Service
// ============================================================

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Port == config.DefaultPort {
		cfg.Port = "3003"
	}

	db, err := repository.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	repo := repository.New(db)
	if err := repo.Init(context.Background(), cfg.MigrationsPath); err != nil {
		log.Fatalf("init db: %v", err)
	}

	sessionManager := service.NewSessionManager(repo, service.NewFileStorage(cfg.StorageRoot), service.Options{
		DefaultDPI:   cfg.DefaultDPI,
		DefaultScale: cfg.DefaultScale,
		Tolerances:   cfg.Walls,
	})
	restored, err := sessionManager.Restore(context.Background())
	if err != nil {
		log.Fatalf("restore sessions: %v", err)
	}
	log.Printf("[ANNOTATOR] restored %d session(s)", restored)

	sessionHandler := handlers.NewSessionHandler(sessionManager, mapper.NewRenderer())
	healthHandler := handlers.NewHealthHandler(repo)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		AppName:      "Annotator Service",
		JSONEncoder:  models.CompactJSON,
	})

	// ============================================================
	// Global Middleware
	// ============================================================

	app.Use(recover.New())
	app.Use(middleware.Logger())
	if cfg.Environment == "development" {
		app.Use(middleware.CORS())
	}

	handlers.Register(app, sessionHandler, healthHandler)

	// ============================================================
	// Server Start
	// ============================================================

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Starting Annotator Service on %s (env: %s)", addr, cfg.Environment)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
