package handlers

import (
	"github.com/gofiber/fiber/v3"
)

// Register подключает маршруты аннотатора.
func Register(r fiber.Router, sessions *SessionHandler, health *HealthHandler) {
	// ============================================================
	// Health Check Routes
	// ============================================================

	r.Get("/health/live", health.LivenessProbe)
	r.Get("/health/ready", health.ReadinessProbe)

	// ============================================================
	// Session Routes
	// ============================================================

	r.Get("/sessions", sessions.List)
	r.Post("/sessions", sessions.Create)
	r.Post("/sessions/pdf", sessions.CreateFromPDF)
	r.Get("/sessions/:id", sessions.Get)
	r.Delete("/sessions/:id", sessions.Delete)

	r.Put("/sessions/:id/crop", sessions.SetCrop)
	r.Delete("/sessions/:id/crop", sessions.ClearCrop)
	r.Put("/sessions/:id/scale", sessions.SetScale)
	r.Put("/sessions/:id/floor", sessions.SetFloor)
	r.Post("/sessions/:id/transform", sessions.Transform)

	r.Post("/sessions/:id/elements", sessions.AddElement)
	r.Delete("/sessions/:id/elements/:index", sessions.DeleteElement)
	r.Post("/sessions/:id/undo", sessions.Undo)
	r.Post("/sessions/:id/walls/merge", sessions.MergeWalls)

	r.Get("/sessions/:id/validate", sessions.Validate)
	r.Get("/sessions/:id/preview.svg", sessions.Preview)
	r.Post("/sessions/:id/export", sessions.Export)
	r.Get("/sessions/:id/export/:kind", sessions.GetExport)
}
