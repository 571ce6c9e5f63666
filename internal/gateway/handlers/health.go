package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
)

// ============================================================
// Health Check Handlers
// ============================================================

type Health struct {
	annotatorURL string
	client       *http.Client
}

func NewHealth(annotatorURL string) *Health {
	return &Health{
		annotatorURL: annotatorURL,
		client:       &http.Client{Timeout: 2 * time.Second},
	}
}

// LivenessProbe проверяет, что приложение работает
func (h *Health) LivenessProbe(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "alive",
	})
}

// ReadinessProbe готов, только если отвечает readiness аннотатора.
func (h *Health) ReadinessProbe(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.annotatorURL+"/health/ready", nil)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "bad annotator url"})
	}

	resp, err := h.client.Do(req)
	if err != nil {
		log.Printf("[PROXY] annotator readiness: %v", err)
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "annotator": "unreachable"})
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "annotator": resp.Status})
	}
	return c.JSON(fiber.Map{
		"status": "ready",
	})
}

// StartupProbe проверяет, что приложение успешно запустилось
func (h *Health) StartupProbe(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "started",
	})
}
