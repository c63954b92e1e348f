// Package handlers exposes the operator-facing HTTP status endpoint.
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/osaibot/osaibot/internal/session"
)

// AdminHandler serves health and session listings.
type AdminHandler struct {
	registry *session.Registry
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(registry *session.Registry) *AdminHandler {
	return &AdminHandler{registry: registry}
}

// Register mounts the admin routes on app.
func (h *AdminHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/v1/sessions", h.ListSessions)
}

// Health reports liveness.
func (h *AdminHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

// ListSessions returns the live sessions with their terminal mode.
func (h *AdminHandler) ListSessions(c *fiber.Ctx) error {
	return c.JSON(h.registry.Snapshot())
}
