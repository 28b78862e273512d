package rest

import (
	"github.com/AzielCF/az-hub/domains/monitoring"
	"github.com/AzielCF/az-hub/pkg/opsmonitor"
	"github.com/gofiber/fiber/v2"
)

type MonitoringHandler struct {
	store monitoring.MonitoringStore
}

// InitRestMonitoring registra los endpoints unificados de monitoreo del sistema
func InitRestMonitoring(app fiber.Router, store monitoring.MonitoringStore) {
	h := &MonitoringHandler{store: store}

	g := app.Group("/monitoring")

	// Estado del cluster
	g.Get("/servers", h.GetServers)
	g.Get("/stats", h.GetGlobalStats)

	// Feed de eventos (opsmonitor para el log en vivo, store para el historial)
	g.Get("/events", h.GetRecentEvents)
	g.Get("/events/live", h.GetLiveEvents)
	g.Get("/runs", h.GetRecentRuns)
}

func (h *MonitoringHandler) GetServers(c *fiber.Ctx) error {
	servers, err := h.store.GetActiveServers(c.UserContext())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(servers)
}

func (h *MonitoringHandler) GetGlobalStats(c *fiber.Ctx) error {
	stats, err := h.store.GetGlobalStats(c.UserContext())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(stats)
}

func (h *MonitoringHandler) GetRecentEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	events, err := h.store.GetRecentEvents(c.UserContext(), limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(events)
}

func (h *MonitoringHandler) GetLiveEvents(c *fiber.Ctx) error {
	// Buffer en memoria del proceso local (log en vivo)
	stats := opsmonitor.GetStats()
	return c.JSON(stats)
}

func (h *MonitoringHandler) GetRecentRuns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	runs, err := h.store.GetRecentRuns(c.UserContext(), limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(runs)
}
