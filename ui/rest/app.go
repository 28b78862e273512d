package rest

import (
	"github.com/AzielCF/az-hub/config"
	coreconfig "github.com/AzielCF/az-hub/core/config"
	"github.com/gofiber/fiber/v2"
)

type App struct{}

func InitRestApp(app fiber.Router) App {
	rest := App{}
	app.Get("/app/version", rest.GetVersion)
	app.Get("/app/info", rest.GetInfo)

	return rest
}

func (handler *App) GetVersion(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"version": config.AppVersion,
		"os":      config.AppOs,
	})
}

// GetInfo exposes the orchestrator's wiring so dashboards can show which
// bridges this hub fronts.
func (handler *App) GetInfo(c *fiber.Ctx) error {
	cfg := coreconfig.Global
	return c.JSON(fiber.Map{
		"version":            config.AppVersion,
		"server_id":          cfg.App.ServerID,
		"go_bridge_url":      cfg.Bridges.GoBridgeURL,
		"baileys_bridge_url": cfg.Bridges.BaileysBridgeURL,
		"default_strategy":   cfg.Routing.DefaultStrategy,
		"valkey_enabled":     cfg.Valkey.Enabled,
	})
}
