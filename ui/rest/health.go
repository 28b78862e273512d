package rest

import (
	"time"

	domainBridge "github.com/AzielCF/az-hub/domains/bridge"
	domainHealth "github.com/AzielCF/az-hub/domains/health"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
	"github.com/AzielCF/az-hub/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Health struct {
	Service domainHealth.IHealthUsecase
}

func InitRestHealth(app fiber.Router, service domainHealth.IHealthUsecase) Health {
	rest := Health{Service: service}
	app.Get("/health/bridges", rest.Bridges)
	app.Get("/health/bridges/:id", rest.Bridge)
	app.Get("/health/aggregate", rest.Aggregate)
	app.Post("/health/probe/:id", rest.Probe)
	app.Get("/health/wait", rest.Wait)

	return rest
}

func requireBridgeID(raw string) domainBridge.ID {
	id := domainBridge.ID(raw)
	if !domainBridge.Valid(id) {
		utils.PanicIfNeeded(pkgError.ValidationError("unknown bridge id: " + raw))
	}
	return id
}

func (handler *Health) Bridges(c *fiber.Ctx) error {
	snapshots := make(map[domainBridge.ID]domainHealth.Snapshot, len(domainBridge.All()))
	for _, id := range domainBridge.All() {
		snapshot, err := handler.Service.Snapshot(c.UserContext(), id)
		utils.PanicIfNeeded(err)
		snapshots[id] = snapshot
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Bridge health retrieved",
		Results: snapshots,
	})
}

func (handler *Health) Bridge(c *fiber.Ctx) error {
	id := requireBridgeID(c.Params("id"))

	snapshot, err := handler.Service.Snapshot(c.UserContext(), id)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Bridge health retrieved",
		Results: snapshot,
	})
}

func (handler *Health) Aggregate(c *fiber.Ctx) error {
	aggregate, err := handler.Service.Aggregate(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Aggregate health derived",
		Results: aggregate,
	})
}

func (handler *Health) Probe(c *fiber.Ctx) error {
	id := requireBridgeID(c.Params("id"))

	snapshot, err := handler.Service.ForceProbe(c.UserContext(), id)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Bridge probed",
		Results: snapshot,
	})
}

func (handler *Health) Wait(c *fiber.Ctx) error {
	id := requireBridgeID(c.Query("bridge"))

	want := domainHealth.Classification(c.Query("classification", string(domainHealth.StatusOk)))
	timeout := time.Duration(c.QueryInt("timeout_seconds", 30)) * time.Second

	snapshot, reached, err := handler.Service.WaitFor(c.UserContext(), id, want, timeout)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Wait finished",
		Results: map[string]any{
			"reached":  reached,
			"snapshot": snapshot,
		},
	})
}
