package rest

import (
	domainSync "github.com/AzielCF/az-hub/domains/sync"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
	"github.com/AzielCF/az-hub/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Sync struct {
	Service domainSync.ISyncUsecase
}

func InitRestSync(app fiber.Router, service domainSync.ISyncUsecase) Sync {
	rest := Sync{Service: service}
	app.Post("/sync/run", rest.Run)
	app.Get("/sync/status/:run_id", rest.Status)
	app.Get("/sync/runs", rest.Runs)
	app.Post("/sync/cancel/:run_id", rest.Cancel)

	return rest
}

type syncRunBody struct {
	ChatJID    string `json:"chat_jid"`
	BatchSize  int    `json:"batch_size"`
	Background bool   `json:"background"`
}

// Run reconciles synchronously by default; background=true returns a run
// id immediately and the caller polls /sync/status/:run_id.
func (handler *Sync) Run(c *fiber.Ctx) error {
	var body syncRunBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			utils.PanicIfNeeded(pkgError.ValidationError("request body must be a JSON object"))
		}
	}

	req := domainSync.RunRequest{ChatJID: body.ChatJID, BatchSize: body.BatchSize}

	if body.Background {
		runID, err := handler.Service.StartBackground(req)
		utils.PanicIfNeeded(err)

		return c.Status(fiber.StatusAccepted).JSON(utils.ResponseData{
			Status:  202,
			Code:    "SUCCESS",
			Message: "Reconciliation started",
			Results: map[string]any{"run_id": runID},
		})
	}

	result, err := handler.Service.Run(c.UserContext(), req)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Reconciliation finished",
		Results: result,
	})
}

func (handler *Sync) Status(c *fiber.Ctx) error {
	runID := c.Params("run_id")
	status, ok := handler.Service.Status(runID)
	if !ok {
		utils.PanicIfNeeded(pkgError.NotFoundError("run not found: " + runID))
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Run status retrieved",
		Results: status,
	})
}

func (handler *Sync) Runs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	runs := handler.Service.Runs(limit)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Runs listed",
		Results: map[string]any{
			"count": len(runs),
			"runs":  runs,
		},
	})
}

func (handler *Sync) Cancel(c *fiber.Ctx) error {
	runID := c.Params("run_id")
	if !handler.Service.Cancel(runID) {
		utils.PanicIfNeeded(pkgError.NotFoundError("no running run with id: " + runID))
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cancellation requested",
		Results: map[string]any{"run_id": runID},
	})
}
