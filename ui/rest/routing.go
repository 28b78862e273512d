package rest

import (
	domainRouting "github.com/AzielCF/az-hub/domains/routing"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
	"github.com/AzielCF/az-hub/pkg/utils"
	"github.com/AzielCF/az-hub/validations"
	"github.com/gofiber/fiber/v2"
)

type Routing struct {
	Service domainRouting.IRoutingUsecase
}

func InitRestRouting(app fiber.Router, service domainRouting.IRoutingUsecase) Routing {
	rest := Routing{Service: service}
	app.Get("/routing/operations", rest.Operations)
	app.Get("/routing/operations/:name", rest.Operation)
	app.Get("/routing/explain/:name", rest.Explain)
	app.Post("/operations/:name", rest.Invoke)

	return rest
}

func (handler *Routing) Operations(c *fiber.Ctx) error {
	kind := domainRouting.Kind(c.Query("kind"))
	operations := handler.Service.Operations(kind)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Operations listed",
		Results: map[string]any{
			"count":      len(operations),
			"operations": operations,
		},
	})
}

func (handler *Routing) Operation(c *fiber.Ctx) error {
	name := c.Params("name")
	operation, ok := handler.Service.Lookup(name)
	if !ok {
		utils.PanicIfNeeded(pkgError.InvalidOperationError("unknown operation: " + name))
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Operation found",
		Results: operation,
	})
}

func (handler *Routing) Explain(c *fiber.Ctx) error {
	info, err := handler.Service.Explain(c.UserContext(), c.Params("name"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Routing explained",
		Results: info,
	})
}

// Invoke runs any registry operation by name. Arguments arrive as a JSON
// object; passthrough operations consume path params first, then query or
// body depending on the bridge method.
func (handler *Routing) Invoke(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := validations.ValidateOperationName(c.UserContext(), name); err != nil {
		utils.PanicIfNeeded(err)
	}

	args := map[string]any{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&args); err != nil {
			utils.PanicIfNeeded(pkgError.ValidationError("arguments must be a JSON object"))
		}
	}

	result, err := handler.Service.Execute(c.UserContext(), name, args)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Operation executed",
		Results: result,
	})
}
