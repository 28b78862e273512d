package rest

import (
	"errors"
	"time"

	domainWorkflow "github.com/AzielCF/az-hub/domains/workflow"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
	"github.com/AzielCF/az-hub/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Workflow struct {
	Service domainWorkflow.IWorkflowUsecase
}

func InitRestWorkflow(app fiber.Router, service domainWorkflow.IWorkflowUsecase) Workflow {
	rest := Workflow{Service: service}
	app.Post("/workflows/community-mark-read", rest.MarkCommunityRead)
	app.Get("/communities", rest.ListCommunities)
	app.Get("/communities/:jid/groups", rest.CommunityGroups)

	return rest
}

type communityMarkReadBody struct {
	CommunityJID       string `json:"community_jid"`
	SyncTimeoutSeconds int    `json:"sync_timeout_seconds"`
}

// MarkCommunityRead reports the composite per-phase result even on
// failure, so the caller can see how far the workflow got.
func (handler *Workflow) MarkCommunityRead(c *fiber.Ctx) error {
	var body communityMarkReadBody
	if err := c.BodyParser(&body); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("request body must be a JSON object"))
	}

	req := domainWorkflow.CommunityMarkReadRequest{
		CommunityJID: body.CommunityJID,
		SyncTimeout:  time.Duration(body.SyncTimeoutSeconds) * time.Second,
	}

	result, err := handler.Service.MarkCommunityReadWithHistory(c.UserContext(), req)
	if err != nil {
		res := utils.ResponseData{
			Status:  500,
			Code:    "INTERNAL_SERVER_ERROR",
			Message: err.Error(),
			Results: result,
		}
		var generic pkgError.GenericError
		if errors.As(err, &generic) {
			res.Status = generic.StatusCode()
			res.Code = generic.ErrCode()
		}
		return c.Status(res.Status).JSON(res)
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Workflow finished",
		Results: result,
	})
}

func (handler *Workflow) ListCommunities(c *fiber.Ctx) error {
	communities, err := handler.Service.ListCommunities(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Communities listed",
		Results: map[string]any{
			"count":       len(communities),
			"communities": communities,
		},
	})
}

func (handler *Workflow) CommunityGroups(c *fiber.Ctx) error {
	groups, err := handler.Service.CommunityGroups(c.UserContext(), c.Params("jid"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Community groups listed",
		Results: map[string]any{
			"count":  len(groups),
			"groups": groups,
		},
	})
}
