package validations

import (
	"context"
	"errors"

	domainWorkflow "github.com/AzielCF/az-hub/domains/workflow"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
	"github.com/AzielCF/az-hub/pkg/utils"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// groupJIDRule requires a group-server JID; WhatsApp communities live on
// the group server too.
var groupJIDRule = validation.By(func(value interface{}) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	if !utils.IsGroupJID(raw) {
		return errors.New("must be a group or community jid")
	}
	return nil
})

func ValidateCommunityMarkRead(ctx context.Context, request domainWorkflow.CommunityMarkReadRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.CommunityJID, validation.Required, groupJIDRule),
		validation.Field(&request.SyncTimeout, validation.Min(0)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateCommunityJID(ctx context.Context, communityJID string) error {
	err := validation.Validate(communityJID, validation.Required, groupJIDRule)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
