package validations

import (
	"context"
	"errors"

	domainSync "github.com/AzielCF/az-hub/domains/sync"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
	"github.com/AzielCF/az-hub/pkg/utils"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// jidRule accepts empty strings; pair it with validation.Required when
// the field is mandatory.
var jidRule = validation.By(func(value interface{}) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	if !utils.IsValidJID(raw) {
		return errors.New("must be a valid whatsapp jid")
	}
	return nil
})

func ValidateSyncRun(ctx context.Context, request domainSync.RunRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.ChatJID, jidRule),
		validation.Field(&request.BatchSize, validation.Min(0), validation.Max(1000)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
