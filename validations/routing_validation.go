package validations

import (
	"context"
	"regexp"

	pkgError "github.com/AzielCF/az-hub/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var operationNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func ValidateOperationName(ctx context.Context, name string) error {
	err := validation.ValidateWithContext(ctx, name,
		validation.Required,
		validation.Match(operationNamePattern),
	)

	if err != nil {
		return pkgError.ValidationError("operation name " + err.Error())
	}

	return nil
}
