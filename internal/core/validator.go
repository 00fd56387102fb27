package core

import (
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"scoutpup/internal/types"
)

// Validator wraps go-playground/validator and translates its field errors
// into the application error taxonomy.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator. Struct fields are reported under
// their json tag names so error messages match the wire contract.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates the given struct against its `validate` tags.
// Returns nil when valid, or a *types.AppError describing the first failing
// field:
//   - "required" failures map to validation_missing_required_field
//   - all other tag failures map to validation_invalid_field
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		// Non-field error (e.g. passing a non-struct) is a programming bug.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	fe := verrs[0]
	field := fe.Field()
	details := map[string]any{"field": field}

	if fe.Tag() == "required" {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"missing required field: "+field, err, details)
	}

	details["rule"] = fe.Tag()
	if fe.Param() != "" {
		details["expected"] = fe.Param()
	}
	return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidField,
		"invalid value for field: "+field, err, details)
}
