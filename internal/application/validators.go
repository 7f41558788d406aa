package application

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-magi/internal/domain"
)

// RegisterConfigValidators registers the custom validators referenced by
// Config struct tags.
// RegisterConfigValidators returns an error if any validator registration
// fails.
func RegisterConfigValidators(v *validator.Validate) error {
	// Register scoring factor name validator for weight map keys.
	if err := v.RegisterValidation("factor", validateFactor); err != nil {
		return fmt.Errorf("failed to register factor validator: %w", err)
	}

	// Register model name validator for provider model overrides.
	if err := v.RegisterValidation("modelname", validateModelName); err != nil {
		return fmt.Errorf("failed to register modelname validator: %w", err)
	}

	return nil
}

// validateFactor accepts only the seven recognized scoring factor names.
func validateFactor(fl validator.FieldLevel) bool {
	return domain.Factor(fl.Field().String()).IsKnown()
}

// validateModelName validates a vendor model identifier such as
// "gpt-4o", "claude-sonnet-4-20250514" or "models/gemini-2.0-flash".
// Letters, digits and the separators - _ . : / are allowed; the name must
// start with a letter or digit and must not end with a separator.
func validateModelName(fl validator.FieldLevel) bool {
	model := fl.Field().String()

	if model == "" {
		return true
	}
	if len(model) > 128 {
		return false
	}

	for i, ch := range model {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_' || ch == '.' || ch == ':' || ch == '/':
			if i == 0 || i == len(model)-1 {
				return false
			}
		default:
			return false
		}
	}

	return true
}
