package validator

import (
	"errors"
	"fmt"

	apperrors "roomstay/pkg/errors"
	"roomstay/pkg/model"

	"github.com/go-playground/validator/v10"
)

// BookingValidator checks the shape of a submission before any business
// rule runs: required fields present, dates well formed. Range semantics
// (ordering, past dates) belong to the service.
type BookingValidator interface {
	ValidateRequest(req *model.BookingRequest) error
}

type bookingValidator struct {
	validate *validator.Validate
}

func NewBookingValidator() BookingValidator {
	return &bookingValidator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (v *bookingValidator) ValidateRequest(req *model.BookingRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return apperrors.Validation("Booking request validation failed",
				translateValidationErrors(validationErrors))
		}
		return apperrors.Validation("Booking request validation failed", nil)
	}
	return nil
}

func translateValidationErrors(errs validator.ValidationErrors) map[string]any {
	details := make(map[string]any, len(errs))
	for _, fieldErr := range errs {
		var msg string
		switch fieldErr.Tag() {
		case "required":
			msg = "is required"
		case "datetime":
			msg = fmt.Sprintf("must be a calendar date in %s format", model.DateLayout)
		default:
			msg = fmt.Sprintf("failed validation rule %q", fieldErr.Tag())
		}
		details[fieldErr.Field()] = msg
	}
	return details
}
