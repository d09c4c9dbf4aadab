package orders

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateOrder checks the invariants an order must hold to be ingested:
// an ID, non-negative money and quantities, and non-negative SLA timings.
func ValidateOrder(o *Order) error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return NewValidationError(
				fmt.Sprintf("order %q: field %s failed %s", o.ID, fe.Namespace(), fe.Tag()),
				ErrInvalidData,
			)
		}
		return NewValidationError(fmt.Sprintf("order %q", o.ID), err)
	}
	if o.TotalAmount.IsNegative() {
		return NewValidationError(fmt.Sprintf("order %q: negative total_amount", o.ID), ErrInvalidData)
	}
	return nil
}

// FilterValid splits a page into ingestible orders and the errors for the rest.
func FilterValid(list []Order) ([]Order, []error) {
	valid := make([]Order, 0, len(list))
	var rejected []error
	for i := range list {
		if err := ValidateOrder(&list[i]); err != nil {
			rejected = append(rejected, err)
			continue
		}
		valid = append(valid, list[i])
	}
	return valid, rejected
}
