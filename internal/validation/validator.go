package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// cancel requests must not target an explicit order AND all orders at once
	v.RegisterStructValidation(cancelOrderStructValidation, CancelOrderRequest{})

	return v
}

func cancelOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CancelOrderRequest)
	if req.All && req.OrderID != "" {
		sl.ReportError(req.OrderID, "order_id", "OrderID", "cancel_target_conflict", "order_id and all are mutually exclusive")
	}
}
