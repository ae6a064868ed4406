package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// a failure report must name its order one way or the other
	v.RegisterStructValidation(reportFailureStructValidation, ReportFailureRequest{})

	return v
}

func reportFailureStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(ReportFailureRequest)
	if req.DBOrderID == "" && req.RazorpayOrderID == "" {
		sl.ReportError(req.DBOrderID, "db_order_id", "DBOrderID", "order_ref_required", "")
	}
}
