package application

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"demandcast/internal/service/forecast/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateForecastRequest 校验请求并解析起始日期
func ValidateForecastRequest(req *ForecastRequest, maxProducts int) (time.Time, error) {
	if err := validate.Struct(req); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return time.Time{}, domain.NewValidationError("request", err.Error())
		}
		out := &domain.ValidationError{}
		for _, fe := range verrs {
			out.Fields = append(out.Fields, domain.FieldError{Field: fe.Field(), Message: describe(fe)})
		}
		return time.Time{}, out
	}
	if maxProducts > 0 && len(req.ProductIDs) > maxProducts {
		return time.Time{}, domain.NewValidationError("ProductIDs", fmt.Sprintf("at most %d products per request, got %d", maxProducts, len(req.ProductIDs)))
	}
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		return time.Time{}, domain.NewValidationError("StartDate", "must be an ISO date (YYYY-MM-DD)")
	}
	return start, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "unique":
		return "must not contain duplicates"
	case "datetime":
		return "must be an ISO date (YYYY-MM-DD)"
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}
