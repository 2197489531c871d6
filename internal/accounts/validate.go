package accounts

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"tapntrack/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// check runs the struct tags on in and reports the first failure as a
// model.ValidationError.
func check(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_if":
		return model.Invalid(fe.Field(), "is required")
	case "email":
		return model.Invalid(fe.Field(), "must be a valid email address")
	case "min":
		return model.Invalid(fe.Field(), "must be at least %s characters", fe.Param())
	case "max":
		return model.Invalid(fe.Field(), "must be at most %s characters", fe.Param())
	case "oneof":
		return model.Invalid(fe.Field(), "must be one of %s", fe.Param())
	case "eqfield":
		return model.Invalid(fe.Field(), "does not match")
	case "nefield":
		return model.Invalid(fe.Field(), "must differ from the current password")
	default:
		return model.Invalid(fe.Field(), "failed %s", fe.Tag())
	}
}
