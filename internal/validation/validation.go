// Package validation runs struct-tag validation and converts the result into
// apperr.ValidationError keyed by JSON field names.
package validation

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"storefront/internal/apperr"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		// decimal 按数值参与 gte/lte 比较
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				f, _ := d.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{})
		validate = v
	})
	return validate
}

// Struct validates s. It returns nil or an *apperr.ValidationError.
func Struct(s any) error {
	err := engine().Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperr.NewValidationError(map[string]string{"input": err.Error()})
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		key := fieldKey(fe)
		if _, seen := fields[key]; seen {
			continue
		}
		fields[key] = Message(fe)
	}
	return apperr.NewValidationError(fields)
}

// fieldKey drops the root struct name, so nested fields read like
// "size_stocks[0].size".
func fieldKey(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// Message renders one field error in the checkout form's wording.
func Message(e validator.FieldError) string {
	field := strings.ReplaceAll(e.Field(), "_", " ")
	switch e.Tag() {
	case "required":
		return "The " + field + " field is required."
	case "email":
		return "The " + field + " field must be a valid email address."
	case "min":
		if e.Kind() == reflect.String {
			return "The " + field + " field must be at least " + e.Param() + " characters."
		}
		return "The " + field + " field must be at least " + e.Param() + "."
	case "max":
		if e.Kind() == reflect.String {
			return "The " + field + " field must not be greater than " + e.Param() + " characters."
		}
		return "The " + field + " field must not be greater than " + e.Param() + "."
	case "gte":
		return "The " + field + " field must be at least " + e.Param() + "."
	case "lte":
		return "The " + field + " field must not be greater than " + e.Param() + "."
	case "oneof":
		return "The selected " + field + " is invalid."
	case "url":
		return "The " + field + " field must be a valid URL."
	case "unique":
		return "The " + field + " field has a duplicate value."
	default:
		return "The " + field + " field is invalid."
	}
}
