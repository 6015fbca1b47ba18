// Package validation checks request structs and reports failures as
// VALIDATION errors keyed by JSON field name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dseinapp/dsein-server/internal/domain"
	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
)

// rule is a custom tag with the message shown when it fails.
type rule struct {
	check   func(string) bool
	message string
}

// rules are the domain tags. Usernames and codes are checked after
// normalization, so the patterns are the stored forms.
var rules = map[string]rule{
	"username": {
		check:   domain.ValidUsername,
		message: "must be 3-30 characters of lowercase letters, digits, '.' or '_'",
	},
	"entity_id": {
		check:   domain.ValidID,
		message: "must be 1-128 characters of letters, digits or '-'",
	},
	"invite_code": {
		check:   domain.ValidInviteCode,
		message: "must look like " + domain.InviteCodePrefix + "XXXXX",
	},
}

// Validator wraps go-playground/validator.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with the domain tags registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	for tag, r := range rules {
		check := r.check
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return check(fl.Field().String())
		})
	}
	return &Validator{v: v}
}

// Validate checks s and returns a VALIDATION error describing every failed field.
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = message(fe)
	}
	return domainerrors.ValidationWithDetails("validation failed", details)
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}

func message(fe validator.FieldError) string {
	if r, ok := rules[fe.Tag()]; ok {
		return r.message
	}

	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", fe.Param())
	case "url", "http_url":
		return "must be a valid URL"
	case "gte", "lte":
		op := map[string]string{"gte": "greater", "lte": "less"}[fe.Tag()]
		return fmt.Sprintf("must be %s than or equal to %s", op, fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "is invalid"
}
