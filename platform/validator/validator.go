// Package validator provides validation infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"leadflow_backend/platform/apperr"

	"github.com/go-playground/validator/v10"
)

var zipCodePattern = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z -]{1,9}$`)

// Validator wraps the go-playground validator for structured validation.
type Validator struct {
	v *validator.Validate
}

// New creates a new Validator instance with the domain rules registered.
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("zipcode", func(fl validator.FieldLevel) bool {
		return zipCodePattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	return &Validator{v: v}
}

// Struct validates a struct based on validation tags.
// Failures come back as apperr validation errors naming every bad field.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Wrap(apperr.KindValidation, "validation failed", err)
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[lowerFirst(fe.Field())] = fe.Tag()
	}
	msg := fmt.Sprintf("validation failed on %d field(s)", len(fields))
	if len(fields) == 1 {
		for name, tag := range fields {
			if tag == "required" {
				msg = name + " is required"
			} else {
				msg = fmt.Sprintf("%s failed %s", name, tag)
			}
		}
	}
	return apperr.Validation(msg).WithDetails(fields)
}

// Var validates a single variable against a tag.
func (val *Validator) Var(field any, tag string) error {
	return val.v.Var(field, tag)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
