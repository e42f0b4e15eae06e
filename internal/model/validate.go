package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one rejected field, named by its JSON key. Nested
// fields use dotted paths such as "recurring.frequency".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when a record does not satisfy its schema.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks a record against the constraints declared in its struct
// tags. It returns a *ValidationError listing every failing field.
//
// Required pointer and slice fields only have to be present: "" and [] pass,
// a missing or null value does not. Required ids and enums must be non-empty.
func Validate(record any) error {
	err := instance().Struct(record)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate record: %w", err)
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: message(fe),
		})
	}
	return out
}

// fieldPath drops the leading struct name from a validator namespace:
// "Meal.recurring.frequency" becomes "recurring.frequency".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	default:
		return fmt.Sprintf("failed %q constraint", fe.Tag())
	}
}
