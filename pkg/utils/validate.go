package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

func FormatValidationError(err error) map[string]string {
	result := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		result["body"] = err.Error()
		return result
	}

	for _, err := range validationErrors {
		field := strings.ToLower(err.Field())

		switch err.Tag() {
		case "required", "required_without":
			result[field] = fmt.Sprintf("%s is required", field)
		case "excluded_with":
			result[field] = fmt.Sprintf("%s must not be combined with %s", field, strings.ToLower(err.Param()))
		case "min":
			result[field] = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			result[field] = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "gt":
			result[field] = fmt.Sprintf("%s must be greater than %s", field, err.Param())
		case "gte":
			result[field] = fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
		case "oneof":
			result[field] = fmt.Sprintf("%s must be one of [%s]", field, err.Param())
		case "email":
			result[field] = fmt.Sprintf("%s must be a valid email", field)
		case "ne":
			result[field] = fmt.Sprintf("%s must not be %s", field, err.Param())
		default:
			result[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return result
}
