package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// maxNameLength bounds server names so they fit CLI tables and log lines.
const maxNameLength = 100

// ValidationError reports one invalid field of a config file or server
// definition.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors collects every problem found in one pass so they can be
// reported together.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	switch len(ve) {
	case 0:
		return "no validation errors"
	case 1:
		return ve[0].Error()
	}
	messages := make([]string, 0, len(ve))
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors reports whether anything was collected.
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add records a problem with field; value is optional.
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{Field: field, Value: val, Message: message})
}

// Check records err when it is a ValidationError. Other errors are ignored.
func (ve *ValidationErrors) Check(err error) {
	var single ValidationError
	if errors.As(err, &single) {
		*ve = append(*ve, single)
	}
}

// ValidateOneOf rejects a value outside allowed.
func ValidateOneOf(field, value string, allowed []string) error {
	for _, candidate := range allowed {
		if value == candidate {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateMaxLength rejects values longer than maxLength bytes.
func ValidateMaxLength(field, value string, maxLength int) error {
	if len(value) > maxLength {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must not exceed %d characters", maxLength),
		}
	}
	return nil
}

// ValidateRequired rejects empty or blank values.
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{Field: field, Value: value, Message: "is required"}
	}
	return nil
}

// ValidateServerName accepts non-empty names without whitespace or control
// characters, up to maxNameLength bytes. Names are shown unquoted in CLI
// output and logs.
func ValidateServerName(name string) error {
	if err := ValidateRequired("name", name); err != nil {
		return err
	}
	if err := ValidateMaxLength("name", name, maxNameLength); err != nil {
		return err
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ValidationError{Field: "name", Value: name, Message: "cannot contain whitespace or control characters"}
		}
	}
	return nil
}

// FormatValidationError prefixes err with what was being validated.
func FormatValidationError(entityType, entityName string, err error) error {
	if err == nil {
		return nil
	}
	if entityName != "" {
		return fmt.Errorf("invalid %s '%s': %w", entityType, entityName, err)
	}
	return fmt.Errorf("invalid %s: %w", entityType, err)
}
