package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.False(t, errs.HasErrors())

	errs.Add("health.interval", "must be positive", 0)
	errs.Check(ValidateOneOf("registry.driver", "sqlite", []string{RegistryMemory, RegistryFile}))
	errs.Check(errors.New("not a validation error"))
	errs.Check(nil)

	assert.Len(t, errs, 2)
	assert.Equal(t, "validation failed: field 'health.interval': must be positive; field 'registry.driver': must be one of: memory, file", errs.Error())
}

func TestValidateServerName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "weather", false},
		{"dashes and dots", "weather-eu.v2", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"space", "my server", true},
		{"tab", "my\tserver", true},
		{"too long", string(make([]byte, maxNameLength+1)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServerName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormatValidationError(t *testing.T) {
	assert.NoError(t, FormatValidationError("server", "weather", nil))

	err := FormatValidationError("server", "weather", ValidationError{Field: "name", Message: "is required"})
	assert.EqualError(t, err, "invalid server 'weather': field 'name': is required")

	var ve ValidationError
	assert.True(t, errors.As(err, &ve))
}
