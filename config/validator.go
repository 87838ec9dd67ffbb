package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tickbus/tickbus/pkg/timer"
)

// validate is the global validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	_ = validate.RegisterValidation("env", validateEnvironment)
	_ = validate.RegisterValidation("lane", validateLane)
	_ = validate.RegisterValidation("file_exists", validateFileExists)
	validate.RegisterStructValidation(validateRelay, RelayConfig{})
	validate.RegisterStructValidation(validateEmitter, EmitterConfig{})
}

// ConfigError represents a validation error for a specific field.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of config errors.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// ValidateWithDetails performs validation and returns detailed errors.
func ValidateWithDetails(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var details ValidationErrors
			for _, fe := range validationErrors {
				details = append(details, ConfigError{
					Field:   fe.Namespace(),
					Message: formatValidationError(fe),
					Value:   fe.Value(),
				})
			}
			return details
		}
		return err
	}
	return nil
}

// formatValidationError converts validator.FieldError to a human-readable message.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "required_if":
		return fmt.Sprintf("this field is required when %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "env":
		return "must be one of [development staging production]"
	case "file_exists":
		return "file does not exist"
	case "lane":
		return "must be one of [normal fixed unscaled]"
	case "disjoint":
		return "must not also be listed as outbound"
	case "gtefield":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// validateEnvironment is a custom validator for environment values.
func validateEnvironment(fl validator.FieldLevel) bool {
	env := fl.Field().String()
	validEnvs := []string{"development", "staging", "production"}
	for _, valid := range validEnvs {
		if env == valid {
			return true
		}
	}
	return false
}

// validateFileExists accepts an empty path or the path of a regular file.
func validateFileExists(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if path == "" {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// validateLane accepts any name timer.ParseLane accepts, including empty.
func validateLane(fl validator.FieldLevel) bool {
	_, err := timer.ParseLane(fl.Field().String())
	return err == nil
}

// validateRelay rejects signals listed both as outbound and inbound.
func validateRelay(sl validator.StructLevel) {
	rc := sl.Current().Interface().(RelayConfig)
	out := make(map[string]struct{}, len(rc.Outbound))
	for _, name := range rc.Outbound {
		out[name] = struct{}{}
	}
	for i, name := range rc.Inbound {
		if _, ok := out[name]; ok {
			sl.ReportError(rc.Inbound[i], fmt.Sprintf("Inbound[%d]", i), fmt.Sprintf("Inbound[%d]", i), "disjoint", "")
		}
	}
}

// validateEmitter checks that a set MaxInterval is not below Interval.
func validateEmitter(sl validator.StructLevel) {
	ec := sl.Current().Interface().(EmitterConfig)
	if ec.MaxInterval != 0 && ec.MaxInterval < ec.Interval {
		sl.ReportError(ec.MaxInterval, "MaxInterval", "MaxInterval", "gtefield", "Interval")
	}
}
