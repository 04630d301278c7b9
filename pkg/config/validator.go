package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "retry.max_attempts")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Interval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "interval",
			Value:   c.Interval,
			Message: "must be positive",
		})
	}

	if c.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Listen); err != nil {
			errs = append(errs, ValidationError{
				Field:   "listen",
				Value:   c.Listen,
				Message: "must be a host:port address",
			})
		}
	}

	errs = append(errs, c.validateRetry()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateRetry() []ValidationError {
	var errs []ValidationError

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, ValidationError{
			Field:   "retry.max_attempts",
			Value:   c.Retry.MaxAttempts,
			Message: "must be zero or positive",
		})
	}

	if c.Retry.MaxAttempts > 0 {
		if c.Retry.InitialInterval <= 0 {
			errs = append(errs, ValidationError{
				Field:   "retry.initial_interval",
				Value:   c.Retry.InitialInterval,
				Message: "must be positive when retrying",
			})
		}
		if c.Retry.MaxInterval < c.Retry.InitialInterval {
			errs = append(errs, ValidationError{
				Field:   "retry.max_interval",
				Value:   c.Retry.MaxInterval,
				Message: "must not be less than retry.initial_interval",
			})
		}
	}

	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of %v", ValidLogLevels()),
		})
	}

	if !slices.Contains(ValidLogFormats(), strings.ToLower(c.Logging.Format)) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of %v", ValidLogFormats()),
		})
	}

	return errs
}
