package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches every *ConfigurationError.
	ErrConfiguration = errors.New("invalid projection configuration")

	// ErrInsufficientData matches every *InsufficientDataError.
	ErrInsufficientData = errors.New("insufficient historical data")
)

// ConfigurationError reports a missing or invalid configuration field.
// It is raised when an engine component is constructed, never mid-computation.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrConfiguration) match.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// InsufficientDataError reports that a regression cannot be fit.
type InsufficientDataError struct {
	Points   int // usable historical points
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient historical data: have %d usable points, need %d", e.Points, e.Required)
}

// Is lets errors.Is(err, ErrInsufficientData) match.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
