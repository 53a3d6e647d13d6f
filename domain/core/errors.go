package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Source errors
	ErrSourceNotFound = errors.New("data source not found")
	ErrCoercion       = errors.New("column could not be coerced to numeric")

	// Computation errors
	ErrUnknownMetric     = errors.New("unknown metric")
	ErrNoMetrics         = errors.New("no metrics selected")
	ErrInvalidPopulation = errors.New("invalid population")
	ErrInsufficientData  = errors.New("insufficient data for analysis")
	ErrInvalidCap        = errors.New("change cap must be positive")
	ErrInvalidTopN       = errors.New("topN must be at least 1")
	ErrUnorderedSeries   = errors.New("series is not ordered by year")

	// Selection errors
	ErrUnknownJurisdiction = errors.New("unknown jurisdiction")
	ErrUnknownYear         = errors.New("no records for year")
)

// Error constructors with context
func NewSourceNotFoundError(source string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, source)
	}
	return fmt.Errorf("%w: %s: %v", ErrSourceNotFound, source, err)
}

func NewUnknownMetricError(metric string) error {
	return fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
}

func NewInvalidPopulationError(population float64) error {
	return fmt.Errorf("%w: %v (must be > 0)", ErrInvalidPopulation, population)
}

func NewUnknownJurisdictionError(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownJurisdiction, name)
}

func NewUnknownYearError(year int) error {
	return fmt.Errorf("%w: %d", ErrUnknownYear, year)
}

func NewInsufficientDataError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInsufficientData, reason)
}

func NewCoercionError(column, value string) error {
	return fmt.Errorf("%w: column %s value %q", ErrCoercion, column, value)
}

// Error checking helpers
func IsSourceNotFound(err error) bool {
	return errors.Is(err, ErrSourceNotFound)
}

// IsRequestError reports errors caused by the caller's selection rather than the data.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrUnknownMetric) ||
		errors.Is(err, ErrNoMetrics) ||
		errors.Is(err, ErrInvalidCap) ||
		errors.Is(err, ErrInvalidTopN) ||
		errors.Is(err, ErrUnorderedSeries) ||
		errors.Is(err, ErrUnknownJurisdiction) ||
		errors.Is(err, ErrUnknownYear)
}

func IsDataError(err error) bool {
	return errors.Is(err, ErrInvalidPopulation) ||
		errors.Is(err, ErrInsufficientData)
}
