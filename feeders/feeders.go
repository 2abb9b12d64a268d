// Package feeders provides configuration feeders for reading data from various sources
// including environment variables, JSON, YAML, TOML files, and .env files.
package feeders

import (
	"errors"
	"fmt"
)

// Feeder populates a configuration structure.
type Feeder interface {
	Feed(target any) error
}

// KeyFeeder populates target from a single top-level key of its source.
type KeyFeeder interface {
	FeedKey(key string, target any) error
}

var (
	ErrInvalidStructure = errors.New("expected pointer to struct")
	ErrFieldCannotBeSet = errors.New("field cannot be set")
	ErrConversion       = errors.New("cannot convert value to field type")
)

// feedKey is a common helper function for extracting specific keys from config files
func feedKey(
	feeder Feeder,
	key string,
	target any,
	marshalFunc func(any) ([]byte, error),
	unmarshalFunc func([]byte, any) error,
	fileType string,
) error {
	var allData map[string]any

	if err := feeder.Feed(&allData); err != nil {
		return fmt.Errorf("failed to read %s: %w", fileType, err)
	}

	value, exists := allData[key]
	if !exists {
		return nil
	}

	// Remarshal and unmarshal to handle type conversions
	valueBytes, err := marshalFunc(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s data: %w", fileType, err)
	}

	if err = unmarshalFunc(valueBytes, target); err != nil {
		return fmt.Errorf("failed to unmarshal %s data: %w", fileType, err)
	}

	return nil
}
