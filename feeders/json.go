package feeders

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONFeeder is a feeder that reads JSON files
type JSONFeeder struct {
	Path string
}

// NewJSONFeeder creates a new JSONFeeder that reads from the specified JSON file
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{Path: filePath}
}

// Feed decodes the whole file into target.
func (j JSONFeeder) Feed(target any) error {
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return fmt.Errorf("json: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("json: %s: %w", j.Path, err)
	}
	return nil
}

// FeedKey reads a JSON file and extracts a specific key
func (j JSONFeeder) FeedKey(key string, target any) error {
	return feedKey(j, key, target, json.Marshal, json.Unmarshal, "JSON")
}
