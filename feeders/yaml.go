package feeders

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YamlFeeder is a feeder that reads YAML files
type YamlFeeder struct {
	Path string
}

// NewYamlFeeder creates a new YamlFeeder that reads from the specified YAML file
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{Path: filePath}
}

// Feed decodes the whole file into target.
func (y YamlFeeder) Feed(target any) error {
	data, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("yaml: %w", err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("yaml: %s: %w", y.Path, err)
	}
	return nil
}

// FeedKey reads a YAML file and extracts a specific key
func (y YamlFeeder) FeedKey(key string, target any) error {
	return feedKey(y, key, target, yaml.Marshal, yaml.Unmarshal, "YAML")
}
