package feeders

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// TomlFeeder is a feeder that reads TOML files
type TomlFeeder struct {
	Path string
}

func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{Path: filePath}
}

// Feed decodes the whole file into target.
func (t TomlFeeder) Feed(target any) error {
	if _, err := toml.DecodeFile(t.Path, target); err != nil {
		return fmt.Errorf("toml: %s: %w", t.Path, err)
	}
	return nil
}

// FeedKey reads a TOML file and extracts a specific key
func (t TomlFeeder) FeedKey(key string, target any) error {
	return feedKey(t, key, target, toml.Marshal, toml.Unmarshal, "TOML")
}
