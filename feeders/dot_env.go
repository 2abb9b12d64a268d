package feeders

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// DotEnvFeeder populates `env` tagged fields from a .env file. Variables
// already set in the process environment take precedence over the file.
type DotEnvFeeder struct {
	Path   string
	Prefix string
}

// NewDotEnvFeeder creates a new DotEnvFeeder that reads from the specified .env file
func NewDotEnvFeeder(filePath string) DotEnvFeeder {
	return DotEnvFeeder{Path: filePath}
}

// Feed reads the .env file and populates the provided structure directly
func (f DotEnvFeeder) Feed(structure any) error {
	values, err := godotenv.Read(f.Path)
	if err != nil {
		return fmt.Errorf("failed to parse .env file: %w", err)
	}

	return fillFromLookup(structure, f.Prefix, func(name string) (string, bool) {
		if v, ok := os.LookupEnv(name); ok {
			return v, true
		}
		v, ok := values[name]
		return v, ok
	})
}

// LoadDotEnv exports the variables of the given files into the process
// environment without overriding variables that are already set.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}
