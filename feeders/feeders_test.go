package feeders

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verbosity int

func (v *verbosity) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "quiet":
		*v = 0
	case "loud":
		*v = 2
	default:
		return errors.New("bad verbosity")
	}
	return nil
}

type serverConfig struct {
	Name      string        `yaml:"name" toml:"name" json:"name" env:"NAME"`
	Port      int           `yaml:"port" toml:"port" json:"port" env:"PORT"`
	Debug     bool          `yaml:"debug" toml:"debug" json:"debug" env:"DEBUG"`
	Timeout   time.Duration `yaml:"-" toml:"-" json:"-" env:"TIMEOUT"`
	Verbosity verbosity     `yaml:"-" toml:"-" json:"-" env:"VERBOSITY"`
	Database  struct {
		Host string `yaml:"host" toml:"host" json:"host" env:"DB_HOST"`
	} `yaml:"database" toml:"database" json:"database"`
	ignored string
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileFeeders(t *testing.T) {
	tests := []struct {
		name   string
		feeder func(path string) Feeder
		file   string
		body   string
	}{
		{
			name:   "yaml",
			feeder: func(p string) Feeder { return NewYamlFeeder(p) },
			file:   "config.yaml",
			body:   "name: api\nport: 8080\ndebug: true\ndatabase:\n  host: db.local\n",
		},
		{
			name:   "toml",
			feeder: func(p string) Feeder { return NewTomlFeeder(p) },
			file:   "config.toml",
			body:   "name = \"api\"\nport = 8080\ndebug = true\n\n[database]\nhost = \"db.local\"\n",
		},
		{
			name:   "json",
			feeder: func(p string) Feeder { return NewJSONFeeder(p) },
			file:   "config.json",
			body:   `{"name":"api","port":8080,"debug":true,"database":{"host":"db.local"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.body)

			var cfg serverConfig
			require.NoError(t, tt.feeder(path).Feed(&cfg))
			assert.Equal(t, "api", cfg.Name)
			assert.Equal(t, 8080, cfg.Port)
			assert.True(t, cfg.Debug)
			assert.Equal(t, "db.local", cfg.Database.Host)

			var db struct {
				Host string `yaml:"host" toml:"host" json:"host"`
			}
			keyFeeder, ok := tt.feeder(path).(KeyFeeder)
			require.True(t, ok)
			require.NoError(t, keyFeeder.FeedKey("database", &db))
			assert.Equal(t, "db.local", db.Host)

			var untouched struct{ Host string }
			require.NoError(t, keyFeeder.FeedKey("missing", &untouched))
			assert.Empty(t, untouched.Host)
		})
	}
}

func TestFileFeeders_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	var cfg serverConfig

	assert.Error(t, NewYamlFeeder(missing).Feed(&cfg))
	assert.Error(t, NewTomlFeeder(missing).Feed(&cfg))
	assert.Error(t, NewJSONFeeder(missing).Feed(&cfg))
	assert.Error(t, NewDotEnvFeeder(missing).Feed(&cfg))
}

func TestEnvFeeder(t *testing.T) {
	t.Setenv("APP_NAME", "worker")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_DEBUG", "true")
	t.Setenv("APP_TIMEOUT", "1m30s")
	t.Setenv("APP_VERBOSITY", "loud")
	t.Setenv("APP_DB_HOST", "pg")
	t.Setenv("NAME", "unprefixed")

	var cfg serverConfig
	require.NoError(t, NewPrefixedEnvFeeder("app").Feed(&cfg))

	assert.Equal(t, "worker", cfg.Name)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, verbosity(2), cfg.Verbosity)
	assert.Equal(t, "pg", cfg.Database.Host)
	assert.Empty(t, cfg.ignored)

	var plain serverConfig
	require.NoError(t, NewEnvFeeder().Feed(&plain))
	assert.Equal(t, "unprefixed", plain.Name)
}

func TestEnvFeeder_Errors(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	var cfg serverConfig
	err := NewEnvFeeder().Feed(&cfg)
	require.ErrorIs(t, err, ErrConversion)
	assert.Contains(t, err.Error(), "Port")

	require.ErrorIs(t, NewEnvFeeder().Feed(cfg), ErrInvalidStructure)
	require.ErrorIs(t, NewEnvFeeder().Feed(nil), ErrInvalidStructure)
}

func TestDotEnvFeeder(t *testing.T) {
	path := writeFile(t, ".env", "NAME=from-file\nPORT=7000\n# comment\nDB_HOST=\"quoted\"\n")
	t.Setenv("PORT", "7001")

	var cfg serverConfig
	require.NoError(t, NewDotEnvFeeder(path).Feed(&cfg))

	assert.Equal(t, "from-file", cfg.Name)
	assert.Equal(t, 7001, cfg.Port, "process environment wins over the file")
	assert.Equal(t, "quoted", cfg.Database.Host)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "MODKIT_FEEDERS_TEST_VAR=loaded\n")
	t.Setenv("MODKIT_FEEDERS_TEST_VAR", "")
	require.NoError(t, os.Unsetenv("MODKIT_FEEDERS_TEST_VAR"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("MODKIT_FEEDERS_TEST_VAR"))
	require.NoError(t, os.Unsetenv("MODKIT_FEEDERS_TEST_VAR"))

	assert.Error(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
