package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/GoCodeAlone/modkit"
	"github.com/GoCodeAlone/modkit/config"
	"github.com/GoCodeAlone/modkit/feeders"
	"github.com/GoCodeAlone/modkit/modules/configwatcher"
	"github.com/GoCodeAlone/modkit/modules/eventlogger"
	"github.com/GoCodeAlone/modkit/modules/scheduler"
	"github.com/GoCodeAlone/modkit/modules/statusserver"
)

// EnvPrefix prefixes every environment variable read by the CLI.
const EnvPrefix = "MODKIT"

// FileConfig is the configuration of the hosted application.
type FileConfig struct {
	App       modkit.Config        `yaml:"app" toml:"app" json:"app"`
	Scheduler scheduler.Config     `yaml:"scheduler" toml:"scheduler" json:"scheduler"`
	Status    statusserver.Config  `yaml:"status" toml:"status" json:"status"`
	Watch     configwatcher.Config `yaml:"watch" toml:"watch" json:"watch"`
	Events    eventlogger.Config   `yaml:"events" toml:"events" json:"events"`
}

// sections maps each config section to its environment prefix.
func (c *FileConfig) sections() map[string]any {
	return map[string]any{
		EnvPrefix:                &c.App,
		EnvPrefix + "_SCHEDULER": &c.Scheduler,
		EnvPrefix + "_STATUS":    &c.Status,
		EnvPrefix + "_WATCH":     &c.Watch,
		EnvPrefix + "_EVENTS":    &c.Events,
	}
}

// sectionFeeder applies a feeder per section so that fields sharing a name,
// such as SHUTDOWN_TIMEOUT, stay apart.
type sectionFeeder struct {
	feeder func(prefix string) feeders.Feeder
}

func (f sectionFeeder) Feed(target any) error {
	cfg, ok := target.(*FileConfig)
	if !ok {
		return fmt.Errorf("%w, got %T", feeders.ErrInvalidStructure, target)
	}
	for prefix, section := range cfg.sections() {
		if err := f.feeder(prefix).Feed(section); err != nil {
			return err
		}
	}
	return nil
}

func fileFeeder(path string) (feeders.Feeder, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return feeders.NewYamlFeeder(path), nil
	case ".toml":
		return feeders.NewTomlFeeder(path), nil
	case ".json":
		return feeders.NewJSONFeeder(path), nil
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", ext)
	}
}

// NewLoader builds the feeder chain: config file, then dotenv, then the
// process environment. Later sources override earlier ones.
func NewLoader(configFile, envFile string) (*config.Loader, error) {
	loader := config.NewLoader()

	if configFile != "" {
		f, err := fileFeeder(configFile)
		if err != nil {
			return nil, err
		}
		loader.AddFeeder(configFile, f)
	}

	dotenv := envFile
	required := dotenv != ""
	if !required {
		dotenv = ".env"
	}
	envFeeder := sectionFeeder{feeder: func(prefix string) feeders.Feeder {
		return feeders.DotEnvFeeder{Path: dotenv, Prefix: prefix}
	}}
	if required {
		loader.AddFeeder(dotenv, envFeeder)
	} else {
		loader.AddOptionalFeeder(dotenv, envFeeder)
	}

	loader.AddFeeder("environment", sectionFeeder{feeder: func(prefix string) feeders.Feeder {
		return feeders.NewPrefixedEnvFeeder(prefix)
	}})
	return loader, nil
}

// LoadConfig loads the configuration and applies the command line overrides.
func LoadConfig(ctx context.Context, flags *globalFlags) (*FileConfig, error) {
	loader, err := NewLoader(flags.configFile, flags.envFile)
	if err != nil {
		return nil, err
	}

	cfg := &FileConfig{}
	if err := loader.Load(ctx, cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if flags.logLevel != "" {
		cfg.App.LogLevel = flags.logLevel
	}
	if flags.name != "" {
		cfg.App.Name = flags.name
	}
	if err := cfg.App.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
