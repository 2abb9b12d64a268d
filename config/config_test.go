package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/modkit/feeders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appConfig struct {
	Name     string `yaml:"name" env:"NAME" validate:"required"`
	Workers  int    `yaml:"workers" env:"WORKERS" validate:"gte=1,lte=64"`
	Region   string `yaml:"region" env:"REGION"`
	defaults bool
}

func (c *appConfig) SetDefaults() {
	c.defaults = true
	if c.Workers == 0 {
		c.Workers = 4
	}
}

func (c *appConfig) Validate() error {
	if c.Region == "forbidden" {
		return errors.New("region not allowed")
	}
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.yaml", "name: billing\nregion: eu\n")
	t.Setenv("MODKIT_CFG_TEST_WORKERS", "8")

	loader := NewLoader().
		AddFeeder("yaml", feeders.NewYamlFeeder(path)).
		AddOptionalFeeder("local", feeders.NewYamlFeeder(filepath.Join(dir, "local.yaml"))).
		AddFeeder("env", feeders.NewPrefixedEnvFeeder("MODKIT_CFG_TEST"))

	var cfg appConfig
	require.NoError(t, loader.Load(context.Background(), &cfg))

	assert.Equal(t, "billing", cfg.Name)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "eu", cfg.Region)
	assert.True(t, cfg.defaults)

	sources := loader.Sources()
	require.Len(t, sources, 3)
	assert.True(t, sources[0].Loaded)
	assert.NotNil(t, sources[0].LastLoaded)
	assert.False(t, sources[1].Loaded)
	assert.True(t, sources[1].Optional)
	assert.NotEmpty(t, sources[1].Error)
	assert.True(t, sources[2].Loaded)
}

func TestLoader_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr error
		field   string
	}{
		{name: "missing required", content: "workers: 2\n", wantErr: ErrValidation, field: "appConfig.Name"},
		{name: "out of range", content: "name: x\nworkers: 100\n", wantErr: ErrValidation, field: "appConfig.Workers"},
		{name: "custom validation", content: "name: x\nregion: forbidden\n", wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "cfg.yaml", tt.content)

			var cfg appConfig
			err := NewLoader(feeders.NewYamlFeeder(path)).Load(context.Background(), &cfg)
			require.ErrorIs(t, err, tt.wantErr)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			if tt.field != "" {
				require.NotEmpty(t, verr.Fields)
				assert.Equal(t, tt.field, verr.Fields[0].Field)
			} else {
				assert.Empty(t, verr.Fields)
				assert.Contains(t, err.Error(), "region not allowed")
			}
		})
	}

	t.Run("required source missing", func(t *testing.T) {
		var cfg appConfig
		err := NewLoader(feeders.NewYamlFeeder(filepath.Join(dir, "absent.yaml"))).Load(context.Background(), &cfg)
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid target", func(t *testing.T) {
		var cfg appConfig
		require.ErrorIs(t, NewLoader().Load(context.Background(), cfg), ErrInvalidConfig)
		require.ErrorIs(t, NewLoader().Validate(context.Background(), nil), ErrInvalidConfig)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var cfg appConfig
		err := NewLoader(feeders.NewEnvFeeder()).Load(ctx, &cfg)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestReloader_DetectsChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.yaml", "name: one\n")
	writeFile(t, dir, "other.yaml", "ignored: true\n")

	r := NewReloader([]string{path}, 20*time.Millisecond, nil)
	assert.Equal(t, []string{path}, r.Paths())

	var mu sync.Mutex
	var changes []Change
	require.NoError(t, r.StartWatch(context.Background(), func(_ context.Context, c Change) error {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
		return nil
	}))
	t.Cleanup(func() { _ = r.StopWatch(context.Background()) })

	assert.True(t, r.IsWatching())
	require.ErrorIs(t, r.StartWatch(context.Background(), nil), ErrAlreadyWatching)

	writeFile(t, dir, "other.yaml", "ignored: false\n")
	writeFile(t, dir, "app.yaml", "name: two\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, path, changes[0].Path)
	mu.Unlock()

	require.NoError(t, r.StopWatch(context.Background()))
	assert.False(t, r.IsWatching())
	require.NoError(t, r.StopWatch(context.Background()))
}

func TestReloader_ContextCancelStopsWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.yaml", "name: one\n")

	r := NewReloader([]string{path}, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.StartWatch(ctx, nil))

	cancel()
	require.Eventually(t, func() bool { return !r.IsWatching() }, time.Second, 5*time.Millisecond)

	require.ErrorIs(t, NewReloader(nil, 0, nil).StartWatch(context.Background(), nil), ErrNoWatchPaths)
}
