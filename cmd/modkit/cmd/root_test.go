package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modkit"
	"github.com/GoCodeAlone/modkit/config"
	"github.com/GoCodeAlone/modkit/internal/testutil"
)

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return buf.String(), err
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRootCommand(t *testing.T) {
	out, err := execute(t, context.Background(), "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "modkit hosts an application")
	for _, sub := range []string{"run", "mode", "tree"} {
		assert.Contains(t, out, sub)
	}
}

func TestVersionInfo(t *testing.T) {
	assert.Contains(t, PrintVersion(), "modkit vdev")

	out, err := execute(t, context.Background(), "--version")
	require.NoError(t, err)
	assert.Equal(t, PrintVersion()+"\n", out)
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "yaml file with environment overrides",
			testFunc: func(t *testing.T) {
				path := writeConfig(t, "app.yaml", `
app:
  name: billing
  abortPolicy: propagate
scheduler:
  workerCount: 2
status:
  address: 127.0.0.1:9000
  shutdownTimeout: 5s
watch:
  paths: [a.yaml]
`)
				t.Setenv("MODKIT_STATUS_ADDRESS", "127.0.0.1:9100")
				t.Setenv("MODKIT_SCHEDULER_SHUTDOWN_TIMEOUT", "3s")

				cfg, err := LoadConfig(context.Background(), &globalFlags{configFile: path})
				require.NoError(t, err)
				assert.Equal(t, "billing", cfg.App.Name)
				assert.Equal(t, modkit.AbortPropagate, cfg.App.AbortPolicy)
				assert.Equal(t, 2, cfg.Scheduler.WorkerCount)
				assert.Equal(t, 3*time.Second, cfg.Scheduler.ShutdownTimeout)
				assert.Equal(t, "127.0.0.1:9100", cfg.Status.Address)
				assert.Equal(t, 5*time.Second, cfg.Status.ShutdownTimeout)
				assert.Equal(t, []string{"a.yaml"}, cfg.Watch.Paths)
			},
		},
		{
			name: "toml file",
			testFunc: func(t *testing.T) {
				path := writeConfig(t, "app.toml", "[app]\nname = \"toml-app\"\n\n[scheduler]\nwithSeconds = true\n")
				cfg, err := LoadConfig(context.Background(), &globalFlags{configFile: path})
				require.NoError(t, err)
				assert.Equal(t, "toml-app", cfg.App.Name)
				assert.True(t, cfg.Scheduler.WithSeconds)
			},
		},
		{
			name: "json file and flag overrides",
			testFunc: func(t *testing.T) {
				path := writeConfig(t, "app.json", `{"app": {"name": "json-app", "logLevel": "error"}}`)
				cfg, err := LoadConfig(context.Background(), &globalFlags{configFile: path, name: "flagged", logLevel: "warn"})
				require.NoError(t, err)
				assert.Equal(t, "flagged", cfg.App.Name)
				assert.Equal(t, "warn", cfg.App.LogLevel)
			},
		},
		{
			name: "dotenv file",
			testFunc: func(t *testing.T) {
				envFile := writeConfig(t, "test.env", "MODKIT_NAME=from-dotenv\nMODKIT_WATCH_DEBOUNCE=1s\n")
				cfg, err := LoadConfig(context.Background(), &globalFlags{envFile: envFile})
				require.NoError(t, err)
				assert.Equal(t, "from-dotenv", cfg.App.Name)
				assert.Equal(t, time.Second, cfg.Watch.Debounce)
			},
		},
		{
			name: "missing explicit dotenv file",
			testFunc: func(t *testing.T) {
				_, err := LoadConfig(context.Background(), &globalFlags{envFile: filepath.Join(t.TempDir(), "missing.env")})
				assert.ErrorIs(t, err, os.ErrNotExist)
			},
		},
		{
			name: "unsupported extension",
			testFunc: func(t *testing.T) {
				_, err := LoadConfig(context.Background(), &globalFlags{configFile: "app.ini"})
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unsupported config file extension")
			},
		},
		{
			name: "invalid abort policy",
			testFunc: func(t *testing.T) {
				path := writeConfig(t, "app.yaml", "app:\n  abortPolicy: ignore\n")
				_, err := LoadConfig(context.Background(), &globalFlags{configFile: path})
				var verr *config.ValidationError
				require.ErrorAs(t, err, &verr)
			},
		},
		{
			name: "invalid log level flag",
			testFunc: func(t *testing.T) {
				_, err := LoadConfig(context.Background(), &globalFlags{logLevel: "loud"})
				assert.Error(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.Isolate(t)
			tt.testFunc(t)
		})
	}
}

func TestModeCommand(t *testing.T) {
	tests := []struct {
		env   string
		mode  string
		level string
	}{
		{env: "production", mode: "production", level: "information"},
		{env: "Staging", mode: "staging", level: "debug"},
		{env: "", mode: "development", level: "debug"},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			t.Setenv("APP_ENV", tt.env)
			out, err := execute(t, context.Background(), "mode")
			require.NoError(t, err)
			assert.Equal(t, "mode: "+tt.mode+"\nvariable: APP_ENV\nlog level: "+tt.level+"\n", out)
		})
	}
}

func TestModeCommand_CustomVariable(t *testing.T) {
	t.Setenv("MODKIT_MODE_VARIABLE", "DEPLOY_ENV")
	t.Setenv("DEPLOY_ENV", "testing")

	out, err := execute(t, context.Background(), "mode")
	require.NoError(t, err)
	assert.Contains(t, out, "mode: testing\nvariable: DEPLOY_ENV\n")
}

func TestTreeCommand(t *testing.T) {
	testutil.Isolate(t)
	out, err := execute(t, context.Background(), "tree", "--name", "demo")
	require.NoError(t, err)

	want := strings.Join([]string{
		"demo",
		"├── scheduler",
		"│   └── service *scheduler.Scheduler",
		"├── statusserver",
		"│   └── service *statusserver.Server",
		"├── configwatcher",
		"│   └── service *configwatcher.Watcher",
		"└── eventlogger",
		"    └── service *eventlogger.EventLogger",
		"",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestRunCommand_StopsWhenContextIsDone(t *testing.T) {
	testutil.Isolate(t)
	t.Setenv("MODKIT_ABORT_POLICY", "propagate")
	t.Setenv("MODKIT_LOG_LEVEL", "none")
	t.Setenv("MODKIT_STATUS_ADDRESS", "127.0.0.1:0")
	t.Setenv("MODKIT_EVENTS_DISABLED", "true")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := execute(t, ctx, "run")
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after the context was done")
	}
}

func TestRunCommand_StartFailure(t *testing.T) {
	testutil.Isolate(t)
	t.Setenv("MODKIT_ABORT_POLICY", "propagate")
	t.Setenv("MODKIT_LOG_LEVEL", "none")
	t.Setenv("MODKIT_STATUS_ADDRESS", "127.0.0.1:0")
	missing := filepath.Join(t.TempDir(), "missing", "app.yaml")
	path := writeConfig(t, "app.yaml", "watch:\n  paths: ["+missing+"]\n")

	_, err := execute(t, context.Background(), "run", "--config", path)
	assert.ErrorIs(t, err, modkit.ErrAborted)
}
