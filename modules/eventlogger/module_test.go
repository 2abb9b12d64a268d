package eventlogger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modkit"
	"github.com/GoCodeAlone/modkit/container"
	"github.com/GoCodeAlone/modkit/health"
	"github.com/GoCodeAlone/modkit/logging"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// blockingOutput blocks every write until release is closed.
type blockingOutput struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (o *blockingOutput) Start(context.Context) error { return nil }
func (o *blockingOutput) Stop(context.Context) error  { return nil }
func (o *blockingOutput) Flush() error                { return nil }

func (o *blockingOutput) Write(*Entry) error {
	o.once.Do(func() { close(o.entered) })
	<-o.release
	return nil
}

func newApp(t *testing.T, cfg *Config) *modkit.Application {
	t.Helper()
	c := container.New()
	if cfg != nil {
		require.NoError(t, c.ProvideValue(cfg))
	}
	app, err := modkit.NewApplication(
		modkit.WithName("events"),
		modkit.WithLogger(logging.NewNop()),
		modkit.WithContainer(c),
		modkit.WithAbortPolicy(modkit.AbortPropagate),
		modkit.WithImports(container.TypeOf[*Module]()),
	)
	require.NoError(t, err)
	return app
}

// bootstrap imports the module tree and returns the logger before start so
// tests can swap its outputs.
func bootstrap(t *testing.T, app *modkit.Application) *EventLogger {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, app.Bootstrap(ctx))
	l, err := container.Resolve[*EventLogger](ctx, app.Container())
	require.NoError(t, err)
	return l
}

func publish(t *testing.T, app *modkit.Application, eventType string) {
	t.Helper()
	require.NoError(t, app.NotifyObservers(context.Background(), modkit.NewCloudEvent(eventType, "test", map[string]any{"k": "v"}, nil)))
}

func TestEventLogger_LogsApplicationEvents(t *testing.T) {
	app := newApp(t, &Config{})
	l := bootstrap(t, app)
	out := &syncBuffer{}
	l.SetOutputs(NewWriterOutput(out, "json"))

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	publish(t, app, "com.example.order.placed")
	require.NoError(t, app.Stop(ctx))

	var types []string
	for _, line := range out.lines() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		types = append(types, entry["type"].(string))
		assert.NotContains(t, entry["type"], "eventlogger", "own events are not logged")
	}
	assert.Contains(t, types, modkit.EventTypeApplicationStarted)
	assert.Contains(t, types, "com.example.order.placed")
	assert.Contains(t, types, modkit.EventTypeApplicationStopping)
	assert.Equal(t, len(types), l.Logged())

	for _, o := range app.Observers() {
		assert.NotEqual(t, ModuleName, o.ID, "observer is removed on stop")
	}
}

func TestEventLogger_Filtering(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		logged []string
		absent []string
	}{
		{
			name:   "level",
			cfg:    Config{Level: "error"},
			logged: []string{modkit.EventTypeApplicationFailed},
			absent: []string{"com.example.info", modkit.EventTypeConfigChanged},
		},
		{
			name:   "debug includes config changes",
			cfg:    Config{Level: "debug"},
			logged: []string{"com.example.info", modkit.EventTypeConfigChanged},
		},
		{
			name:   "event types",
			cfg:    Config{EventTypes: []string{"com.example.info"}},
			logged: []string{"com.example.info"},
			absent: []string{modkit.EventTypeApplicationFailed, modkit.EventTypeApplicationStarted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			app := newApp(t, &cfg)
			l := bootstrap(t, app)
			out := &syncBuffer{}
			l.SetOutputs(NewWriterOutput(out, "text"))

			ctx := context.Background()
			require.NoError(t, app.Start(ctx))
			for _, eventType := range append(append([]string{}, tt.logged...), tt.absent...) {
				publish(t, app, eventType)
			}
			require.NoError(t, app.Stop(ctx))

			text := out.String()
			for _, eventType := range tt.logged {
				assert.Contains(t, text, "["+eventType+"]")
			}
			for _, eventType := range tt.absent {
				assert.NotContains(t, text, "["+eventType+"]")
			}
		})
	}
}

func TestEventLogger_DropsOldestWhenFull(t *testing.T) {
	app := newApp(t, &Config{BufferSize: 1, EventTypes: []string{"com.example.a", "com.example.b", "com.example.c"}})
	l := bootstrap(t, app)
	blocked := &blockingOutput{entered: make(chan struct{}), release: make(chan struct{})}
	l.SetOutputs(blocked)

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))

	publish(t, app, "com.example.a")
	select {
	case <-blocked.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not pick up the first event")
	}
	publish(t, app, "com.example.b")
	publish(t, app, "com.example.c")
	assert.Equal(t, 1, l.Dropped())

	result, err := l.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, health.StatusWarning, result.Status)
	assert.Equal(t, 1, result.Details["dropped"])

	close(blocked.release)
	require.NoError(t, app.Stop(ctx))
	assert.Equal(t, 2, l.Logged())
}

func TestEventLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")
	app := newApp(t, &Config{Outputs: []OutputConfig{{Type: "file", Path: path}}})

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	require.NoError(t, app.Stop(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"`+modkit.EventTypeApplicationStarted+`"`)
	assert.Contains(t, string(data), `"level":"information"`)
}

func TestEventLogger_Disabled(t *testing.T) {
	app := newApp(t, &Config{Disabled: true})
	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	t.Cleanup(func() { _ = app.Stop(ctx) })

	for _, o := range app.Observers() {
		assert.NotEqual(t, ModuleName, o.ID)
	}
	result, err := app.Health().CheckOne(ctx, ModuleName)
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, result.Status)
	assert.Equal(t, "disabled", result.Message)
}

func TestEventLogger_InvalidConfigAbortsStart(t *testing.T) {
	app := newApp(t, &Config{Level: "loud"})
	err := app.Start(context.Background())
	assert.ErrorIs(t, err, logging.ErrUnknownLevel)
	assert.ErrorIs(t, err, modkit.ErrAborted)
}

func TestEventLogger_NotStarted(t *testing.T) {
	l := &EventLogger{}
	err := l.OnEvent(context.Background(), modkit.NewCloudEvent("com.example.a", "test", nil, nil))
	assert.ErrorIs(t, err, ErrLoggerNotStarted)
}
