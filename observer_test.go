package modkit

import (
	"context"
	"errors"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modkit/internal/testutil"
)

func recordingObserver(id string, rec *testutil.Recorder) Observer {
	return NewFunctionalObserver(id, func(ctx context.Context, event cloudevents.Event) error {
		rec.Recordf("%s:%s", id, event.Type())
		return nil
	})
}

func TestObservers(t *testing.T) {
	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "delivered in registration order",
			testFunc: func(t *testing.T) {
				rec := testutil.NewRecorder()
				var obs observers
				require.NoError(t, obs.register(recordingObserver("first", rec)))
				require.NoError(t, obs.register(recordingObserver("second", rec)))

				require.NoError(t, obs.notify(context.Background(), NewCloudEvent("test.event", "test", nil, nil)))
				assert.Equal(t, []string{"first:test.event", "second:test.event"}, rec.Events())
			},
		},
		{
			name: "event type filter",
			testFunc: func(t *testing.T) {
				rec := testutil.NewRecorder()
				var obs observers
				require.NoError(t, obs.register(recordingObserver("filtered", rec), "wanted"))

				require.NoError(t, obs.notify(context.Background(), NewCloudEvent("other", "test", nil, nil)))
				require.NoError(t, obs.notify(context.Background(), NewCloudEvent("wanted", "test", nil, nil)))
				assert.Equal(t, []string{"filtered:wanted"}, rec.Events())
			},
		},
		{
			name: "errors and panics do not stop delivery",
			testFunc: func(t *testing.T) {
				rec := testutil.NewRecorder()
				var obs observers
				require.NoError(t, obs.register(NewFunctionalObserver("failing", func(context.Context, cloudevents.Event) error {
					return errors.New("observer failed")
				})))
				require.NoError(t, obs.register(NewFunctionalObserver("panicking", func(context.Context, cloudevents.Event) error {
					panic("observer panicked")
				})))
				require.NoError(t, obs.register(recordingObserver("last", rec)))

				require.NoError(t, obs.notify(context.Background(), NewCloudEvent("test.event", "test", nil, nil)))
				assert.Equal(t, []string{"last:test.event"}, rec.Events())
			},
		},
		{
			name: "re-registering keeps the position",
			testFunc: func(t *testing.T) {
				rec := testutil.NewRecorder()
				var obs observers
				require.NoError(t, obs.register(recordingObserver("a", rec)))
				require.NoError(t, obs.register(recordingObserver("b", rec)))
				require.NoError(t, obs.register(recordingObserver("a", rec), "x"))

				info := obs.info()
				require.Len(t, info, 2)
				assert.Equal(t, "a", info[0].ID)
				assert.Equal(t, []string{"x"}, info[0].EventTypes)
			},
		},
		{
			name: "unregister",
			testFunc: func(t *testing.T) {
				rec := testutil.NewRecorder()
				var obs observers
				o := recordingObserver("gone", rec)
				require.NoError(t, obs.register(o))
				obs.unregister(o)

				require.NoError(t, obs.notify(context.Background(), NewCloudEvent("test.event", "test", nil, nil)))
				assert.Empty(t, rec.Events())
				assert.Empty(t, obs.info())
			},
		},
		{
			name: "invalid registrations",
			testFunc: func(t *testing.T) {
				var obs observers
				assert.ErrorIs(t, obs.register(nil), ErrObserverNil)
				assert.ErrorIs(t, obs.register(NewFunctionalObserver("", nil)), ErrObserverIDRequired)
			},
		},
		{
			name: "invalid event is rejected",
			testFunc: func(t *testing.T) {
				var obs observers
				assert.ErrorIs(t, obs.notify(context.Background(), cloudevents.NewEvent()), ErrInvalidEvent)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func TestApplication_LifecycleEvents(t *testing.T) {
	f := newFixture(t, false)
	var got []cloudevents.Event
	app := f.app(t, WithObserver(NewFunctionalObserver("lifecycle", func(ctx context.Context, event cloudevents.Event) error {
		got = append(got, event)
		return nil
	}), EventTypeApplicationStarting, EventTypeApplicationStarted, EventTypeServiceStarted, EventTypeApplicationStopped))
	ctx := context.Background()

	require.NoError(t, app.Start(ctx))
	require.NoError(t, app.Stop(ctx))

	var types []string
	for _, e := range got {
		types = append(types, e.Type())
	}
	assert.Equal(t, []string{
		EventTypeApplicationStarting,
		EventTypeServiceStarted, EventTypeServiceStarted, EventTypeServiceStarted,
		EventTypeApplicationStarted,
		EventTypeApplicationStopped,
	}, types)

	assert.Equal(t, "modkit/app", got[0].Source())
	assert.Equal(t, "app", EventApplication(got[0]))
	assert.Empty(t, EventApplication(NewCloudEvent("test.event", "test", nil, nil)))
	var data map[string]any
	require.NoError(t, got[1].DataAs(&data))
	assert.Equal(t, "a", data["module"])
	assert.Equal(t, "*modkit.svcOne", data["service"])
}

func TestApplication_FailedEvent(t *testing.T) {
	f := newFixture(t, false)
	f.fail["s3.Start"] = errBoom
	var failed []cloudevents.Event
	app := f.app(t, WithObserver(NewFunctionalObserver("failures", func(ctx context.Context, event cloudevents.Event) error {
		failed = append(failed, event)
		return nil
	}), EventTypeServiceFailed, EventTypeApplicationFailed))

	require.Error(t, app.Start(context.Background()))
	require.Len(t, failed, 2)
	assert.Equal(t, EventTypeServiceFailed, failed[0].Type())
	assert.Equal(t, EventTypeApplicationFailed, failed[1].Type())

	var data map[string]any
	require.NoError(t, failed[0].DataAs(&data))
	assert.Equal(t, "b", data["module"])
	assert.Equal(t, HookStart, data["hook"])
	assert.Equal(t, "boom", data["error"])
}
