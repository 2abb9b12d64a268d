package modkit

import (
	"context"
	"errors"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modkit/attribute"
	"github.com/GoCodeAlone/modkit/container"
	"github.com/GoCodeAlone/modkit/internal/testutil"
	"github.com/GoCodeAlone/modkit/logging"
)

type tag struct{ value string }

func (tag) AttributeName() string { return "tag" }

type greeter struct {
	Rec *testutil.Recorder `inject:""`
}

func (g *greeter) DeclareAttributes(d *attribute.Declarations) {
	d.Class(tag{"api"})
	d.Method("Greet", tag{"x"}, tag{"y"}, tag{"z"})
	d.Method("Sum", HandlesRequest{Name: "sum"})
	d.Method("WhoAmI", HandlesRequest{Name: "whoami"})
	d.Method("Record",
		OnEvent{Type: EventTypeApplicationStarted},
		OnEvent{Type: EventTypeApplicationStopping},
	)
}

func (g *greeter) Greet(name string) string { return "hello " + name }

func (g *greeter) Sum(a, b int) int { return a + b }

func (g *greeter) WhoAmI(ctx context.Context, app *Application) (string, error) {
	if ctx == nil {
		return "", errors.New("no context")
	}
	return app.Name(), nil
}

func (g *greeter) Record(ctx context.Context, event cloudevents.Event) {
	g.Rec.Record("event:" + event.Type())
}

// quiet declares nothing.
type quiet struct{}

func (q *quiet) Ping() string { return "pong" }

type rival struct{}

func (r *rival) DeclareAttributes(d *attribute.Declarations) {
	d.Method("Sum", HandlesRequest{Name: "sum"})
}

func (r *rival) Sum(a, b int) int { return a - b }

type failingHandler struct{}

func (f *failingHandler) DeclareAttributes(d *attribute.Declarations) {
	d.Method("Handle", OnEvent{Type: "*"})
}

func (f *failingHandler) Handle(event cloudevents.Event) error {
	return errBoom
}

func TestControllerManager_Registrations(t *testing.T) {
	f := newFixture(t, false)
	cm := NewControllerManager(f.c, nil, logging.NewNop())
	root := &rootModule{name: "root", controllers: []container.Token{
		container.TypeOf[*greeter](), container.TypeOf[*quiet](), container.TypeOf[*greeter](),
	}}
	ctx := context.Background()

	cm.RegisterFromModule(root)
	require.Len(t, cm.Controllers(), 2)
	require.NoError(t, cm.ResolveAll(ctx))
	require.NoError(t, cm.ResolveAll(ctx), "resolving twice adds nothing")

	regs := cm.Registrations()
	require.Len(t, regs, 4, "only attributed methods are registered")
	assert.Equal(t, []string{"Greet", "Sum", "WhoAmI", "Record"}, []string{
		regs[0].MethodName, regs[1].MethodName, regs[2].MethodName, regs[3].MethodName,
	})
	assert.Same(t, root, regs[0].Module)

	greet := regs[0]
	assert.Equal(t, tag{"z"}, greet.First(), "the attribute declared last is closest to the method")
	assert.Equal(t, tag{"x"}, greet.Last())
	assert.Equal(t, []tag{{"x"}, {"y"}, {"z"}}, AttributesOf[tag](greet))
	closest, ok := FirstOf[tag](greet)
	require.True(t, ok)
	assert.Equal(t, "z", closest.value)
	assert.False(t, HasAttribute[OnEvent](greet))

	out, err := greet.Invoke(ctx, "gopher")
	require.NoError(t, err)
	assert.Equal(t, "hello gopher", out)

	assert.Len(t, RegistrationsOf[HandlesRequest](cm), 2)
	assert.Len(t, RegistrationsOf[OnEvent](cm), 1)

	class, err := cm.ClassAttributes(container.TypeOf[*greeter]())
	require.NoError(t, err)
	assert.Equal(t, []attribute.Attribute{tag{"api"}}, class)

	_, err = cm.ClassAttributes(container.TypeOf[*rival]())
	assert.ErrorIs(t, err, ErrControllerNotLoaded)
}

func TestControllerManager_DeclaredThroughRegistry(t *testing.T) {
	attrs := attribute.NewRegistry()
	require.NoError(t, attrs.Declare(container.TypeOf[*quiet](), func(d *attribute.Declarations) {
		d.Method("Ping", HandlesRequest{Name: "ping"})
	}))

	cm := NewControllerManager(container.New(), attrs, logging.NewNop())
	cm.RegisterFromModule(&rootModule{name: "root", controllers: []container.Token{container.TypeOf[*quiet]()}})
	require.NoError(t, cm.ResolveAll(context.Background()))

	rm := NewRequestManager(cm, logging.NewNop())
	require.NoError(t, rm.Init(context.Background()))
	out, err := rm.Dispatch(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}

func TestControllerManager_UnknownMethod(t *testing.T) {
	attrs := attribute.NewRegistry()
	require.NoError(t, attrs.Declare(container.TypeOf[*quiet](), func(d *attribute.Declarations) {
		d.Method("Missing", HandlesRequest{Name: "missing"})
	}))

	cm := NewControllerManager(container.New(), attrs, logging.NewNop())
	cm.RegisterFromModule(&rootModule{name: "root", controllers: []container.Token{container.TypeOf[*quiet]()}})
	assert.ErrorIs(t, cm.ResolveAll(context.Background()), attribute.ErrUnknownMethod)
}

func TestApplication_ControllerDispatch(t *testing.T) {
	f := newFixture(t, false)
	app := f.app(t, WithControllers(container.TypeOf[*greeter](), container.TypeOf[*quiet]()))
	ctx := context.Background()

	require.NoError(t, app.Start(ctx))

	assert.Equal(t, []string{"sum", "whoami"}, app.RequestManager().Names())

	sum, err := app.RequestManager().Dispatch(ctx, "sum", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, sum)

	who, err := app.RequestManager().Dispatch(ctx, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "app", who, "unsupplied parameters are resolved from the container")

	_, err = app.RequestManager().Dispatch(ctx, "missing")
	assert.ErrorIs(t, err, ErrRequestHandlerNotFound)

	require.NoError(t, app.Stop(ctx))

	assert.Zero(t, f.rec.Count("event:"+EventTypeApplicationStarting), "handlers are not registered before the first start")
	assert.Equal(t, 1, f.rec.Count("event:"+EventTypeApplicationStarted))
	assert.Equal(t, 1, f.rec.Count("event:"+EventTypeApplicationStopping))
	assert.Zero(t, f.rec.Count("event:"+EventTypeApplicationStopped))
	assert.Less(t, f.rec.Index("event:"+EventTypeApplicationStarted), f.rec.Index("event:"+EventTypeApplicationStopping))
}

func TestApplication_DuplicateRequestHandlerAborts(t *testing.T) {
	f := newFixture(t, false)
	app := f.app(t, WithControllers(container.TypeOf[*greeter](), container.TypeOf[*rival]()))

	err := app.Start(context.Background())
	require.ErrorIs(t, err, ErrDuplicateRequestHandler)
	assert.Zero(t, f.rec.Count("s1.Start"), "no service starts when handlers conflict")
}

func TestEventManager(t *testing.T) {
	f := newFixture(t, false)
	cm := NewControllerManager(f.c, nil, logging.NewNop())
	cm.RegisterFromModule(&rootModule{name: "root", controllers: []container.Token{
		container.TypeOf[*failingHandler](), container.TypeOf[*greeter](),
	}})
	ctx := context.Background()
	require.NoError(t, cm.ResolveAll(ctx))

	em := NewEventManager(cm, logging.NewNop())
	event := NewCloudEvent(EventTypeApplicationStarted, "test", nil, nil)
	assert.ErrorIs(t, em.Emit(ctx, event), ErrEventManagerNotReady)

	require.NoError(t, em.Init(ctx))
	assert.Len(t, em.Handlers(EventTypeApplicationStarted), 2)
	assert.Len(t, em.Handlers(EventTypeConfigChanged), 1, "wildcard handler only")

	err := em.Emit(ctx, event)
	require.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "*modkit.failingHandler.Handle")
	assert.Equal(t, 1, f.rec.Count("event:"+EventTypeApplicationStarted), "a failing handler does not stop delivery")
}
