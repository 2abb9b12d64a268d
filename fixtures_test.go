package modkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modkit/container"
	"github.com/GoCodeAlone/modkit/internal/testutil"
	"github.com/GoCodeAlone/modkit/logging"
)

// step records every lifecycle call as "<name>.<hook>" and fails the calls
// listed in fail.
type step struct {
	name string
	rec  *testutil.Recorder
	fail map[string]error
}

func (s *step) hook(name string) error {
	key := s.name + "." + name
	s.rec.Record(key)
	return s.fail[key]
}

func (s *step) Start(context.Context) error                { return s.hook(HookStart) }
func (s *step) Stop(context.Context) error                 { return s.hook(HookStop) }
func (s *step) BeforeModuleBoot(context.Context) error     { return s.hook(HookBeforeModuleBoot) }
func (s *step) OnModuleBoot(context.Context) error         { return s.hook(HookOnModuleBoot) }
func (s *step) BeforeModuleShutdown(context.Context) error { return s.hook(HookBeforeModuleShutdown) }
func (s *step) OnModuleShutdown(context.Context) error     { return s.hook(HookOnModuleShutdown) }

type svcOne struct{ step }
type svcTwo struct{ step }
type svcThree struct{ step }
type svcShared struct{ step }

type modA struct {
	step
	imports []container.Token
}

func (m *modA) Name() string { return "a" }

func (m *modA) Imports() []container.Token {
	m.rec.Record("a.Imports")
	return m.imports
}

func (m *modA) Services() []container.Token {
	return []container.Token{container.TypeOf[*svcOne](), container.TypeOf[*svcTwo]()}
}

type modB struct {
	step
	imports []container.Token
}

func (m *modB) Name() string { return "b" }

func (m *modB) Imports() []container.Token {
	m.rec.Record("b.Imports")
	return m.imports
}

func (m *modB) Services() []container.Token {
	return []container.Token{container.TypeOf[*svcThree]()}
}

type modShared struct{ step }

func (m *modShared) Name() string { return "shared" }

func (m *modShared) Services() []container.Token {
	return []container.Token{container.TypeOf[*svcShared]()}
}

// rootModule is a plain module used to drive the managers directly.
type rootModule struct {
	name        string
	imports     []container.Token
	services    []container.Token
	controllers []container.Token
}

func (m *rootModule) Name() string                   { return m.name }
func (m *rootModule) Imports() []container.Token     { return m.imports }
func (m *rootModule) Services() []container.Token    { return m.services }
func (m *rootModule) Controllers() []container.Token { return m.controllers }

type fixture struct {
	rec  *testutil.Recorder
	fail map[string]error
	c    *container.Container
}

// newFixture provides modules a and b, importing shared when withShared is
// set, and services s1 and s2 (module a), s3 (module b) and s4 (module
// shared).
func newFixture(t *testing.T, withShared bool) *fixture {
	t.Helper()

	f := &fixture{rec: testutil.NewRecorder(), fail: make(map[string]error), c: container.New()}
	mk := func(name string) step { return step{name: name, rec: f.rec, fail: f.fail} }

	var imports []container.Token
	if withShared {
		imports = []container.Token{container.TypeOf[*modShared]()}
	}

	require.NoError(t, f.c.ProvideValue(f.rec))
	require.NoError(t, f.c.Provide(func() *modA { return &modA{step: mk("a"), imports: imports} }))
	require.NoError(t, f.c.Provide(func() *modB { return &modB{step: mk("b"), imports: imports} }))
	require.NoError(t, f.c.Provide(func() *modShared { return &modShared{step: mk("shared")} }))
	require.NoError(t, f.c.Provide(func() *svcOne { return &svcOne{mk("s1")} }))
	require.NoError(t, f.c.Provide(func() *svcTwo { return &svcTwo{mk("s2")} }))
	require.NoError(t, f.c.Provide(func() *svcThree { return &svcThree{mk("s3")} }))
	require.NoError(t, f.c.Provide(func() *svcShared { return &svcShared{mk("s4")} }))
	return f
}

// app builds an application importing a then b. Abort errors are returned
// rather than exiting unless opts override the policy.
func (f *fixture) app(t *testing.T, opts ...Option) *Application {
	t.Helper()

	base := []Option{
		WithName("app"),
		WithContainer(f.c),
		WithLogger(logging.NewNop()),
		WithAbortPolicy(AbortPropagate),
		WithImports(container.TypeOf[*modA](), container.TypeOf[*modB]()),
		WithBootHook(func(context.Context) error {
			f.rec.Record("app.OnModuleBoot")
			return f.fail["app.OnModuleBoot"]
		}),
		WithShutdownHook(func(context.Context) error {
			f.rec.Record("app.OnModuleShutdown")
			return f.fail["app.OnModuleShutdown"]
		}),
	}

	app, err := NewApplication(append(base, opts...)...)
	require.NoError(t, err)
	return app
}

func names(modules []Module) []string {
	out := make([]string, len(modules))
	for i, m := range modules {
		out[i] = m.Name()
	}
	return out
}
