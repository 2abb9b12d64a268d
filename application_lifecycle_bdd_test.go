package modkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"
)

var (
	errExpectedStartFailure = errors.New("expected start to fail")
	errUnexpectedOrder      = errors.New("lifecycle steps ran out of order")
)

// lifecycleBDDContext holds the state of one scenario.
type lifecycleBDDContext struct {
	t          *testing.T
	withShared bool
	fail       map[string]error
	fixture    *fixture
	app        *Application
	startErr   error
	stopErr    error
}

func (c *lifecycleBDDContext) reset() {
	c.withShared = false
	c.fail = make(map[string]error)
	c.fixture = nil
	c.app = nil
	c.startErr = nil
	c.stopErr = nil
}

func (c *lifecycleBDDContext) application() *Application {
	if c.app == nil {
		c.fixture = newFixture(c.t, c.withShared)
		for k, v := range c.fail {
			c.fixture.fail[k] = v
		}
		c.app = c.fixture.app(c.t)
	}
	return c.app
}

func (c *lifecycleBDDContext) iHaveAModuleTree(a, b string) error {
	if a != "a" || b != "b" {
		return fmt.Errorf("unsupported module names %q and %q", a, b)
	}
	return nil
}

func (c *lifecycleBDDContext) modulesImportShared(a, b, shared string) error {
	c.withShared = true
	return nil
}

func (c *lifecycleBDDContext) stepFails(step string) error {
	c.fail[step] = errBoom
	return nil
}

func (c *lifecycleBDDContext) theApplicationIsRunning() error {
	return c.application().Start(context.Background())
}

func (c *lifecycleBDDContext) iStartTheApplication() error {
	c.startErr = c.application().Start(context.Background())
	return nil
}

func (c *lifecycleBDDContext) iStopTheApplication() error {
	c.stopErr = c.application().Stop(context.Background())
	return c.stopErr
}

func (c *lifecycleBDDContext) theApplicationShouldBe(state string) error {
	if got := c.application().Status().String(); got != state {
		return fmt.Errorf("expected state %s, got %s (start error: %v)", state, got, c.startErr)
	}
	return nil
}

func (c *lifecycleBDDContext) shouldHappenBefore(first, second string) error {
	rec := c.fixture.rec
	i, j := rec.Index(first), rec.Index(second)
	if i < 0 || j < 0 || i >= j {
		return fmt.Errorf("%w: %s at %d, %s at %d", errUnexpectedOrder, first, i, second, j)
	}
	return nil
}

func (c *lifecycleBDDContext) shouldHaveHappened(step string, times int) error {
	if got := c.fixture.rec.Count(step); got != times {
		return fmt.Errorf("expected %s %d times, got %d", step, times, got)
	}
	return nil
}

func (c *lifecycleBDDContext) startingShouldFail() error {
	if c.startErr == nil {
		return errExpectedStartFailure
	}
	var startErr *ServiceStartError
	if !errors.As(c.startErr, &startErr) || !errors.Is(c.startErr, ErrAborted) {
		return fmt.Errorf("unexpected start error: %w", c.startErr)
	}
	return nil
}

func (c *lifecycleBDDContext) theModuleOrderShouldBe(order string) error {
	want := strings.Split(order, ", ")
	got := names(c.application().ModuleManager().Modules())
	if strings.Join(got, ", ") != strings.Join(want, ", ") {
		return fmt.Errorf("expected module order %v, got %v", want, got)
	}
	return nil
}

func initializeLifecycleScenario(t *testing.T) func(*godog.ScenarioContext) {
	return func(ctx *godog.ScenarioContext) {
		testCtx := &lifecycleBDDContext{t: t}

		ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
			testCtx.reset()
			return ctx, nil
		})

		ctx.Step(`^I have a module tree where the root imports modules "([^"]*)" and "([^"]*)"$`, testCtx.iHaveAModuleTree)
		ctx.Step(`^modules "([^"]*)" and "([^"]*)" both import "([^"]*)"$`, testCtx.modulesImportShared)
		ctx.Step(`^"([^"]*)" fails$`, testCtx.stepFails)
		ctx.Step(`^the application is running$`, testCtx.theApplicationIsRunning)

		ctx.Step(`^I start the application$`, testCtx.iStartTheApplication)
		ctx.Step(`^I stop the application$`, testCtx.iStopTheApplication)

		ctx.Step(`^the application should be "([^"]*)"$`, testCtx.theApplicationShouldBe)
		ctx.Step(`^"([^"]*)" should happen before "([^"]*)"$`, testCtx.shouldHappenBefore)
		ctx.Step(`^"([^"]*)" should have happened (\d+) times?$`, testCtx.shouldHaveHappened)
		ctx.Step(`^starting should fail with the service start error$`, testCtx.startingShouldFail)
		ctx.Step(`^the module order should be "([^"]*)"$`, testCtx.theModuleOrderShouldBe)
	}
}

// TestApplicationLifecycle runs the lifecycle feature scenarios.
func TestApplicationLifecycle(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeLifecycleScenario(t),
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/application_lifecycle.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
