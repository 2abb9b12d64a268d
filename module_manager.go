package modkit

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	otelattr "go.opentelemetry.io/otel/attribute"

	"github.com/GoCodeAlone/modkit/container"
)

// MaxImportDepth bounds how deep a module tree may nest.
const MaxImportDepth = 64

// ModuleManager imports the module tree and runs module-level boot and
// shutdown hooks.
//
// Import walks the tree depth first and records modules in post-order:
// children before their parents and the root last. That order is used for
// service and controller registration and for the module hook passes.
type ModuleManager struct {
	resolver container.Resolver
	tel      *telemetry
	maxDepth int

	mu       sync.Mutex
	root     Module
	modules  []Module
	children map[Module][]Module
	booted   map[Module]bool
	shutdown map[Module]bool
}

// NewModuleManager creates a ModuleManager that resolves imports through
// resolver.
func NewModuleManager(resolver container.Resolver, logger Logger) *ModuleManager {
	return &ModuleManager{
		resolver: resolver,
		tel:      newTelemetry(logger),
		maxDepth: MaxImportDepth,
		children: make(map[Module][]Module),
		booted:   make(map[Module]bool),
		shutdown: make(map[Module]bool),
	}
}

// Import resolves the tree rooted at root. Each module is imported at most
// once, however many parents import it. Importing the same root again is a
// no-op.
func (m *ModuleManager) Import(ctx context.Context, root Module) error {
	if root == nil {
		return &ImportError{Module: moduleName(root), Err: ErrNilModule}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.root != nil {
		if sameModule(m.root, root) {
			return nil
		}
		return &ImportError{Module: root.Name(), Err: ErrRootAlreadyImported}
	}

	if err := m.visit(ctx, root, nil); err != nil {
		// Leave no partial tree behind.
		m.modules = nil
		m.children = make(map[Module][]Module)
		return err
	}

	m.root = root
	m.tel.log().Debug("Module tree imported", "root", root.Name(), "modules", len(m.modules))
	return nil
}

func (m *ModuleManager) visit(ctx context.Context, node Module, stack []Module) error {
	if !reflect.TypeOf(node).Comparable() {
		return &ImportError{Module: node.Name(), Err: fmt.Errorf("%w: %T", ErrModuleNotComparable, node)}
	}
	if len(stack) >= m.maxDepth {
		return &ImportError{Module: node.Name(), Err: fmt.Errorf("%w: limit %d", ErrImportDepthExceeded, m.maxDepth)}
	}
	if _, done := m.children[node]; done {
		return nil
	}
	if slices.Contains(stack, node) {
		return &ImportError{Module: node.Name(), Err: fmt.Errorf("%w: %s", ErrCircularImport, importPath(stack, node))}
	}
	stack = append(stack, node)

	var children []Module
	if ia, ok := node.(ImportAware); ok {
		for _, token := range ia.Imports() {
			value, err := m.resolver.Resolve(ctx, token)
			if err != nil {
				return &ImportError{Module: node.Name(), Import: token, Err: err}
			}
			child, ok := value.(Module)
			if !ok || child == nil {
				return &ImportError{Module: node.Name(), Import: token, Err: fmt.Errorf("%w: %T", ErrNotAModule, value)}
			}
			if err := m.visit(ctx, child, stack); err != nil {
				return err
			}
			if !slices.ContainsFunc(children, func(c Module) bool { return sameModule(c, child) }) {
				children = append(children, child)
			}
		}
	}

	m.children[node] = children
	m.modules = append(m.modules, node)
	m.tel.log().Debug("Module imported", "module", node.Name(), "imports", len(children))
	return nil
}

func importPath(stack []Module, last Module) string {
	path := ""
	for _, mod := range stack {
		path += mod.Name() + " -> "
	}
	return path + last.Name()
}

// sameModule compares modules by identity without panicking on
// non-comparable dynamic types.
func sameModule(a, b Module) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) || !reflect.TypeOf(a).Comparable() {
		return false
	}
	return a == b
}

// Root returns the imported root module, or nil before Import.
func (m *ModuleManager) Root() Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root
}

// Modules returns every imported module in post-order, root last.
func (m *ModuleManager) Modules() []Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.modules)
}

// Children returns the modules imported directly by node.
func (m *ModuleManager) Children(node Module) []Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.children[node])
}

// descendants returns the modules reachable from node, excluding node, in
// post-order.
func (m *ModuleManager) descendants(node Module) ([]Module, error) {
	if _, ok := m.children[node]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotImported, moduleName(node))
	}

	seen := map[Module]bool{node: true}
	var out []Module
	var walk func(Module)
	walk = func(n Module) {
		for _, child := range m.children[n] {
			if seen[child] {
				continue
			}
			seen[child] = true
			walk(child)
			out = append(out, child)
		}
	}
	walk(node)
	return out, nil
}

// StartModule runs OnModuleBoot hooks. With isRoot false it runs the hook of
// every module below node, children first; with isRoot true it runs node's
// own hook. A module's hook runs at most once until ClearLifecycleCache.
func (m *ModuleManager) StartModule(ctx context.Context, node Module, isRoot bool) error {
	return m.runPass(ctx, node, isRoot, HookOnModuleBoot, m.booted, EventTypeModuleBooted, func(ctx context.Context, mod Module) error {
		if hook, ok := mod.(BootHook); ok {
			return hook.OnModuleBoot(ctx)
		}
		return nil
	})
}

// StopModule runs OnModuleShutdown hooks with the same passes and order as
// StartModule.
func (m *ModuleManager) StopModule(ctx context.Context, node Module, isRoot bool) error {
	return m.runPass(ctx, node, isRoot, HookOnModuleShutdown, m.shutdown, EventTypeModuleShutdown, func(ctx context.Context, mod Module) error {
		if hook, ok := mod.(ShutdownHook); ok {
			return hook.OnModuleShutdown(ctx)
		}
		return nil
	})
}

func (m *ModuleManager) runPass(
	ctx context.Context,
	node Module,
	isRoot bool,
	hookName string,
	done map[Module]bool,
	eventType string,
	run func(context.Context, Module) error,
) error {
	if node == nil {
		return ErrNilModule
	}

	m.mu.Lock()
	targets := []Module{node}
	if !isRoot {
		var err error
		if targets, err = m.descendants(node); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	m.mu.Unlock()

	for _, mod := range targets {
		m.mu.Lock()
		already := done[mod]
		m.mu.Unlock()
		if already {
			continue
		}

		hookCtx, span := m.tel.startSpan(WithModule(ctx, mod), "modkit.module."+hookName,
			otelattr.String("module", mod.Name()))
		err := run(hookCtx, mod)
		endSpan(span, err)
		m.tel.meter().ObserveModuleHook(mod.Name(), hookName, err)

		if err != nil {
			m.tel.log().Error("Module hook failed", "module", mod.Name(), "hook", hookName, "error", err)
			return &ModuleHookError{Module: mod.Name(), Hook: hookName, Err: err}
		}

		m.mu.Lock()
		done[mod] = true
		m.mu.Unlock()

		m.tel.log().Debug("Module hook completed", "module", mod.Name(), "hook", hookName)
		m.tel.event(ctx, eventType, map[string]any{"module": mod.Name(), "root": isRoot})
	}
	return nil
}

// UnwindBooted runs OnModuleShutdown on the modules whose OnModuleBoot
// succeeded, in boot order, then clears the lifecycle cache. It is used when
// a start fails partway through the module passes. Every booted module is
// unwound; the hook errors are joined.
func (m *ModuleManager) UnwindBooted(ctx context.Context) error {
	m.mu.Lock()
	var booted []Module
	for _, mod := range m.modules {
		if m.booted[mod] && !m.shutdown[mod] {
			booted = append(booted, mod)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, mod := range booted {
		hook, ok := mod.(ShutdownHook)
		if !ok {
			continue
		}
		if err := hook.OnModuleShutdown(WithModule(ctx, mod)); err != nil {
			m.tel.log().Warn("Module unwind failed", "module", mod.Name(), "error", err)
			errs = append(errs, &ModuleHookError{Module: mod.Name(), Hook: HookOnModuleShutdown, Err: err})
		}
	}
	m.ClearLifecycleCache()
	return errors.Join(errs...)
}

// ClearLifecycleCache forgets which modules have booted and shut down, so the
// next start and stop run every hook again.
func (m *ModuleManager) ClearLifecycleCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.booted)
	clear(m.shutdown)
}
