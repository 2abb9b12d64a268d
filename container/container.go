// Package container provides the dependency injection container used by modkit
// applications.
//
// Instances are keyed by type token and memoized, so each token resolves to
// exactly one instance per container. A token can be satisfied by a value
// (ProvideValue, ProvideAs), by a constructor function whose parameters are
// resolved recursively (Provide), or, for pointer-to-struct tokens with no
// provider, by allocating a zero value. Exported struct fields tagged with
// `inject:""` are filled after construction.
//
// A constructor that resolves more tokens while it runs should take a
// Resolver parameter rather than *Container: the Resolver it receives keeps
// track of the tokens being built and reports cycles.
package container

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
)

// Token identifies a dependency. Tokens are Go types.
type Token = reflect.Type

// TypeOf returns the token for T. It works for interface types as well as
// concrete ones.
func TypeOf[T any]() Token {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Resolver is the narrow view of the container consumed by the application
// managers.
type Resolver interface {
	// Resolve returns the singleton instance for token, constructing it on
	// first use.
	Resolve(ctx context.Context, token Token) (any, error)

	// CreateDispatcher returns a callable bound to target.method whose
	// parameters are resolved on every invocation.
	CreateDispatcher(target any, method string) (Dispatcher, error)
}

// Dispatcher invokes a bound method. Explicit args fill parameters whose type
// they are assignable to, in order; a context.Context parameter receives ctx;
// every other parameter is resolved through the container.
type Dispatcher func(ctx context.Context, args ...any) (any, error)

var (
	ErrNoProvider          = errors.New("no provider registered for token")
	ErrCircularDependency  = errors.New("circular dependency detected")
	ErrInvalidConstructor  = errors.New("constructor must be a non-variadic function returning a value and an optional error")
	ErrAlreadyProvided     = errors.New("token already provided")
	ErrNilValue            = errors.New("value is nil")
	ErrNilToken            = errors.New("token is nil")
	ErrValueNotAssignable  = errors.New("value is not assignable to token")
	ErrMethodNotFound      = errors.New("method not found")
	ErrUnexportedInjection = errors.New("inject tag on unexported field")
)

var (
	contextType  = TypeOf[context.Context]()
	errorType    = TypeOf[error]()
	resolverType = TypeOf[Resolver]()
)

// ResolutionError reports a dependency that could not be satisfied. Path holds
// the chain of tokens being resolved when the failure happened, outermost
// first.
type ResolutionError struct {
	Token Token
	Path  []Token
	Err   error
}

func (e *ResolutionError) Error() string {
	if len(e.Path) > 1 {
		names := make([]string, len(e.Path))
		for i, t := range e.Path {
			names[i] = t.String()
		}
		return fmt.Sprintf("resolve %s (%s): %v", tokenName(e.Token), strings.Join(names, " -> "), e.Err)
	}
	return fmt.Sprintf("resolve %s: %v", tokenName(e.Token), e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

func tokenName(t Token) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

type provider struct {
	fn     reflect.Value
	args   []reflect.Type
	hasErr bool
}

// Container is the default Resolver implementation.
type Container struct {
	mu        sync.Mutex
	providers map[Token]*provider
	instances map[Token]any
	building  map[Token]chan struct{}
}

// New returns an empty container. The container provides itself under the
// *Container and Resolver tokens.
func New() *Container {
	c := &Container{
		providers: make(map[Token]*provider),
		instances: make(map[Token]any),
		building:  make(map[Token]chan struct{}),
	}
	c.instances[TypeOf[*Container]()] = c
	c.instances[TypeOf[Resolver]()] = c
	return c
}

// Provide registers a constructor. The constructor's first result type is the
// token it satisfies; an optional second result must be an error.
func (c *Container) Provide(constructor any) error {
	fn := reflect.ValueOf(constructor)
	if fn.Kind() != reflect.Func || fn.IsNil() {
		return fmt.Errorf("%w: got %T", ErrInvalidConstructor, constructor)
	}

	ft := fn.Type()
	switch {
	case ft.IsVariadic(), ft.NumOut() == 0, ft.NumOut() > 2:
		return fmt.Errorf("%w: %s", ErrInvalidConstructor, ft)
	case ft.NumOut() == 2 && ft.Out(1) != errorType:
		return fmt.Errorf("%w: %s", ErrInvalidConstructor, ft)
	}

	args := make([]reflect.Type, ft.NumIn())
	for i := range args {
		args[i] = ft.In(i)
	}

	token := ft.Out(0)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.provided(token) {
		return fmt.Errorf("%w: %s", ErrAlreadyProvided, token)
	}
	c.providers[token] = &provider{fn: fn, args: args, hasErr: ft.NumOut() == 2}
	return nil
}

// ProvideValue registers value under its dynamic type.
func (c *Container) ProvideValue(value any) error {
	if value == nil {
		return ErrNilValue
	}
	return c.ProvideAs(reflect.TypeOf(value), value)
}

// ProvideAs registers value under token, typically an interface the value
// implements.
func (c *Container) ProvideAs(token Token, value any) error {
	if token == nil {
		return ErrNilToken
	}
	if value == nil {
		return ErrNilValue
	}
	if !reflect.TypeOf(value).AssignableTo(token) {
		return fmt.Errorf("%w: %T as %s", ErrValueNotAssignable, value, token)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.provided(token) {
		return fmt.Errorf("%w: %s", ErrAlreadyProvided, token)
	}
	c.instances[token] = value
	return nil
}

// Has reports whether token has a value or constructor registered, or an
// instance already memoized.
func (c *Container) Has(token Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provided(token)
}

func (c *Container) provided(token Token) bool {
	if _, ok := c.instances[token]; ok {
		return true
	}
	_, ok := c.providers[token]
	return ok
}

// Resolve returns the instance for token. Constructors run without the
// container lock held, so they may resolve further tokens. Concurrent
// callers asking for a token under construction wait for it.
func (c *Container) Resolve(ctx context.Context, token Token) (any, error) {
	if token == nil {
		return nil, &ResolutionError{Err: ErrNilToken}
	}
	return c.resolve(ctx, token, nil)
}

func (c *Container) resolve(ctx context.Context, token Token, path []Token) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if instance, ok := c.instances[token]; ok {
		c.mu.Unlock()
		return instance, nil
	}
	if slices.Contains(path, token) {
		c.mu.Unlock()
		return nil, &ResolutionError{Token: token, Path: append(slices.Clone(path), token), Err: ErrCircularDependency}
	}
	if b, ok := c.building[token]; ok {
		c.mu.Unlock()
		select {
		case <-b:
		case <-ctx.Done():
			return nil, &ResolutionError{Token: token, Path: append(slices.Clone(path), token), Err: ctx.Err()}
		}
		// A failed construction is not memoized; the retry constructs again.
		return c.resolve(ctx, token, path)
	}
	p := c.providers[token]
	done := make(chan struct{})
	c.building[token] = done
	c.mu.Unlock()

	instance, err := c.construct(ctx, token, p, append(slices.Clone(path), token))

	c.mu.Lock()
	delete(c.building, token)
	if err == nil {
		c.instances[token] = instance
	}
	c.mu.Unlock()
	close(done)

	return instance, err
}

func (c *Container) construct(ctx context.Context, token Token, p *provider, path []Token) (any, error) {
	var value reflect.Value
	switch {
	case p != nil:
		in := make([]reflect.Value, len(p.args))
		for i, argType := range p.args {
			switch argType {
			case contextType:
				in[i] = contextValue(ctx)
				continue
			case resolverType:
				in[i] = reflect.ValueOf(Resolver(&scope{c: c, path: path}))
				continue
			}
			arg, err := c.resolve(ctx, argType, path)
			if err != nil {
				return nil, err
			}
			in[i] = valueFor(arg, argType)
		}

		out := p.fn.Call(in)
		if p.hasErr && !out[1].IsNil() {
			return nil, &ResolutionError{Token: token, Path: path, Err: out[1].Interface().(error)}
		}
		value = out[0]
	case token.Kind() == reflect.Pointer && token.Elem().Kind() == reflect.Struct:
		value = reflect.New(token.Elem())
	default:
		return nil, &ResolutionError{Token: token, Path: path, Err: ErrNoProvider}
	}

	if err := c.injectFields(ctx, token, value, path); err != nil {
		return nil, err
	}
	return value.Interface(), nil
}

// scope is the Resolver passed to constructors taking a Resolver parameter.
// It continues the resolution path, so a constructor that asks for a token
// already being built gets ErrCircularDependency instead of waiting on
// itself.
type scope struct {
	c    *Container
	path []Token
}

func (s *scope) Resolve(ctx context.Context, token Token) (any, error) {
	if token == nil {
		return nil, &ResolutionError{Err: ErrNilToken}
	}
	return s.c.resolve(ctx, token, s.path)
}

func (s *scope) CreateDispatcher(target any, method string) (Dispatcher, error) {
	return s.c.CreateDispatcher(target, method)
}

// injectFields fills exported fields tagged `inject:""`. A tag value of
// "optional" leaves the field untouched when nothing provides its type.
func (c *Container) injectFields(ctx context.Context, token Token, value reflect.Value, path []Token) error {
	if value.Kind() != reflect.Pointer || value.IsNil() || value.Elem().Kind() != reflect.Struct {
		return nil
	}

	elem := value.Elem()
	for i := 0; i < elem.NumField(); i++ {
		field := elem.Type().Field(i)
		tag, ok := field.Tag.Lookup("inject")
		if !ok {
			continue
		}
		if !field.IsExported() {
			return &ResolutionError{Token: token, Path: path, Err: fmt.Errorf("%w: %s", ErrUnexportedInjection, field.Name)}
		}
		if !elem.Field(i).IsZero() {
			continue
		}

		dep, err := c.resolve(ctx, field.Type, path)
		if err != nil {
			if tag == "optional" && errors.Is(err, ErrNoProvider) {
				continue
			}
			return err
		}
		elem.Field(i).Set(valueFor(dep, field.Type))
	}
	return nil
}

// CreateDispatcher binds target.method. The returned Dispatcher resolves the
// method's parameters each time it is called.
func (c *Container) CreateDispatcher(target any, method string) (Dispatcher, error) {
	if target == nil {
		return nil, ErrNilValue
	}

	m := reflect.ValueOf(target).MethodByName(method)
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %T.%s", ErrMethodNotFound, target, method)
	}
	mt := m.Type()

	return func(ctx context.Context, args ...any) (any, error) {
		pending := slices.Clone(args)
		in := make([]reflect.Value, mt.NumIn())

		for i := range in {
			paramType := mt.In(i)

			if v, ok := takeArg(&pending, paramType); ok {
				in[i] = v
				continue
			}
			if paramType == contextType {
				in[i] = contextValue(ctx)
				continue
			}

			dep, err := c.Resolve(ctx, paramType)
			if err != nil {
				return nil, err
			}
			in[i] = valueFor(dep, paramType)
		}

		if mt.IsVariadic() {
			return splitResults(m.CallSlice(in))
		}
		return splitResults(m.Call(in))
	}, nil
}

// takeArg removes and returns the first pending argument assignable to t.
func takeArg(pending *[]any, t reflect.Type) (reflect.Value, bool) {
	for i, arg := range *pending {
		if arg == nil {
			continue
		}
		if reflect.TypeOf(arg).AssignableTo(t) {
			*pending = slices.Delete(*pending, i, i+1)
			return reflect.ValueOf(arg), true
		}
	}
	return reflect.Value{}, false
}

func splitResults(out []reflect.Value) (any, error) {
	if len(out) == 0 {
		return nil, nil
	}

	var err error
	last := out[len(out)-1]
	if last.Type() == errorType {
		if !last.IsNil() {
			err = last.Interface().(error)
		}
		out = out[:len(out)-1]
	}

	if len(out) == 0 {
		return nil, err
	}
	return out[0].Interface(), err
}

func contextValue(ctx context.Context) reflect.Value {
	if ctx == nil {
		ctx = context.Background()
	}
	return reflect.ValueOf(&ctx).Elem()
}

func valueFor(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(v)
}

// Resolve is a typed wrapper around Resolver.Resolve.
func Resolve[T any](ctx context.Context, r Resolver) (T, error) {
	var zero T

	token := TypeOf[T]()
	v, err := r.Resolve(ctx, token)
	if err != nil {
		return zero, err
	}

	typed, ok := v.(T)
	if !ok {
		return zero, &ResolutionError{Token: token, Path: []Token{token}, Err: fmt.Errorf("%w: %T", ErrValueNotAssignable, v)}
	}
	return typed, nil
}

// Bind registers value under the token of I.
func Bind[I any](c *Container, value I) error {
	return c.ProvideAs(TypeOf[I](), value)
}
