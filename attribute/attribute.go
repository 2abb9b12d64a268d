// Package attribute holds declarative metadata attached to controller types
// and their methods.
//
// Go has no annotations, so a type declares its attributes either by
// implementing Declarer or by having a declaration registered for it with
// Registry.Declare. Attributes are kept in the order they were declared.
package attribute

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	ErrUnknownMethod   = errors.New("attribute declared on unknown method")
	ErrNilTarget       = errors.New("attribute target is nil")
	ErrAlreadyDeclared = errors.New("attributes already declared for type")
)

// Attribute is a piece of metadata. AttributeName identifies the kind of
// attribute and is used in logs.
type Attribute interface {
	AttributeName() string
}

// Declarer is implemented by types that declare their own attributes.
type Declarer interface {
	DeclareAttributes(d *Declarations)
}

// Declarations collects the class and method attributes of one type.
type Declarations struct {
	class   []Attribute
	methods []*methodDeclaration
}

type methodDeclaration struct {
	name  string
	attrs []Attribute
}

// Class adds attributes to the type itself.
func (d *Declarations) Class(attrs ...Attribute) *Declarations {
	d.class = append(d.class, attrs...)
	return d
}

// Method adds attributes to the named method. Declaring the same method twice
// appends to its existing attributes.
func (d *Declarations) Method(name string, attrs ...Attribute) *Declarations {
	for _, m := range d.methods {
		if m.name == name {
			m.attrs = append(m.attrs, attrs...)
			return d
		}
	}
	d.methods = append(d.methods, &methodDeclaration{name: name, attrs: attrs})
	return d
}

// MethodAttributes pairs a method with the attributes declared on it.
type MethodAttributes struct {
	Name       string
	Method     reflect.Method
	Attributes []Attribute
}

// Registry resolves the declarations of target types. Declarations are built
// once per type and cached.
type Registry struct {
	mu     sync.RWMutex
	tables map[reflect.Type]*Declarations
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[reflect.Type]*Declarations)}
}

// Declare registers attributes for the type identified by token, for types
// that cannot implement Declarer themselves.
func (r *Registry) Declare(token reflect.Type, fn func(d *Declarations)) error {
	if token == nil || fn == nil {
		return ErrNilTarget
	}

	d := &Declarations{}
	fn(d)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[token]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyDeclared, token)
	}
	r.tables[token] = d
	return nil
}

func (r *Registry) declarations(target any) (reflect.Type, *Declarations) {
	t := reflect.TypeOf(target)

	r.mu.RLock()
	d, ok := r.tables[t]
	r.mu.RUnlock()
	if ok {
		return t, d
	}

	d = &Declarations{}
	if declarer, ok := target.(Declarer); ok {
		declarer.DeclareAttributes(d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tables[t]; ok {
		return t, existing
	}
	r.tables[t] = d
	return t, d
}

// MethodAttributes returns every method of target that carries at least one
// attribute, in declaration order.
func (r *Registry) MethodAttributes(target any) ([]MethodAttributes, error) {
	if target == nil {
		return nil, ErrNilTarget
	}

	t, d := r.declarations(target)
	out := make([]MethodAttributes, 0, len(d.methods))
	for _, decl := range d.methods {
		if len(decl.attrs) == 0 {
			continue
		}
		method, ok := t.MethodByName(decl.name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, t, decl.name)
		}
		attrs := make([]Attribute, len(decl.attrs))
		copy(attrs, decl.attrs)
		out = append(out, MethodAttributes{Name: decl.name, Method: method, Attributes: attrs})
	}
	return out, nil
}

// ClassAttributes returns the attributes declared on target's type.
func (r *Registry) ClassAttributes(target any) []Attribute {
	if target == nil {
		return nil
	}
	_, d := r.declarations(target)
	out := make([]Attribute, len(d.class))
	copy(out, d.class)
	return out
}

// OfType returns the attributes in attrs that are of type T, keeping their
// order.
func OfType[T any](attrs []Attribute) []T {
	var out []T
	for _, a := range attrs {
		if v, ok := a.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
