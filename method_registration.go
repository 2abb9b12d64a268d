package modkit

import (
	"context"
	"reflect"

	"github.com/GoCodeAlone/modkit/attribute"
	"github.com/GoCodeAlone/modkit/container"
)

// MethodAttributeRegistration binds one attributed controller method to a
// dispatcher.
//
// Attributes are stored in declaration order. Declarations read like
// decorators stacked above a method, so the attribute declared last is the
// one closest to the method: First returns it, and Last returns the one
// declared first. Use the accessors rather than indexing Attributes.
type MethodAttributeRegistration struct {
	Module     Module
	Target     any
	MethodName string
	Method     reflect.Method
	Attributes []attribute.Attribute
	Dispatcher container.Dispatcher
}

// First returns the attribute closest to the method, or nil.
func (r *MethodAttributeRegistration) First() attribute.Attribute {
	if len(r.Attributes) == 0 {
		return nil
	}
	return r.Attributes[len(r.Attributes)-1]
}

// Last returns the attribute furthest from the method, or nil.
func (r *MethodAttributeRegistration) Last() attribute.Attribute {
	if len(r.Attributes) == 0 {
		return nil
	}
	return r.Attributes[0]
}

// Invoke calls the method. Parameters not supplied in args are resolved by
// the container on every call.
func (r *MethodAttributeRegistration) Invoke(ctx context.Context, args ...any) (any, error) {
	return r.Dispatcher(ctx, args...)
}

// AttributesOf returns the registration's attributes of type T in
// declaration order.
func AttributesOf[T any](r *MethodAttributeRegistration) []T {
	return attribute.OfType[T](r.Attributes)
}

// FirstOf returns the attribute of type T closest to the method.
func FirstOf[T any](r *MethodAttributeRegistration) (T, bool) {
	attrs := AttributesOf[T](r)
	if len(attrs) == 0 {
		var zero T
		return zero, false
	}
	return attrs[len(attrs)-1], true
}

// HasAttribute reports whether the registration carries an attribute of
// type T.
func HasAttribute[T any](r *MethodAttributeRegistration) bool {
	_, ok := FirstOf[T](r)
	return ok
}
