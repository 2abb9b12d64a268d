package modkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/modkit/attribute"
	"github.com/GoCodeAlone/modkit/container"
)

// AttributeRegistry supplies the attributes declared on controller types.
// *attribute.Registry implements it.
type AttributeRegistry interface {
	// MethodAttributes returns every method of target carrying at least one
	// attribute, with the attributes in declaration order.
	MethodAttributes(target any) ([]attribute.MethodAttributes, error)

	// ClassAttributes returns the attributes declared on target's type.
	ClassAttributes(target any) []attribute.Attribute
}

// ControllerRegistration records a controller declared by a module.
type ControllerRegistration struct {
	Module   Module
	Token    container.Token
	Instance any
}

// ControllerManager registers controllers and builds a
// MethodAttributeRegistration for each of their attributed methods.
//
// Registrations have no effect by themselves; dispatch layers such as the
// EventManager and RequestManager look them up by attribute type.
type ControllerManager struct {
	resolver   container.Resolver
	attributes AttributeRegistry
	tel        *telemetry

	mu            sync.RWMutex
	controllers   []*ControllerRegistration
	byToken       map[container.Token]*ControllerRegistration
	registrations []*MethodAttributeRegistration
}

// NewControllerManager creates a ControllerManager.
func NewControllerManager(resolver container.Resolver, attributes AttributeRegistry, logger Logger) *ControllerManager {
	if attributes == nil {
		attributes = attribute.NewRegistry()
	}
	return &ControllerManager{
		resolver:   resolver,
		attributes: attributes,
		tel:        newTelemetry(logger),
		byToken:    make(map[container.Token]*ControllerRegistration),
	}
}

// RegisterFromModule records the controllers declared by node, skipping
// tokens already registered.
func (c *ControllerManager) RegisterFromModule(node Module) {
	ca, ok := node.(ControllerAware)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, token := range ca.Controllers() {
		if token == nil {
			continue
		}
		if _, dup := c.byToken[token]; dup {
			c.tel.log().Debug("Skipping duplicate controller registration", "controller", token.String(), "module", node.Name())
			continue
		}
		reg := &ControllerRegistration{Module: node, Token: token}
		c.controllers = append(c.controllers, reg)
		c.byToken[token] = reg
	}
}

// ResolveAll resolves every registered controller and creates one
// MethodAttributeRegistration per attributed method. Controllers already
// resolved are left alone.
func (c *ControllerManager) ResolveAll(ctx context.Context) error {
	c.mu.RLock()
	pending := make([]*ControllerRegistration, 0, len(c.controllers))
	for _, reg := range c.controllers {
		if reg.Instance == nil {
			pending = append(pending, reg)
		}
	}
	c.mu.RUnlock()

	for _, reg := range pending {
		instance, err := c.resolver.Resolve(ctx, reg.Token)
		if err != nil {
			return fmt.Errorf("resolve controller of module %s: %w", reg.Module.Name(), err)
		}
		if instance == nil {
			return fmt.Errorf("%w: %s", ErrNotAController, reg.Token)
		}

		methods, err := c.attributes.MethodAttributes(instance)
		if err != nil {
			return fmt.Errorf("read attributes of %s: %w", reg.Token, err)
		}

		bound := make([]*MethodAttributeRegistration, 0, len(methods))
		for _, m := range methods {
			dispatcher, err := c.resolver.CreateDispatcher(instance, m.Name)
			if err != nil {
				return fmt.Errorf("bind %s.%s: %w", reg.Token, m.Name, err)
			}
			bound = append(bound, &MethodAttributeRegistration{
				Module:     reg.Module,
				Target:     instance,
				MethodName: m.Name,
				Method:     m.Method,
				Attributes: m.Attributes,
				Dispatcher: dispatcher,
			})
		}

		c.mu.Lock()
		reg.Instance = instance
		c.registrations = append(c.registrations, bound...)
		c.mu.Unlock()

		c.tel.log().Debug("Controller resolved", "controller", reg.Token.String(), "module", reg.Module.Name(), "methods", len(bound))
	}
	return nil
}

// Controllers returns the registered controllers in registration order.
func (c *ControllerManager) Controllers() []ControllerRegistration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ControllerRegistration, len(c.controllers))
	for i, reg := range c.controllers {
		out[i] = *reg
	}
	return out
}

// Registrations returns every method registration in registration order.
func (c *ControllerManager) Registrations() []*MethodAttributeRegistration {
	return c.RegistrationsWith(func(*MethodAttributeRegistration) bool { return true })
}

// RegistrationsWith returns the method registrations accepted by match.
func (c *ControllerManager) RegistrationsWith(match func(*MethodAttributeRegistration) bool) []*MethodAttributeRegistration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*MethodAttributeRegistration
	for _, reg := range c.registrations {
		if match(reg) {
			out = append(out, reg)
		}
	}
	return out
}

// ClassAttributes returns the class attributes of a registered controller.
func (c *ControllerManager) ClassAttributes(token container.Token) ([]attribute.Attribute, error) {
	c.mu.RLock()
	reg, ok := c.byToken[token]
	c.mu.RUnlock()
	if !ok || reg.Instance == nil {
		return nil, fmt.Errorf("%w: %v", ErrControllerNotLoaded, token)
	}
	return c.attributes.ClassAttributes(reg.Instance), nil
}

// RegistrationsOf returns the method registrations carrying at least one
// attribute of type T.
func RegistrationsOf[T any](c *ControllerManager) []*MethodAttributeRegistration {
	return c.RegistrationsWith(HasAttribute[T])
}
