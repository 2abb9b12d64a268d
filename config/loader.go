// Package config loads configuration structs from a chain of feeders,
// validates them and watches their source files for changes.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/modkit/feeders"
	"github.com/go-playground/validator/v10"
)

var (
	ErrValidation    = errors.New("configuration validation failed")
	ErrInvalidConfig = errors.New("configuration target must be a non-nil pointer to struct")
)

// Defaulter is implemented by configs that fill in defaults after feeding
// and before validation.
type Defaulter interface {
	SetDefaults()
}

// Validatable is implemented by configs with checks that struct tags cannot
// express. It runs after tag validation succeeds.
type Validatable interface {
	Validate() error
}

// Source describes one feeder of a Loader and the outcome of its last run.
type Source struct {
	Name       string     `json:"name"`
	Optional   bool       `json:"optional"`
	Loaded     bool       `json:"loaded"`
	LastLoaded *time.Time `json:"last_loaded,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type source struct {
	Source
	feeder feeders.Feeder
}

// FieldError is one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

func (e FieldError) String() string {
	if e.Param != "" {
		return fmt.Sprintf("%s failed %s=%s", e.Field, e.Tag, e.Param)
	}
	return fmt.Sprintf("%s failed %s", e.Field, e.Tag)
}

// ValidationError collects the field errors of a validation run.
type ValidationError struct {
	Fields []FieldError
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%v: %v", ErrValidation, e.Err)
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// Loader feeds a config struct from its sources in order, later sources
// overriding earlier ones, then validates it.
type Loader struct {
	mu       sync.Mutex
	sources  []*source
	validate *validator.Validate
	now      func() time.Time
}

// NewLoader creates a loader with the given feeders as required sources.
func NewLoader(sources ...feeders.Feeder) *Loader {
	l := &Loader{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	for _, f := range sources {
		l.AddFeeder(fmt.Sprintf("%T", f), f)
	}
	return l
}

// AddFeeder appends a required source.
func (l *Loader) AddFeeder(name string, f feeders.Feeder) *Loader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources = append(l.sources, &source{Source: Source{Name: name}, feeder: f})
	return l
}

// AddOptionalFeeder appends a source whose missing file is not an error.
func (l *Loader) AddOptionalFeeder(name string, f feeders.Feeder) *Loader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources = append(l.sources, &source{Source: Source{Name: name, Optional: true}, feeder: f})
	return l
}

// Load feeds cfg from every source, applies defaults and validates.
func (l *Loader) Load(ctx context.Context, cfg any) error {
	if err := checkTarget(cfg); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, src := range l.sources {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := src.feeder.Feed(cfg)
		src.Loaded = err == nil
		src.Error = ""
		if err != nil {
			src.Error = err.Error()
			if src.Optional && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config source %s: %w", src.Name, err)
		}
		now := l.now()
		src.LastLoaded = &now
	}

	if d, ok := cfg.(Defaulter); ok {
		d.SetDefaults()
	}
	return l.Validate(ctx, cfg)
}

// Validate runs struct tag validation and then Validatable.
func (l *Loader) Validate(ctx context.Context, cfg any) error {
	if err := checkTarget(cfg); err != nil {
		return err
	}

	if err := l.validate.StructCtx(ctx, cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ValidationError{Err: err}
		}
		out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
		for _, fe := range verrs {
			out.Fields = append(out.Fields, FieldError{Field: fe.Namespace(), Tag: fe.Tag(), Param: fe.Param()})
		}
		return out
	}

	if v, ok := cfg.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return &ValidationError{Err: err}
		}
	}
	return nil
}

// Sources returns a snapshot of the configured sources.
func (l *Loader) Sources() []Source {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Source, len(l.sources))
	for i, s := range l.sources {
		out[i] = s.Source
	}
	return out
}

func checkTarget(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w, got %T", ErrInvalidConfig, cfg)
	}
	return nil
}
