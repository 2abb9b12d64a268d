package feeders

import (
	"encoding"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

var durationType = reflect.TypeOf(time.Duration(0))

// EnvFeeder reads environment variables named by `env` struct tags. When
// Prefix is set, a field tagged `env:"LOG_LEVEL"` reads PREFIX_LOG_LEVEL.
type EnvFeeder struct {
	Prefix string
}

// NewEnvFeeder creates a new EnvFeeder that reads from environment variables
func NewEnvFeeder() EnvFeeder {
	return EnvFeeder{}
}

// NewPrefixedEnvFeeder creates an EnvFeeder whose variable names start with
// prefix.
func NewPrefixedEnvFeeder(prefix string) EnvFeeder {
	return EnvFeeder{Prefix: prefix}
}

// Feed reads environment variables and populates the provided structure
func (f EnvFeeder) Feed(structure any) error {
	return fillFromLookup(structure, f.Prefix, os.LookupEnv)
}

type lookupFunc func(name string) (string, bool)

func fillFromLookup(structure any, prefix string, lookup lookupFunc) error {
	rv := reflect.ValueOf(structure)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w, got %T", ErrInvalidStructure, structure)
	}
	return processStructFields(rv.Elem(), strings.ToUpper(prefix), lookup)
}

// processStructFields iterates through struct fields
func processStructFields(rv reflect.Value, prefix string, lookup lookupFunc) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)
		if !fieldType.IsExported() {
			continue
		}

		if err := processField(field, fieldType, prefix, lookup); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

// processField handles a single struct field
func processField(field reflect.Value, fieldType reflect.StructField, prefix string, lookup lookupFunc) error {
	envTag, tagged := fieldType.Tag.Lookup("env")

	if !tagged {
		switch {
		case field.Kind() == reflect.Struct:
			return processStructFields(field, prefix, lookup)
		case field.Kind() == reflect.Pointer && !field.IsNil() && field.Elem().Kind() == reflect.Struct:
			return processStructFields(field.Elem(), prefix, lookup)
		}
		return nil
	}

	name := strings.ToUpper(envTag)
	if prefix != "" {
		name = prefix + "_" + name
	}

	value, ok := lookup(name)
	if !ok || value == "" {
		return nil
	}
	return setFieldValue(field, value)
}

// setFieldValue converts and sets a field value
func setFieldValue(field reflect.Value, strValue string) error {
	if !field.CanSet() {
		return ErrFieldCannotBeSet
	}

	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return u.UnmarshalText([]byte(strValue))
		}
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(strValue)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConversion, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	converted, err := cast.FromType(strValue, field.Type())
	if err != nil {
		return fmt.Errorf("%w %v: %v", ErrConversion, field.Type(), err)
	}

	value := reflect.ValueOf(converted)
	if value.Type() != field.Type() {
		if !value.Type().ConvertibleTo(field.Type()) {
			return fmt.Errorf("%w: %v to %v", ErrConversion, value.Type(), field.Type())
		}
		value = value.Convert(field.Type())
	}
	field.Set(value)
	return nil
}
