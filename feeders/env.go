// Package feeders provides configuration feeders reading YAML files, TOML
// files and prefixed environment variables into tagged structs.
package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// EnvFeeder sets struct fields tagged with `env:"NAME"` from the environment
// variable PREFIX_NAME. Nested structs are walked with the same prefix.
// Unset or empty variables leave the field untouched.
type EnvFeeder struct {
	Prefix string

	lookup func(string) (string, bool)
}

// NewEnvFeeder creates a feeder reading variables that start with prefix.
func NewEnvFeeder(prefix string) EnvFeeder {
	return EnvFeeder{Prefix: prefix, lookup: os.LookupEnv}
}

// WithLookup returns a copy of the feeder that reads variables through lookup.
func (f EnvFeeder) WithLookup(lookup func(string) (string, bool)) EnvFeeder {
	f.lookup = lookup
	return f
}

// Feed populates structure from the environment.
func (f EnvFeeder) Feed(structure any) error {
	if err := checkStructure(structure); err != nil {
		return err
	}
	if f.Prefix == "" {
		return ErrEmptyPrefix
	}
	if f.lookup == nil {
		f.lookup = os.LookupEnv
	}
	return f.fillStruct(reflect.ValueOf(structure).Elem(), strings.ToUpper(f.Prefix))
}

func (f EnvFeeder) fillStruct(rv reflect.Value, prefix string) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)

		if field.Kind() == reflect.Struct {
			if err := f.fillStruct(field, prefix); err != nil {
				return err
			}
			continue
		}

		envTag, ok := fieldType.Tag.Lookup("env")
		if !ok {
			continue
		}
		if err := f.setField(field, prefix+"_"+strings.ToUpper(envTag)); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

func (f EnvFeeder) setField(field reflect.Value, envName string) error {
	value, ok := f.lookup(envName)
	if !ok || value == "" {
		return nil
	}
	if !field.CanSet() {
		return ErrFieldCannotBeSet
	}

	converted, err := cast.FromType(value, field.Type())
	if err != nil {
		return wrapConvertError(envName, err)
	}
	field.Set(reflect.ValueOf(converted).Convert(field.Type()))
	return nil
}

func checkStructure(structure any) error {
	rv := reflect.ValueOf(structure)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return wrapStructureError(structure)
	}
	return nil
}
