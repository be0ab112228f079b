package envmodules

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/golobby/cast"
)

// ParameterKey identifies a parameter. The same parameter name may carry
// different values per virtual environment; the empty virtual environment is
// the default.
type ParameterKey struct {
	Name               string
	VirtualEnvironment string
}

// ParameterValue is the value of a module parameter.
type ParameterValue struct {
	Name               string
	VirtualEnvironment string
	Value              string

	// IsUserDefined is true when the value was overridden by the user
	// instead of being declared by the description file.
	IsUserDefined bool

	// Declared is the description file's value hidden by a user override.
	Declared *ParameterValue `yaml:"-" toml:"-" json:"-"`
}

// Bool converts the value to a bool.
func (p ParameterValue) Bool() (bool, error) {
	var b bool
	err := p.As(&b)
	return b, err
}

// Int converts the value to an int.
func (p ParameterValue) Int() (int, error) {
	var i int
	err := p.As(&i)
	return i, err
}

// As converts the value into the type target points to.
func (p ParameterValue) As(target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("parameter %s: target must be a non-nil pointer, got %T", p.Name, target)
	}

	converted, err := cast.FromType(p.Value, rv.Elem().Type())
	if err != nil {
		return fmt.Errorf("parameter %s: cannot convert %q to %v: %w", p.Name, p.Value, rv.Elem().Type(), err)
	}
	rv.Elem().Set(reflect.ValueOf(converted).Convert(rv.Elem().Type()))
	return nil
}

// Parameter returns the value for name in the given virtual environment,
// falling back to the default virtual environment.
func (d *ModuleDescriptor) Parameter(name, virtualEnvironment string) (ParameterValue, error) {
	if v, ok := d.Parameters[ParameterKey{Name: name, VirtualEnvironment: virtualEnvironment}]; ok {
		return v, nil
	}
	if virtualEnvironment != "" {
		if v, ok := d.Parameters[ParameterKey{Name: name}]; ok {
			return v, nil
		}
	}
	return ParameterValue{}, fmt.Errorf("%w: %s (module %s)", ErrParameterNotFound, name, d.FullName)
}

// SetUserParameter overrides a parameter with a user-defined value.
func (d *ModuleDescriptor) SetUserParameter(name, virtualEnvironment, value string) {
	if d.Parameters == nil {
		d.Parameters = make(map[ParameterKey]ParameterValue)
	}
	key := ParameterKey{Name: name, VirtualEnvironment: virtualEnvironment}
	var declared *ParameterValue
	if existing, ok := d.Parameters[key]; ok {
		if existing.IsUserDefined {
			declared = existing.Declared
		} else {
			declared = &existing
		}
	}
	d.Parameters[key] = ParameterValue{
		Name:               name,
		VirtualEnvironment: virtualEnvironment,
		Value:              value,
		IsUserDefined:      true,
		Declared:           declared,
	}
}

// ResetUserSettings drops user-defined search paths and parameter overrides,
// restoring declared parameter values.
func (d *ModuleDescriptor) ResetUserSettings() {
	d.SearchPaths = slices.DeleteFunc(d.SearchPaths, func(c SearchPathCandidate) bool {
		return !c.IsDefault
	})
	for key, p := range d.Parameters {
		switch {
		case !p.IsUserDefined:
		case p.Declared != nil:
			d.Parameters[key] = *p.Declared
		default:
			delete(d.Parameters, key)
		}
	}
}
