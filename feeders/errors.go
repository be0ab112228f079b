package feeders

import (
	"errors"
	"fmt"
)

// Feeder errors
var (
	ErrInvalidStructure = errors.New("expected pointer to struct")
	ErrEmptyPrefix      = errors.New("env: prefix cannot be empty")
	ErrFieldCannotBeSet = errors.New("field cannot be set")
	ErrEmptyPath        = errors.New("file path is empty")
)

func wrapStructureError(got any) error {
	return fmt.Errorf("%w, got %T", ErrInvalidStructure, got)
}

func wrapConvertError(envName string, err error) error {
	return fmt.Errorf("cannot convert %s: %w", envName, err)
}
