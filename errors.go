package envmodules

import (
	"errors"
)

// Engine errors
var (
	// Load / unload errors
	ErrRootNotFound         = errors.New("module root not found")
	ErrDependencyLoadFailed = errors.New("dependency could not be loaded")
	ErrUnknownModule        = errors.New("unknown module")
	ErrModuleNotLoaded      = errors.New("module is not loaded")
	ErrCircularDependency   = errors.New("circular dependency detected")
	ErrModuleInitFailed     = errors.New("module initializer failed")
	ErrNilDescriptor        = errors.New("module descriptor is nil")
	ErrCatalogNil           = errors.New("module catalog is nil")
	ErrModuleBusy           = errors.New("module is being unloaded")
	ErrAmbiguousModule      = errors.New("module name matches several loaded modules")

	// Catalog errors
	ErrDuplicateModule = errors.New("module already registered")
	ErrEmptyModuleName = errors.New("module name is empty")

	// Path composition errors
	ErrInvalidMutationKey = errors.New("invalid path mutation key")
	ErrMutationNotFound   = errors.New("path mutation not found")

	// Version detection errors
	ErrInvalidVersion          = errors.New("invalid module version")
	ErrUnknownVersionSource    = errors.New("unknown version source type")
	ErrVersionPatternNoMatch   = errors.New("version pattern did not match")
	ErrVersionPatternNoCapture = errors.New("version pattern has no capture group")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")

	// Parameter errors
	ErrParameterNotFound = errors.New("parameter not found")

	// Observer errors
	ErrObserverNil      = errors.New("observer is nil")
	ErrUnknownEventType = errors.New("unknown event type")
)
