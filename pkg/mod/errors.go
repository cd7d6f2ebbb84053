package mod

import "errors"

// Package structure errors. They are fatal to loading or building one mod;
// callers skip or report the mod.
var (
	ErrFolderMissing    = errors.New("mod folder does not exist")
	ErrNotBuilt         = errors.New("mod is not built")
	ErrModifierMissing  = errors.New("modifier payload does not exist")
	ErrFileMissing      = errors.New("mod file does not exist")
	ErrNoResourcesFound = errors.New("no mod resources found")
)

// Description and index errors.
var (
	ErrInvalidDescription = errors.New("invalid mod description")
	ErrUnknownPlatform    = errors.New("unknown platform")
)
