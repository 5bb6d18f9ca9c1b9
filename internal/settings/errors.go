package settings

import "errors"

// Sentinel errors for the persisted settings store, in the style of
// u-bmc-u-bmc/pkg/file/errors.go.
var (
	ErrTemporaryFileCreation = errors.New("settings: failed to create temporary file")
	ErrTemporaryFileWrite    = errors.New("settings: failed to write temporary file")
	ErrTemporaryFileClose    = errors.New("settings: failed to close temporary file")
	ErrAtomicRename          = errors.New("settings: failed to atomically rename temporary file")
	ErrOriginalFileOpen      = errors.New("settings: failed to open original file")
	ErrOriginalFileCopy      = errors.New("settings: failed to copy original file content")

	// ErrOutOfRange is returned by Set when a value fails the field's
	// range check — spec.md §7.4: "rejected at the settings boundary, not
	// in core".
	ErrOutOfRange = errors.New("settings: value out of range")
	// ErrUnknownKey is returned by Set/Get for a key not in the schema.
	ErrUnknownKey = errors.New("settings: unknown key")
)
