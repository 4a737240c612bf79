package arena

import "errors"

var (
	// ErrOutOfMemory indicates the reservation cannot hold the requested extension.
	ErrOutOfMemory = errors.New("arena: out of memory")

	// ErrUnaligned indicates an extension that is not a positive multiple of 16 bytes.
	ErrUnaligned = errors.New("arena: extension must be a positive multiple of 16")

	// ErrClosed indicates use of an arena after Close.
	ErrClosed = errors.New("arena: closed")

	// ErrBadLimit indicates a reservation size that is not positive or not aligned.
	ErrBadLimit = errors.New("arena: limit must be a positive multiple of 16")
)
