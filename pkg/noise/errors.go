package noise

import "errors"

var (
	// ErrInvalidConfiguration reports a grid size, cell width or domain
	// width that cannot produce at least one full sample.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrIndexOutOfRange reports a lattice lookup outside [0, gridSize].
	// It signals a bug in cell iteration rather than bad user input.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrInvalidInput reports an empty or ragged heightfield.
	ErrInvalidInput = errors.New("invalid input")
)
