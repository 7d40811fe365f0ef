package domain

import "errors"

var (
	// ErrUnknownConfiguration marks an unrecognized process, material,
	// finish, or tolerance code. Terminal: retrying cannot succeed.
	ErrUnknownConfiguration = errors.New("unknown_pricing_configuration")

	// ErrInvalidQuantity marks a quantity <= 0 or an empty quantity list.
	ErrInvalidQuantity = errors.New("invalid_quantity")

	// ErrMissingGeometry marks a request lacking the geometry inputs the
	// selected process requires.
	ErrMissingGeometry = errors.New("missing_geometry")
)
