package booking

import "errors"

var (
	// ErrConflict means the interval is already booked or held. Definitive
	// for that interval; retrying the same range will not help.
	ErrConflict = errors.New("slot already booked or held")
	// ErrNotFound means the referenced court or reservation does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExpired means a hold's TTL lapsed before confirmation. The caller
	// must restart the reservation flow.
	ErrExpired = errors.New("hold expired")
	// ErrValidation means the input itself is bad and must be fixed by the
	// caller, never retried as-is.
	ErrValidation = errors.New("invalid input")
)
