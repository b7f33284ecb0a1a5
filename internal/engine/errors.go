package engine

import "errors"

// Every failure an operation can return is one of these sentinels, possibly
// wrapped with context. No operation mutates state before all of its checks
// have passed, so a returned error means the system is unchanged.
var (
	ErrInvalidLocation     = errors.New("invalid location")
	ErrInvalidSeverity     = errors.New("severity out of range")
	ErrInvalidUrgency      = errors.New("urgency out of range")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidResourceType = errors.New("unknown resource type")
	ErrSystemPaused        = errors.New("operations paused")
	ErrUnauthorized        = errors.New("caller not authorized")
	ErrIncompatibleMatch   = errors.New("incompatible offer and request")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrInvalidProof        = errors.New("invalid delivery proof")
	ErrNotFound            = errors.New("not found")
)
