// Package canvas holds the error taxonomy shared by the canvas components.
package canvas

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidCoordinates is returned when x or y falls outside the grid.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrInvalidParameters is returned when colour or user identity is missing or malformed.
	ErrInvalidParameters = errors.New("invalid parameters")

	ErrNoActiveSession   = errors.New("no active session")
	ErrInvalidTransition = errors.New("invalid session status transition")
	ErrAlreadyMinted     = errors.New("session already minted")
	ErrCooldownActive    = errors.New("cooldown active")

	ErrNotFound = errors.New("not found")
)

// CooldownError carries the wait left before a user may place again.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("please wait %d seconds", e.RemainingSeconds())
}

func (e *CooldownError) Unwrap() error { return ErrCooldownActive }

// RemainingSeconds rounds the remaining wait up to a whole second.
func (e *CooldownError) RemainingSeconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

// ErrorKind groups errors by how callers should react to them.
type ErrorKind int

const (
	KindDependency ErrorKind = iota
	KindValidation
	KindState
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	default:
		return "dependency"
	}
}

// Kind classifies err. Anything not recognised is a dependency failure.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidCoordinates), errors.Is(err, ErrInvalidParameters):
		return KindValidation
	case errors.Is(err, ErrNoActiveSession), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrAlreadyMinted), errors.Is(err, ErrCooldownActive):
		return KindState
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindDependency
	}
}
