package privilege

import (
	"errors"
	"fmt"
)

// Sentinel errors for the four failure classes. Mutation paths surface these;
// the read path only ever produces ErrInfrastructure (a denied check is a
// plain false, never an error).
var (
	ErrNotFound       = errors.New("not found")
	ErrProtected      = errors.New("protected resource")
	ErrInvariant      = errors.New("invariant violation")
	ErrInfrastructure = errors.New("infrastructure failure")
)

// NotFoundError reports a referenced role, privilege or grant that does not
// exist. Grant/revoke against a missing target is an error, never a no-op.
type NotFoundError struct {
	Kind string // "role", "privilege", "grant", "membership"
	Key  string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.Key) }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ProtectedError reports an attempted mutation or deletion of a protected
// role or privilege without an explicit override.
type ProtectedError struct {
	Kind string
	Slug string
}

func (e *ProtectedError) Error() string {
	return fmt.Sprintf("%s %q is protected and cannot be modified", e.Kind, e.Slug)
}
func (e *ProtectedError) Is(target error) bool { return target == ErrProtected }

// InvariantError reports an operation that would leave the catalog in an
// inconsistent state (e.g. deleting the last administrator role). The
// operation is aborted with no partial state change.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string          { return e.Msg }
func (e *InvariantError) Is(target error) bool   { return target == ErrInvariant }

func invariantf(format string, args ...any) error {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// InfraError wraps a backend failure (cache or store unreachable) on the
// resolution path. The decision point resolves it per the fail-closed policy.
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string        { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *InfraError) Unwrap() error        { return e.Err }
func (e *InfraError) Is(target error) bool { return target == ErrInfrastructure }

func infra(op string, err error) error {
	if err == nil {
		return nil
	}
	return &InfraError{Op: op, Err: err}
}
