package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicate signals a unique constraint violation. Use DuplicateConstraint to
// find which constraint fired.
var ErrDuplicate = errors.New("duplicate record")

// ErrMissingReference signals a foreign key violation.
var ErrMissingReference = errors.New("referenced record does not exist")

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// ConstraintError carries the name of the violated constraint.
// Kind is ErrDuplicate or ErrMissingReference.
type ConstraintError struct {
	Constraint string
	Kind       error
	Err        error
}

func (e *ConstraintError) Error() string {
	return e.Kind.Error() + " (" + e.Constraint + "): " + e.Err.Error()
}

func (e *ConstraintError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// DuplicateConstraint returns the constraint name when err is a unique violation.
func DuplicateConstraint(err error) (string, bool) {
	var ce *ConstraintError
	if errors.As(err, &ce) && errors.Is(ce.Kind, ErrDuplicate) {
		return ce.Constraint, true
	}
	return "", false
}

func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case pqUniqueViolation:
		return &ConstraintError{Constraint: pqErr.Constraint, Kind: ErrDuplicate, Err: err}
	case pqForeignKeyViolation:
		return &ConstraintError{Constraint: pqErr.Constraint, Kind: ErrMissingReference, Err: err}
	default:
		return err
	}
}
