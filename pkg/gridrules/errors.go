package gridrules

import (
	"errors"
	"fmt"
)

var ErrRuleTooComplex = errors.New("rule too complex")

// TypeMismatchError reports an operator applied to operands it does not
// accept. Left is empty for prefix operators.
type TypeMismatchError struct {
	Operator string
	Left     ObjectType
	Right    ObjectType
}

func (e *TypeMismatchError) Error() string {
	if e.Left == "" {
		return fmt.Sprintf("type mismatch: %s %s", e.Operator, e.Right)
	}
	return fmt.Sprintf("type mismatch: %s %s %s", e.Left, e.Operator, e.Right)
}

// RuleError is a failure confined to one rule of one owner.
type RuleError struct {
	Owner      string
	Index      int // insertion index in the owner's rule store
	Priority   int
	Expression string
	Err        error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("owner %s rule %d (priority %d): %v", e.Owner, e.Index, e.Priority, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// OwnerError is a failure that stopped one owner's reasoning pass.
type OwnerError struct {
	Owner string
	Kind  OwnerKind
	Err   error
}

func (e *OwnerError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Owner, e.Err)
}

func (e *OwnerError) Unwrap() error { return e.Err }

// CycleFailure is a failure that abandoned the rest of a cycle.
type CycleFailure struct {
	CycleID string
	Err     error
}

func (e *CycleFailure) Error() string {
	return fmt.Sprintf("cycle %s failed: %v", e.CycleID, e.Err)
}

func (e *CycleFailure) Unwrap() error { return e.Err }

// PanicError carries a value recovered from a panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
