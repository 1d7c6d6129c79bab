// Package variables holds the per-pass bindings that rule expressions read.
//
// A Storage is built from an owner's live attributes right before its rules
// are evaluated and is thrown away afterwards, so values never carry over
// from one reasoning pass to the next.
package variables

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// ErrUnknownVariable is matched by every *UnknownVariableError.
var ErrUnknownVariable = errors.New("unknown variable")

// UnknownVariableError reports a lookup of a name that is not bound.
type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q", e.Name)
}

func (e *UnknownVariableError) Is(target error) bool {
	return target == ErrUnknownVariable
}

type Kind int

const (
	KindNumber Kind = iota
	KindText
)

func (k Kind) String() string {
	if k == KindText {
		return "text"
	}
	return "number"
}

// Value is a bound variable value. Electrical quantities and flags are
// numbers; module status words such as an operating mode are text.
type Value struct {
	kind Kind
	num  float64
	text string
}

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

func Text(s string) Value { return Value{kind: KindText, text: s} }

// Bool encodes a flag as 1 or 0.
func Bool(b bool) Value {
	if b {
		return Number(1)
	}
	return Number(0)
}

func (v Value) Kind() Kind { return v.kind }

// Float returns the numeric value; ok is false for text values.
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) String() string {
	if v.kind == KindText {
		return v.text
	}
	return strconv.FormatFloat(v.num, 'f', -1, 64)
}

// Source is anything that can report a named-attribute snapshot.
type Source interface {
	Attributes() (map[string]Value, error)
}

type Storage struct {
	vars map[string]Value
}

func New() *Storage {
	return &Storage{vars: make(map[string]Value)}
}

func (s *Storage) Set(name string, v Value) {
	s.vars[name] = v
}

func (s *Storage) Get(name string) (Value, error) {
	v, ok := s.vars[name]
	if !ok {
		return Value{}, &UnknownVariableError{Name: name}
	}
	return v, nil
}

// Load discards every binding and repopulates from unit and then module, so
// module attributes shadow unit attributes with the same name. Either source
// may be nil. On error the storage is left empty.
func (s *Storage) Load(unit, module Source) error {
	clear(s.vars)
	for _, src := range []Source{unit, module} {
		if src == nil {
			continue
		}
		attrs, err := src.Attributes()
		if err != nil {
			clear(s.vars)
			return err
		}
		maps.Copy(s.vars, attrs)
	}
	return nil
}

// Names returns the bound names in sorted order.
func (s *Storage) Names() []string {
	return slices.Sorted(maps.Keys(s.vars))
}

func (s *Storage) Len() int {
	return len(s.vars)
}
