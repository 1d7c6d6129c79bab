// Package rulestore keeps the ordered rule list of one owner.
//
// The stored order is insertion order and is what serialization sees.
// Evaluation order is derived separately by PriorityOrder.
//
// Readers never observe a partially applied mutation: every write builds a
// complete new list and publishes it with a single atomic pointer swap.
package rulestore

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
)

// ErrIndexOutOfRange is matched by every *IndexOutOfRangeError.
var ErrIndexOutOfRange = errors.New("index out of range")

type IndexOutOfRangeError struct {
	Index int
	Size  int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("rule index %d out of range [0,%d)", e.Index, e.Size)
}

func (e *IndexOutOfRangeError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}

// Rule is one automation rule. Higher priorities are evaluated first.
type Rule struct {
	Priority   int    `json:"priority" yaml:"priority"`
	Expression string `json:"expression" yaml:"expression"`
	Command    string `json:"command" yaml:"command"`
}

func NewRule(priority int, expression, command string) Rule {
	return Rule{Priority: priority, Expression: expression, Command: command}
}

type Store struct {
	mu      sync.Mutex // serialises writers
	rules   atomic.Pointer[[]Rule]
	version atomic.Uint64
}

func New(rules ...Rule) *Store {
	s := &Store{}
	s.publish(slices.Clone(rules))
	return s
}

func (s *Store) load() []Rule {
	if p := s.rules.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Store) publish(rules []Rule) {
	s.rules.Store(&rules)
	s.version.Add(1)
}

// Append adds rules after the existing ones.
func (s *Store) Append(rules ...Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.load()
	next := make([]Rule, 0, len(current)+len(rules))
	next = append(next, current...)
	next = append(next, rules...)
	s.publish(next)
}

// ReplaceAll swaps the whole list for rules.
func (s *Store) ReplaceAll(rules ...Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(slices.Clone(rules))
}

// ReplaceFrom builds a new list from seq and publishes it only if seq
// finishes without error. On error the previous list stays in place.
func (s *Store) ReplaceFrom(seq iter.Seq2[Rule, error]) error {
	var next []Rule
	for rule, err := range seq {
		if err != nil {
			return fmt.Errorf("replace rules: %w", err)
		}
		next = append(next, rule)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(next)
	return nil
}

// ReplaceAt swaps the rule at index.
func (s *Store) ReplaceAt(index int, rule Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.load()
	if index < 0 || index >= len(current) {
		return &IndexOutOfRangeError{Index: index, Size: len(current)}
	}
	next := slices.Clone(current)
	next[index] = rule
	s.publish(next)
	return nil
}

// Clear empties the store. Clearing an empty store is a no-op.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.load()) == 0 {
		return
	}
	s.publish(nil)
}

// Rules returns a copy of the rules in insertion order.
func (s *Store) Rules() []Rule {
	return slices.Clone(s.load())
}

func (s *Store) Len() int {
	return len(s.load())
}

// Version increases on every published change.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Entry is a rule together with its insertion index.
type Entry struct {
	Index int
	Rule  Rule
}

// PriorityOrder returns rules ordered by priority, highest first. Rules with
// equal priority keep their insertion order.
func PriorityOrder(rules []Rule) []Entry {
	entries := make([]Entry, len(rules))
	for i, r := range rules {
		entries[i] = Entry{Index: i, Rule: r}
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(b.Rule.Priority, a.Rule.Priority)
	})
	return entries
}

// Slice adapts a slice to the sequence form ReplaceFrom takes.
func Slice(rules []Rule) iter.Seq2[Rule, error] {
	return func(yield func(Rule, error) bool) {
		for _, r := range rules {
			if !yield(r, nil) {
				return
			}
		}
	}
}
