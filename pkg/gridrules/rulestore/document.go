package rulestore

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Document is the persisted form of a rule list.
type Document struct {
	Rules []Record `json:"rules" yaml:"rules"`
}

// Record is one serialized rule. Fields are pointers so a missing field can
// be told apart from a zero value on read.
type Record struct {
	Priority   *int    `json:"priority" yaml:"priority"`
	Expression *string `json:"expression" yaml:"expression"`
	Command    *string `json:"command" yaml:"command"`
}

// RecordError reports one record that could not become a Rule: either a
// required field is missing or the record itself is malformed.
type RecordError struct {
	Index int
	Field string
	Err   error
}

func (e *RecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rule record %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("rule record %d: missing field %q", e.Index, e.Field)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// LoadResult is the outcome of decoding a document: the rules that loaded,
// in document order, and one error per record that did not.
type LoadResult struct {
	Rules  []Rule
	Errors []error
}

// RecordOf converts a rule to its serialized form.
func RecordOf(r Rule) Record {
	priority, expression, command := r.Priority, r.Expression, r.Command
	return Record{Priority: &priority, Expression: &expression, Command: &command}
}

// Rule converts the record back, failing if a field is absent.
func (rec Record) Rule(index int) (Rule, error) {
	switch {
	case rec.Priority == nil:
		return Rule{}, &RecordError{Index: index, Field: "priority"}
	case rec.Expression == nil:
		return Rule{}, &RecordError{Index: index, Field: "expression"}
	case rec.Command == nil:
		return Rule{}, &RecordError{Index: index, Field: "command"}
	}
	return Rule{Priority: *rec.Priority, Expression: *rec.Expression, Command: *rec.Command}, nil
}

// DocumentOf builds a document from rules in their given order.
func DocumentOf(rules []Rule) Document {
	doc := Document{Rules: make([]Record, len(rules))}
	for i, r := range rules {
		doc.Rules[i] = RecordOf(r)
	}
	return doc
}

// Document snapshots the store in insertion order.
func (s *Store) Document() Document {
	return DocumentOf(s.load())
}

// Load converts every record, collecting per-record errors.
func (d Document) Load() LoadResult {
	return d.load(nil, nil)
}

// load skips the records already reported as malformed.
func (d Document) load(skip map[int]bool, malformed []error) LoadResult {
	result := LoadResult{Rules: make([]Rule, 0, len(d.Rules)), Errors: malformed}
	for i, rec := range d.Rules {
		if skip[i] {
			continue
		}
		r, err := rec.Rule(i)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Rules = append(result.Rules, r)
	}
	return result
}

func EncodeJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}

func EncodeYAML(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// DecodeJSON reads a document. The error is non-nil only when the document
// as a whole is unreadable; a malformed record fails alone and unknown
// fields are ignored. Anything after the document is an error.
func DecodeJSON(data []byte) (LoadResult, error) {
	var raw struct {
		Rules []json.RawMessage `json:"rules"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return LoadResult{}, fmt.Errorf("decode rule document: %w", err)
	}

	var doc Document
	var bad []error
	skip := make(map[int]bool)
	for i, msg := range raw.Rules {
		var rec Record
		if err := json.Unmarshal(msg, &rec); err != nil {
			bad = append(bad, &RecordError{Index: i, Err: err})
			skip[i] = true
		}
		doc.Rules = append(doc.Rules, rec)
	}
	return doc.load(skip, bad), nil
}

// DecodeYAML is the YAML counterpart of DecodeJSON.
func DecodeYAML(data []byte) (LoadResult, error) {
	var raw struct {
		Rules []yaml.Node `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return LoadResult{}, fmt.Errorf("decode rule document: %w", err)
	}

	var doc Document
	var bad []error
	skip := make(map[int]bool)
	for i := range raw.Rules {
		var rec Record
		if err := raw.Rules[i].Decode(&rec); err != nil {
			bad = append(bad, &RecordError{Index: i, Err: err})
			skip[i] = true
		}
		doc.Rules = append(doc.Rules, rec)
	}
	return doc.load(skip, bad), nil
}
