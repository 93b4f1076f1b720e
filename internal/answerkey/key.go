// Package answerkey holds the ground truth of a scenario instance: the flat
// fact map every evaluator grades against.
package answerkey

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

var (
	// ErrMissingFact is returned when a fact a rubric or fact map needs is
	// not in the key. It is a configuration error.
	ErrMissingFact = errors.New("answer key missing fact")

	// ErrMalformedKey is returned for unparsable or ill-typed key records.
	ErrMalformedKey = errors.New("malformed answer key")

	// ErrNotFound is returned by stores for unknown instance IDs.
	ErrNotFound = errors.New("answer key not found")

	// ErrInvalidInstance is returned by stores for instance IDs that cannot
	// name a key.
	ErrInvalidInstance = errors.New("invalid instance id")
)

// Value is a single fact: either a string or a set of strings.
type Value struct {
	str    string
	list   []string
	isList bool
}

// String returns a single-valued fact.
func String(s string) Value {
	return Value{str: s}
}

// List returns a multi-valued fact.
func List(values ...string) Value {
	return Value{list: slices.Clone(values), isList: true}
}

// IsList reports whether the fact is multi-valued.
func (v Value) IsList() bool {
	return v.isList
}

// Values returns every value of the fact. A single-valued fact yields one
// element.
func (v Value) Values() []string {
	if v.isList {
		return slices.Clone(v.list)
	}
	return []string{v.str}
}

// String renders the fact; list values are comma separated.
func (v Value) String() string {
	if v.isList {
		return strings.Join(v.list, ", ")
	}
	return v.str
}

// Empty reports whether the fact carries no usable value. A list with a
// blank entry counts as empty.
func (v Value) Empty() bool {
	if v.isList {
		return len(v.list) == 0 || slices.Contains(v.list, "")
	}
	return v.str == ""
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isList {
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return json.Marshal(v.str)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: fact is null", ErrMalformedKey)
	}
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("%w: list fact must hold strings", ErrMalformedKey)
		}
		*v = List(list...)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: fact must be a string or list of strings", ErrMalformedKey)
	}
	*v = String(s)
	return nil
}

// Key is an immutable answer key.
type Key struct {
	facts map[string]Value
}

// New builds a key from a fact map. The map is copied.
func New(facts map[string]Value) *Key {
	k := &Key{facts: make(map[string]Value, len(facts))}
	for name, v := range facts {
		if v.isList {
			v = List(v.list...)
		}
		k.facts[name] = v
	}
	return k
}

// Get returns a fact.
func (k *Key) Get(name string) (Value, bool) {
	v, ok := k.facts[name]
	return v, ok
}

// Require checks that every named fact is present and not empty.
func (k *Key) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if v, ok := k.facts[n]; (!ok || v.Empty()) && !slices.Contains(missing, n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFact, strings.Join(missing, ", "))
	}
	return nil
}

// Names returns the fact names in sorted order.
func (k *Key) Names() []string {
	names := make([]string, 0, len(k.facts))
	for n := range k.facts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of facts.
func (k *Key) Len() int {
	return len(k.facts)
}

// Strings flattens the key to display strings.
func (k *Key) Strings() map[string]string {
	out := make(map[string]string, len(k.facts))
	for n, v := range k.facts {
		out[n] = v.String()
	}
	return out
}

func (k *Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.facts)
}

func (k *Key) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*k = *parsed
	return nil
}

// Parse decodes a flat JSON key record.
func Parse(data []byte) (*Key, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: key must be a JSON object", ErrMalformedKey)
	}

	facts := make(map[string]Value, len(raw))
	for name, msg := range raw {
		var v Value
		if err := json.Unmarshal(msg, &v); err != nil {
			return nil, fmt.Errorf("fact %q: %w", name, err)
		}
		if v.Empty() {
			return nil, fmt.Errorf("%w: fact %q is empty", ErrMalformedKey, name)
		}
		facts[name] = v
	}
	return &Key{facts: facts}, nil
}

// MarshalIndent renders the key the way it is written to disk.
func (k *Key) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(k.facts, "", "    ")
}
