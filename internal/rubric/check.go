package rubric

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/telhawk-systems/rangehawk/internal/answerkey"
)

// CheckKind names a predicate shape.
type CheckKind string

const (
	// CheckListContains passes when the fact's value is an element of the
	// list field.
	CheckListContains CheckKind = "list_contains"
	// CheckListContainsAll passes when every value of the fact is an element.
	CheckListContainsAll CheckKind = "list_contains_all"
	// CheckListContainsAny passes when some value of the fact is an element.
	CheckListContainsAny CheckKind = "list_contains_any"
	// CheckTextContains passes when the text field contains the facts as
	// substrings, all of them or any of them.
	CheckTextContains CheckKind = "text_contains"
	// CheckMinLength passes when the text field is longer than Min.
	CheckMinLength CheckKind = "min_length"
	// CheckMinItems passes when the list field has at least Min elements.
	CheckMinItems CheckKind = "min_items"
	// CheckNumberBelow passes when the number field is below Threshold.
	CheckNumberBelow CheckKind = "number_below"
	CheckEquals      CheckKind = "equals"
	CheckNonEmpty    CheckKind = "non_empty"
	// CheckAllOf passes when every nested check passes.
	CheckAllOf CheckKind = "all_of"
)

const (
	MatchAll = "all"
	MatchAny = "any"
)

// CheckSpec is the declarative form of a check, as written in scenario
// definitions.
type CheckSpec struct {
	Kind      CheckKind   `yaml:"kind" json:"kind"`
	Field     string      `yaml:"field,omitempty" json:"field,omitempty"`
	Fact      string      `yaml:"fact,omitempty" json:"fact,omitempty"`
	Facts     []string    `yaml:"facts,omitempty" json:"facts,omitempty"`
	Match     string      `yaml:"match,omitempty" json:"match,omitempty"`
	Min       int         `yaml:"min,omitempty" json:"min,omitempty"`
	Trim      bool        `yaml:"trim,omitempty" json:"trim,omitempty"`
	Threshold float64     `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Value     string      `yaml:"value,omitempty" json:"value,omitempty"`
	Checks    []CheckSpec `yaml:"checks,omitempty" json:"checks,omitempty"`
}

// Check is a compiled predicate over a submission and an answer key.
type Check interface {
	// Passes evaluates the predicate. The key must hold every fact the
	// check references.
	Passes(sub *Submission, key *answerkey.Key) bool

	// Facts lists the key facts the check references.
	Facts() []string
}

type check struct {
	facts []string
	fn    func(sub *Submission, key *answerkey.Key) bool
}

func (c check) Passes(sub *Submission, key *answerkey.Key) bool {
	return c.fn(sub, key)
}

func (c check) Facts() []string {
	return slices.Clone(c.facts)
}

// CompileCheck validates a spec and builds its predicate.
func CompileCheck(spec CheckSpec) (Check, error) {
	needField := func() error {
		if spec.Field == "" {
			return fmt.Errorf("%w: %s check needs a field", ErrConfig, spec.Kind)
		}
		return nil
	}
	needFact := func() error {
		if spec.Fact == "" {
			return fmt.Errorf("%w: %s check needs a fact", ErrConfig, spec.Kind)
		}
		return nil
	}

	switch spec.Kind {
	case CheckListContains, CheckListContainsAll, CheckListContainsAny:
		if err := needField(); err != nil {
			return nil, err
		}
		if err := needFact(); err != nil {
			return nil, err
		}
		return listCheck(spec), nil

	case CheckTextContains:
		if err := needField(); err != nil {
			return nil, err
		}
		facts := spec.Facts
		if spec.Fact != "" {
			facts = append([]string{spec.Fact}, facts...)
		}
		if len(facts) == 0 {
			return nil, fmt.Errorf("%w: text_contains check needs facts", ErrConfig)
		}
		match := spec.Match
		if match == "" {
			match = MatchAll
		}
		if match != MatchAll && match != MatchAny {
			return nil, fmt.Errorf("%w: unknown match mode %q", ErrConfig, spec.Match)
		}
		return textCheck(spec.Field, facts, match), nil

	case CheckMinLength:
		if err := needField(); err != nil {
			return nil, err
		}
		if spec.Min < 0 {
			return nil, fmt.Errorf("%w: negative min length", ErrConfig)
		}
		field, minLen, trim := spec.Field, spec.Min, spec.Trim
		return check{fn: func(sub *Submission, _ *answerkey.Key) bool {
			text := sub.String(field)
			if trim {
				text = strings.TrimSpace(text)
			}
			return utf8.RuneCountInString(text) > minLen
		}}, nil

	case CheckMinItems:
		if err := needField(); err != nil {
			return nil, err
		}
		field, minItems := spec.Field, spec.Min
		return check{fn: func(sub *Submission, _ *answerkey.Key) bool {
			return len(sub.Strings(field)) >= minItems
		}}, nil

	case CheckNumberBelow:
		if err := needField(); err != nil {
			return nil, err
		}
		field, threshold := spec.Field, spec.Threshold
		return check{fn: func(sub *Submission, _ *answerkey.Key) bool {
			return sub.Number(field) < threshold
		}}, nil

	case CheckEquals:
		if err := needField(); err != nil {
			return nil, err
		}
		field, value := spec.Field, spec.Value
		return check{fn: func(sub *Submission, _ *answerkey.Key) bool {
			return sub.Has(field) && sub.String(field) == value
		}}, nil

	case CheckNonEmpty:
		if err := needField(); err != nil {
			return nil, err
		}
		field := spec.Field
		return check{fn: func(sub *Submission, _ *answerkey.Key) bool {
			return sub.Truthy(field)
		}}, nil

	case CheckAllOf:
		if len(spec.Checks) == 0 {
			return nil, fmt.Errorf("%w: all_of check has no nested checks", ErrConfig)
		}
		nested := make([]Check, 0, len(spec.Checks))
		var facts []string
		for i, s := range spec.Checks {
			c, err := CompileCheck(s)
			if err != nil {
				return nil, fmt.Errorf("all_of[%d]: %w", i, err)
			}
			nested = append(nested, c)
			facts = appendUnique(facts, c.Facts()...)
		}
		return check{facts: facts, fn: func(sub *Submission, key *answerkey.Key) bool {
			for _, c := range nested {
				if !c.Passes(sub, key) {
					return false
				}
			}
			return true
		}}, nil

	case "":
		return nil, fmt.Errorf("%w: check kind is empty", ErrConfig)
	default:
		return nil, fmt.Errorf("%w: unknown check kind %q", ErrConfig, spec.Kind)
	}
}

func listCheck(spec CheckSpec) Check {
	field, fact, kind := spec.Field, spec.Fact, spec.Kind
	return check{facts: []string{fact}, fn: func(sub *Submission, key *answerkey.Key) bool {
		v, ok := key.Get(fact)
		if !ok {
			return false
		}
		list := sub.Strings(field)
		want := v.Values()

		if kind == CheckListContainsAny {
			for _, w := range want {
				if slices.Contains(list, w) {
					return true
				}
			}
			return false
		}
		// list_contains on a multi-valued fact behaves like list_contains_all.
		for _, w := range want {
			if !slices.Contains(list, w) {
				return false
			}
		}
		return true
	}}
}

func textCheck(field string, facts []string, match string) Check {
	return check{facts: slices.Clone(facts), fn: func(sub *Submission, key *answerkey.Key) bool {
		text := sub.String(field)
		var needles []string
		for _, f := range facts {
			v, ok := key.Get(f)
			if !ok {
				return false
			}
			needles = append(needles, v.Values()...)
		}

		for _, n := range needles {
			found := strings.Contains(text, n)
			if match == MatchAny && found {
				return true
			}
			if match == MatchAll && !found {
				return false
			}
		}
		return match == MatchAll
	}}
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
