// Package rubric scores trainee submissions against an answer key using
// weighted, declaratively defined criteria.
package rubric

import (
	"errors"
	"fmt"
	"slices"

	"github.com/telhawk-systems/rangehawk/internal/answerkey"
)

// ErrConfig marks a broken rubric definition.
var ErrConfig = errors.New("rubric configuration error")

// MaxScore is the score of a fully satisfied rubric.
const MaxScore = 100

// Domain names the analysis a rubric grades.
type Domain string

const (
	DomainSOC      Domain = "soc"
	DomainML       Domain = "ml"
	DomainCombined Domain = "combined"
)

// Domains lists the known domains.
func Domains() []Domain {
	return []Domain{DomainSOC, DomainML, DomainCombined}
}

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	return slices.Contains(Domains(), d)
}

// Criterion is one weighted, independently satisfiable rubric item.
type Criterion struct {
	Name     string
	Weight   int
	Check    Check
	Feedback string
}

// CriterionSpec is the declarative form of a criterion.
type CriterionSpec struct {
	Name     string    `yaml:"name" json:"name"`
	Weight   int       `yaml:"weight" json:"weight"`
	Feedback string    `yaml:"feedback" json:"feedback"`
	Check    CheckSpec `yaml:"check" json:"check"`
}

// ScoreReport is the outcome of grading one submission.
type ScoreReport struct {
	Score    int      `json:"score"`
	Feedback []string `json:"feedback"`
}

// Passed reports whether every criterion was satisfied.
func (r ScoreReport) Passed() bool {
	return r.Score == MaxScore && len(r.Feedback) == 0
}

// Rubric is an immutable, validated criterion list.
type Rubric struct {
	domain   Domain
	criteria []Criterion
	facts    []string
}

// New validates a criterion list. Weights must be non-negative and sum to
// MaxScore; names must be unique.
func New(domain Domain, criteria []Criterion) (*Rubric, error) {
	if !domain.Valid() {
		return nil, fmt.Errorf("%w: unknown domain %q", ErrConfig, domain)
	}
	if len(criteria) == 0 {
		return nil, fmt.Errorf("%w: %s rubric has no criteria", ErrConfig, domain)
	}

	total := 0
	seen := make(map[string]struct{}, len(criteria))
	var facts []string
	for i, c := range criteria {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: %s criterion %d has no name", ErrConfig, domain, i)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("%w: %s criterion %q declared twice", ErrConfig, domain, c.Name)
		}
		seen[c.Name] = struct{}{}

		if c.Weight < 0 {
			return nil, fmt.Errorf("%w: %s criterion %q has negative weight", ErrConfig, domain, c.Name)
		}
		if c.Check == nil {
			return nil, fmt.Errorf("%w: %s criterion %q has no check", ErrConfig, domain, c.Name)
		}
		if c.Feedback == "" {
			return nil, fmt.Errorf("%w: %s criterion %q has no feedback", ErrConfig, domain, c.Name)
		}
		total += c.Weight
		facts = appendUnique(facts, c.Check.Facts()...)
	}
	if total != MaxScore {
		return nil, fmt.Errorf("%w: %s weights sum to %d, want %d", ErrConfig, domain, total, MaxScore)
	}

	return &Rubric{domain: domain, criteria: slices.Clone(criteria), facts: facts}, nil
}

// Compile builds a rubric from its declarative form.
func Compile(domain Domain, specs []CriterionSpec) (*Rubric, error) {
	criteria := make([]Criterion, 0, len(specs))
	for _, s := range specs {
		c, err := CompileCheck(s.Check)
		if err != nil {
			return nil, fmt.Errorf("%s criterion %q: %w", domain, s.Name, err)
		}
		criteria = append(criteria, Criterion{
			Name:     s.Name,
			Weight:   s.Weight,
			Check:    c,
			Feedback: s.Feedback,
		})
	}
	return New(domain, criteria)
}

// Domain returns the graded domain.
func (r *Rubric) Domain() Domain {
	return r.domain
}

// Criteria returns the criteria in declaration order.
func (r *Rubric) Criteria() []Criterion {
	return slices.Clone(r.criteria)
}

// Facts lists every key fact the rubric references.
func (r *Rubric) Facts() []string {
	return slices.Clone(r.facts)
}

// Evaluate scores a submission. The key is checked for every referenced
// fact before any criterion runs; a missing fact is a configuration error
// and yields no report. Missing submission fields only fail their criteria.
func (r *Rubric) Evaluate(sub *Submission, key *answerkey.Key) (ScoreReport, error) {
	if key == nil {
		return ScoreReport{}, fmt.Errorf("%w: no answer key", answerkey.ErrMissingFact)
	}
	if err := key.Require(r.facts...); err != nil {
		return ScoreReport{}, fmt.Errorf("%s rubric: %w", r.domain, err)
	}
	if sub == nil {
		sub = NewSubmission(nil)
	}

	report := ScoreReport{Feedback: []string{}}
	for _, c := range r.criteria {
		if c.Check.Passes(sub, key) {
			report.Score += c.Weight
		} else {
			report.Feedback = append(report.Feedback, c.Feedback)
		}
	}
	return report, nil
}

// EvaluateCombined scores a SOC and an ML submission together through the
// merged "soc."/"ml." view.
func (r *Rubric) EvaluateCombined(soc, ml *Submission, key *answerkey.Key) (ScoreReport, error) {
	return r.Evaluate(Combine(map[Domain]*Submission{DomainSOC: soc, DomainML: ml}), key)
}
