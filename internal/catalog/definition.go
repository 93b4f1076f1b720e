// Package catalog loads scenario definitions and turns them into concrete
// instances: a narrative, its log tables and the matching answer key.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/telhawk-systems/rangehawk/internal/answerkey"
	"github.com/telhawk-systems/rangehawk/internal/rubric"
	"github.com/telhawk-systems/rangehawk/internal/scenario"
	"github.com/telhawk-systems/rangehawk/internal/synth"
	"gopkg.in/yaml.v3"
)

// ErrUnknownScenario is returned for names not in the catalog.
var ErrUnknownScenario = errors.New("unknown scenario")

// ParametersSpec is the YAML form of scenario.Parameters.
type ParametersSpec struct {
	Actors     []string      `yaml:"actors"`
	Normal     scenario.Pool `yaml:"normal"`
	Suspicious scenario.Pool `yaml:"suspicious"`
	Sensitive  scenario.Pool `yaml:"sensitive"`
	BaseTime   time.Time     `yaml:"base_time"`
	Seed       int64         `yaml:"seed"`
}

// Definition is one scenario variant.
type Definition struct {
	Name        string                                   `yaml:"name"`
	Title       string                                   `yaml:"title"`
	Difficulty  string                                   `yaml:"difficulty"`
	Description string                                   `yaml:"description"`
	Parameters  ParametersSpec                           `yaml:"parameters"`
	Narrative   []scenario.StepTemplate                  `yaml:"narrative"`
	Sources     map[scenario.Source]synth.Options        `yaml:"sources"`
	AnswerKey   answerkey.FactMap                        `yaml:"answer_key"`
	Rubrics     map[rubric.Domain][]rubric.CriterionSpec `yaml:"rubrics"`

	rubrics map[rubric.Domain]*rubric.Rubric
}

// Parse decodes and validates a definition. Unknown YAML fields are
// rejected so that typos in criterion or step names surface early.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Definition
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %v", scenario.ErrConfig, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks the definition end to end: rubrics compile, every rubric
// fact is projected by the answer key, every step is renderable by its
// sources, and a dry run with the default seed succeeds.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: scenario has no name", scenario.ErrConfig)
	}
	if err := d.AnswerKey.Validate(); err != nil {
		return fmt.Errorf("%s: %w", d.Name, err)
	}

	compiled := make(map[rubric.Domain]*rubric.Rubric, len(d.Rubrics))
	for _, domain := range rubric.Domains() {
		specs, ok := d.Rubrics[domain]
		if !ok {
			continue
		}
		r, err := rubric.Compile(domain, specs)
		if err != nil {
			return fmt.Errorf("%s: %w", d.Name, err)
		}
		for _, fact := range r.Facts() {
			if _, ok := d.AnswerKey[fact]; !ok {
				return fmt.Errorf("%s: %w: %s rubric references fact %q", d.Name, answerkey.ErrMissingFact, domain, fact)
			}
		}
		compiled[domain] = r
	}
	for domain := range d.Rubrics {
		if !domain.Valid() {
			return fmt.Errorf("%s: %w: unknown rubric domain %q", d.Name, rubric.ErrConfig, domain)
		}
	}
	if len(compiled) == 0 {
		return fmt.Errorf("%s: %w: no rubrics", d.Name, rubric.ErrConfig)
	}

	for src := range d.Sources {
		if !src.Valid() {
			return fmt.Errorf("%s: %w: unknown log source %q", d.Name, scenario.ErrConfig, src)
		}
	}
	for i, step := range d.Narrative {
		for _, src := range step.Sources {
			if _, ok := d.Sources[src]; !ok {
				return fmt.Errorf("%s: %w: step %d emits to %s which has no source settings", d.Name, scenario.ErrConfig, i, src)
			}
			if !synth.Supports(src, step.Kind) {
				return fmt.Errorf("%s: step %d: %w: %s cannot render %s", d.Name, i, synth.ErrUnsupportedStep, src, step.Kind)
			}
		}
	}

	d.rubrics = compiled
	if _, err := d.Instantiate(Overrides{}); err != nil {
		return fmt.Errorf("%s: dry run: %w", d.Name, err)
	}
	return nil
}

// Rubric returns the compiled rubric of a domain.
func (d *Definition) Rubric(domain rubric.Domain) (*rubric.Rubric, error) {
	r, ok := d.rubrics[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s rubric", rubric.ErrConfig, d.Name, domain)
	}
	return r, nil
}

// Domains lists the domains the definition can grade.
func (d *Definition) Domains() []rubric.Domain {
	var out []rubric.Domain
	for _, domain := range rubric.Domains() {
		if _, ok := d.rubrics[domain]; ok {
			out = append(out, domain)
		}
	}
	return out
}

// SourceNames returns the configured log sources in canonical order.
func (d *Definition) SourceNames() []scenario.Source {
	var out []scenario.Source
	for _, src := range scenario.Sources() {
		if _, ok := d.Sources[src]; ok {
			out = append(out, src)
		}
	}
	return out
}

// Overrides replaces definition defaults for one instance.
type Overrides struct {
	Seed     *int64
	BaseTime *time.Time
}

// Params resolves the instance parameters.
func (d *Definition) Params(o Overrides) scenario.Parameters {
	p := scenario.Parameters{
		Name:       d.Name,
		Actors:     slices.Clone(d.Parameters.Actors),
		Normal:     d.Parameters.Normal,
		Suspicious: d.Parameters.Suspicious,
		Sensitive:  d.Parameters.Sensitive,
		BaseTime:   d.Parameters.BaseTime.UTC(),
		Seed:       d.Parameters.Seed,
	}
	if o.Seed != nil {
		p.Seed = *o.Seed
	}
	if o.BaseTime != nil {
		p.BaseTime = o.BaseTime.UTC().Truncate(time.Second)
	}
	return p
}

// Instance is one generated dataset with its ground truth.
type Instance struct {
	ID         uuid.UUID
	Definition *Definition
	Narrative  *scenario.Narrative
	Tables     []*synth.Table
	Key        *answerkey.Key
}

// Instantiate builds the narrative, renders every configured source and
// projects the answer key. It is deterministic in the resolved parameters.
func (d *Definition) Instantiate(o Overrides) (*Instance, error) {
	params := d.Params(o)
	n, err := scenario.Build(params, d.Narrative)
	if err != nil {
		return nil, err
	}

	var tables []*synth.Table
	for _, src := range d.SourceNames() {
		t, err := synth.Generate(n, src, d.Sources[src])
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}

	key, err := answerkey.Build(n, d.AnswerKey)
	if err != nil {
		return nil, err
	}

	return &Instance{
		ID:         params.InstanceID(),
		Definition: d,
		Narrative:  n,
		Tables:     tables,
		Key:        key,
	}, nil
}

// Table returns the instance's table for a source.
func (i *Instance) Table(src scenario.Source) (*synth.Table, bool) {
	for _, t := range i.Tables {
		if t.Source == src {
			return t, true
		}
	}
	return nil, false
}
