// Package synth renders an attack narrative into per-source log tables,
// burying the injected attacker events in benign background noise.
package synth

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/telhawk-systems/rangehawk/internal/scenario"
)

const (
	DefaultNoise    = 50
	DefaultInterval = time.Minute
)

// ErrUnsupportedStep is returned when a step is tagged for a source that has
// no rendering for its kind. It is a configuration error.
var ErrUnsupportedStep = fmt.Errorf("%w: step kind not renderable by source", scenario.ErrConfig)

// Fields holds the source-specific columns of one event.
type Fields map[string]any

// Synthesizer renders events for one log source.
type Synthesizer interface {
	// Source returns the log source this synthesizer renders.
	Source() scenario.Source

	// Columns returns the source-specific columns in output order, excluding
	// event_id and timestamp.
	Columns() []string

	// Benign draws one background event. It may only use the normal pools
	// and the actor set.
	Benign(f *gofakeit.Faker, p scenario.Parameters) (Fields, error)

	// Inject renders one narrative step. It may only use the step payload.
	Inject(f *gofakeit.Faker, step scenario.Step) (Fields, error)
}

var registry = make(map[scenario.Source]Synthesizer)

// Register adds a synthesizer to the registry.
func Register(s Synthesizer) {
	registry[s.Source()] = s
}

// Get returns the synthesizer for a source.
func Get(src scenario.Source) (Synthesizer, bool) {
	s, ok := registry[src]
	return s, ok
}

// Options controls the background population of one table.
type Options struct {
	// Noise is the number of benign events.
	Noise int `yaml:"noise"`

	// Interval is the average spacing between benign events, starting at the
	// scenario base time.
	Interval time.Duration `yaml:"interval"`
}

func (o Options) withDefaults() Options {
	if o.Noise <= 0 {
		o.Noise = DefaultNoise
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	return o
}

// Generate renders one source's table. It is a pure function of the
// narrative (which carries the parameters and seed) and the options.
func Generate(n *scenario.Narrative, src scenario.Source, opts Options) (*Table, error) {
	s, ok := Get(src)
	if !ok {
		return nil, fmt.Errorf("%w: no synthesizer for source %q", scenario.ErrConfig, src)
	}
	opts = opts.withDefaults()
	params := n.Parameters()

	noise := scenario.NewFaker(params.Seed, "noise/"+string(src))
	inject := scenario.NewFaker(params.Seed, "inject/"+string(src))

	steps := n.StepsFor(src)
	records := make([]Record, 0, opts.Noise+len(steps))

	window := time.Duration(opts.Noise) * opts.Interval
	for i := 0; i < opts.Noise; i++ {
		fields, err := s.Benign(noise, params)
		if err != nil {
			return nil, fmt.Errorf("%s noise: %w", src, err)
		}
		offset := jitteredOffset(noise, window, i, opts.Noise)
		records = append(records, Record{
			Time:   params.BaseTime.Add(offset).Truncate(time.Second),
			Fields: fields,
			Step:   -1,
		})
	}

	for _, step := range steps {
		fields, err := s.Inject(inject, step)
		if err != nil {
			return nil, fmt.Errorf("%s step %d (%s): %w", src, step.Seq, step.Kind, err)
		}
		records = append(records, Record{
			Time:     n.Time(step).Truncate(time.Second),
			Fields:   fields,
			Injected: true,
			Step:     step.Seq,
		})
	}

	// Stable: benign events precede injected ones on equal timestamps, and
	// injected events keep narrative order.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time.Before(records[j].Time)
	})

	ns := params.InstanceID()
	for i := range records {
		records[i].ID = uuid.NewSHA1(ns, []byte(fmt.Sprintf("%s/%d", src, i))).String()
	}

	return &Table{
		Source:  src,
		Columns: append([]string{ColumnEventID, ColumnTimestamp}, s.Columns()...),
		Records: records,
	}, nil
}

// jitteredOffset spreads events evenly across the window with +/-40% jitter
// of the base interval, clamped to the window.
func jitteredOffset(f *gofakeit.Faker, window time.Duration, index, total int) time.Duration {
	if window == 0 || total == 0 {
		return 0
	}

	baseInterval := float64(window) / float64(total)
	baseOffset := time.Duration(float64(index) * baseInterval)

	jitterRange := baseInterval * 0.4
	jitter := time.Duration(f.Float64Range(-jitterRange, jitterRange))

	offset := baseOffset + jitter
	if offset < 0 {
		offset = 0
	}
	if offset > window {
		offset = window
	}
	return offset
}

func requirePool(name string, values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: normal pool has no %s", scenario.ErrConfig, name)
	}
	return nil
}

func unsupported(src scenario.Source, kind scenario.StepKind) error {
	return fmt.Errorf("%w: %s cannot render %s", ErrUnsupportedStep, src, kind)
}

// Supports reports whether the source can render the step kind.
func Supports(src scenario.Source, kind scenario.StepKind) bool {
	return slices.Contains(renderable[src], kind)
}

var renderable = map[scenario.Source][]scenario.StepKind{
	scenario.SourceAuth:    {scenario.SuspiciousLogin},
	scenario.SourceProcess: {scenario.CredentialAccess},
	scenario.SourceNetwork: {scenario.Exfiltration},
	scenario.SourceIAM:     {scenario.SuspiciousLogin, scenario.PrivilegeEscalation},
	scenario.SourceAPI:     {scenario.Discovery, scenario.Collection, scenario.Exfiltration},
	scenario.SourceStorage: {scenario.Collection, scenario.Exfiltration},
}
