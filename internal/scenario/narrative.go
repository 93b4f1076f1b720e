package scenario

import (
	"fmt"
	"slices"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// StepKind enumerates the attacker actions a narrative can contain.
type StepKind string

const (
	SuspiciousLogin     StepKind = "suspicious_login"
	PrivilegeEscalation StepKind = "privilege_escalation"
	CredentialAccess    StepKind = "credential_access"
	Discovery           StepKind = "discovery"
	Collection          StepKind = "collection"
	Exfiltration        StepKind = "exfiltration"
)

var stepKinds = []StepKind{
	SuspiciousLogin, PrivilegeEscalation, CredentialAccess,
	Discovery, Collection, Exfiltration,
}

// Valid reports whether k is a known step kind.
func (k StepKind) Valid() bool {
	return slices.Contains(stepKinds, k)
}

// Source names a log source a step can be rendered into.
type Source string

const (
	SourceAuth    Source = "auth"
	SourceProcess Source = "process"
	SourceNetwork Source = "network"
	SourceIAM     Source = "iam"
	SourceAPI     Source = "api"
	SourceStorage Source = "storage"
)

// Sources lists every known log source in a stable order.
func Sources() []Source {
	return []Source{SourceAuth, SourceProcess, SourceNetwork, SourceIAM, SourceAPI, SourceStorage}
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return slices.Contains(Sources(), s)
}

// Target selects which shared resource a step acts on.
type Target string

const (
	TargetNone      Target = ""
	TargetAll       Target = "all"
	TargetSensitive Target = "sensitive"
	TargetAttacker  Target = "attacker"
)

// WildcardResource is what enumeration calls ("list everything") target.
const WildcardResource = "*"

// ObjectSpacing separates the per-object steps a PerObject template expands into.
const ObjectSpacing = 30 * time.Second

// StepTemplate is the variant-level description of one attack step. Concrete
// values are bound when a narrative is built.
type StepTemplate struct {
	Kind       StepKind      `yaml:"kind"`
	Offset     time.Duration `yaml:"offset"`
	Action     string        `yaml:"action"`
	Sources    []Source      `yaml:"sources"`
	Techniques []string      `yaml:"techniques"`
	Target     Target        `yaml:"target"`
	Object     string        `yaml:"object"`
	PerObject  bool          `yaml:"per_object"`
}

// Entities are the values sampled exactly once per scenario instance. Every
// step that mentions the attacker, the victim or a resource reads it from here.
type Entities struct {
	CompromisedUser   string
	AttackerAddress   string
	AttackerRegion    string
	TargetHost        string
	MaliciousProcess  string
	SensitiveResource string
	SensitiveObjects  []string
	AttackerResource  string
	ExfilAddress      string
	ExfilBytes        int64
}

// Payload holds the concrete values one step renders with.
type Payload struct {
	Actor         string
	SourceAddress string
	Region        string
	Host          string
	Process       string
	Resource      string
	Object        string
	Destination   string
	Bytes         int64
}

// Step is one attacker action bound to concrete values.
type Step struct {
	Seq        int
	Kind       StepKind
	Offset     time.Duration
	Action     string
	Sources    []Source
	Techniques []string
	Payload    Payload
}

// EmitsTo reports whether the step is rendered into src.
func (s Step) EmitsTo(src Source) bool {
	return slices.Contains(s.Sources, src)
}

// Narrative is an immutable, strictly time-ordered attack story.
type Narrative struct {
	params   Parameters
	entities Entities
	steps    []Step
}

// Build samples the scenario entities from params and lays the templates out
// on one timeline. The same seed always yields the same narrative.
func Build(params Parameters, templates []StepTemplate) (*Narrative, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("%w: narrative has no steps", ErrConfig)
	}

	f := NewFaker(params.Seed, "narrative")
	entities, err := sampleEntities(params, f)
	if err != nil {
		return nil, err
	}

	steps := make([]Step, 0, len(templates))
	for i, tmpl := range templates {
		if err := validateTemplate(tmpl, entities); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, tmpl.Kind, err)
		}

		base := Payload{
			Actor:         entities.CompromisedUser,
			SourceAddress: entities.AttackerAddress,
			Region:        entities.AttackerRegion,
			Host:          entities.TargetHost,
			Object:        tmpl.Object,
		}
		switch tmpl.Target {
		case TargetAll:
			base.Resource = WildcardResource
		case TargetSensitive:
			base.Resource = entities.SensitiveResource
		case TargetAttacker:
			base.Resource = entities.AttackerResource
		}
		if tmpl.Kind == CredentialAccess {
			base.Process = entities.MaliciousProcess
		}
		if tmpl.Kind == Exfiltration {
			base.Destination = entities.ExfilAddress
			base.Bytes = entities.ExfilBytes
		}

		if !tmpl.PerObject {
			steps = append(steps, newStep(tmpl, tmpl.Offset, base))
			continue
		}
		for j, obj := range entities.SensitiveObjects {
			p := base
			p.Object = obj
			if tmpl.Kind == Collection {
				p.Bytes = int64(f.Number(50_000, 200_000))
			}
			steps = append(steps, newStep(tmpl, tmpl.Offset+time.Duration(j)*ObjectSpacing, p))
		}
	}

	for i := range steps {
		steps[i].Seq = i
		if i > 0 && steps[i].Offset <= steps[i-1].Offset {
			return nil, fmt.Errorf("%w: step %d (%s) at %s does not follow step %d at %s",
				ErrConfig, i, steps[i].Kind, steps[i].Offset, i-1, steps[i-1].Offset)
		}
	}

	return &Narrative{params: params, entities: entities, steps: steps}, nil
}

func newStep(tmpl StepTemplate, offset time.Duration, p Payload) Step {
	return Step{
		Kind:       tmpl.Kind,
		Offset:     offset,
		Action:     tmpl.Action,
		Sources:    slices.Clone(tmpl.Sources),
		Techniques: slices.Clone(tmpl.Techniques),
		Payload:    p,
	}
}

func validateTemplate(tmpl StepTemplate, e Entities) error {
	if !tmpl.Kind.Valid() {
		return fmt.Errorf("%w: unknown step kind %q", ErrConfig, tmpl.Kind)
	}
	if tmpl.Offset < 0 {
		return fmt.Errorf("%w: negative offset %s", ErrConfig, tmpl.Offset)
	}
	if len(tmpl.Sources) == 0 {
		return fmt.Errorf("%w: no log sources", ErrConfig)
	}
	for _, src := range tmpl.Sources {
		if !src.Valid() {
			return fmt.Errorf("%w: unknown log source %q", ErrConfig, src)
		}
	}

	switch tmpl.Target {
	case TargetNone, TargetAll:
	case TargetSensitive:
		if e.SensitiveResource == "" {
			return fmt.Errorf("%w: sensitive target but no sensitive resources", ErrConfig)
		}
	case TargetAttacker:
		if e.AttackerResource == "" {
			return fmt.Errorf("%w: attacker target but no suspicious resources", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown target %q", ErrConfig, tmpl.Target)
	}

	if tmpl.PerObject && len(e.SensitiveObjects) == 0 {
		return fmt.Errorf("%w: per-object step but no sensitive objects", ErrConfig)
	}
	if tmpl.Kind == CredentialAccess && e.MaliciousProcess == "" {
		return fmt.Errorf("%w: credential access needs a suspicious process", ErrConfig)
	}
	if tmpl.Kind == Exfiltration && e.ExfilAddress == "" {
		return fmt.Errorf("%w: exfiltration needs a suspicious network", ErrConfig)
	}
	return nil
}

func sampleEntities(p Parameters, f *gofakeit.Faker) (Entities, error) {
	var e Entities
	var err error

	e.CompromisedUser = f.RandomString(p.Actors)
	if e.AttackerAddress, err = p.Suspicious.SampleAddress(f); err != nil {
		return Entities{}, fmt.Errorf("attacker address: %w", err)
	}

	// Prefer a distinct exfiltration endpoint; a single-address pool reuses it.
	e.ExfilAddress = e.AttackerAddress
	for range 8 {
		addr, err := p.Suspicious.SampleAddress(f)
		if err != nil {
			return Entities{}, fmt.Errorf("exfil address: %w", err)
		}
		if addr != e.AttackerAddress {
			e.ExfilAddress = addr
			break
		}
	}

	e.AttackerRegion = pick(f, p.Suspicious.Regions)
	// A dedicated victim server wins over an ordinary workstation.
	e.TargetHost = pick(f, p.Sensitive.Hosts)
	if e.TargetHost == "" {
		e.TargetHost = pick(f, p.Normal.Hosts)
	}
	e.MaliciousProcess = pick(f, p.Suspicious.Processes)
	e.SensitiveResource = pick(f, p.Sensitive.Resources)
	e.SensitiveObjects = slices.Clone(p.Sensitive.Objects)
	e.AttackerResource = pick(f, p.Suspicious.Resources)
	e.ExfilBytes = int64(f.Number(50_000_000, 200_000_000))

	return e, nil
}

func pick(f *gofakeit.Faker, values []string) string {
	if len(values) == 0 {
		return ""
	}
	return f.RandomString(values)
}

// Parameters returns the parameters the narrative was built from.
func (n *Narrative) Parameters() Parameters {
	return n.params
}

// Entities returns the sampled scenario entities.
func (n *Narrative) Entities() Entities {
	e := n.entities
	e.SensitiveObjects = slices.Clone(e.SensitiveObjects)
	return e
}

// Steps returns a copy of all steps in time order.
func (n *Narrative) Steps() []Step {
	return slices.Clone(n.steps)
}

// StepsFor returns the steps rendered into src, in time order.
func (n *Narrative) StepsFor(src Source) []Step {
	var out []Step
	for _, s := range n.steps {
		if s.EmitsTo(src) {
			out = append(out, s)
		}
	}
	return out
}

// Find returns the first step of the given kind.
func (n *Narrative) Find(kind StepKind) (Step, bool) {
	for _, s := range n.steps {
		if s.Kind == kind {
			return s, true
		}
	}
	return Step{}, false
}

// FindAll returns every step of the given kind.
func (n *Narrative) FindAll(kind StepKind) []Step {
	var out []Step
	for _, s := range n.steps {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// Time returns the absolute time of a step.
func (n *Narrative) Time(s Step) time.Time {
	return n.params.BaseTime.Add(s.Offset)
}

// End is the absolute time of the last step.
func (n *Narrative) End() time.Time {
	return n.Time(n.steps[len(n.steps)-1])
}

// Techniques returns the de-duplicated technique IDs in narrative order.
func (n *Narrative) Techniques() []string {
	var out []string
	for _, s := range n.steps {
		for _, t := range s.Techniques {
			if !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
	}
	return out
}

// Sources returns the distinct sources the narrative renders into, in the
// order of Sources().
func (n *Narrative) Sources() []Source {
	var out []Source
	for _, src := range Sources() {
		for _, s := range n.steps {
			if s.EmitsTo(src) {
				out = append(out, src)
				break
			}
		}
	}
	return out
}
