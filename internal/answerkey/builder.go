package answerkey

import (
	"fmt"
	"slices"
	"sort"

	"github.com/telhawk-systems/rangehawk/internal/scenario"
)

// Entity names a narrative value a key fact can project.
type Entity string

const (
	EntityCompromisedUser   Entity = "compromised_user"
	EntityAttackerAddress   Entity = "attacker_address"
	EntityAttackerRegion    Entity = "attacker_region"
	EntityTargetHost        Entity = "target_host"
	EntityMaliciousProcess  Entity = "malicious_process"
	EntitySensitiveResource Entity = "sensitive_resource"
	EntitySensitiveObjects  Entity = "sensitive_objects"
	EntityAttackerResource  Entity = "attacker_resource"
	EntityExfilAddress      Entity = "exfil_address"
	EntityTechniques        Entity = "techniques"
)

// FactMap maps key fact names to the entities they project.
type FactMap map[string]Entity

type projection struct {
	// kind is the step the entity is read from; empty for narrative-wide
	// entities.
	kind scenario.StepKind
	read func(n *scenario.Narrative, steps []scenario.Step) Value
}

var projections = map[Entity]projection{
	EntityCompromisedUser: {scenario.SuspiciousLogin, func(_ *scenario.Narrative, s []scenario.Step) Value {
		return String(s[0].Payload.Actor)
	}},
	EntityAttackerAddress: {scenario.SuspiciousLogin, func(_ *scenario.Narrative, s []scenario.Step) Value {
		return String(s[0].Payload.SourceAddress)
	}},
	EntityAttackerRegion: {scenario.SuspiciousLogin, func(_ *scenario.Narrative, s []scenario.Step) Value {
		return String(s[0].Payload.Region)
	}},
	EntityTargetHost: {scenario.SuspiciousLogin, func(_ *scenario.Narrative, s []scenario.Step) Value {
		return String(s[0].Payload.Host)
	}},
	EntityMaliciousProcess: {scenario.CredentialAccess, func(_ *scenario.Narrative, s []scenario.Step) Value {
		return String(s[0].Payload.Process)
	}},
	EntitySensitiveResource: {scenario.Collection, func(_ *scenario.Narrative, s []scenario.Step) Value {
		return String(s[0].Payload.Resource)
	}},
	EntitySensitiveObjects: {scenario.Collection, func(_ *scenario.Narrative, s []scenario.Step) Value {
		var objects []string
		for _, step := range s {
			if step.Payload.Object != "" && !slices.Contains(objects, step.Payload.Object) {
				objects = append(objects, step.Payload.Object)
			}
		}
		return List(objects...)
	}},
	EntityAttackerResource: {scenario.Exfiltration, func(_ *scenario.Narrative, s []scenario.Step) Value {
		return String(s[0].Payload.Resource)
	}},
	EntityExfilAddress: {scenario.Exfiltration, func(_ *scenario.Narrative, s []scenario.Step) Value {
		return String(s[0].Payload.Destination)
	}},
	EntityTechniques: {"", func(n *scenario.Narrative, _ []scenario.Step) Value {
		return List(n.Techniques()...)
	}},
}

// Valid reports whether e is a known entity.
func (e Entity) Valid() bool {
	_, ok := projections[e]
	return ok
}

// Validate checks that every entity in the map is known.
func (m FactMap) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("%w: empty fact map", scenario.ErrConfig)
	}
	for _, name := range m.names() {
		if !m[name].Valid() {
			return fmt.Errorf("%w: fact %q projects unknown entity %q", scenario.ErrConfig, name, m[name])
		}
	}
	return nil
}

func (m FactMap) names() []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build projects the narrative's ground truth through the fact map. Every
// entity needs a step of the kind it is read from, and must resolve to a
// non-empty value; otherwise the scenario is misconfigured.
func Build(n *scenario.Narrative, facts FactMap) (*Key, error) {
	if err := facts.Validate(); err != nil {
		return nil, err
	}

	out := make(map[string]Value, len(facts))
	for _, name := range facts.names() {
		entity := facts[name]
		p := projections[entity]

		var steps []scenario.Step
		if p.kind != "" {
			steps = n.FindAll(p.kind)
			if len(steps) == 0 {
				return nil, fmt.Errorf("%w: fact %q needs a %s step", scenario.ErrConfig, name, p.kind)
			}
		}

		v := p.read(n, steps)
		if v.Empty() {
			return nil, fmt.Errorf("%w: fact %q resolved to an empty %s", scenario.ErrConfig, name, entity)
		}
		out[name] = v
	}
	return &Key{facts: out}, nil
}
