package synth

import (
	"fmt"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/telhawk-systems/rangehawk/internal/scenario"
)

// IAM renders identity events: console logins and policy changes.
type IAM struct{}

// API renders control-plane and data-plane API calls.
type API struct{}

// Storage renders object reads and writes.
type Storage struct{}

func init() {
	Register(&IAM{})
	Register(&API{})
	Register(&Storage{})
}

func (i *IAM) Source() scenario.Source {
	return scenario.SourceIAM
}

func (i *IAM) Columns() []string {
	return []string{"user", "action", "source_ip", "region", "result"}
}

func (i *IAM) Benign(f *gofakeit.Faker, p scenario.Parameters) (Fields, error) {
	if err := requirePool("regions", p.Normal.Regions); err != nil {
		return nil, err
	}
	addr, err := p.Normal.SampleAddress(f)
	if err != nil {
		return nil, err
	}
	return Fields{
		"user":      f.RandomString(p.Actors),
		"action":    "ConsoleLogin",
		"source_ip": addr,
		"region":    f.RandomString(p.Normal.Regions),
		"result":    "Success",
	}, nil
}

func (i *IAM) Inject(_ *gofakeit.Faker, step scenario.Step) (Fields, error) {
	action := step.Action
	switch step.Kind {
	case scenario.SuspiciousLogin:
		if action == "" {
			action = "ConsoleLogin"
		}
	case scenario.PrivilegeEscalation:
		if action == "" {
			return nil, fmt.Errorf("%w: privilege escalation needs an action", scenario.ErrConfig)
		}
	default:
		return nil, unsupported(i.Source(), step.Kind)
	}
	return Fields{
		"user":      step.Payload.Actor,
		"action":    action,
		"source_ip": step.Payload.SourceAddress,
		"region":    step.Payload.Region,
		"result":    "Success",
	}, nil
}

func (a *API) Source() scenario.Source {
	return scenario.SourceAPI
}

func (a *API) Columns() []string {
	return []string{"user", "api_call", "resource", "latency_ms", "status"}
}

func (a *API) Benign(f *gofakeit.Faker, p scenario.Parameters) (Fields, error) {
	if err := requirePool("api_calls", p.Normal.APICalls); err != nil {
		return nil, err
	}
	if err := requirePool("resources", p.Normal.Resources); err != nil {
		return nil, err
	}
	return Fields{
		"user":       f.RandomString(p.Actors),
		"api_call":   f.RandomString(p.Normal.APICalls),
		"resource":   f.RandomString(p.Normal.Resources),
		"latency_ms": f.Number(20, 200),
		"status":     200,
	}, nil
}

func (a *API) Inject(f *gofakeit.Faker, step scenario.Step) (Fields, error) {
	switch step.Kind {
	case scenario.Discovery, scenario.Collection, scenario.Exfiltration:
	default:
		return nil, unsupported(a.Source(), step.Kind)
	}
	if step.Action == "" {
		return nil, fmt.Errorf("%w: %s step needs an api call", scenario.ErrConfig, step.Kind)
	}

	resource := step.Payload.Resource
	if step.Kind == scenario.Collection && step.Payload.Object != "" {
		resource = resource + "/" + step.Payload.Object
	}

	return Fields{
		"user":       step.Payload.Actor,
		"api_call":   step.Action,
		"resource":   resource,
		"latency_ms": f.Number(30, 300),
		"status":     200,
	}, nil
}

func (s *Storage) Source() scenario.Source {
	return scenario.SourceStorage
}

func (s *Storage) Columns() []string {
	return []string{"user", "bucket", "object", "bytes_read", "bytes_written", "source_ip"}
}

func (s *Storage) Benign(f *gofakeit.Faker, p scenario.Parameters) (Fields, error) {
	if err := requirePool("resources", p.Normal.Resources); err != nil {
		return nil, err
	}
	addr, err := p.Normal.SampleAddress(f)
	if err != nil {
		return nil, err
	}

	object := fmt.Sprintf("logs/app_%d.log", f.Number(1, 100))
	if len(p.Normal.Objects) > 0 {
		object = f.RandomString(p.Normal.Objects)
	}

	return Fields{
		"user":          f.RandomString(p.Actors),
		"bucket":        f.RandomString(p.Normal.Resources),
		"object":        object,
		"bytes_read":    f.Number(1000, 50000),
		"bytes_written": f.Number(0, 2000),
		"source_ip":     addr,
	}, nil
}

func (s *Storage) Inject(_ *gofakeit.Faker, step scenario.Step) (Fields, error) {
	fields := Fields{
		"user":      step.Payload.Actor,
		"bucket":    step.Payload.Resource,
		"object":    step.Payload.Object,
		"source_ip": step.Payload.SourceAddress,
	}
	switch step.Kind {
	case scenario.Collection:
		fields["bytes_read"] = step.Payload.Bytes
		fields["bytes_written"] = int64(0)
	case scenario.Exfiltration:
		fields["bytes_read"] = int64(0)
		fields["bytes_written"] = step.Payload.Bytes
	default:
		return nil, unsupported(s.Source(), step.Kind)
	}
	if step.Payload.Resource == "" {
		return nil, fmt.Errorf("%w: %s step has no bucket", scenario.ErrConfig, step.Kind)
	}
	return fields, nil
}
