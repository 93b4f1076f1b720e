package synth

import (
	"github.com/brianvoe/gofakeit/v6"
	"github.com/telhawk-systems/rangehawk/internal/scenario"
)

// Auth renders interactive logins into remote hosts.
type Auth struct{}

func init() {
	Register(&Auth{})
}

func (a *Auth) Source() scenario.Source {
	return scenario.SourceAuth
}

func (a *Auth) Columns() []string {
	return []string{"username", "source_ip", "destination_host", "event_type", "result"}
}

func (a *Auth) Benign(f *gofakeit.Faker, p scenario.Parameters) (Fields, error) {
	if err := requirePool("hosts", p.Normal.Hosts); err != nil {
		return nil, err
	}
	addr, err := p.Normal.SampleAddress(f)
	if err != nil {
		return nil, err
	}

	// Users mistype passwords now and then.
	result := "success"
	if f.Number(1, 100) <= 5 {
		result = "failure"
	}

	return Fields{
		"username":         f.RandomString(p.Actors),
		"source_ip":        addr,
		"destination_host": f.RandomString(p.Normal.Hosts),
		"event_type":       "login",
		"result":           result,
	}, nil
}

func (a *Auth) Inject(_ *gofakeit.Faker, step scenario.Step) (Fields, error) {
	if step.Kind != scenario.SuspiciousLogin {
		return nil, unsupported(a.Source(), step.Kind)
	}
	return Fields{
		"username":         step.Payload.Actor,
		"source_ip":        step.Payload.SourceAddress,
		"destination_host": step.Payload.Host,
		"event_type":       "login",
		"result":           "success",
	}, nil
}
