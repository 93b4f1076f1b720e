package synth

import (
	"github.com/brianvoe/gofakeit/v6"
	"github.com/telhawk-systems/rangehawk/internal/scenario"
)

// Process renders process creation on endpoints.
type Process struct{}

// Network renders outbound connection summaries.
type Network struct{}

func init() {
	Register(&Process{})
	Register(&Network{})
}

func (p *Process) Source() scenario.Source {
	return scenario.SourceProcess
}

func (p *Process) Columns() []string {
	return []string{"host", "username", "process", "pid"}
}

func (p *Process) Benign(f *gofakeit.Faker, params scenario.Parameters) (Fields, error) {
	if err := requirePool("hosts", params.Normal.Hosts); err != nil {
		return nil, err
	}
	if err := requirePool("processes", params.Normal.Processes); err != nil {
		return nil, err
	}
	return Fields{
		"host":     f.RandomString(params.Normal.Hosts),
		"username": f.RandomString(params.Actors),
		"process":  f.RandomString(params.Normal.Processes),
		"pid":      f.Number(1000, 65535),
	}, nil
}

func (p *Process) Inject(f *gofakeit.Faker, step scenario.Step) (Fields, error) {
	if step.Kind != scenario.CredentialAccess {
		return nil, unsupported(p.Source(), step.Kind)
	}
	return Fields{
		"host":     step.Payload.Host,
		"username": step.Payload.Actor,
		"process":  step.Payload.Process,
		"pid":      f.Number(1000, 65535),
	}, nil
}

var commonPorts = []int{22, 53, 80, 443, 445, 3389}

func (n *Network) Source() scenario.Source {
	return scenario.SourceNetwork
}

func (n *Network) Columns() []string {
	return []string{"src_ip", "dst_ip", "dst_port", "protocol", "bytes_sent"}
}

func (n *Network) Benign(f *gofakeit.Faker, p scenario.Parameters) (Fields, error) {
	src, err := p.Normal.SampleAddress(f)
	if err != nil {
		return nil, err
	}
	dst, err := p.Normal.SampleAddress(f)
	if err != nil {
		return nil, err
	}

	port := commonPorts[f.Number(0, len(commonPorts)-1)]
	protocol := "TCP"
	if port == 53 {
		protocol = "UDP"
	}

	return Fields{
		"src_ip":     src,
		"dst_ip":     dst,
		"dst_port":   port,
		"protocol":   protocol,
		"bytes_sent": f.Number(200, 2000),
	}, nil
}

func (n *Network) Inject(_ *gofakeit.Faker, step scenario.Step) (Fields, error) {
	if step.Kind != scenario.Exfiltration {
		return nil, unsupported(n.Source(), step.Kind)
	}
	return Fields{
		"src_ip":     step.Payload.SourceAddress,
		"dst_ip":     step.Payload.Destination,
		"dst_port":   443,
		"protocol":   "TCP",
		"bytes_sent": step.Payload.Bytes,
	}, nil
}
