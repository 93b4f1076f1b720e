// Package scenario models the attack story behind a training dataset: the
// value pools a scenario instance draws from, the entities sampled once per
// instance, and the time-ordered attack steps every log source renders.
package scenario

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"net/netip"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// ErrConfig marks a broken scenario definition. Generation must abort on it.
var ErrConfig = errors.New("scenario configuration error")

// TimestampLayout is the log timestamp format: ISO-8601, UTC, literal Z.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Pool is one flavour of values a scenario may draw from.
type Pool struct {
	Networks  []string `yaml:"networks" json:"networks,omitempty"`
	Hosts     []string `yaml:"hosts" json:"hosts,omitempty"`
	Regions   []string `yaml:"regions" json:"regions,omitempty"`
	Resources []string `yaml:"resources" json:"resources,omitempty"`
	Processes []string `yaml:"processes" json:"processes,omitempty"`
	APICalls  []string `yaml:"api_calls" json:"api_calls,omitempty"`
	Objects   []string `yaml:"objects" json:"objects,omitempty"`
}

// Parameters is the static configuration of one scenario instance.
//
// Normal values feed background noise only, Suspicious values are reserved
// for attacker-controlled entities and Sensitive values are the victim's
// crown jewels. The three never overlap, so the ground truth is unambiguous.
// Treat a Parameters value as read-only once validated.
type Parameters struct {
	Name       string
	Actors     []string
	Normal     Pool
	Suspicious Pool
	Sensitive  Pool
	BaseTime   time.Time
	Seed       int64
}

// Validate checks that the pools are usable and disjoint.
func (p Parameters) Validate() error {
	if len(p.Actors) == 0 {
		return fmt.Errorf("%w: no actors configured", ErrConfig)
	}
	if len(p.Normal.Networks) == 0 {
		return fmt.Errorf("%w: normal pool has no networks", ErrConfig)
	}

	normalNets, err := parseNetworks(p.Normal.Networks)
	if err != nil {
		return err
	}
	suspiciousNets, err := parseNetworks(p.Suspicious.Networks)
	if err != nil {
		return err
	}
	for _, n := range normalNets {
		for _, s := range suspiciousNets {
			if n.Overlaps(s) {
				return fmt.Errorf("%w: normal network %s overlaps suspicious network %s", ErrConfig, n, s)
			}
		}
	}

	checks := []struct {
		category string
		normal   []string
		reserved []string
	}{
		{"hosts", p.Normal.Hosts, p.Suspicious.Hosts},
		{"hosts", p.Normal.Hosts, p.Sensitive.Hosts},
		{"regions", p.Normal.Regions, p.Suspicious.Regions},
		{"resources", p.Normal.Resources, p.Suspicious.Resources},
		{"resources", p.Normal.Resources, p.Sensitive.Resources},
		{"processes", p.Normal.Processes, p.Suspicious.Processes},
		{"api_calls", p.Normal.APICalls, p.Suspicious.APICalls},
		{"objects", p.Normal.Objects, p.Sensitive.Objects},
	}
	for _, c := range checks {
		if v, ok := intersect(c.normal, c.reserved); ok {
			return fmt.Errorf("%w: %s value %q is in both the normal and a reserved pool", ErrConfig, c.category, v)
		}
	}

	return nil
}

// InstanceID identifies a scenario instance. It is derived from the name,
// seed and base time, so regenerating an instance yields the same ID.
func (p Parameters) InstanceID() uuid.UUID {
	name := fmt.Sprintf("%s/%d/%s", p.Name, p.Seed, FormatTime(p.BaseTime))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
}

// FormatTime renders t in the log timestamp layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// SampleAddress draws a host address from one of the pool's networks.
// Network and broadcast addresses are skipped for prefixes wider than /31.
func (p Pool) SampleAddress(f *gofakeit.Faker) (string, error) {
	if len(p.Networks) == 0 {
		return "", fmt.Errorf("%w: pool has no networks", ErrConfig)
	}
	prefix, err := netip.ParsePrefix(f.RandomString(p.Networks))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfig, err)
	}
	prefix = prefix.Masked()

	hostBits := 32 - prefix.Bits()
	if hostBits == 0 {
		return prefix.Addr().String(), nil
	}

	size := uint64(1) << hostBits
	lo, hi := uint64(0), size-1
	if size > 2 {
		lo, hi = 1, size-2
	}
	offset := lo + uint64(f.Number(0, int(hi-lo)))

	base := prefix.Addr().As4()
	v := binary.BigEndian.Uint32(base[:]) + uint32(offset)
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], v)
	return netip.AddrFrom4(out).String(), nil
}

// Contains reports whether addr falls inside one of the pool's networks.
func (p Pool) Contains(addr string) bool {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	for _, n := range p.Networks {
		prefix, err := netip.ParsePrefix(n)
		if err != nil {
			continue
		}
		if prefix.Contains(a) {
			return true
		}
	}
	return false
}

func parseNetworks(networks []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(networks))
	for _, n := range networks {
		prefix, err := netip.ParsePrefix(n)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid network %q: %v", ErrConfig, n, err)
		}
		if !prefix.Addr().Is4() {
			return nil, fmt.Errorf("%w: network %q is not IPv4", ErrConfig, n)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

func intersect(a, b []string) (string, bool) {
	seen := make(map[string]struct{}, len(b))
	for _, v := range b {
		seen[v] = struct{}{}
	}
	for _, v := range a {
		if _, ok := seen[v]; ok {
			return v, true
		}
	}
	return "", false
}

// DeriveSeed mixes a scenario seed with a stream label so that independent
// consumers (narrative sampling, each log source) draw reproducible,
// independent sequences. The result is never zero: gofakeit seeds itself
// from crypto/rand when handed a zero seed.
func DeriveSeed(seed int64, stream string) int64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(seed))
	h.Write(buf[:])
	h.Write([]byte(stream))

	v := int64(h.Sum64() & math.MaxInt64)
	if v == 0 {
		v = 1
	}
	return v
}

// NewFaker returns a deterministic faker for the given seed and stream.
func NewFaker(seed int64, stream string) *gofakeit.Faker {
	return gofakeit.New(DeriveSeed(seed, stream))
}
