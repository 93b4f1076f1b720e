package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/rangehawk/internal/answerkey"
	"github.com/telhawk-systems/rangehawk/internal/rubric"
	"github.com/telhawk-systems/rangehawk/internal/scenario"
	"github.com/telhawk-systems/rangehawk/internal/synth"
)

func builtinCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Builtin()
	require.NoError(t, err)
	return c
}

func TestBuiltin(t *testing.T) {
	c := builtinCatalog(t)

	var names []string
	for _, d := range c.List() {
		names = append(names, d.Name)
		assert.Equal(t, []rubric.Domain{rubric.DomainSOC, rubric.DomainML, rubric.DomainCombined}, d.Domains(), d.Name)
	}
	assert.Equal(t, []string{"cloud-exfiltration", "credential-theft", "suspicious-login"}, names)

	_, err := c.Get("ransomware")
	assert.ErrorIs(t, err, ErrUnknownScenario)
}

func TestInstantiate_SuspiciousLogin(t *testing.T) {
	d, err := builtinCatalog(t).Get("suspicious-login")
	require.NoError(t, err)

	inst, err := d.Instantiate(Overrides{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"malicious_ip", "malicious_host", "expected_mitre"}, inst.Key.Names())
	ip, _ := inst.Key.Get("malicious_ip")
	assert.True(t, strings.HasPrefix(ip.String(), "185.199.110."), ip.String())
	host, _ := inst.Key.Get("malicious_host")
	assert.Regexp(t, `^server-\d+$`, host.String())
	mitre, _ := inst.Key.Get("expected_mitre")
	assert.Equal(t, []string{"T1078", "T1021"}, mitre.Values())

	auth, ok := inst.Table(scenario.SourceAuth)
	require.True(t, ok)
	assert.Equal(t, 51, auth.Len())

	injected := auth.Injected()
	require.Len(t, injected, 1)
	assert.Equal(t, ip.String(), injected[0].Fields["source_ip"])
	assert.Equal(t, "j.smith", injected[0].Fields["username"])

	for _, r := range auth.Records {
		if !r.Injected {
			assert.Equal(t, "10.0.1.15", r.Fields["source_ip"])
			assert.Equal(t, "workstation-22", r.Fields["destination_host"])
		}
	}
}

func TestInstantiate_CredentialTheft(t *testing.T) {
	d, err := builtinCatalog(t).Get("credential-theft")
	require.NoError(t, err)

	inst, err := d.Instantiate(Overrides{})
	require.NoError(t, err)
	require.Len(t, inst.Tables, 3)

	e := inst.Narrative.Entities()
	assert.Equal(t, map[string]string{
		"compromised_user":  e.CompromisedUser,
		"attacker_ip":       e.AttackerAddress,
		"malicious_process": "mimikatz.exe",
		"exfil_ip":          e.ExfilAddress,
		"expected_mitre":    "T1078, T1021, T1003, T1041",
	}, inst.Key.Strings())

	proc, _ := inst.Table(scenario.SourceProcess)
	assert.Equal(t, 101, proc.Len())
	net, _ := inst.Table(scenario.SourceNetwork)
	assert.Equal(t, 81, net.Len())
}

func TestInstantiate_CloudExfiltration(t *testing.T) {
	d, err := builtinCatalog(t).Get("cloud-exfiltration")
	require.NoError(t, err)

	inst, err := d.Instantiate(Overrides{})
	require.NoError(t, err)

	iam, _ := inst.Table(scenario.SourceIAM)
	api, _ := inst.Table(scenario.SourceAPI)
	storage, _ := inst.Table(scenario.SourceStorage)
	assert.Equal(t, 44, iam.Len())
	assert.Equal(t, 66, api.Len())
	assert.Equal(t, 54, storage.Len())

	objects, _ := inst.Key.Get("sensitive_objects")
	assert.Equal(t, []string{"hr/payroll_2024.xlsx", "finance/q4_results.pdf", "engineering/roadmap_2025.docx"}, objects.Values())
	mitre, _ := inst.Key.Get("expected_mitre")
	assert.Equal(t, []string{"T1078", "T1098", "T1087", "T1530", "T1567"}, mitre.Values())

	user, _ := inst.Key.Get("compromised_user")
	for _, tbl := range inst.Tables {
		for _, r := range tbl.Injected() {
			assert.Equal(t, user.String(), r.Fields["user"])
		}
	}
}

func TestInstantiate_Deterministic(t *testing.T) {
	for _, d := range builtinCatalog(t).List() {
		seed := int64(1234)
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		a, err := d.Instantiate(Overrides{Seed: &seed, BaseTime: &base})
		require.NoError(t, err)
		b, err := d.Instantiate(Overrides{Seed: &seed, BaseTime: &base})
		require.NoError(t, err)

		assert.Equal(t, a.ID, b.ID, d.Name)
		assert.Equal(t, a.Key, b.Key, d.Name)
		assert.Equal(t, a.Tables, b.Tables, d.Name)
		assert.Equal(t, base, a.Tables[0].Records[0].Time.Truncate(time.Hour), d.Name)

		other := seed + 1
		c, err := d.Instantiate(Overrides{Seed: &other, BaseTime: &base})
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, c.ID, d.Name)
	}
}

// A submission built from the key itself must earn full marks in every
// domain, otherwise the rubric and key disagree on fact names or shapes.
func TestBuiltin_ReferenceSubmissionsScoreFull(t *testing.T) {
	for _, d := range builtinCatalog(t).List() {
		t.Run(d.Name, func(t *testing.T) {
			inst, err := d.Instantiate(Overrides{})
			require.NoError(t, err)
			soc, ml := referenceSubmissions(inst.Key)

			for _, domain := range []rubric.Domain{rubric.DomainSOC, rubric.DomainML} {
				r, err := d.Rubric(domain)
				require.NoError(t, err)
				sub := soc
				if domain == rubric.DomainML {
					sub = ml
				}
				report, err := r.Evaluate(sub, inst.Key)
				require.NoError(t, err)
				assert.Equal(t, 100, report.Score, "%s: %v", domain, report.Feedback)
			}

			r, err := d.Rubric(rubric.DomainCombined)
			require.NoError(t, err)
			report, err := r.EvaluateCombined(soc, ml, inst.Key)
			require.NoError(t, err)
			assert.Equal(t, 100, report.Score, report.Feedback)

			empty, err := r.EvaluateCombined(nil, nil, inst.Key)
			require.NoError(t, err)
			assert.Equal(t, 0, empty.Score)
			assert.Len(t, empty.Feedback, len(r.Criteria()))
		})
	}
}

func referenceSubmissions(key *answerkey.Key) (*rubric.Submission, *rubric.Submission) {
	var iocs, mitre []any
	var facts []string
	for _, name := range key.Names() {
		v, _ := key.Get(name)
		if name == "expected_mitre" {
			for _, t := range v.Values() {
				mitre = append(mitre, t)
			}
			continue
		}
		for _, s := range v.Values() {
			iocs = append(iocs, s)
			facts = append(facts, s)
		}
	}
	summary := "The attack chain involved " + strings.Join(facts, ", ") + " as observed across all log sources."

	soc := rubric.NewSubmission(map[string]any{
		"ioc_list":       iocs,
		"mitre_mapping":  mitre,
		"detection_rule": "alert when any of " + strings.Join(facts, " OR ") + " appears",
		"triage_summary": summary,
	})
	ml := rubric.NewSubmission(map[string]any{
		"anomaly_score": -0.42,
		"model_used":    "IsolationForest",
		"features":      []any{"hour_of_day", "source_ip_rarity", "bytes_written", "region_rarity"},
		"explanation":   "IsolationForest scored the attacker session far outside the baseline of normal user activity.",
	})
	return soc, ml
}

func TestParse_Errors(t *testing.T) {
	base, err := os.ReadFile(filepath.Join("definitions", "02-credential-theft.yaml"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr error
		substr  string
	}{
		{
			name:    "unknown field",
			mutate:  func(s string) string { return strings.Replace(s, "difficulty:", "dificulty:", 1) },
			wantErr: scenario.ErrConfig,
			substr:  "dificulty",
		},
		{
			name:    "weights do not sum to 100",
			mutate:  func(s string) string { return strings.Replace(s, "weight: 40", "weight: 45", 1) },
			wantErr: rubric.ErrConfig,
			substr:  "sum to 105",
		},
		{
			name:    "rubric fact missing from answer key",
			mutate:  func(s string) string { return strings.Replace(s, "  malicious_process: malicious_process\n", "", 1) },
			wantErr: answerkey.ErrMissingFact,
			substr:  "malicious_process",
		},
		{
			name:    "unsupported step",
			mutate:  func(s string) string { return strings.Replace(s, "sources: [process]", "sources: [network]", 1) },
			wantErr: synth.ErrUnsupportedStep,
			substr:  "credential_access",
		},
		{
			name:    "source without settings",
			mutate:  func(s string) string { return strings.Replace(s, "  process: {noise: 100, interval: 30s}\n", "", 1) },
			wantErr: scenario.ErrConfig,
			substr:  "no source settings",
		},
		{
			name:    "unknown check kind",
			mutate:  func(s string) string { return strings.Replace(s, "kind: equals", "kind: fuzzy", 1) },
			wantErr: rubric.ErrConfig,
			substr:  "fuzzy",
		},
		{
			name:    "overlapping pools",
			mutate:  func(s string) string { return strings.Replace(s, "networks: [185.199.110.0/24]", "networks: [10.0.2.0/25]", 1) },
			wantErr: scenario.ErrConfig,
			substr:  "overlaps",
		},
		{
			name:    "non increasing offsets",
			mutate:  func(s string) string { return strings.Replace(s, "offset: 58m", "offset: 50m", 1) },
			wantErr: scenario.ErrConfig,
			substr:  "does not follow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := tt.mutate(string(base))
			require.NotEqual(t, string(base), mutated, "mutation did not apply")

			_, err := Parse([]byte(mutated))
			require.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
}

func TestLoad(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("definitions", "01-suspicious-login.yaml"))
	require.NoError(t, err)

	fsys := fstest.MapFS{
		"defs/a.yaml":     {Data: data},
		"defs/README.md":  {Data: []byte("ignored")},
		"defs/nested/x":   {Data: []byte("ignored")},
		"dup/a.yaml":      {Data: data},
		"dup/b.yml":       {Data: data},
		"broken/bad.yaml": {Data: []byte("name: [")},
	}

	c, err := Load(fsys, "defs")
	require.NoError(t, err)
	assert.Len(t, c.List(), 1)

	_, err = Load(fsys, "dup")
	assert.ErrorContains(t, err, "defined twice")

	_, err = Load(fsys, "broken")
	assert.ErrorIs(t, err, scenario.ErrConfig)

	_, err = Load(fsys, "missing")
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	d, err := LoadFile(filepath.Join("definitions", "03-cloud-exfiltration.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "cloud-exfiltration", d.Name)
	assert.Equal(t, []scenario.Source{scenario.SourceIAM, scenario.SourceAPI, scenario.SourceStorage}, d.SourceNames())

	_, err = LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
