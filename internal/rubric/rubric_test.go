package rubric

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/rangehawk/internal/answerkey"
)

func templateSOC(t *testing.T) *Rubric {
	t.Helper()
	r, err := Compile(DomainSOC, []CriterionSpec{
		{Name: "ioc", Weight: 40, Feedback: "Missing malicious IP.",
			Check: CheckSpec{Kind: CheckListContains, Field: FieldIOCList, Fact: "malicious_ip"}},
		{Name: "mitre", Weight: 40, Feedback: "Incorrect MITRE mapping.",
			Check: CheckSpec{Kind: CheckListContainsAll, Field: FieldMITREMapping, Fact: "expected_mitre"}},
		{Name: "detection_rule", Weight: 20, Feedback: "Detection rule incomplete.",
			Check: CheckSpec{Kind: CheckTextContains, Field: FieldDetectionRule, Fact: "malicious_ip"}},
	})
	require.NoError(t, err)
	return r
}

func templateKey() *answerkey.Key {
	return answerkey.New(map[string]answerkey.Value{
		"malicious_ip":   answerkey.String("185.199.110.77"),
		"expected_mitre": answerkey.List("T1078", "T1021"),
	})
}

func cloudCombined(t *testing.T) *Rubric {
	t.Helper()
	r, err := Compile(DomainCombined, []CriterionSpec{
		{Name: "alignment", Weight: 40, Feedback: "SOC findings and ML anomaly detection do not clearly align.",
			Check: CheckSpec{Kind: CheckAllOf, Checks: []CheckSpec{
				{Kind: CheckListContains, Field: "soc.ioc_list", Fact: "attacker_ip"},
				{Kind: CheckNumberBelow, Field: "ml.anomaly_score", Threshold: -0.1},
			}}},
		{Name: "attack_chain", Weight: 30, Feedback: "Triage summary does not clearly describe the full attack chain.",
			Check: CheckSpec{Kind: CheckTextContains, Field: "soc.triage_summary",
				Facts: []string{"compromised_user", "sensitive_bucket", "attacker_bucket"}}},
		{Name: "depth", Weight: 30, Feedback: "Combined SOC + ML reasoning lacks depth or completeness.",
			Check: CheckSpec{Kind: CheckAllOf, Checks: []CheckSpec{
				{Kind: CheckMinLength, Field: "soc.triage_summary", Min: 60, Trim: true},
				{Kind: CheckMinLength, Field: "ml.explanation", Min: 60, Trim: true},
			}}},
	})
	require.NoError(t, err)
	return r
}

func TestEvaluate_FullSubmission(t *testing.T) {
	sub, err := ParseSubmission([]byte(`{
		"ioc_list": ["185.199.110.77"],
		"mitre_mapping": ["T1078", "T1021"],
		"detection_rule": "alert if src_ip == 185.199.110.77"
	}`))
	require.NoError(t, err)

	report, err := templateSOC(t).Evaluate(sub, templateKey())
	require.NoError(t, err)
	assert.Equal(t, ScoreReport{Score: 100, Feedback: []string{}}, report)
	assert.True(t, report.Passed())
}

func TestEvaluate_PartialSubmission(t *testing.T) {
	sub, err := ParseSubmission([]byte(`{"ioc_list": [], "mitre_mapping": ["T1078"], "detection_rule": ""}`))
	require.NoError(t, err)

	report, err := templateSOC(t).Evaluate(sub, templateKey())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Score)
	assert.Equal(t, []string{
		"Missing malicious IP.",
		"Incorrect MITRE mapping.",
		"Detection rule incomplete.",
	}, report.Feedback)
}

func TestEvaluate_EmptySubmission(t *testing.T) {
	r := templateSOC(t)
	for _, sub := range []*Submission{nil, NewSubmission(nil), NewSubmission(map[string]any{"unrelated": 1.0})} {
		report, err := r.Evaluate(sub, templateKey())
		require.NoError(t, err)
		assert.Equal(t, 0, report.Score)
		assert.Len(t, report.Feedback, len(r.Criteria()))
	}
}

func TestEvaluate_Additive(t *testing.T) {
	sub := NewSubmission(map[string]any{
		"ioc_list":        []any{"185.199.110.77"},
		"detection_rules": "src_ip == 185.199.110.77",
	})
	report, err := templateSOC(t).Evaluate(sub, templateKey())
	require.NoError(t, err)
	assert.Equal(t, 60, report.Score)
	assert.Equal(t, []string{"Incorrect MITRE mapping."}, report.Feedback)
}

func TestEvaluate_Idempotent(t *testing.T) {
	r := cloudCombined(t)
	soc := NewSubmission(map[string]any{"ioc_list": []any{"185.199.110.42"}, "triage_summary": "short"})
	ml := NewSubmission(map[string]any{"anomaly_score": -0.5})

	first, err := r.EvaluateCombined(soc, ml, cloudKey())
	require.NoError(t, err)
	second, err := r.EvaluateCombined(soc, ml, cloudKey())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluate_Monotonic(t *testing.T) {
	r := templateSOC(t)
	correct := map[string]any{
		"ioc_list":       []any{"185.199.110.77"},
		"mitre_mapping":  []any{"T1021", "T1078"},
		"detection_rule": "block 185.199.110.77",
	}

	base := map[string]any{}
	prev, err := r.Evaluate(NewSubmission(base), templateKey())
	require.NoError(t, err)

	for _, field := range []string{"mitre_mapping", "detection_rule", "ioc_list"} {
		base[field] = correct[field]
		next, err := r.Evaluate(NewSubmission(base), templateKey())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, next.Score, prev.Score, "adding %s", field)
		assert.LessOrEqual(t, next.Score, MaxScore)
		prev = next
	}
	assert.Equal(t, MaxScore, prev.Score)
}

func TestEvaluate_MissingFact(t *testing.T) {
	key := answerkey.New(map[string]answerkey.Value{"expected_mitre": answerkey.List("T1078")})
	report, err := templateSOC(t).Evaluate(NewSubmission(nil), key)
	require.ErrorIs(t, err, answerkey.ErrMissingFact)
	assert.Contains(t, err.Error(), "malicious_ip")
	assert.Zero(t, report)

	_, err = templateSOC(t).Evaluate(NewSubmission(nil), nil)
	assert.ErrorIs(t, err, answerkey.ErrMissingFact)
}

func TestEvaluate_EmptyFact(t *testing.T) {
	key := answerkey.New(map[string]answerkey.Value{
		"malicious_ip":   answerkey.String(""),
		"expected_mitre": answerkey.List(),
	})
	report, err := templateSOC(t).Evaluate(NewSubmission(nil), key)
	require.ErrorIs(t, err, answerkey.ErrMissingFact)
	assert.Contains(t, err.Error(), "malicious_ip")
	assert.Zero(t, report)
}

func TestEvaluateCombined(t *testing.T) {
	triage := "devops_1 logged in from 185.199.110.42, escalated privileges, read sensitive-data " +
		"and copied it to external-exfil-bucket."
	explanation := "IsolationForest isolated the late-night API burst and the large PutObject volume as outliers."

	soc := NewSubmission(map[string]any{"ioc_list": []any{"185.199.110.42"}, "triage_summary": triage})

	t.Run("aligned", func(t *testing.T) {
		ml := NewSubmission(map[string]any{"anomaly_score": -0.2, "explanation": explanation})
		report, err := cloudCombined(t).EvaluateCombined(soc, ml, cloudKey())
		require.NoError(t, err)
		assert.Equal(t, ScoreReport{Score: 100, Feedback: []string{}}, report)
	})

	t.Run("not anomalous", func(t *testing.T) {
		ml := NewSubmission(map[string]any{"anomaly_score": 0.05, "explanation": explanation})
		report, err := cloudCombined(t).EvaluateCombined(soc, ml, cloudKey())
		require.NoError(t, err)
		assert.Equal(t, 60, report.Score)
		require.Len(t, report.Feedback, 1)
		assert.True(t, strings.Contains(report.Feedback[0], "align"))
	})

	t.Run("no ml submission", func(t *testing.T) {
		report, err := cloudCombined(t).EvaluateCombined(soc, nil, cloudKey())
		require.NoError(t, err)
		assert.Equal(t, 30, report.Score)
		assert.Len(t, report.Feedback, 2)
	})
}

func TestNew_Validation(t *testing.T) {
	pass, err := CompileCheck(CheckSpec{Kind: CheckNonEmpty, Field: "x"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		domain   Domain
		criteria []Criterion
		errMsg   string
	}{
		{"weights under", DomainSOC, []Criterion{{Name: "a", Weight: 60, Check: pass, Feedback: "f"}}, "sum to 60"},
		{"weights over", DomainML, []Criterion{
			{Name: "a", Weight: 60, Check: pass, Feedback: "f"},
			{Name: "b", Weight: 50, Check: pass, Feedback: "f"},
		}, "sum to 110"},
		{"negative weight", DomainSOC, []Criterion{
			{Name: "a", Weight: 110, Check: pass, Feedback: "f"},
			{Name: "b", Weight: -10, Check: pass, Feedback: "f"},
		}, "negative"},
		{"duplicate name", DomainSOC, []Criterion{
			{Name: "a", Weight: 50, Check: pass, Feedback: "f"},
			{Name: "a", Weight: 50, Check: pass, Feedback: "f"},
		}, "twice"},
		{"no feedback", DomainSOC, []Criterion{{Name: "a", Weight: 100, Check: pass}}, "feedback"},
		{"no check", DomainSOC, []Criterion{{Name: "a", Weight: 100, Feedback: "f"}}, "no check"},
		{"empty", DomainSOC, nil, "no criteria"},
		{"unknown domain", Domain("forensics"), []Criterion{{Name: "a", Weight: 100, Check: pass, Feedback: "f"}}, "unknown domain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.domain, tt.criteria)
			require.ErrorIs(t, err, ErrConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRubric_Facts(t *testing.T) {
	assert.Equal(t, []string{"malicious_ip", "expected_mitre"}, templateSOC(t).Facts())
	assert.Equal(t, []string{"attacker_ip", "compromised_user", "sensitive_bucket", "attacker_bucket"}, cloudCombined(t).Facts())
}
