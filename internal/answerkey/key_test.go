package answerkey

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	k, err := Parse([]byte(`{"malicious_ip":"185.199.110.77","expected_mitre":["T1078","T1021"]}`))
	require.NoError(t, err)

	ip, ok := k.Get("malicious_ip")
	require.True(t, ok)
	assert.False(t, ip.IsList())
	assert.Equal(t, "185.199.110.77", ip.String())
	assert.Equal(t, []string{"185.199.110.77"}, ip.Values())

	mitre, ok := k.Get("expected_mitre")
	require.True(t, ok)
	assert.True(t, mitre.IsList())
	assert.Equal(t, []string{"T1078", "T1021"}, mitre.Values())
	assert.Equal(t, "T1078, T1021", mitre.String())

	assert.Equal(t, []string{"expected_mitre", "malicious_ip"}, k.Names())
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `{malicious_ip`},
		{"array", `["185.199.110.77"]`},
		{"null", `null`},
		{"number fact", `{"malicious_ip": 42}`},
		{"null fact", `{"malicious_ip": null}`},
		{"mixed list", `{"expected_mitre": ["T1078", 7]}`},
		{"object fact", `{"malicious_ip": {"v": "x"}}`},
		{"empty string fact", `{"malicious_ip": ""}`},
		{"empty list fact", `{"expected_mitre": []}`},
		{"blank list entry", `{"expected_mitre": ["T1078", ""]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			assert.ErrorIs(t, err, ErrMalformedKey)
		})
	}
}

func TestKey_Require(t *testing.T) {
	k := New(map[string]Value{"attacker_ip": String("185.199.110.9")})

	assert.NoError(t, k.Require("attacker_ip"))

	err := k.Require("attacker_ip", "expected_mitre", "compromised_user", "expected_mitre")
	require.ErrorIs(t, err, ErrMissingFact)
	assert.Contains(t, err.Error(), "expected_mitre, compromised_user")

	empty := New(map[string]Value{"attacker_ip": String(""), "expected_mitre": List()})
	err = empty.Require("attacker_ip", "expected_mitre")
	require.ErrorIs(t, err, ErrMissingFact)
	assert.Contains(t, err.Error(), "attacker_ip, expected_mitre")
}

func TestKey_JSON(t *testing.T) {
	k := New(map[string]Value{
		"attacker_ip":    String("185.199.110.9"),
		"expected_mitre": List("T1078"),
		"empty_list":     List(),
	})

	data, err := json.Marshal(k)
	require.NoError(t, err)
	assert.JSONEq(t, `{"attacker_ip":"185.199.110.9","expected_mitre":["T1078"],"empty_list":[]}`, string(data))

	var decoded Key
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, k.Strings(), decoded.Strings())
}

func TestNew_CopiesInput(t *testing.T) {
	techniques := []string{"T1078"}
	facts := map[string]Value{"expected_mitre": List(techniques...)}
	k := New(facts)

	techniques[0] = "T9999"
	facts["extra"] = String("x")

	v, _ := k.Get("expected_mitre")
	assert.Equal(t, []string{"T1078"}, v.Values())
	assert.Equal(t, 1, k.Len())
}
