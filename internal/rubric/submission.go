package rubric

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrMalformedSubmission is returned for submission records that are not a
// JSON object or carry a known field with the wrong type.
var ErrMalformedSubmission = errors.New("malformed submission")

//go:embed schema/submission.json
var submissionSchemaJSON []byte

var submissionSchema = func() *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(submissionSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("rubric: invalid embedded submission schema: %v", err))
	}
	return schema
}()

// Field names shared by the built-in rubrics.
const (
	FieldIOCList        = "ioc_list"
	FieldMITREMapping   = "mitre_mapping"
	FieldDetectionRule  = "detection_rule"
	FieldDetectionRules = "detection_rules"
	FieldTriageSummary  = "triage_summary"
	FieldAnomalyScore   = "anomaly_score"
	FieldModelUsed      = "model_used"
	FieldFeatures       = "features"
	FieldExplanation    = "explanation"
)

// Submission is a trainee's findings. Accessors never fail: a missing or
// differently typed field reads as its zero default.
type Submission struct {
	fields map[string]any
}

// NewSubmission wraps decoded fields. The detection rule is reachable under
// both its singular and plural name; when both are given the singular wins.
func NewSubmission(fields map[string]any) *Submission {
	f := make(map[string]any, len(fields)+1)
	maps.Copy(f, fields)

	if v, ok := f[FieldDetectionRule]; ok {
		f[FieldDetectionRules] = v
	} else if v, ok := f[FieldDetectionRules]; ok {
		f[FieldDetectionRule] = v
	}
	return &Submission{fields: f}
}

// ParseSubmission decodes and validates a JSON submission record.
func ParseSubmission(data []byte) (*Submission, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedSubmission)
	}

	result, err := submissionSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSubmission, err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedSubmission, strings.Join(problems, "; "))
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSubmission, err)
	}
	return NewSubmission(fields), nil
}

// Combine merges domain submissions into one view whose fields are
// prefixed with the domain name, e.g. "soc.ioc_list". Nil submissions
// contribute nothing.
func Combine(parts map[Domain]*Submission) *Submission {
	merged := make(map[string]any)
	for domain, sub := range parts {
		if sub == nil {
			continue
		}
		for name, v := range sub.fields {
			merged[string(domain)+"."+name] = v
		}
	}
	return &Submission{fields: merged}
}

// Has reports whether the field was supplied.
func (s *Submission) Has(field string) bool {
	_, ok := s.fields[field]
	return ok
}

// String returns a text field, or "". A list of strings is joined with
// newlines so that rule sets can be searched like a single rule.
func (s *Submission) String(field string) string {
	switch v := s.fields[field].(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				parts = append(parts, str)
			}
		}
		return strings.Join(parts, "\n")
	case []string:
		return strings.Join(v, "\n")
	}
	return ""
}

// Strings returns a list field, or an empty list.
func (s *Submission) Strings(field string) []string {
	switch v := s.fields[field].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return []string{}
}

// Number returns a numeric field, or 0.
func (s *Submission) Number(field string) float64 {
	switch v := s.fields[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err == nil {
			return f
		}
	}
	return 0
}

// Truthy reports whether the field holds a non-empty, non-zero value.
func (s *Submission) Truthy(field string) bool {
	switch v := s.fields[field].(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return s.Number(field) != 0
	}
}

// Fields returns a copy of the raw fields.
func (s *Submission) Fields() map[string]any {
	return maps.Clone(s.fields)
}

func (s *Submission) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.fields)
}
