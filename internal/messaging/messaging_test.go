package messaging

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "rangehawk.grades.completed", Subject("rangehawk", SubjectGradesCompleted))
	assert.Equal(t, "instances.generated", Subject("", SubjectInstancesGenerated))
	assert.Equal(t, "rangehawk.grades.completed.ml", GradeSubject("rangehawk", "ml"))
}

func TestSubjectConstants_FollowNamingConvention(t *testing.T) {
	for _, subject := range []string{SubjectInstancesGenerated, SubjectGradesCompleted} {
		parts := strings.Split(subject, ".")
		assert.Len(t, parts, 2, subject)
	}
}

func TestMemoryPublisher(t *testing.T) {
	p := NewMemoryPublisher()
	event := GradeCompleted{InstanceID: "inst-1", Domain: "soc", Score: 80, Passed: false, GradedAt: time.Unix(0, 0).UTC()}

	require.NoError(t, p.PublishJSON(context.Background(), GradeSubject("rh", "soc"), event))

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "rh.grades.completed.soc", msgs[0].Subject)

	var got GradeCompleted
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, event, got)
	assert.NoError(t, p.Close())
}

func TestMemoryPublisher_Errors(t *testing.T) {
	p := NewMemoryPublisher()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.PublishJSON(ctx, "s", 1), context.Canceled)

	assert.Error(t, p.PublishJSON(context.Background(), "s", make(chan int)))
	assert.Empty(t, p.Messages())
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.PublishJSON(context.Background(), "s", "x"))
	assert.NoError(t, p.Close())
}

func TestNewNATSPublisher_Unreachable(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond

	_, err := NewNATSPublisher(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
}
