// Package messaging publishes rangehawk lifecycle events (instance generated,
// submission graded) to the message bus.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Subject names, relative to the configured prefix.
// Pattern: {resource}.{action}
const (
	SubjectInstancesGenerated = "instances.generated"
	SubjectGradesCompleted    = "grades.completed"
)

// Subject joins a prefix and a relative subject. An empty prefix yields the
// relative subject unchanged.
func Subject(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// GradeSubject returns the per-domain grade subject, e.g.
// rangehawk.grades.completed.soc, so consumers can subscribe to one track.
func GradeSubject(prefix, domain string) string {
	return Subject(prefix, SubjectGradesCompleted) + "." + domain
}

// Publisher sends JSON events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishJSON(ctx context.Context, subject string, v any) error
	Close() error
}

// InstanceGenerated is published after a dataset has been written.
type InstanceGenerated struct {
	InstanceID  string         `json:"instance_id"`
	Scenario    string         `json:"scenario"`
	Seed        int64          `json:"seed"`
	BaseTime    time.Time      `json:"base_time"`
	Rows        map[string]int `json:"rows"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// GradeCompleted is published after a submission has been scored.
type GradeCompleted struct {
	ResultID   string    `json:"result_id"`
	InstanceID string    `json:"instance_id"`
	Scenario   string    `json:"scenario"`
	Trainee    string    `json:"trainee"`
	Domain     string    `json:"domain"`
	Score      int       `json:"score"`
	Passed     bool      `json:"passed"`
	GradedAt   time.Time `json:"graded_at"`
}

// NopPublisher drops every event. It is used when the bus is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishJSON(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error                                   { return nil }

// Message is an event captured by a MemoryPublisher.
type Message struct {
	Subject string
	Data    []byte
}

// MemoryPublisher records events in memory.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) PublishJSON(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Subject: subject, Data: data})
	return nil
}

// Messages returns a copy of everything published so far.
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

func (p *MemoryPublisher) Close() error { return nil }
