// Package results keeps the grading history: one record per evaluated
// submission, queryable per instance and trainee.
package results

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/telhawk-systems/rangehawk/internal/rubric"
)

var ErrResultNotFound = errors.New("result not found")

// Result is a persisted score report.
type Result struct {
	ID         uuid.UUID     `json:"id"`
	InstanceID string        `json:"instance_id"`
	Scenario   string        `json:"scenario"`
	Trainee    string        `json:"trainee"`
	Domain     rubric.Domain `json:"domain"`
	Score      int           `json:"score"`
	Feedback   []string      `json:"feedback"`
	GradedAt   time.Time     `json:"graded_at"`
}

// NewResult wraps a score report for storage.
func NewResult(instanceID, scenario, trainee string, domain rubric.Domain, report rubric.ScoreReport) *Result {
	feedback := report.Feedback
	if feedback == nil {
		feedback = []string{}
	}
	return &Result{
		ID:         uuid.New(),
		InstanceID: instanceID,
		Scenario:   scenario,
		Trainee:    trainee,
		Domain:     domain,
		Score:      report.Score,
		Feedback:   feedback,
		GradedAt:   time.Now().UTC(),
	}
}

// Report returns the score report the result was created from.
func (r *Result) Report() rubric.ScoreReport {
	return rubric.ScoreReport{Score: r.Score, Feedback: r.Feedback}
}

type Repository interface {
	Save(ctx context.Context, result *Result) error
	Get(ctx context.Context, id uuid.UUID) (*Result, error)
	// List returns the results for an instance, newest first. An empty
	// trainee matches every trainee.
	List(ctx context.Context, instanceID, trainee string) ([]*Result, error)
	Close()
}
