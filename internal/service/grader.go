// Package service orchestrates generation and grading: it ties the scenario
// catalog to the key store, the results history, the event bus, the search
// index and metrics.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/telhawk-systems/rangehawk/internal/answerkey"
	"github.com/telhawk-systems/rangehawk/internal/catalog"
	"github.com/telhawk-systems/rangehawk/internal/logging"
	"github.com/telhawk-systems/rangehawk/internal/messaging"
	"github.com/telhawk-systems/rangehawk/internal/metrics"
	"github.com/telhawk-systems/rangehawk/internal/results"
	"github.com/telhawk-systems/rangehawk/internal/rubric"
)

var ErrInvalidRequest = errors.New("invalid grade request")

// GradeRequest identifies what is graded and by whom. Combined requests
// carry SOC and ML; the other domains carry Submission.
type GradeRequest struct {
	Scenario   string
	InstanceID string
	Trainee    string
	Domain     rubric.Domain
	Submission *rubric.Submission
	SOC        *rubric.Submission
	ML         *rubric.Submission
}

func (r GradeRequest) validate() error {
	if r.Scenario == "" {
		return fmt.Errorf("%w: scenario is required", ErrInvalidRequest)
	}
	if !r.Domain.Valid() {
		return fmt.Errorf("%w: unknown domain %q", ErrInvalidRequest, r.Domain)
	}
	return nil
}

// Grader scores submissions against stored answer keys.
type Grader struct {
	catalog       *catalog.Catalog
	keys          answerkey.Store
	results       results.Repository
	publisher     messaging.Publisher
	subjectPrefix string
	logger        *logging.Logger
}

// GraderOption configures optional collaborators.
type GraderOption func(*Grader)

// WithResults persists every report.
func WithResults(repo results.Repository) GraderOption {
	return func(g *Grader) { g.results = repo }
}

// WithPublisher announces every report on the bus.
func WithPublisher(p messaging.Publisher, subjectPrefix string) GraderOption {
	return func(g *Grader) {
		g.publisher = p
		g.subjectPrefix = subjectPrefix
	}
}

func WithGraderLogger(l *logging.Logger) GraderOption {
	return func(g *Grader) { g.logger = l }
}

func NewGrader(cat *catalog.Catalog, keys answerkey.Store, opts ...GraderOption) *Grader {
	g := &Grader{
		catalog:   cat,
		keys:      keys,
		publisher: messaging.NopPublisher{},
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Grade loads the instance's answer key from the store and scores the request.
func (g *Grader) Grade(ctx context.Context, req GradeRequest) (*results.Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if g.keys == nil {
		return nil, fmt.Errorf("%w: no answer key store configured", ErrInvalidRequest)
	}

	key, err := g.keys.Get(ctx, req.InstanceID)
	if err != nil {
		metrics.KeyLookups.WithLabelValues(lookupStatus(err)).Inc()
		metrics.GradeErrors.WithLabelValues("answer_key").Inc()
		return nil, err
	}
	metrics.KeyLookups.WithLabelValues("hit").Inc()

	return g.GradeWithKey(ctx, req, key)
}

// GradeWithKey scores the request against an answer key the caller already
// holds.
func (g *Grader) GradeWithKey(ctx context.Context, req GradeRequest, key *answerkey.Key) (*results.Result, error) {
	start := time.Now()
	defer func() { metrics.GradeDuration.Observe(time.Since(start).Seconds()) }()

	if err := req.validate(); err != nil {
		return nil, err
	}
	def, err := g.catalog.Get(req.Scenario)
	if err != nil {
		metrics.GradeErrors.WithLabelValues("scenario").Inc()
		return nil, err
	}
	rb, err := def.Rubric(req.Domain)
	if err != nil {
		metrics.GradeErrors.WithLabelValues("rubric").Inc()
		return nil, err
	}

	var report rubric.ScoreReport
	if req.Domain == rubric.DomainCombined {
		report, err = rb.EvaluateCombined(req.SOC, req.ML, key)
	} else {
		report, err = rb.Evaluate(req.Submission, key)
	}
	if err != nil {
		metrics.GradeErrors.WithLabelValues("evaluate").Inc()
		g.logger.ErrorContext(ctx, "evaluation failed",
			logging.Scenario(req.Scenario), logging.Domain(string(req.Domain)), logging.Error(err))
		return nil, err
	}

	result := results.NewResult(req.InstanceID, req.Scenario, req.Trainee, req.Domain, report)
	metrics.GradesTotal.WithLabelValues(req.Scenario, string(req.Domain), metrics.Outcome(report.Passed())).Inc()
	metrics.GradeScore.WithLabelValues(req.Scenario, string(req.Domain)).Observe(float64(report.Score))

	if g.results != nil {
		if err := g.results.Save(ctx, result); err != nil {
			metrics.GradeErrors.WithLabelValues("persist").Inc()
			return nil, fmt.Errorf("save result: %w", err)
		}
	}

	event := messaging.GradeCompleted{
		ResultID:   result.ID.String(),
		InstanceID: result.InstanceID,
		Scenario:   result.Scenario,
		Trainee:    result.Trainee,
		Domain:     string(result.Domain),
		Score:      result.Score,
		Passed:     report.Passed(),
		GradedAt:   result.GradedAt,
	}
	if err := g.publisher.PublishJSON(ctx, messaging.GradeSubject(g.subjectPrefix, string(req.Domain)), event); err != nil {
		g.logger.WarnContext(ctx, "failed to publish grade event", logging.Error(err))
	}

	g.logger.InfoContext(ctx, "submission graded",
		logging.Scenario(req.Scenario),
		logging.InstanceID(req.InstanceID),
		logging.Trainee(req.Trainee),
		logging.Domain(string(req.Domain)),
		logging.Score(report.Score),
		slog.Int("criteria_failed", len(report.Feedback)),
	)
	return result, nil
}

// History lists stored results for an instance. An empty trainee lists all.
func (g *Grader) History(ctx context.Context, instanceID, trainee string) ([]*results.Result, error) {
	if g.results == nil {
		return []*results.Result{}, nil
	}
	return g.results.List(ctx, instanceID, trainee)
}

func lookupStatus(err error) string {
	if errors.Is(err, answerkey.ErrNotFound) {
		return "miss"
	}
	return "error"
}
