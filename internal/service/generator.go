package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/telhawk-systems/rangehawk/internal/answerkey"
	"github.com/telhawk-systems/rangehawk/internal/catalog"
	"github.com/telhawk-systems/rangehawk/internal/logging"
	"github.com/telhawk-systems/rangehawk/internal/messaging"
	"github.com/telhawk-systems/rangehawk/internal/metrics"
	"github.com/telhawk-systems/rangehawk/internal/search"
	"github.com/telhawk-systems/rangehawk/internal/synth"
	"github.com/telhawk-systems/rangehawk/internal/tabular"
)

const (
	LogsDir       = "logs"
	EvaluationDir = "evaluation"
	KeyFileJSON   = "answer_key.json"
	KeyFileSealed = "answer_key.sealed"
)

// TableIndexer ships a table into a search backend.
type TableIndexer interface {
	IndexTable(ctx context.Context, instanceID string, t *synth.Table) (*search.IndexResponse, error)
}

// GenerateRequest describes one dataset to produce.
type GenerateRequest struct {
	Scenario  string
	Overrides catalog.Overrides
	OutputDir string
	Format    tabular.Format
	// Passphrase seals the answer key file when set.
	Passphrase string
}

// GenerateResult reports what was written.
type GenerateResult struct {
	InstanceID string           `json:"instance_id"`
	Scenario   string           `json:"scenario"`
	Seed       int64            `json:"seed"`
	BaseTime   time.Time        `json:"base_time"`
	Files      []string         `json:"files"`
	KeyFile    string           `json:"key_file"`
	Rows       map[string]int   `json:"rows"`
	Indexed    map[string]int64 `json:"indexed,omitempty"`
	Stored     bool             `json:"stored"`
}

// Generator renders scenario instances to disk and registers their keys.
type Generator struct {
	catalog       *catalog.Catalog
	keys          answerkey.Store
	indexer       TableIndexer
	publisher     messaging.Publisher
	subjectPrefix string
	logger        *logging.Logger
}

type GeneratorOption func(*Generator)

// WithKeyStore registers every generated key under its instance ID.
func WithKeyStore(s answerkey.Store) GeneratorOption {
	return func(g *Generator) { g.keys = s }
}

// WithIndexer bulk indexes every generated table.
func WithIndexer(i TableIndexer) GeneratorOption {
	return func(g *Generator) { g.indexer = i }
}

func WithEvents(p messaging.Publisher, subjectPrefix string) GeneratorOption {
	return func(g *Generator) {
		g.publisher = p
		g.subjectPrefix = subjectPrefix
	}
}

func WithGeneratorLogger(l *logging.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

func NewGenerator(cat *catalog.Catalog, opts ...GeneratorOption) *Generator {
	g := &Generator{
		catalog:   cat,
		publisher: messaging.NopPublisher{},
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate instantiates the scenario and writes logs/<source>.<format> plus
// the answer key under the output directory. Nothing is written if the
// definition fails to instantiate.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	def, err := g.catalog.Get(req.Scenario)
	if err != nil {
		return nil, err
	}
	if req.Format == "" {
		req.Format = tabular.CSV
	}

	inst, err := def.Instantiate(req.Overrides)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", def.Name, err)
	}
	params := inst.Narrative.Parameters()
	id := inst.ID.String()
	logger := g.logger.With(logging.Scenario(def.Name), logging.InstanceID(id), logging.Seed(params.Seed))

	res := &GenerateResult{
		InstanceID: id,
		Scenario:   def.Name,
		Seed:       params.Seed,
		BaseTime:   params.BaseTime,
		Rows:       make(map[string]int, len(inst.Tables)),
	}

	logDir := filepath.Join(req.OutputDir, LogsDir)
	for _, t := range inst.Tables {
		path, err := tabular.WriteFile(logDir, t, req.Format)
		if err != nil {
			return nil, err
		}
		res.Files = append(res.Files, path)
		res.Rows[string(t.Source)] = t.Len()
		metrics.RowsGenerated.WithLabelValues(def.Name, string(t.Source)).Add(float64(t.Len()))
		logger.Debug("table written", logging.Source(string(t.Source)), logging.Rows(t.Len()), logging.Path(path))
	}

	keyPath, err := writeKey(filepath.Join(req.OutputDir, EvaluationDir), inst.Key, req.Passphrase)
	if err != nil {
		return nil, err
	}
	res.KeyFile = keyPath

	if g.keys != nil {
		if err := g.keys.Put(ctx, id, inst.Key); err != nil {
			return nil, fmt.Errorf("store answer key: %w", err)
		}
		res.Stored = true
	}

	if g.indexer != nil {
		res.Indexed = make(map[string]int64, len(inst.Tables))
		for _, t := range inst.Tables {
			ir, err := g.indexer.IndexTable(ctx, id, t)
			if err != nil {
				return nil, fmt.Errorf("index %s: %w", t.Source, err)
			}
			res.Indexed[string(t.Source)] = ir.Indexed
			logger.Info("table indexed", logging.Source(string(t.Source)), "index", ir.Index)
		}
	}

	event := messaging.InstanceGenerated{
		InstanceID:  id,
		Scenario:    def.Name,
		Seed:        params.Seed,
		BaseTime:    params.BaseTime,
		Rows:        res.Rows,
		GeneratedAt: time.Now().UTC(),
	}
	if err := g.publisher.PublishJSON(ctx, messaging.Subject(g.subjectPrefix, messaging.SubjectInstancesGenerated), event); err != nil {
		logger.Warn("failed to publish generation event", logging.Error(err))
	}

	logger.Info("instance generated", logging.Rows(totalRows(res.Rows)), logging.Path(req.OutputDir))
	return res, nil
}

func writeKey(dir string, k *answerkey.Key, passphrase string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	var (
		data []byte
		err  error
		name = KeyFileJSON
	)
	if passphrase != "" {
		data, err = answerkey.Seal(k, passphrase)
		name = KeyFileSealed
	} else {
		data, err = k.MarshalIndent()
	}
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", err
	}
	return path, nil
}

func totalRows(rows map[string]int) int {
	n := 0
	for _, v := range rows {
		n += v
	}
	return n
}
