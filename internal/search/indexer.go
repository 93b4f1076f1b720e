// Package search ships generated log tables into OpenSearch so trainees can
// hunt through them with a real query engine.
package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"
	"github.com/telhawk-systems/rangehawk/internal/scenario"
	"github.com/telhawk-systems/rangehawk/internal/synth"
)

// Config holds OpenSearch connection settings.
type Config struct {
	URL         string
	Username    string
	Password    string
	Insecure    bool
	IndexPrefix string
}

// IndexResponse summarises one bulk run.
type IndexResponse struct {
	Index   string   `json:"index"`
	Indexed int64    `json:"indexed"`
	Failed  int64    `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

type Indexer struct {
	client *opensearch.Client
	prefix string
}

// NewIndexer connects to OpenSearch and verifies the cluster answers.
func NewIndexer(cfg Config) (*Indexer, error) {
	osCfg := opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Insecure,
			},
		},
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()
	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	return &Indexer{client: client, prefix: cfg.IndexPrefix}, nil
}

// IndexName returns <prefix>-<instance>-<source>, lowercased as OpenSearch
// requires.
func IndexName(prefix, instanceID string, src scenario.Source) string {
	name := fmt.Sprintf("%s-%s", instanceID, src)
	if prefix != "" {
		name = prefix + "-" + name
	}
	return strings.ToLower(name)
}

// IndexTable writes every record of t into the instance's index for that
// source. Event IDs become document IDs, so re-indexing an instance
// overwrites instead of duplicating. Only the log columns are shipped; the
// injected flag stays out of the index.
func (i *Indexer) IndexTable(ctx context.Context, instanceID string, t *synth.Table) (*IndexResponse, error) {
	index := IndexName(i.prefix, instanceID, t.Source)
	if err := i.ensureIndex(ctx, index); err != nil {
		return nil, err
	}

	resp := &IndexResponse{Index: index}
	var indexed, failed atomic.Int64
	errCh := make(chan string, t.Len())

	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client: i.client,
		Index:  index,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	for n := range t.Len() {
		data, err := json.Marshal(t.Document(n))
		if err != nil {
			failed.Add(1)
			errCh <- fmt.Sprintf("marshal record %d: %v", n, err)
			continue
		}

		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: t.Records[n].ID,
			Body:       bytes.NewReader(data),
			OnSuccess: func(ctx context.Context, item opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem) {
				indexed.Add(1)
			},
			OnFailure: func(ctx context.Context, item opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
				failed.Add(1)
				if err != nil {
					errCh <- err.Error()
				} else {
					errCh <- fmt.Sprintf("%s: %s", res.Error.Type, res.Error.Reason)
				}
			},
		})
		if err != nil {
			failed.Add(1)
			errCh <- fmt.Sprintf("failed to add to bulk indexer: %v", err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return nil, fmt.Errorf("bulk indexer close: %w", err)
	}
	close(errCh)
	for e := range errCh {
		resp.Errors = append(resp.Errors, e)
	}
	resp.Indexed = indexed.Load()
	resp.Failed = failed.Load()

	if resp.Failed > 0 {
		return resp, fmt.Errorf("%d of %d records failed to index into %s", resp.Failed, t.Len(), index)
	}
	return resp, nil
}

// ensureIndex creates the index with a mapping that keeps the timestamp a
// date and every string column an exact-match keyword.
func (i *Indexer) ensureIndex(ctx context.Context, index string) error {
	exists, err := i.client.Indices.Exists([]string{index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(indexMapping())
	if err != nil {
		return err
	}
	res, err := i.client.Indices.Create(index,
		i.client.Indices.Create.WithBody(bytes.NewReader(body)),
		i.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", index, res.Status())
	}
	return nil
}

func indexMapping() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]any{
			"dynamic_templates": []any{
				map[string]any{
					"strings_as_keywords": map[string]any{
						"match_mapping_type": "string",
						"mapping":            map[string]any{"type": "keyword"},
					},
				},
			},
			"properties": map[string]any{
				synth.ColumnEventID:   map[string]any{"type": "keyword"},
				synth.ColumnTimestamp: map[string]any{"type": "date", "format": "strict_date_time_no_millis"},
			},
		},
	}
}
