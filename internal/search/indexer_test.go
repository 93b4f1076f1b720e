package search

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/rangehawk/internal/scenario"
	"github.com/telhawk-systems/rangehawk/internal/synth"
)

// fakeCluster answers the handful of endpoints the indexer uses.
type fakeCluster struct {
	mu        sync.Mutex
	indices   map[string]bool
	docs      map[string]map[string]any
	failBulk  bool
	createErr bool
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{indices: map[string]bool{}, docs: map[string]map[string]any{}}
}

func (c *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/":
		fmt.Fprint(w, `{"version":{"number":"2.11.0","distribution":"opensearch"}}`)
	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		c.handleBulk(w, r)
	case r.Method == http.MethodHead:
		if c.indices[strings.Trim(r.URL.Path, "/")] {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut:
		if c.createErr {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"bad mapping"}`)
			return
		}
		c.indices[strings.Trim(r.URL.Path, "/")] = true
		fmt.Fprint(w, `{"acknowledged":true}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (c *fakeCluster) handleBulk(w http.ResponseWriter, r *http.Request) {
	var items []map[string]any
	sc := bufio.NewScanner(r.Body)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		var meta map[string]map[string]any
		if err := json.Unmarshal(sc.Bytes(), &meta); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !sc.Scan() {
			break
		}
		var doc map[string]any
		if err := json.Unmarshal(sc.Bytes(), &doc); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id, _ := meta["index"]["_id"].(string)
		status := 201
		item := map[string]any{"_id": id, "status": status}
		if c.failBulk {
			item["status"] = 400
			item["error"] = map[string]any{"type": "mapper_parsing_exception", "reason": "boom"}
		} else {
			c.docs[id] = doc
		}
		items = append(items, map[string]any{"index": item})
	}
	json.NewEncoder(w).Encode(map[string]any{"took": 1, "errors": c.failBulk, "items": items})
}

func sampleTable() *synth.Table {
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	return &synth.Table{
		Source:  scenario.SourceAuth,
		Columns: []string{synth.ColumnEventID, synth.ColumnTimestamp, "user", "src_ip"},
		Records: []synth.Record{
			{ID: "a1", Time: base, Fields: synth.Fields{"user": "alice", "src_ip": "10.0.1.5"}, Step: -1},
			{ID: "a2", Time: base.Add(time.Minute), Fields: synth.Fields{"user": "bob", "src_ip": "185.199.110.7"}, Injected: true, Step: 0},
		},
	}
}

func newTestIndexer(t *testing.T, cluster *fakeCluster) *Indexer {
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	idx, err := NewIndexer(Config{URL: srv.URL, IndexPrefix: "RangeHawk"})
	require.NoError(t, err)
	return idx
}

func TestIndexName(t *testing.T) {
	assert.Equal(t, "rangehawk-abc-auth", IndexName("rangehawk", "ABC", scenario.SourceAuth))
	assert.Equal(t, "abc-iam", IndexName("", "abc", scenario.SourceIAM))
}

func TestIndexTable(t *testing.T) {
	cluster := newFakeCluster()
	idx := newTestIndexer(t, cluster)

	resp, err := idx.IndexTable(context.Background(), "inst-1", sampleTable())
	require.NoError(t, err)
	assert.Equal(t, "rangehawk-inst-1-auth", resp.Index)
	assert.EqualValues(t, 2, resp.Indexed)
	assert.Zero(t, resp.Failed)

	cluster.mu.Lock()
	assert.True(t, cluster.indices["rangehawk-inst-1-auth"])
	require.Len(t, cluster.docs, 2)
	doc := cluster.docs["a2"]
	cluster.mu.Unlock()
	assert.Equal(t, "bob", doc["user"])
	assert.Equal(t, "2024-01-15T09:01:00Z", doc["timestamp"])
	assert.NotContains(t, doc, "injected")

	// re-indexing reuses the index and overwrites by ID
	_, err = idx.IndexTable(context.Background(), "inst-1", sampleTable())
	require.NoError(t, err)
	assert.Len(t, cluster.docs, 2)
}

func TestIndexTable_Failures(t *testing.T) {
	cluster := newFakeCluster()
	cluster.failBulk = true
	idx := newTestIndexer(t, cluster)

	resp, err := idx.IndexTable(context.Background(), "inst-1", sampleTable())
	require.Error(t, err)
	assert.EqualValues(t, 2, resp.Failed)
	assert.Contains(t, resp.Errors[0], "mapper_parsing_exception")

	cluster.mu.Lock()
	cluster.failBulk = false
	cluster.createErr = true
	cluster.mu.Unlock()
	_, err = idx.IndexTable(context.Background(), "inst-2", sampleTable())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create index")
}

func TestNewIndexer_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewIndexer(Config{URL: srv.URL})
	assert.Error(t, err)
}
