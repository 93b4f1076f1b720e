package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/rangehawk/internal/scenario"
	"github.com/telhawk-systems/rangehawk/internal/synth"
)

func sampleTable() *synth.Table {
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	return &synth.Table{
		Source:  scenario.SourceNetwork,
		Columns: []string{synth.ColumnEventID, synth.ColumnTimestamp, "dst_ip", "bytes_sent", "note"},
		Records: []synth.Record{
			{ID: "e1", Time: base, Fields: synth.Fields{"dst_ip": "10.0.1.5", "bytes_sent": 512, "note": "plain"}, Step: -1},
			{ID: "e2", Time: base.Add(time.Minute), Fields: synth.Fields{"dst_ip": "185.199.110.7", "bytes_sent": int64(95_000_000), "note": "a, \"quoted\" value"}, Injected: true, Step: 0},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleTable()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"event_id", "timestamp", "dst_ip", "bytes_sent", "note"}, rows[0])
	assert.Equal(t, []string{"e1", "2024-01-15T09:00:00Z", "10.0.1.5", "512", "plain"}, rows[1])
	assert.Equal(t, "95000000", rows[2][3])
	assert.Equal(t, "a, \"quoted\" value", rows[2][4])
}

func TestWriteJSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, sampleTable()))

	var docs []map[string]any
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &doc))
		docs = append(docs, doc)
	}
	require.Len(t, docs, 2)
	assert.Equal(t, "2024-01-15T09:01:00Z", docs[1]["timestamp"])
	assert.EqualValues(t, 95_000_000, docs[1]["bytes_sent"])
	assert.Len(t, docs[0], 5)
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	for _, format := range []Format{CSV, JSONL} {
		path, err := WriteFile(dir, sampleTable(), format)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "network."+string(format)), path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "185.199.110.7")
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("jsonl")
	require.NoError(t, err)
	assert.Equal(t, JSONL, f)

	_, err = ParseFormat("parquet")
	assert.Error(t, err)
	assert.Error(t, Write(&bytes.Buffer{}, sampleTable(), "xml"))
}
