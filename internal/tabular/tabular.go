// Package tabular writes synthesized log tables to disk as CSV or JSON lines.
package tabular

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/telhawk-systems/rangehawk/internal/synth"
)

type Format string

const (
	CSV   Format = "csv"
	JSONL Format = "jsonl"
)

// ParseFormat accepts "csv" or "jsonl".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case CSV, JSONL:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown table format %q (want csv or jsonl)", s)
}

// Write encodes t to w in the given format.
func Write(w io.Writer, t *synth.Table, format Format) error {
	switch format {
	case CSV:
		return WriteCSV(w, t)
	case JSONL:
		return WriteJSONL(w, t)
	}
	return fmt.Errorf("unknown table format %q", format)
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, t *synth.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for i := range t.Len() {
		if err := cw.Write(t.Row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSONL writes one JSON object per record. Numeric columns stay numeric.
func WriteJSONL(w io.Writer, t *synth.Table) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range t.Len() {
		if err := enc.Encode(t.Document(i)); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// WriteFile writes t to <dir>/<source>.<format> and returns the path.
func WriteFile(dir string, t *synth.Table, format Format) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%s", t.Source, format))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := Write(f, t, format); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}
