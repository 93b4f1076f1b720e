package synth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/telhawk-systems/rangehawk/internal/scenario"
)

const (
	ColumnEventID   = "event_id"
	ColumnTimestamp = "timestamp"
)

// Record is one log event.
type Record struct {
	ID       string
	Time     time.Time
	Fields   Fields
	Injected bool

	// Step is the narrative sequence number of an injected record, -1 for noise.
	Step int
}

// Table is the time-ordered event log of one source.
type Table struct {
	Source  scenario.Source
	Columns []string
	Records []Record
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Records)
}

// Row renders record i as strings in column order.
func (t *Table) Row(i int) []string {
	r := t.Records[i]
	row := make([]string, len(t.Columns))
	for c, col := range t.Columns {
		switch col {
		case ColumnEventID:
			row[c] = r.ID
		case ColumnTimestamp:
			row[c] = scenario.FormatTime(r.Time)
		default:
			row[c] = formatValue(r.Fields[col])
		}
	}
	return row
}

// Document renders record i as a document keyed by column name, keeping
// numeric columns numeric.
func (t *Table) Document(i int) map[string]any {
	r := t.Records[i]
	doc := make(map[string]any, len(t.Columns))
	for _, col := range t.Columns {
		switch col {
		case ColumnEventID:
			doc[col] = r.ID
		case ColumnTimestamp:
			doc[col] = scenario.FormatTime(r.Time)
		default:
			doc[col] = r.Fields[col]
		}
	}
	return doc
}

// Injected returns the attacker records in time order.
func (t *Table) Injected() []Record {
	var out []Record
	for _, r := range t.Records {
		if r.Injected {
			out = append(out, r)
		}
	}
	return out
}

// Values returns every value of a column, in row order.
func (t *Table) Values(col string) []string {
	out := make([]string, 0, len(t.Records))
	for i := range t.Records {
		out = append(out, formatValue(t.Document(i)[col]))
	}
	return out
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprint(val)
	}
}
