// Package results formats trait measurements and appends them to result
// stores.
package results

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row is one named measurement.
type Row struct {
	Label string
	Value any
}

// Block is a group of rows written as a header line of labels followed by a
// data line of values.
type Block struct {
	Header string // e.g. HEADER_SHAPES
	Data   string // e.g. SHAPES_DATA
	Rows   []Row
}

// NewBlock returns a block tagged HEADER_<name> / <name>_DATA.
func NewBlock(name string, rows ...Row) Block {
	return Block{Header: "HEADER_" + name, Data: name + "_DATA", Rows: rows}
}

// Add appends a row.
func (b *Block) Add(label string, value any) {
	b.Rows = append(b.Rows, Row{Label: label, Value: value})
}

// Value returns the value stored under label.
func (b Block) Value(label string) (any, bool) {
	for _, r := range b.Rows {
		if r.Label == label {
			return r.Value, true
		}
	}
	return nil, false
}

// Lines renders the block as its tab-separated header and data lines.
func (b Block) Lines() (header, data string) {
	labels := make([]string, 0, len(b.Rows)+1)
	values := make([]string, 0, len(b.Rows)+1)
	labels = append(labels, b.Header)
	values = append(values, b.Data)
	for _, r := range b.Rows {
		labels = append(labels, r.Label)
		values = append(values, FormatValue(r.Value))
	}
	return strings.Join(labels, "\t"), strings.Join(values, "\t")
}

// FormatValue renders a measurement the way result files expect: integers
// plainly, floats in shortest form, vectors as "[a, b, ...]".
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []int:
		parts := make([]string, len(x))
		for i, n := range x {
			parts[i] = strconv.Itoa(n)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []float64:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}

// Kind tells which image a record measures.
type Kind string

const (
	KindVIS Kind = "VIS"
	KindNIR Kind = "NIR"
)

// Record is the full set of blocks measured on one image.
type Record struct {
	RunID  string
	Image  string
	Kind   Kind
	Time   time.Time
	Blocks []Block
}

// Sink stores records. Implementations must accept concurrent writers and
// keep each record's lines contiguous.
type Sink interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}

// MultiSink writes every record to all of its sinks in order.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, rec Record) error {
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all sinks and returns the first error.
func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
