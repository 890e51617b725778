// Package feeder supplies per-iteration template fields from CSV or JSON datasets.
package feeder

import (
	"fmt"
	"strings"
	"sync"
)

// Record represents a single row of data with named fields.
type Record map[string]string

// Feeder hands out records in deterministic round-robin order. Once the last record
// has been returned it wraps to the first, so Next never fails.
// Implementations must be safe for concurrent use.
type Feeder interface {
	Next() Record
	Len() int
	Close() error
}

// Open builds the feeder described by kind ("csv" or "json") for path.
func Open(kind, path string) (Feeder, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "csv":
		return NewCSVFeeder(path)
	case "json":
		return NewJSONFeeder(path)
	default:
		return nil, fmt.Errorf("unsupported feeder type %q", kind)
	}
}

// cycle is the shared round-robin cursor behind every file-backed feeder.
type cycle struct {
	mu      sync.Mutex
	records []Record
	index   int
}

func (c *cycle) Next() Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	record := c.records[c.index]
	c.index = (c.index + 1) % len(c.records)
	return record
}

func (c *cycle) Len() int {
	return len(c.records)
}

func (c *cycle) Close() error {
	return nil
}

// Static returns a feeder over an in-memory dataset. It panics on an empty slice.
func Static(records ...Record) Feeder {
	if len(records) == 0 {
		panic("feeder: Static requires at least one record")
	}
	return &cycle{records: records}
}
