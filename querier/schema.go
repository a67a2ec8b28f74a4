// schema.go
package querier

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/parqplot/parqplot/core"
)

// Column describes one column of a data file.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Category string `json:"category"`
}

// Category values assigned by categorizeType.
const (
	CategoryTemporal = "temporal"
	CategoryNumeric  = "numeric"
	CategoryString   = "string"
	CategoryBoolean  = "boolean"
	CategoryOther    = "other"
)

var temporalKeywords = []string{"timestamp", "date", "time"}
var numericKeywords = []string{"int", "float", "double", "decimal", "numeric", "bigint", "smallint", "tinyint", "real"}
var stringKeywords = []string{"varchar", "char", "string", "text"}
var timestampKeywords = []string{"timestamp", "datetime", "date", "time"}

// SchemaInspector derives and caches column descriptors per file. The
// cache is keyed by canonical path and never invalidated; restart the
// process if files change shape.
type SchemaInspector struct {
	Engine core.Engine

	mu    sync.RWMutex
	cache map[string][]Column
}

// NewSchemaInspector creates an inspector backed by the given engine.
func NewSchemaInspector(engine core.Engine) *SchemaInspector {
	return &SchemaInspector{
		Engine: engine,
		cache:  make(map[string][]Column),
	}
}

// categorizeType maps a native type name to its semantic category via
// case-insensitive substring match. Temporal is checked first so that
// e.g. DATETIME never falls into another bucket.
func categorizeType(nativeType string) string {
	t := strings.ToLower(nativeType)
	for _, kw := range temporalKeywords {
		if strings.Contains(t, kw) {
			return CategoryTemporal
		}
	}
	for _, kw := range numericKeywords {
		if strings.Contains(t, kw) {
			return CategoryNumeric
		}
	}
	for _, kw := range stringKeywords {
		if strings.Contains(t, kw) {
			return CategoryString
		}
	}
	if strings.Contains(t, "bool") {
		return CategoryBoolean
	}
	return CategoryOther
}

// isTimestampType reports whether a native type name denotes a genuine
// timestamp/date type, as opposed to a numeric time axis.
func isTimestampType(nativeType string) bool {
	t := strings.ToLower(nativeType)
	for _, kw := range timestampKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// Describe returns the ordered column descriptors of a file, serving
// repeated lookups from the cache.
func (s *SchemaInspector) Describe(ctx context.Context, file string) ([]Column, error) {
	s.mu.RLock()
	cached, ok := s.cache[file]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	scan, err := scanExpr(file)
	if err != nil {
		return nil, err
	}

	rows, err := s.Engine.QueryRows(ctx, fmt.Sprintf("DESCRIBE SELECT * FROM %s", scan))
	if err != nil {
		return nil, err
	}

	columns := make([]Column, 0, len(rows))
	for _, row := range rows {
		name, _ := row["column_name"].(string)
		nativeType, _ := row["column_type"].(string)
		columns = append(columns, Column{
			Name:     name,
			Type:     nativeType,
			Category: categorizeType(nativeType),
		})
	}

	s.mu.Lock()
	s.cache[file] = columns
	s.mu.Unlock()

	return columns, nil
}

// Lookup returns the descriptor of one column, failing with a
// ValidationError when the column is not part of the schema.
func (s *SchemaInspector) Lookup(ctx context.Context, file, column string) (Column, error) {
	columns, err := s.Describe(ctx, file)
	if err != nil {
		return Column{}, err
	}
	for _, c := range columns {
		if c.Name == column {
			return c, nil
		}
	}
	return Column{}, core.NewValidationErrorf("column not found: %s", column)
}

// IsTimestamp reports whether a column carries a genuine timestamp
// type. The answer is derived from the cached descriptors, so it stays
// consistent for the lifetime of a request.
func (s *SchemaInspector) IsTimestamp(ctx context.Context, file, column string) (bool, error) {
	col, err := s.Lookup(ctx, file, column)
	if err != nil {
		return false, err
	}
	return isTimestampType(col.Type), nil
}
