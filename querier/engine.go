// engine.go
package querier

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/parqplot/parqplot/core"
)

// Ensure DuckEngine implements core.Engine interface
var _ core.Engine = (*DuckEngine)(nil)

// DuckEngine owns the single shared DuckDB connection used by the
// downsampling path. The underlying connection is not safe for
// concurrent statement execution, so QueryRows serializes all callers.
type DuckEngine struct {
	DB          *sql.DB
	Threads     int
	MemoryLimit string

	mu sync.Mutex
}

// NewDuckEngine creates an engine with the given resource limits.
func NewDuckEngine(threads int, memoryLimit string) *DuckEngine {
	return &DuckEngine{
		Threads:     threads,
		MemoryLimit: memoryLimit,
	}
}

// Initialize opens the DuckDB connection and applies resource limits.
func (e *DuckEngine) Initialize() error {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %v", err)
	}

	if e.Threads > 0 {
		if _, err := db.Exec(fmt.Sprintf("SET threads = %d", e.Threads)); err != nil {
			db.Close()
			return fmt.Errorf("failed to set thread limit: %v", err)
		}
	}
	if e.MemoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit = '%s'", sqlEscape(e.MemoryLimit))); err != nil {
			db.Close()
			return fmt.Errorf("failed to set memory limit: %v", err)
		}
	}

	e.DB = db
	return nil
}

// QueryRows executes generated SQL text and scans every row into a map
// keyed by column name. Execution is exclusive: one statement at a time.
func (e *DuckEngine) QueryRows(ctx context.Context, query string) ([]map[string]interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	core.Debugf(ctx, "Executing query: %s", query)

	rows, err := e.DB.Query(query)
	if err != nil {
		return nil, &core.ExecutionError{Query: query, Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &core.ExecutionError{Query: query, Err: err}
	}

	var result []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, &core.ExecutionError{Query: query, Err: err}
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, &core.ExecutionError{Query: query, Err: err}
	}

	core.Debugf(ctx, "Got query result in: %v", time.Since(start))
	return result, nil
}

// Close releases resources
func (e *DuckEngine) Close() error {
	if e.DB != nil {
		return e.DB.Close()
	}
	return nil
}

// sqlEscape doubles single quotes for embedding in a string literal.
func sqlEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// quoteIdent quotes a pre-validated identifier for DuckDB.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
