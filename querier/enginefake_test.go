package querier

import (
	"context"
	"strings"
	"sync"
)

// fakeEngine is a scripted core.Engine used to exercise the planning
// pipeline without a DuckDB connection. Every executed query is
// recorded; responses come from the respond callback.
type fakeEngine struct {
	mu      sync.Mutex
	queries []string
	respond func(query string) ([]map[string]interface{}, error)
}

func (f *fakeEngine) Initialize() error { return nil }
func (f *fakeEngine) Close() error      { return nil }

func (f *fakeEngine) QueryRows(ctx context.Context, query string) ([]map[string]interface{}, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(query)
}

func (f *fakeEngine) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func describeRows(cols ...[2]string) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(cols))
	for i, c := range cols {
		rows[i] = map[string]interface{}{"column_name": c[0], "column_type": c[1]}
	}
	return rows
}

func isDescribe(query string) bool {
	return strings.HasPrefix(query, "DESCRIBE ")
}

func isCount(query string) bool {
	return strings.HasPrefix(query, "SELECT count(*) AS total_count")
}
