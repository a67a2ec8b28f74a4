package core

import (
	"context"
)

// Engine defines the interface to the analytic query engine
type Engine interface {
	// QueryRows executes generated SQL and returns the result rows
	QueryRows(ctx context.Context, query string) ([]map[string]interface{}, error)

	// Initialize sets up the engine connection
	Initialize() error

	// Close releases resources
	Close() error
}
