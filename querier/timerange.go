// timerange.go
package querier

import (
	"context"
	"fmt"
	"time"

	"github.com/parqplot/parqplot/core"
)

// TimeRange is the resolved domain of a time column, used by clients to
// establish the pannable window before querying data.
type TimeRange struct {
	Min         interface{} `json:"min"`
	Max         interface{} `json:"max"`
	MinEpoch    *float64    `json:"min_epoch"`
	MaxEpoch    *float64    `json:"max_epoch"`
	TotalCount  int64       `json:"total_count"`
	IsTimestamp bool        `json:"is_timestamp"`
}

// TimeRangeResolver computes min/max/count for a chosen time column.
type TimeRangeResolver struct {
	Engine core.Engine
	Schema *SchemaInspector
}

// NewTimeRangeResolver creates a resolver sharing the inspector's cache.
func NewTimeRangeResolver(engine core.Engine, schema *SchemaInspector) *TimeRangeResolver {
	return &TimeRangeResolver{Engine: engine, Schema: schema}
}

// Range resolves the native and epoch-second bounds of the time column
// plus the total row count. For timestamp columns the epoch projection
// runs engine-side in the same query, avoiding host timezone ambiguity.
func (r *TimeRangeResolver) Range(ctx context.Context, file, timeColumn string) (*TimeRange, error) {
	col, err := r.Schema.Lookup(ctx, file, timeColumn)
	if err != nil {
		return nil, err
	}
	isTS := isTimestampType(col.Type)

	scan, err := scanExpr(file)
	if err != nil {
		return nil, err
	}

	ident := quoteIdent(timeColumn)
	var query string
	if isTS {
		query = fmt.Sprintf(
			"SELECT min(%s) AS min_val, max(%s) AS max_val, epoch(min(%s)) AS min_epoch, epoch(max(%s)) AS max_epoch, count(*) AS total_count FROM %s",
			ident, ident, ident, ident, scan)
	} else {
		query = fmt.Sprintf(
			"SELECT min(%s) AS min_val, max(%s) AS max_val, count(*) AS total_count FROM %s",
			ident, ident, scan)
	}

	rows, err := r.Engine.QueryRows(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &core.ExecutionError{Query: query, Err: fmt.Errorf("empty aggregate result")}
	}
	row := rows[0]

	result := &TimeRange{
		Min:         row["min_val"],
		Max:         row["max_val"],
		TotalCount:  asInt64(row["total_count"]),
		IsTimestamp: isTS,
	}

	if isTS {
		result.MinEpoch, err = toEpochSeconds(row["min_epoch"])
		if err != nil {
			return nil, err
		}
		result.MaxEpoch, err = toEpochSeconds(row["max_epoch"])
		if err != nil {
			return nil, err
		}
	} else {
		result.MinEpoch, err = toEpochSeconds(row["min_val"])
		if err != nil {
			return nil, err
		}
		result.MaxEpoch, err = toEpochSeconds(row["max_val"])
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// toEpochSeconds converts a scanned value to epoch seconds. Nulls stay
// null, numerics pass through as float, time values convert via their
// instant. Anything else is an error.
func toEpochSeconds(v interface{}) (*float64, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &val, nil
	case float32:
		f := float64(val)
		return &f, nil
	case int64:
		f := float64(val)
		return &f, nil
	case int32:
		f := float64(val)
		return &f, nil
	case int:
		f := float64(val)
		return &f, nil
	case uint64:
		f := float64(val)
		return &f, nil
	case uint32:
		f := float64(val)
		return &f, nil
	case time.Time:
		f := float64(val.UnixNano()) / float64(time.Second)
		return &f, nil
	}
	return nil, fmt.Errorf("cannot convert %T to epoch seconds", v)
}

// asInt64 extracts an integer count from a scanned aggregate value.
func asInt64(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case uint64:
		return int64(val)
	case float64:
		return int64(val)
	}
	return 0
}
