// downsample.go
package querier

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/parqplot/parqplot/core"
)

// Downsampling strategies.
const (
	MethodLTTB   = "lttb"
	MethodMinMax = "minmax"
	MethodAvg    = "avg"
)

// Internal aliases used inside generated queries. Prefixed to stay out
// of the way of user column names.
const (
	aliasTime   = `"__ds_t"`
	aliasRank   = `"__ds_rn"`
	aliasTotal  = `"__ds_total"`
	aliasBucket = `"__ds_bucket"`
	aliasPos    = `"__ds_pos"`
)

// DownsampleRequest is the planner input. Start/End are epoch seconds;
// a nil bound is unbounded on that side.
type DownsampleRequest struct {
	File         string
	TimeColumn   string
	ValueColumns []string
	StartTime    *float64
	EndTime      *float64
	MaxPoints    int
	Method       string
}

// DownsampleResult is the columnar response payload. Data maps each
// requested column to its ordered value sequence; the time axis is
// always numeric epoch seconds.
type DownsampleResult struct {
	Data             map[string][]interface{} `json:"data"`
	TotalPoints      int64                    `json:"total_points"`
	ReturnedPoints   int                      `json:"returned_points"`
	Downsampled      bool                     `json:"downsampled"`
	DownsampleMethod *string                  `json:"downsample_method"`
}

// Downsampler plans and executes bounded-cardinality queries.
type Downsampler struct {
	Engine core.Engine
	Schema *SchemaInspector
}

// NewDownsampler creates a planner sharing the inspector's cache.
func NewDownsampler(engine core.Engine, schema *SchemaInspector) *Downsampler {
	return &Downsampler{Engine: engine, Schema: schema}
}

// bucketCount derives the number of buckets for a strategy. Minmax
// halves the budget; the other strategies use it directly.
func bucketCount(method string, budget int) int {
	if method == MethodMinMax {
		return budget / 2
	}
	return budget
}

// validate checks the request against the schema before any query is
// issued against the engine.
func (d *Downsampler) validate(ctx context.Context, req *DownsampleRequest) error {
	if req.MaxPoints <= 0 {
		return core.NewValidationErrorf("max_points must be positive, got %d", req.MaxPoints)
	}
	switch req.Method {
	case MethodLTTB, MethodMinMax, MethodAvg:
	default:
		return core.NewValidationErrorf("unknown downsample_method: %s", req.Method)
	}
	if bucketCount(req.Method, req.MaxPoints) < 1 {
		return core.NewValidationErrorf("max_points %d is too small for method %s", req.MaxPoints, req.Method)
	}
	if req.TimeColumn == "" {
		return core.NewValidationErrorf("missing time_column")
	}
	if len(req.ValueColumns) == 0 {
		return core.NewValidationErrorf("missing value_columns")
	}

	if _, err := d.Schema.Lookup(ctx, req.File, req.TimeColumn); err != nil {
		return err
	}
	for _, col := range req.ValueColumns {
		if _, err := d.Schema.Lookup(ctx, req.File, col); err != nil {
			return err
		}
	}
	return nil
}

// Downsample runs the full planning pipeline: classify the time axis,
// count matching rows, then either project raw rows or aggregate into
// buckets depending on the budget.
func (d *Downsampler) Downsample(ctx context.Context, req *DownsampleRequest) (*DownsampleResult, error) {
	if err := d.validate(ctx, req); err != nil {
		return nil, err
	}

	isTS, err := d.Schema.IsTimestamp(ctx, req.File, req.TimeColumn)
	if err != nil {
		return nil, err
	}

	scan, err := scanExpr(req.File)
	if err != nil {
		return nil, err
	}

	pred := windowPredicate(req.TimeColumn, isTS, req.StartTime, req.EndTime)

	countRows, err := d.Engine.QueryRows(ctx, buildCountQuery(scan, pred))
	if err != nil {
		return nil, err
	}
	var total int64
	if len(countRows) > 0 {
		total = asInt64(countRows[0]["total_count"])
	}

	downsampled := total > int64(req.MaxPoints)

	var query string
	if !downsampled {
		query = buildRawQuery(scan, req.TimeColumn, isTS, req.ValueColumns, pred)
	} else {
		buckets := bucketCount(req.Method, req.MaxPoints)
		switch req.Method {
		case MethodMinMax:
			query = buildFirstInBucketQuery(scan, req.TimeColumn, isTS, req.ValueColumns, pred, buckets)
		default:
			// avg and lttb share the min-time + bucket-average shape.
			query = buildBucketAverageQuery(scan, req.TimeColumn, isTS, req.ValueColumns, pred, buckets)
		}
	}

	rows, err := d.Engine.QueryRows(ctx, query)
	if err != nil {
		return nil, err
	}

	result := &DownsampleResult{
		Data:           ToColumnar(rows, req.TimeColumn, req.ValueColumns),
		TotalPoints:    total,
		ReturnedPoints: len(rows),
		Downsampled:    downsampled,
	}
	if downsampled {
		method := req.Method
		result.DownsampleMethod = &method
	}
	return result, nil
}

// formatEpoch renders an epoch-second bound as a plain numeric literal.
func formatEpoch(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// timeExpr is the epoch-seconds projection of the time column. Numeric
// time axes are interpreted as already-epoch-valued.
func timeExpr(timeColumn string, isTimestamp bool) string {
	if isTimestamp {
		return fmt.Sprintf("epoch(%s)", quoteIdent(timeColumn))
	}
	return quoteIdent(timeColumn)
}

// windowPredicate builds the inclusive time-window filter. Epoch bounds
// convert to the column's native representation only for timestamp
// columns. Returns "" when both bounds are absent.
func windowPredicate(timeColumn string, isTimestamp bool, start, end *float64) string {
	ident := quoteIdent(timeColumn)
	var parts []string
	for _, bound := range []struct {
		op  string
		val *float64
	}{{">=", start}, {"<=", end}} {
		if bound.val == nil {
			continue
		}
		lit := formatEpoch(*bound.val)
		if isTimestamp {
			parts = append(parts, fmt.Sprintf("%s %s to_timestamp(%s)", ident, bound.op, lit))
		} else {
			parts = append(parts, fmt.Sprintf("%s %s %s", ident, bound.op, lit))
		}
	}
	return strings.Join(parts, " AND ")
}

func whereClause(pred string) string {
	if pred == "" {
		return ""
	}
	return " WHERE " + pred
}

// buildCountQuery counts the rows matching the window. Always executed,
// even when no aggregation follows, to report accurate point counts.
func buildCountQuery(scan, pred string) string {
	return fmt.Sprintf("SELECT count(*) AS total_count FROM %s%s", scan, whereClause(pred))
}

func selectValueList(valueColumns []string) string {
	parts := make([]string, len(valueColumns))
	for i, col := range valueColumns {
		parts[i] = quoteIdent(col)
	}
	return strings.Join(parts, ", ")
}

// buildRawQuery projects the matching rows unaggregated, time first as
// epoch seconds, ordered by the time axis ascending.
func buildRawQuery(scan, timeColumn string, isTimestamp bool, valueColumns []string, pred string) string {
	return fmt.Sprintf("SELECT %s AS %s, %s FROM %s%s ORDER BY 1 ASC",
		timeExpr(timeColumn, isTimestamp), quoteIdent(timeColumn),
		selectValueList(valueColumns), scan, whereClause(pred))
}

// rankedCTE ranks matching rows by ascending time and carries the
// window row count: rn is the zero-based rank, total the row count.
func rankedCTE(scan, timeColumn string, isTimestamp bool, valueColumns []string, pred string) string {
	return fmt.Sprintf(
		"SELECT %s AS %s, %s, row_number() OVER (ORDER BY %s) - 1 AS %s, count(*) OVER () AS %s FROM %s%s",
		timeExpr(timeColumn, isTimestamp), aliasTime,
		selectValueList(valueColumns),
		quoteIdent(timeColumn), aliasRank,
		aliasTotal, scan, whereClause(pred))
}

// bucketedCTE assigns each ranked row a contiguous bucket index via
// floor division: bucket = (rn * buckets) // total. Trailing rows may
// cluster into the last bucket when the total is not evenly divisible.
func bucketedCTE(buckets int) string {
	return fmt.Sprintf("SELECT *, (%s * %d) // %s AS %s FROM ranked",
		aliasRank, buckets, aliasTotal, aliasBucket)
}

// buildBucketAverageQuery reduces each bucket to one row: the earliest
// time in the bucket plus the arithmetic mean of every value column.
func buildBucketAverageQuery(scan, timeColumn string, isTimestamp bool, valueColumns []string, pred string, buckets int) string {
	aggs := make([]string, len(valueColumns))
	for i, col := range valueColumns {
		aggs[i] = fmt.Sprintf("avg(%s) AS %s", quoteIdent(col), quoteIdent(col))
	}
	return fmt.Sprintf(
		"WITH ranked AS (%s), bucketed AS (%s) SELECT min(%s) AS %s, %s FROM bucketed GROUP BY %s ORDER BY %s",
		rankedCTE(scan, timeColumn, isTimestamp, valueColumns, pred),
		bucketedCTE(buckets),
		aliasTime, quoteIdent(timeColumn),
		strings.Join(aggs, ", "),
		aliasBucket, aliasBucket)
}

// buildFirstInBucketQuery samples the first row of each bucket by time
// order, keeping real observed data points on the chart instead of
// averaged ones.
func buildFirstInBucketQuery(scan, timeColumn string, isTimestamp bool, valueColumns []string, pred string, buckets int) string {
	return fmt.Sprintf(
		"WITH ranked AS (%s), bucketed AS (%s), picked AS (SELECT *, row_number() OVER (PARTITION BY %s ORDER BY %s) AS %s FROM bucketed) SELECT %s AS %s, %s FROM picked WHERE %s = 1 ORDER BY %s",
		rankedCTE(scan, timeColumn, isTimestamp, valueColumns, pred),
		bucketedCTE(buckets),
		aliasBucket, aliasTime, aliasPos,
		aliasTime, quoteIdent(timeColumn),
		selectValueList(valueColumns),
		aliasPos, aliasTime)
}
