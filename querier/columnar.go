// columnar.go
package querier

import (
	"strconv"
	"time"
)

// ToColumnar reshapes row-oriented results into one ordered sequence
// per column, time column first. Every requested column gets an entry
// even when no rows matched.
func ToColumnar(rows []map[string]interface{}, timeColumn string, valueColumns []string) map[string][]interface{} {
	columns := append([]string{timeColumn}, valueColumns...)

	data := make(map[string][]interface{}, len(columns))
	for _, col := range columns {
		data[col] = make([]interface{}, 0, len(rows))
	}

	for _, row := range rows {
		for _, col := range columns {
			data[col] = append(data[col], coerceNumeric(row[col]))
		}
	}

	return data
}

// coerceNumeric passes native numerics through and attempts a
// best-effort conversion for everything else, keeping the original
// value when conversion fails. Engines hand back decimals as strings;
// this tolerates them without corrupting the response.
func coerceNumeric(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return val
	case bool:
		return val
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
		return val
	case []byte:
		if f, err := strconv.ParseFloat(string(val), 64); err == nil {
			return f
		}
		return string(val)
	case time.Time:
		return float64(val.UnixNano()) / float64(time.Second)
	}
	return v
}
