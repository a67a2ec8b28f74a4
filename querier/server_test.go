package querier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestServer builds a server over a temp data dir holding one
// parquet file, backed by a scripted engine.
func newTestServer(t *testing.T, engine *fakeEngine) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	file := writeFile(t, dir, "metrics.parquet", 1024)
	s := NewServer(engine, dir, t.TempDir(), true, 2000)
	return s, file
}

func scriptedEngine(total int64, dataRows []map[string]interface{}) *fakeEngine {
	return &fakeEngine{
		respond: func(query string) ([]map[string]interface{}, error) {
			switch {
			case isDescribe(query):
				return describeRows([2]string{"ts", "TIMESTAMP"}, [2]string{"v", "DOUBLE"}), nil
			case isCount(query):
				return []map[string]interface{}{{"total_count": total}}, nil
			default:
				return dataRows, nil
			}
		},
	}
}

func doRequest(t *testing.T, s *Server, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t, scriptedEngine(0, nil))
	w := doRequest(t, s, http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var body map[string]interface{}
	decodeBody(t, w, &body)
	require.Equal(t, "ok", body["status"])
}

func TestHandleFiles(t *testing.T) {
	s, file := newTestServer(t, scriptedEngine(0, nil))
	w := doRequest(t, s, http.MethodGet, "/api/files", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Files []FileInfo `json:"files"`
	}
	decodeBody(t, w, &body)
	require.Len(t, body.Files, 1)
	require.Equal(t, "metrics.parquet", body.Files[0].Name)
	require.Equal(t, file, body.Files[0].Path)
}

func TestHandleSetPaths(t *testing.T) {
	s, file := newTestServer(t, scriptedEngine(0, nil))

	w := doRequest(t, s, http.MethodPost, "/api/set_paths", map[string]interface{}{"paths": []string{file}})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	decodeBody(t, w, &body)
	require.Equal(t, true, body["ok"])
	require.EqualValues(t, 1, body["count"])

	// Missing paths array is a validation error
	w = doRequest(t, s, http.MethodPost, "/api/set_paths", map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleColumns(t *testing.T) {
	s, file := newTestServer(t, scriptedEngine(0, nil))

	w := doRequest(t, s, http.MethodGet, "/api/columns?file="+file, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Columns []Column `json:"columns"`
	}
	decodeBody(t, w, &body)
	require.Len(t, body.Columns, 2)
	require.Equal(t, Column{Name: "ts", Type: "TIMESTAMP", Category: CategoryTemporal}, body.Columns[0])
}

func TestHandleColumnsMissingFile(t *testing.T) {
	s, _ := newTestServer(t, scriptedEngine(0, nil))

	w := doRequest(t, s, http.MethodGet, "/api/columns?file=/nope/missing.parquet", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body ErrorResponse
	decodeBody(t, w, &body)
	require.Contains(t, body.Error, "file not found")
}

func TestHandleRange(t *testing.T) {
	engine := &fakeEngine{
		respond: func(query string) ([]map[string]interface{}, error) {
			if isDescribe(query) {
				return describeRows([2]string{"ts", "TIMESTAMP"}), nil
			}
			return []map[string]interface{}{{
				"min_val":     "2023-01-01 00:00:00",
				"max_val":     "2023-01-02 00:00:00",
				"min_epoch":   1672531200.0,
				"max_epoch":   1672617600.0,
				"total_count": int64(10000),
			}}, nil
		},
	}
	s, file := newTestServer(t, engine)

	w := doRequest(t, s, http.MethodGet, "/api/range?file="+file+"&time_column=ts", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body TimeRange
	decodeBody(t, w, &body)
	require.True(t, body.IsTimestamp)
	require.EqualValues(t, 10000, body.TotalCount)
	require.Equal(t, 1672531200.0, *body.MinEpoch)

	// Missing time_column is a validation error
	w = doRequest(t, s, http.MethodGet, "/api/range?file="+file, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleQueryDownsamples(t *testing.T) {
	s, file := newTestServer(t, scriptedEngine(10000, makeRows(100, 0)))

	w := doRequest(t, s, http.MethodPost, "/api/query", QueryRequest{
		File:             file,
		TimeColumn:       "ts",
		ValueColumns:     []string{"v"},
		MaxPoints:        ptrI(100),
		DownsampleMethod: MethodAvg,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body DownsampleResult
	decodeBody(t, w, &body)
	require.True(t, body.Downsampled)
	require.Equal(t, MethodAvg, *body.DownsampleMethod)
	require.EqualValues(t, 10000, body.TotalPoints)
	require.Equal(t, 100, body.ReturnedPoints)
	require.Len(t, body.Data["ts"], 100)
}

func TestHandleQueryDefaults(t *testing.T) {
	engine := scriptedEngine(500, makeRows(500, 0))
	s, file := newTestServer(t, engine)

	// No max_points and no method: defaults apply, below budget so raw
	w := doRequest(t, s, http.MethodPost, "/api/query", QueryRequest{
		File:         file,
		TimeColumn:   "ts",
		ValueColumns: []string{"v"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body DownsampleResult
	decodeBody(t, w, &body)
	require.False(t, body.Downsampled)
	require.Nil(t, body.DownsampleMethod)
	require.Equal(t, 500, body.ReturnedPoints)
}

func TestHandleQueryValidation(t *testing.T) {
	s, file := newTestServer(t, scriptedEngine(10000, nil))

	tests := []struct {
		name string
		req  QueryRequest
		code int
	}{
		{
			name: "zero max_points",
			req:  QueryRequest{File: file, TimeColumn: "ts", ValueColumns: []string{"v"}, MaxPoints: ptrI(0)},
			code: http.StatusBadRequest,
		},
		{
			name: "unknown value column",
			req:  QueryRequest{File: file, TimeColumn: "ts", ValueColumns: []string{"bogus"}},
			code: http.StatusBadRequest,
		},
		{
			name: "missing file",
			req:  QueryRequest{File: "/nope/missing.parquet", TimeColumn: "ts", ValueColumns: []string{"v"}},
			code: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, http.MethodPost, "/api/query", tt.req)
			require.Equal(t, tt.code, w.Code)

			var body ErrorResponse
			decodeBody(t, w, &body)
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestHandleQueryExecutionError(t *testing.T) {
	engine := &fakeEngine{
		respond: func(query string) ([]map[string]interface{}, error) {
			if isDescribe(query) {
				return describeRows([2]string{"ts", "TIMESTAMP"}, [2]string{"v", "DOUBLE"}), nil
			}
			return nil, fmt.Errorf("binder error: referenced table not found")
		},
	}
	s, file := newTestServer(t, engine)

	w := doRequest(t, s, http.MethodPost, "/api/query", QueryRequest{
		File:         file,
		TimeColumn:   "ts",
		ValueColumns: []string{"v"},
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body ErrorResponse
	decodeBody(t, w, &body)
	require.Contains(t, body.Error, "binder error")
}

func TestHandleQueryInvalidBody(t *testing.T) {
	s, _ := newTestServer(t, scriptedEngine(0, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, scriptedEngine(0, nil))

	req := httptest.NewRequest(http.MethodOptions, "/api/query", nil)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
}

func TestUIDisabled(t *testing.T) {
	s, _ := newTestServer(t, scriptedEngine(0, nil))
	w := doRequest(t, s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
