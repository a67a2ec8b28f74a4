// files.go
package querier

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/parqplot/parqplot/core"
)

// supportedFormats maps file extensions to a human-readable format name.
var supportedFormats = map[string]string{
	".parquet": "Parquet",
	".csv":     "CSV",
	".tsv":     "CSV",
	".json":    "JSON",
	".jsonl":   "JSON",
	".ndjson":  "JSON",
}

// FileInfo describes one data file exposed by the catalog.
type FileInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeBytes int64   `json:"size_bytes"`
	SizeMB    float64 `json:"size_mb"`
	Format    string  `json:"format"`
}

// Catalog tracks which data files and directories are exposed over the
// API. With no selected paths it falls back to the data directory.
type Catalog struct {
	DataDir string

	mu            sync.RWMutex
	selectedPaths []string
}

// NewCatalog creates a catalog rooted at the given data directory.
func NewCatalog(dataDir string) *Catalog {
	return &Catalog{DataDir: dataDir}
}

// inferFormat returns the format name for a path, or "" if unsupported.
func inferFormat(path string) string {
	return supportedFormats[strings.ToLower(filepath.Ext(path))]
}

// scanExpr returns the DuckDB table function call that reads the file.
// The path is embedded as an escaped string literal.
func scanExpr(path string) (string, error) {
	lit := "'" + sqlEscape(path) + "'"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return fmt.Sprintf("read_parquet(%s)", lit), nil
	case ".csv", ".tsv":
		return fmt.Sprintf("read_csv_auto(%s)", lit), nil
	case ".json", ".jsonl", ".ndjson":
		return fmt.Sprintf("read_json_auto(%s)", lit), nil
	}
	return "", core.NewValidationErrorf("unsupported file format: %s", filepath.Ext(path))
}

// SetPaths replaces the selected files/directories. Paths are
// normalized to absolute form; nonexistent entries are kept out.
func (c *Catalog) SetPaths(paths []string) int {
	var normalized []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		normalized = append(normalized, abs)
	}

	c.mu.Lock()
	c.selectedPaths = normalized
	c.mu.Unlock()
	return len(normalized)
}

// List returns the supported data files under the selected paths, or
// under the data directory when nothing has been selected. Entries are
// deduplicated by absolute path.
func (c *Catalog) List() ([]FileInfo, error) {
	c.mu.RLock()
	paths := append([]string(nil), c.selectedPaths...)
	c.mu.RUnlock()

	if len(paths) == 0 {
		paths = []string{c.DataDir}
	}

	var files []FileInfo
	seen := make(map[string]bool)

	for _, raw := range paths {
		abs, err := filepath.Abs(raw)
		if err != nil {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}

		if info.IsDir() {
			entries, err := os.ReadDir(abs)
			if err != nil {
				continue
			}
			names := make([]string, 0, len(entries))
			for _, entry := range entries {
				if !entry.IsDir() {
					names = append(names, entry.Name())
				}
			}
			sort.Strings(names)
			for _, name := range names {
				child := filepath.Join(abs, name)
				if fi, ok := statDataFile(child); ok && !seen[child] {
					files = append(files, fi)
					seen[child] = true
				}
			}
			continue
		}

		if fi, ok := statDataFile(abs); ok && !seen[abs] {
			files = append(files, fi)
			seen[abs] = true
		}
	}

	return files, nil
}

// Resolve validates that path names an existing supported data file and
// returns its canonical absolute form.
func (c *Catalog) Resolve(path string) (string, error) {
	if path == "" {
		return "", core.NewValidationErrorf("missing 'file' parameter")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", core.NewValidationErrorf("invalid file path: %s", path)
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", core.NewNotFoundErrorf("file not found: %s", path)
	}
	if inferFormat(abs) == "" {
		return "", core.NewValidationErrorf("unsupported file format: %s", filepath.Ext(abs))
	}
	return abs, nil
}

func statDataFile(path string) (FileInfo, bool) {
	format := inferFormat(path)
	if format == "" {
		return FileInfo{}, false
	}
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, false
	}
	sizeMB := math.Round(float64(info.Size())/(1024*1024)*100) / 100
	return FileInfo{
		Name:      info.Name(),
		Path:      path,
		SizeBytes: info.Size(),
		SizeMB:    sizeMB,
		Format:    format,
	}, true
}
