package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoRecords is returned by LoadDir when the directory holds no record files.
var ErrNoRecords = errors.New("no resume records found")

// LoadError reports a record file that could not be read or decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load resume record %q: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Source is a loaded record together with the file it came from.
type Source struct {
	Path   string
	Record Record
}

// IsRecordFile reports whether the file name has a supported record extension.
func IsRecordFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// LoadDir reads every record file directly under dir, ordered by file name.
// The first unreadable or malformed file aborts the load.
func LoadDir(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	sources := make([]Source, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsRecordFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		record, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, Source{Path: path, Record: record})
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoRecords, dir)
	}

	return sources, nil
}

// LoadFile decodes a single JSON or YAML record file.
func LoadFile(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var raw any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	if _, ok := raw.(map[string]any); !ok {
		return nil, &LoadError{Path: path, Err: errors.New("top-level value must be an object")}
	}

	return Record(asObject(raw)), nil
}
