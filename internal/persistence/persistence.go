// Package persistence writes job results to durable storage.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Serializer converts a value to bytes for storage.
type Serializer interface {
	Serialize(v any) ([]byte, error)
}

// Writer stores serialized bytes under a name.
type Writer interface {
	Write(name string, data []byte) error
}

// JSONSerializer serializes values as indented JSON.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize to JSON: %w", err)
	}
	return data, nil
}

// FileWriter writes results into a directory, one file per name.
// The directory is created on first write.
type FileWriter struct {
	Dir string
}

func (w FileWriter) Write(name string, data []byte) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	path := filepath.Join(w.Dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// WriteJSONToFile serializes v as JSON and stores it via the writer.
func WriteJSONToFile(w Writer, name string, v any) error {
	data, err := JSONSerializer{}.Serialize(v)
	if err != nil {
		return err
	}
	return w.Write(name, data)
}
