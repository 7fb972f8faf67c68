package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSerializer(t *testing.T) {
	data, err := JSONSerializer{}.Serialize(map[string]int{"code": 0})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":0}`, string(data))
}

func TestJSONSerializerUnsupportedType(t *testing.T) {
	_, err := JSONSerializer{}.Serialize(make(chan int))
	assert.Error(t, err)
}

func TestFileWriterCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	w := FileWriter{Dir: dir}

	require.NoError(t, w.Write("r1.json", []byte(`{"ok":true}`)))

	data, err := os.ReadFile(filepath.Join(dir, "r1.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))
}

func TestWriteJSONToFile(t *testing.T) {
	dir := t.TempDir()
	type result struct {
		Host     string `json:"host"`
		ExitCode int    `json:"exit_code"`
	}

	err := WriteJSONToFile(FileWriter{Dir: dir}, "job.json", result{Host: "web-1", ExitCode: 2})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "job.json"))
	require.NoError(t, err)

	var got result
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "web-1", got.Host)
	assert.Equal(t, 2, got.ExitCode)
}
