package sink

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensics-collect/collector/internal/manifest"
)

type testRow struct {
	Name string `json:"name"`
}

func TestPushFlushesAutomaticallyAtBatchSize(t *testing.T) {
	dir := t.TempDir()
	s := New("mft", dir, manifest.FormatJSONL, false, nil)
	s.batchSize = 2

	require.NoError(t, s.Push(testRow{"a"}))
	require.NoError(t, s.Push(testRow{"b"}))
	assert.Len(t, s.Files(), 1)
	assert.Empty(t, s.batch)
}

func TestFinalizeWritesJSONLRows(t *testing.T) {
	dir := t.TempDir()
	s := New("usn", dir, manifest.FormatJSONL, false, nil)
	require.NoError(t, s.Push(testRow{"one"}))
	require.NoError(t, s.Push(testRow{"two"}))

	files, err := s.Finalize()
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	var rows []testRow
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r testRow
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		rows = append(rows, r)
	}
	require.Len(t, rows, 2)
	assert.Equal(t, "one", rows[0].Name)
	assert.Equal(t, "two", rows[1].Name)
}

func TestFinalizeWritesGzipCompressedJSON(t *testing.T) {
	dir := t.TempDir()
	s := New("bits", dir, manifest.FormatJSON, true, nil)
	require.NoError(t, s.Push(testRow{"compressed"}))

	files, err := s.Finalize()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, filepath.Ext(files[0]) == ".gz")

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var rows []testRow
	require.NoError(t, json.NewDecoder(gz).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "compressed", rows[0].Name)
}

func TestPushAppliesFilter(t *testing.T) {
	dir := t.TempDir()
	filter := func(row interface{}) bool {
		r, ok := row.(testRow)
		return ok && r.Name != "drop me"
	}
	s := New("lnk", dir, manifest.FormatJSONL, false, filter)
	require.NoError(t, s.Push(testRow{"keep"}))
	require.NoError(t, s.Push(testRow{"drop me"}))

	files, err := s.Finalize()
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "keep")
	assert.NotContains(t, string(data), "drop me")
}

func TestFinalizeWithNoRowsWritesNoFiles(t *testing.T) {
	dir := t.TempDir()
	s := New("empty", dir, manifest.FormatJSONL, false, nil)
	files, err := s.Finalize()
	require.NoError(t, err)
	assert.Empty(t, files)
}
