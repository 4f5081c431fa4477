// Package sink implements the collector's output stage (spec §5): rows
// produced by an artifact collector are pushed in, batched, optionally
// filtered, serialized as JSON or JSONL, optionally gzip-compressed, and
// written to a per-artifact file under the output directory.
package sink

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forensics-collect/collector/internal/ferrors"
	"github.com/forensics-collect/collector/internal/logging"
	"github.com/forensics-collect/collector/internal/manifest"
)

const component = "sink"

// defaultBatchSize matches the 1000-row batch size internal/mft declares
// (its batchSize constant) so every collector shares one flush rhythm
// regardless of which artifact is running.
const defaultBatchSize = 1000

// FilterFunc decides whether a row should be kept. Returning false drops
// the row before it reaches the batch buffer.
type FilterFunc func(row interface{}) bool

// Sink accumulates rows for one artifact and periodically flushes them
// to disk as a batch file.
type Sink struct {
	artifact   string
	dir        string
	format     manifest.Format
	compress   bool
	filter     FilterFunc
	batchSize  int
	batch      []interface{}
	batchIndex int
	rowsTotal  int
	files      []string
}

// New constructs a Sink for one artifact, writing batch files under
// dir/<artifact>-<n>.json[l][.gz].
func New(artifact, dir string, format manifest.Format, compress bool, filter FilterFunc) *Sink {
	return &Sink{
		artifact:  artifact,
		dir:       dir,
		format:    format,
		compress:  compress,
		filter:    filter,
		batchSize: defaultBatchSize,
	}
}

// Push adds one row to the current batch, flushing automatically once
// the batch reaches its size limit.
func (s *Sink) Push(row interface{}) error {
	if s.filter != nil && !s.filter(row) {
		return nil
	}
	s.batch = append(s.batch, row)
	s.rowsTotal++
	if len(s.batch) >= s.batchSize {
		return s.Flush()
	}
	return nil
}

// Flush writes the current batch to a new file and resets the buffer.
// Flushing an empty batch is a no-op.
func (s *Sink) Flush() error {
	if len(s.batch) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return ferrors.Wrap(ferrors.ErrOutput, component, "mkdir output directory", err)
	}

	path := s.batchPath()
	f, err := os.Create(path)
	if err != nil {
		return ferrors.Wrap(ferrors.ErrOutput, component, "create batch file", err)
	}
	defer f.Close()

	var w interface {
		Write([]byte) (int, error)
	} = f
	var gz *gzip.Writer
	if s.compress {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if err := s.writeBatch(w); err != nil {
		return ferrors.Wrap(ferrors.ErrSerialize, component, "serialize batch", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return ferrors.Wrap(ferrors.ErrCompressFailed, component, "close gzip writer", err)
		}
	}

	s.files = append(s.files, path)
	logging.Component(component).WithFields(map[string]interface{}{
		"artifact": s.artifact,
		"rows":     len(s.batch),
		"file":     path,
	}).Debug("flushed batch")

	s.batch = nil
	s.batchIndex++
	return nil
}

func (s *Sink) writeBatch(w interface{ Write([]byte) (int, error) }) error {
	switch s.format {
	case manifest.FormatJSONL:
		enc := json.NewEncoder(w)
		for _, row := range s.batch {
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	default:
		data, err := json.MarshalIndent(s.batch, "", "  ")
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
}

func (s *Sink) batchPath() string {
	ext := "json"
	if s.format == manifest.FormatJSONL {
		ext = "jsonl"
	}
	name := fmt.Sprintf("%s-%04d.%s", s.artifact, s.batchIndex, ext)
	if s.compress {
		name += ".gz"
	}
	return filepath.Join(s.dir, name)
}

// Finalize flushes any remaining rows and returns the full list of
// written file paths.
func (s *Sink) Finalize() ([]string, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}
	return s.files, nil
}

// RowCount returns the number of rows pushed so far, including ones
// already flushed to disk.
func (s *Sink) RowCount() int {
	return s.rowsTotal
}

// Files returns the batch files written so far.
func (s *Sink) Files() []string {
	return s.files
}
