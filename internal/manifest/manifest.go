// Package manifest decodes the collection manifest and the incremental-run
// marker file. Per-artifact parsing logic lives with each collector; this
// package only owns the typed TOML shapes named in spec §6.
package manifest

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// OutputTarget enumerates where a sink finalizes its directory.
type OutputTarget string

const (
	TargetLocal OutputTarget = "local"
	TargetGCP   OutputTarget = "gcp"
	TargetAWS   OutputTarget = "aws"
	TargetAzure OutputTarget = "azure"
)

// Format enumerates the sink's serialization.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
)

// Output is the manifest's [output] block (data model §3's Output envelope).
type Output struct {
	Name       string       `toml:"name"`
	Directory  string       `toml:"directory"`
	Format     Format       `toml:"format"`
	Compress   bool         `toml:"compress"`
	URL        string       `toml:"url"`
	APIKey     string       `toml:"api_key"`
	EndpointID string       `toml:"endpoint_id"`
	CollectionID uint64     `toml:"collection_id"`
	Target     OutputTarget `toml:"output"`
	FilterName   string     `toml:"filter_name"`
	FilterScript string     `toml:"filter_script"`
	Logging      bool       `toml:"logging"`

	// MarkerUpdateOnFailure mirrors the reference tool's "attempted
	// counts" marker policy (spec §9 open question): the marker
	// timestamp updates even when the artifact collector failed. Left
	// configurable because the reference behavior is undocumented and
	// might be unintended.
	MarkerUpdateOnFailure bool `toml:"marker_update_on_failure"`
}

// ArtifactOptions carries the decoded per-platform options table for one
// artifact entry. Only the fields the core components consume are typed
// here; anything else is left to the (out-of-scope) per-artifact parsers.
type ArtifactOptions struct {
	StartPath      string `toml:"start_path"`
	Depth          int    `toml:"depth"`
	RecoverIndx    bool   `toml:"recover_indx"`
	Md5            bool   `toml:"md5"`
	Sha1           bool   `toml:"sha1"`
	Sha256         bool   `toml:"sha256"`
	Metadata       bool   `toml:"metadata"`
	PathRegex      string `toml:"path_regex"`
	FilenameRegex  string `toml:"filename_regex"`
	AlternateDrive string `toml:"alt_drive"`
}

// Artifact is one [[artifacts]] entry.
type Artifact struct {
	Name    string          `toml:"artifact_name"`
	Filter  bool            `toml:"filter"`
	Options ArtifactOptions `toml:"options"`
}

// Manifest is the full decoded TOML document.
type Manifest struct {
	Output    Output     `toml:"output"`
	Artifacts []Artifact `toml:"artifacts"`
}

// Load decodes a manifest TOML file from disk. MarkerUpdateOnFailure
// defaults to true when the manifest does not set it.
func Load(path string) (*Manifest, error) {
	m := Manifest{Output: Output{MarkerUpdateOnFailure: true}}
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Marker is a persistent artifact-name -> last-run-timestamp map (spec §3's
// Marker file), used by the dispatcher to implement interval-based skips.
type Marker struct {
	path    string
	entries map[string]time.Time
}

// LoadMarker reads a marker file, or returns an empty one if it doesn't exist yet.
func LoadMarker(path string) (*Marker, error) {
	m := &Marker{path: path, entries: map[string]time.Time{}}
	raw := map[string]string{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}
	for name, ts := range raw {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			continue
		}
		m.entries[name] = t
	}
	return m, nil
}

// LastRun returns the last successful (or attempted) run time for an
// artifact, and whether one is recorded at all.
func (m *Marker) LastRun(artifact string) (time.Time, bool) {
	t, ok := m.entries[artifact]
	return t, ok
}

// Touch records the current time as the last run for an artifact.
func (m *Marker) Touch(artifact string, at time.Time) {
	m.entries[artifact] = at
}

// Save persists the marker map back to disk as TOML.
func (m *Marker) Save() error {
	if m.path == "" {
		return nil
	}
	raw := make(map[string]string, len(m.entries))
	for name, t := range m.entries {
		raw[name] = t.Format(time.RFC3339)
	}
	f, err := os.Create(m.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(raw)
}

// Elapsed reports whether at least interval has passed since the
// artifact's last recorded run (or true if there is no prior record).
func (m *Marker) Elapsed(artifact string, interval time.Duration, now time.Time) bool {
	last, ok := m.LastRun(artifact)
	if !ok {
		return true
	}
	return now.Sub(last) >= interval
}
