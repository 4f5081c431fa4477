package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensics-collect/collector/internal/manifest"
	"github.com/forensics-collect/collector/internal/sink"
)

// withHandlers swaps the package-level dispatch table for the duration
// of a test, restoring it afterward.
func withHandlers(t *testing.T, fake map[string]handler) {
	t.Helper()
	original := handlers
	handlers = fake
	t.Cleanup(func() { handlers = original })
}

func TestRunSkipsUnknownArtifactWithoutFailing(t *testing.T) {
	withHandlers(t, map[string]handler{})

	m := &manifest.Manifest{
		Output:    manifest.Output{Directory: t.TempDir(), Format: manifest.FormatJSONL},
		Artifacts: []manifest.Artifact{{Name: "not-a-real-artifact"}},
	}

	results := Run(m, nil, m.Output.Directory, 0)
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Nil(t, results[0].Err)
}

func TestRunInvokesHandlerAndCollectsRows(t *testing.T) {
	calls := 0
	withHandlers(t, map[string]handler{
		"fake": func(opts manifest.ArtifactOptions, out *sink.Sink) (int, error) {
			calls++
			require.NoError(t, out.Push(map[string]string{"hello": "world"}))
			return 1, nil
		},
	})

	dir := t.TempDir()
	m := &manifest.Manifest{
		Output:    manifest.Output{Directory: dir, Format: manifest.FormatJSONL},
		Artifacts: []manifest.Artifact{{Name: "fake"}},
	}

	results := Run(m, nil, dir, 0)
	require.Len(t, results, 1)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, results[0].Rows)
	assert.Nil(t, results[0].Err)
	assert.Len(t, results[0].Files, 1)
}

func TestRunTouchesMarkerOnFailureWhenConfigured(t *testing.T) {
	withHandlers(t, map[string]handler{
		"fake": func(opts manifest.ArtifactOptions, out *sink.Sink) (int, error) {
			return 0, assert.AnError
		},
	})

	dir := t.TempDir()
	marker, err := manifest.LoadMarker(dir + "/marker.toml")
	require.NoError(t, err)
	m := &manifest.Manifest{
		Output:    manifest.Output{Directory: dir, Format: manifest.FormatJSONL, MarkerUpdateOnFailure: true},
		Artifacts: []manifest.Artifact{{Name: "fake"}},
	}

	results := Run(m, marker, dir, 0)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)

	_, ok := marker.LastRun("fake")
	assert.True(t, ok, "marker should have been touched because MarkerUpdateOnFailure is set")
}

func TestRunSkipsArtifactWhenIntervalNotElapsed(t *testing.T) {
	calls := 0
	withHandlers(t, map[string]handler{
		"fake": func(opts manifest.ArtifactOptions, out *sink.Sink) (int, error) {
			calls++
			return 0, nil
		},
	})

	dir := t.TempDir()
	marker, err := manifest.LoadMarker(dir + "/marker.toml")
	require.NoError(t, err)
	marker.Touch("fake", time.Now())
	m := &manifest.Manifest{
		Output:    manifest.Output{Directory: dir, Format: manifest.FormatJSONL},
		Artifacts: []manifest.Artifact{{Name: "fake"}},
	}

	results := Run(m, marker, dir, time.Hour)
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Equal(t, 0, calls)
}
