// Package dispatch runs the manifest's artifact list in declared order
// (spec §6), isolating failures per artifact, consulting and updating
// the incremental-run marker, and handing each collector's rows to a
// sink for batching and serialization.
package dispatch

import (
	"os"
	"time"

	"github.com/forensics-collect/collector/internal/bits"
	"github.com/forensics-collect/collector/internal/ferrors"
	"github.com/forensics-collect/collector/internal/journald"
	"github.com/forensics-collect/collector/internal/lnk"
	"github.com/forensics-collect/collector/internal/logging"
	"github.com/forensics-collect/collector/internal/manifest"
	"github.com/forensics-collect/collector/internal/mft"
	"github.com/forensics-collect/collector/internal/sink"
	"github.com/forensics-collect/collector/internal/usn"
	"github.com/forensics-collect/collector/pkg/record"
)

const component = "dispatch"

// handler runs one artifact: it reads whatever input the artifact needs
// (named by opts.StartPath, following the manifest's convention of using
// start_path both for an NTFS traversal root and for a flat input file
// path), and pushes decoded rows into the supplied sink.
type handler func(opts manifest.ArtifactOptions, out *sink.Sink) (int, error)

// handlers is the closed dispatch table of supported artifact names.
// An artifact name outside this table is logged and skipped rather
// than treated as a run failure.
var handlers = map[string]handler{
	"mft":       runMFT,
	"usnjrnl":   runUSN,
	"bits":      runBITS,
	"shortcuts": runShortcut,
	"journal":   runJournal,
}

// Result is one artifact's run outcome, recorded for the final report.
type Result struct {
	Artifact string
	Rows     int
	Files    []string
	Err      error
	Skipped  bool
}

// Run executes every artifact in m.Artifacts, in manifest order, against
// outputDir. A marker (possibly empty) gates interval-based skips;
// Interval is currently fixed per call since the manifest format doesn't
// carry a per-artifact interval of its own.
func Run(m *manifest.Manifest, marker *manifest.Marker, outputDir string, interval time.Duration) []Result {
	var results []Result
	now := time.Now()

	for _, artifact := range m.Artifacts {
		log := logging.Component(component).WithField("artifact", artifact.Name)

		if marker != nil && interval > 0 && !marker.Elapsed(artifact.Name, interval, now) {
			log.Info("skipped: marker interval not elapsed")
			results = append(results, Result{Artifact: artifact.Name, Skipped: true})
			continue
		}

		h, ok := handlers[artifact.Name]
		if !ok {
			log.Warnf("unknown artifact %q, ignoring", artifact.Name)
			results = append(results, Result{Artifact: artifact.Name, Skipped: true})
			continue
		}

		var filter sink.FilterFunc
		if artifact.Filter {
			filter = buildFilter(m.Output)
		}
		out := sink.New(artifact.Name, outputDir, m.Output.Format, m.Output.Compress, filter)

		rows, err := h(artifact.Options, out)
		files, flushErr := out.Finalize()
		if flushErr != nil && err == nil {
			err = flushErr
		}

		if err != nil {
			log.WithError(err).Error("artifact collection failed")
			if marker != nil && m.Output.MarkerUpdateOnFailure {
				marker.Touch(artifact.Name, now)
			}
			results = append(results, Result{Artifact: artifact.Name, Rows: rows, Files: files, Err: err})
			continue
		}

		log.WithField("rows", rows).Info("artifact collection finished")
		if marker != nil {
			marker.Touch(artifact.Name, now)
		}
		results = append(results, Result{Artifact: artifact.Name, Rows: rows, Files: files})
	}

	return results
}

// buildFilter is a placeholder filter hook: the manifest's filter_name /
// filter_script fields name an external filter the reference tool
// evaluates per row. No scripting engine is wired in, so the returned
// filter passes every row through unchanged whatever those fields hold.
func buildFilter(out manifest.Output) sink.FilterFunc {
	return func(row interface{}) bool {
		return true
	}
}

func runMFT(opts manifest.ArtifactOptions, out *sink.Sink) (int, error) {
	path := opts.StartPath
	if path == "" {
		path = "$MFT"
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.ErrDeviceIO, "mft", "open mft source", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, ferrors.Wrap(ferrors.ErrDeviceIO, "mft", "stat mft source", err)
	}

	rows := 0
	err = mft.Walk(f, stat.Size(), func(r record.MftEntry) error {
		rows++
		return out.Push(r)
	})
	return rows, err
}

func runUSN(opts manifest.ArtifactOptions, out *sink.Sink) (int, error) {
	path := opts.StartPath
	if path == "" {
		path = "$Extend\\$UsnJrnl:$J"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.ErrDeviceIO, "usn", "read usn journal", err)
	}

	recs, err := usn.ParseAll(data)
	if err != nil {
		return 0, err
	}
	for _, r := range recs {
		if err := out.Push(usn.ToOutputRow(r, "")); err != nil {
			return len(recs), err
		}
	}
	return len(recs), nil
}

func runBITS(opts manifest.ArtifactOptions, out *sink.Sink) (int, error) {
	if opts.StartPath == "" {
		return 0, ferrors.Wrap(ferrors.ErrBadStart, "bits", "start_path required", nil)
	}
	data, err := os.ReadFile(opts.StartPath)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.ErrDeviceIO, "bits", "read bits queue file", err)
	}

	jobs, err := bits.ParseLegacyJobs(data)
	if err != nil {
		return 0, err
	}
	for _, j := range jobs {
		if err := out.Push(j); err != nil {
			return len(jobs), err
		}
	}
	return len(jobs), nil
}

func runShortcut(opts manifest.ArtifactOptions, out *sink.Sink) (int, error) {
	if opts.StartPath == "" {
		return 0, ferrors.Wrap(ferrors.ErrBadStart, "shortcut", "start_path required", nil)
	}
	data, err := os.ReadFile(opts.StartPath)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.ErrDeviceIO, "shortcut", "read lnk file", err)
	}

	info, err := lnk.Parse(data)
	if err != nil {
		return 0, err
	}
	if err := out.Push(info); err != nil {
		return 0, err
	}
	return 1, nil
}

func runJournal(opts manifest.ArtifactOptions, out *sink.Sink) (int, error) {
	if opts.StartPath == "" {
		return 0, ferrors.Wrap(ferrors.ErrBadStart, "journal", "start_path required", nil)
	}
	data, err := os.ReadFile(opts.StartPath)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.ErrDeviceIO, "journal", "read journal file", err)
	}

	header, err := journald.ParseHeader(data)
	if err != nil {
		return 0, err
	}

	rows := 0
	err = journald.WalkEntries(data, header, func(e record.JournalEntry) error {
		rows++
		return out.Push(e)
	})
	return rows, err
}
