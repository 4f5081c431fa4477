// Command forensics-collect runs one collection pass against a manifest:
// it loads the manifest and (optional) marker file, runs every listed
// artifact, finalizes each artifact's sink, and uploads the output
// directory to the manifest's configured target.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/forensics-collect/collector/internal/dispatch"
	"github.com/forensics-collect/collector/internal/logging"
	"github.com/forensics-collect/collector/internal/manifest"
	"github.com/forensics-collect/collector/internal/remote"
)

func main() {
	manifestPath := flag.String("manifest", "manifest.toml", "path to the collection manifest")
	markerPath := flag.String("marker", "", "path to the incremental-run marker (optional)")
	interval := flag.Duration("interval", 0, "minimum time between runs of the same artifact (0 disables skipping)")
	logLevel := flag.String("log-level", "info", "log level: trace, debug, info, warn, error")
	flag.Parse()

	logging.SetLevel(*logLevel)
	log := logging.Component("main")

	m, err := manifest.Load(*manifestPath)
	if err != nil {
		log.WithError(err).Error("failed to load manifest")
		os.Exit(1)
	}

	var marker *manifest.Marker
	if *markerPath != "" {
		marker, err = manifest.LoadMarker(*markerPath)
		if err != nil {
			log.WithError(err).Error("failed to load marker")
			os.Exit(1)
		}
	}

	outputDir := m.Output.Directory
	if outputDir == "" {
		outputDir = "."
	}
	if m.Output.Name != "" {
		outputDir = filepath.Join(outputDir, m.Output.Name)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		log.WithError(err).Error("failed to create output directory")
		os.Exit(1)
	}

	results := dispatch.Run(m, marker, outputDir, *interval)

	failures := 0
	totalRows := 0
	var allFiles []string
	for _, r := range results {
		if r.Skipped {
			continue
		}
		if r.Err != nil {
			failures++
			log.WithError(r.Err).Errorf("artifact %s failed", r.Artifact)
			continue
		}
		totalRows += r.Rows
		allFiles = append(allFiles, r.Files...)
	}
	log.Infof("collection finished: %d rows across %d files, %d artifact failures", totalRows, len(allFiles), failures)

	if marker != nil {
		if err := marker.Save(); err != nil {
			log.WithError(err).Error("failed to save marker")
		}
	}

	if m.Output.Target == manifest.TargetLocal || m.Output.Target == "" {
		return
	}

	if err := uploadOutputs(m, allFiles); err != nil {
		log.WithError(err).Error("remote upload failed")
		os.Exit(1)
	}

	if failures > 0 {
		os.Exit(1)
	}
}

// uploadOutputs ships every finalized batch file to the manifest's
// configured remote target, one file at a time so a single failure
// names the file that didn't make it rather than the whole batch.
func uploadOutputs(m *manifest.Manifest, files []string) error {
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		name := fmt.Sprintf("%d/%s", m.Output.CollectionID, baseName(path))
		switch m.Output.Target {
		case manifest.TargetGCP:
			client := &http.Client{Timeout: 2 * time.Minute}
			if err := remote.GCPUpload(client, m.Output.URL, m.Output.APIKey, name, data, "application/octet-stream"); err != nil {
				return err
			}
		case manifest.TargetAWS:
			region, accessKeyID, secretAccessKey := splitAWSKey(m.Output.APIKey)
			if err := remote.AWSUpload(region, m.Output.URL, name, accessKeyID, secretAccessKey, data, "application/octet-stream"); err != nil {
				return err
			}
		case manifest.TargetAzure:
			account, key := splitAzureKey(m.Output.APIKey)
			if err := remote.AzureUpload(account, key, m.Output.URL, name, data, "application/octet-stream"); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported remote target %q", m.Output.Target)
		}
	}
	return nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

// splitAWSKey and splitAzureKey parse the manifest's single api_key
// string into the credential parts each SDK call expects: AWS uses
// "<region>:<access key id>:<secret access key>" and Azure uses
// "<account>:<key>". A key with too few parts yields empty strings.
func splitAWSKey(apiKey string) (region, accessKeyID, secretAccessKey string) {
	parts := splitN(apiKey, ':', 3)
	if len(parts) == 3 {
		return parts[0], parts[1], parts[2]
	}
	return "", "", ""
}

func splitAzureKey(apiKey string) (account, key string) {
	parts := splitN(apiKey, ':', 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", ""
}

func splitN(s string, sep byte, n int) []string {
	var out []string
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
