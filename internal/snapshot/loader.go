// Package snapshot reads the batch of metric records produced by the upstream
// collection collaborator: one JSON file per supplier in a drop directory.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"steward/internal/logging"
	"steward/internal/models"
)

// LoadBatch reads every *.json record in dir. A record that fails to parse or
// lacks a subject id is skipped with a log entry; the batch itself only fails
// when the directory cannot be read.
func LoadBatch(dir string, logger logging.Logger) ([]models.MetricSnapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	snapshots := make([]models.MetricSnapshot, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.WithError(err).WithField("file", name).Warn("Skipping unreadable snapshot record")
			continue
		}

		var snap models.MetricSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			logger.WithError(err).WithField("file", name).Warn("Skipping malformed snapshot record")
			continue
		}
		if snap.SubjectID == "" {
			logger.WithField("file", name).Warn("Skipping snapshot record without subject id")
			continue
		}

		snapshots = append(snapshots, snap)
	}

	logger.WithFields(logging.Fields{
		"directory": dir,
		"loaded":    len(snapshots),
		"files":     len(names),
	}).Info("Loaded metric snapshot batch")

	return snapshots, nil
}
