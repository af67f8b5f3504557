// Package recipients resolves notification recipients for a subject via its
// grouping code. The directory is loaded once per run from a JSON file
// maintained alongside the deployment config.
package recipients

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Directory maps group codes to recipient contacts. EscalationContact is the
// secondary recipient added only for the highest-severity threshold variant.
type Directory struct {
	EscalationContact string              `json:"escalation_contact"`
	Groups            map[string][]string `json:"groups"`
}

// Load reads a directory file. Group codes are normalized to upper case.
func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipient directory: %w", err)
	}

	var dir Directory
	if err := json.Unmarshal(raw, &dir); err != nil {
		return nil, fmt.Errorf("parse recipient directory %s: %w", path, err)
	}

	normalized := make(map[string][]string, len(dir.Groups))
	for code, contacts := range dir.Groups {
		cleaned := make([]string, 0, len(contacts))
		for _, c := range contacts {
			if c = strings.TrimSpace(c); c != "" {
				cleaned = append(cleaned, c)
			}
		}
		if len(cleaned) > 0 {
			normalized[strings.ToUpper(strings.TrimSpace(code))] = cleaned
		}
	}
	dir.Groups = normalized

	return &dir, nil
}

// Lookup returns the recipient contacts for a group code, or nil when no
// assignment exists.
func (d *Directory) Lookup(groupCode string) []string {
	return d.Groups[strings.ToUpper(strings.TrimSpace(groupCode))]
}
