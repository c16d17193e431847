// Package speakerid attributes turns to enrolled speakers. The acoustic
// scoring engine is external; this package owns profile loading and the pure
// state that smooths raw per-profile scores into a stable current speaker.
package speakerid

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Profile is one enrolled speaker: a label plus the engine's opaque
// enrollment bytes. The profile set is immutable for the process lifetime.
type Profile struct {
	Label     string
	Reference []byte
}

// LoadProfiles reads every regular file in dir as one profile, labelled by
// file stem. Labels must be unique.
func LoadProfiles(dir string) ([]Profile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("speakerid: read voices dir: %w", err)
	}

	var profiles []Profile
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		label := strings.TrimSuffix(name, filepath.Ext(name))
		if label == "" {
			continue
		}
		if seen[label] {
			return nil, fmt.Errorf("speakerid: duplicate profile label %q", label)
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("speakerid: read profile %s: %w", name, err)
		}
		seen[label] = true
		profiles = append(profiles, Profile{Label: label, Reference: data})
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("speakerid: no voice profiles found in %s", dir)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Label < profiles[j].Label })
	return profiles, nil
}

// Labels returns the profile labels in order.
func Labels(profiles []Profile) []string {
	labels := make([]string, len(profiles))
	for i, p := range profiles {
		labels[i] = p.Label
	}
	return labels
}
