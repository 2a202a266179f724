package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	versionsFile = "versions.json"
)

// SeenVersion is the fingerprint of a plan as last fetched by the CLI,
// together with the API it was fetched from.
type SeenVersion struct {
	APITarget   string `json:"api_target"`
	Fingerprint string `json:"fingerprint"`
}

// VersionCache is the persisted map of plan id to SeenVersion.
type VersionCache map[string]SeenVersion

var versionsMu sync.Mutex

// LoadVersions loads the cache from a target .plans/versions.json.
// Returns an empty cache if no file or no .plans/ directory exists.
func (m *Manager) LoadVersions(overrideDir string) (VersionCache, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return VersionCache{}, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, versionsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return VersionCache{}, nil
		}
		return nil, fmt.Errorf("reading version cache: %w", err)
	}

	cache := VersionCache{}
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("parsing version cache: %w", err)
	}
	return cache, nil
}

// RememberVersion records the fingerprint seen for planID. Without a .plans/
// directory it does nothing.
func (m *Manager) RememberVersion(overrideDir, planID string, seen SeenVersion) error {
	versionsMu.Lock()
	defer versionsMu.Unlock()

	cache, err := m.LoadVersions(overrideDir)
	if err != nil {
		return err
	}
	cache[planID] = seen
	return m.saveVersions(overrideDir, cache)
}

// ForgetVersion removes planID from the cache.
func (m *Manager) ForgetVersion(overrideDir, planID string) error {
	versionsMu.Lock()
	defer versionsMu.Unlock()

	cache, err := m.LoadVersions(overrideDir)
	if err != nil {
		return err
	}
	if _, ok := cache[planID]; !ok {
		return nil
	}
	delete(cache, planID)
	return m.saveVersions(overrideDir, cache)
}

func (m *Manager) saveVersions(overrideDir string, cache VersionCache) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}
	if dir == "" {
		return nil
	}

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling version cache: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, versionsFile), data, 0o600); err != nil {
		return fmt.Errorf("writing version cache: %w", err)
	}
	return nil
}
