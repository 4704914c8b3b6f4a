package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RunProfile is a named grading-run configuration: which methodology
// pack to load, the staleness cut-off, and output handling. Profiles
// configure runs, never scoring; a profile cannot change a grade.
type RunProfile struct {
	Name            string `yaml:"name" json:"name"`
	MethodologyPack string `yaml:"methodology_pack,omitempty" json:"methodology_pack,omitempty"`
	// CutoffDate anchors the staleness horizon, RFC 3339 date. Empty
	// disables staleness checks.
	CutoffDate string `yaml:"cutoff_date,omitempty" json:"cutoff_date,omitempty"`
	StrictMode bool   `yaml:"strict_mode,omitempty" json:"strict_mode,omitempty"`
	// Output is "json" or "summary".
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// LoadRunProfile loads profile_<name>.yaml from the profiles directory.
func LoadRunProfile(profilesDir, name string) (*RunProfile, error) {
	name = strings.ToLower(name)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load run profile %q: %w", name, err)
	}

	var profile RunProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse run profile %q: %w", name, err)
	}

	if profile.Name == "" {
		profile.Name = name
	}
	if profile.Output == "" {
		profile.Output = "json"
	}

	return &profile, nil
}

// LoadAllRunProfiles loads every profile_*.yaml in the directory,
// keyed by profile name.
func LoadAllRunProfiles(profilesDir string) (map[string]*RunProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*RunProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile RunProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Name == "" {
			base := filepath.Base(path)
			profile.Name = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		if profile.Output == "" {
			profile.Output = "json"
		}

		profiles[profile.Name] = &profile
	}

	return profiles, nil
}
