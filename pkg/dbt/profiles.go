package dbt

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrProfilesNotFound = errors.New("profiles file not found")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrTargetNotFound   = errors.New("target not found")
)

// Target is one environment entry within a profile. The connection map
// is adapter-specific (account, database, schema, ...) and carried
// opaquely; this system never opens a warehouse connection itself.
type Target struct {
	Type       string
	Connection map[string]any
}

// Profile is one named entry of profiles.yml.
type Profile struct {
	DefaultTarget string
	Targets       map[string]Target
}

// Profiles is a parsed profiles.yml.
type Profiles struct {
	entries map[string]Profile
}

type profileFile struct {
	Target  string                    `yaml:"target"`
	Outputs map[string]map[string]any `yaml:"outputs"`
}

// LoadProfiles parses a profiles.yml file.
func LoadProfiles(path string) (*Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProfilesNotFound, path)
		}

		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw map[string]profileFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	profiles := &Profiles{entries: make(map[string]Profile, len(raw))}

	for name, entry := range raw {
		// The top-level "config" block is dbt settings, not a profile.
		if name == "config" {
			continue
		}

		profile := Profile{
			DefaultTarget: entry.Target,
			Targets:       make(map[string]Target, len(entry.Outputs)),
		}

		for targetName, output := range entry.Outputs {
			adapterType, _ := output["type"].(string)
			profile.Targets[targetName] = Target{
				Type:       adapterType,
				Connection: output,
			}
		}

		profiles.entries[name] = profile
	}

	return profiles, nil
}

// Names returns the profile names, sorted.
func (p *Profiles) Names() []string {
	names := make([]string, 0, len(p.entries))
	for name := range p.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Select resolves a profile and target by name. The target name may be
// empty, in which case the profile's default target is used.
func (p *Profiles) Select(profileName, targetName string) (Target, error) {
	profile, ok := p.entries[profileName]
	if !ok {
		return Target{}, fmt.Errorf("%w: %q (available: %s)",
			ErrProfileNotFound, profileName, strings.Join(p.Names(), ", "))
	}

	if targetName == "" {
		targetName = profile.DefaultTarget
	}

	target, ok := profile.Targets[targetName]
	if !ok {
		available := make([]string, 0, len(profile.Targets))
		for name := range profile.Targets {
			available = append(available, name)
		}

		sort.Strings(available)

		return Target{}, fmt.Errorf("%w: %q in profile %q (available: %s)",
			ErrTargetNotFound, targetName, profileName, strings.Join(available, ", "))
	}

	return target, nil
}
