package profiles

import (
	"os"
	"path/filepath"

	"github.com/Masterminds/semver"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// ManifestParameter is one configuration parameter a script declares,
// with its default and optional bounds.
type ManifestParameter struct {
	Name        string
	Description string
	Kind        Kind
	Default     Value
	Min         *float64
	Max         *float64
}

// Manifest is the static metadata sitting next to every script file in
// a `<script>.manifest` TOML sidecar. Read-only after load.
type Manifest struct {
	Name                string
	Version             string
	MinSupportedVersion string
	Author              string
	Description         string
	Tags                []string
	Parameters          []ManifestParameter

	ScriptFile string

	// Source carries the script body for built-in scripts that have no
	// file on disk (the failsafe profile). Empty means read ScriptFile.
	Source string
}

type manifestFile struct {
	Name                string          `toml:"name"`
	Version             string          `toml:"version"`
	MinSupportedVersion string          `toml:"min_supported_version"`
	Author              string          `toml:"author"`
	Description         string          `toml:"description"`
	Tags                []string        `toml:"tags"`
	Config              []manifestParam `toml:"config"`
}

type manifestParam struct {
	Type        string      `toml:"type"`
	Name        string      `toml:"name"`
	Description string      `toml:"description"`
	Default     interface{} `toml:"default"`
	Min         *float64    `toml:"min"`
	Max         *float64    `toml:"max"`
}

// ManifestPath returns the sidecar path for a script file.
func ManifestPath(scriptFile string) string {
	return scriptFile + ".manifest"
}

// LoadManifest reads and validates the manifest for the given script
// file. daemonVersion gates scripts that require a newer daemon.
func LoadManifest(scriptFile, daemonVersion string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(scriptFile))
	if err != nil {
		return nil, errors.Wrapf(err, "manifest for %s", filepath.Base(scriptFile))
	}

	var mf manifestFile
	if err := toml.Unmarshal(data, &mf); err != nil {
		return nil, errors.Wrapf(err, "manifest for %s", filepath.Base(scriptFile))
	}

	m := &Manifest{
		Name:                mf.Name,
		Version:             mf.Version,
		MinSupportedVersion: mf.MinSupportedVersion,
		Author:              mf.Author,
		Description:         mf.Description,
		Tags:                mf.Tags,
		ScriptFile:          scriptFile,
	}
	if m.Name == "" {
		m.Name = filepath.Base(scriptFile)
	}

	if mf.MinSupportedVersion != "" && daemonVersion != "" {
		min, err := semver.NewVersion(mf.MinSupportedVersion)
		if err != nil {
			return nil, errors.Wrapf(err, "manifest for %s: bad min_supported_version", filepath.Base(scriptFile))
		}
		cur, err := semver.NewVersion(daemonVersion)
		if err != nil {
			return nil, errors.Wrap(err, "bad daemon version")
		}
		if cur.LessThan(min) {
			return nil, errors.Errorf("script %s requires daemon >= %s (running %s)",
				filepath.Base(scriptFile), mf.MinSupportedVersion, daemonVersion)
		}
	}

	for _, p := range mf.Config {
		kind, err := ParseKind(p.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "manifest for %s, parameter %q", filepath.Base(scriptFile), p.Name)
		}
		def, err := decodeValue(kind, p.Default)
		if err != nil {
			return nil, errors.Wrapf(err, "manifest for %s, parameter %q", filepath.Base(scriptFile), p.Name)
		}
		m.Parameters = append(m.Parameters, ManifestParameter{
			Name:        p.Name,
			Description: p.Description,
			Kind:        kind,
			Default:     def,
			Min:         p.Min,
			Max:         p.Max,
		})
	}

	return m, nil
}

// Defaults returns the manifest's parameters as a name-to-value map.
func (m *Manifest) Defaults() map[string]Value {
	out := make(map[string]Value, len(m.Parameters))
	for _, p := range m.Parameters {
		out[p.Name] = p.Default
	}
	return out
}
