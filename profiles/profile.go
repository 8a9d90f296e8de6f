package profiles

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

const (
	// ProfileExt is the extension of profile definition files.
	ProfileExt = ".profile"
	// StateExt is appended to the profile path for the parameter
	// value sidecar.
	StateExt = ".state"
)

var (
	// ErrScriptNotFound is returned when an active_scripts entry does
	// not resolve to a file in any script directory.
	ErrScriptNotFound = errors.New("profiles: script file not found")
)

// Profile is one named bundle of scripts plus per-script parameter
// overrides. A loaded profile is replaced wholesale on every switch,
// never mutated while active (parameter edits go through SetValue and
// take effect on reload).
type Profile struct {
	ID          uuid.UUID
	Name        string
	Description string

	// ActiveScripts holds script file names in run order.
	ActiveScripts []string

	// Config maps script manifest name -> parameter name -> value.
	Config map[string]map[string]Value

	// Manifests are resolved per ActiveScripts entry, same order.
	// Populated by LoadFully only.
	Manifests []*Manifest

	Path string
}

type profileFile struct {
	ID            string                  `toml:"id"`
	Name          string                  `toml:"name"`
	Description   string                  `toml:"description"`
	ActiveScripts []string                `toml:"active_scripts"`
	Config        map[string][]paramEntry `toml:"config,omitempty"`
}

type paramEntry struct {
	Type  string      `toml:"type"`
	Name  string      `toml:"name"`
	Value interface{} `toml:"value"`
}

// Load parses a profile definition file without resolving scripts.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "profile %s", filepath.Base(path))
	}

	var pf profileFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return nil, errors.Wrapf(err, "profile %s", filepath.Base(path))
	}

	id, err := uuid.Parse(pf.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "profile %s: bad id", filepath.Base(path))
	}
	if len(pf.ActiveScripts) == 0 {
		return nil, errors.Errorf("profile %s: no active scripts", filepath.Base(path))
	}

	p := &Profile{
		ID:            id,
		Name:          pf.Name,
		Description:   pf.Description,
		ActiveScripts: pf.ActiveScripts,
		Config:        make(map[string]map[string]Value),
		Path:          path,
	}

	for script, entries := range pf.Config {
		params := make(map[string]Value, len(entries))
		for _, e := range entries {
			kind, err := ParseKind(e.Type)
			if err != nil {
				return nil, errors.Wrapf(err, "profile %s, script %q", filepath.Base(path), script)
			}
			v, err := decodeValue(kind, e.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "profile %s, script %q, parameter %q", filepath.Base(path), script, e.Name)
			}
			params[e.Name] = v
		}
		p.Config[script] = params
	}

	return p, nil
}

// FindScript resolves a script file name against the configured script
// directories, in order.
func FindScript(name string, scriptDirs []string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
		return "", errors.Wrap(ErrScriptNotFound, name)
	}
	for _, dir := range scriptDirs {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.Wrap(ErrScriptNotFound, name)
}

// LoadFully parses the profile, resolves every referenced script and
// its manifest, merges profile overrides over manifest defaults, and
// layers the `.state` sidecar on top. Any unresolvable script makes the
// whole profile invalid; an invalid profile must never become active.
func LoadFully(path string, scriptDirs []string, daemonVersion string) (*Profile, error) {
	p, err := Load(path)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]map[string]Value)
	for _, script := range p.ActiveScripts {
		file, err := FindScript(script, scriptDirs)
		if err != nil {
			return nil, errors.Wrapf(err, "profile %s", filepath.Base(path))
		}
		m, err := LoadManifest(file, daemonVersion)
		if err != nil {
			return nil, errors.Wrapf(err, "profile %s", filepath.Base(path))
		}
		p.Manifests = append(p.Manifests, m)

		params := m.Defaults()
		for name, v := range p.Config[m.Name] {
			params[name] = v
		}
		merged[m.Name] = params
	}

	if state, err := loadState(path + StateExt); err == nil {
		for script, params := range state {
			if _, ok := merged[script]; !ok {
				continue
			}
			for name, v := range params {
				merged[script][name] = v
			}
		}
	} else if !os.IsNotExist(errors.Cause(err)) {
		return nil, err
	}

	p.Config = merged
	return p, nil
}

// Parameters returns the merged parameter map for the script at fleet
// position idx. Only valid after LoadFully.
func (p *Profile) Parameters(idx int) map[string]Value {
	if idx < 0 || idx >= len(p.Manifests) {
		return nil
	}
	return p.Config[p.Manifests[idx].Name]
}

// SetValue updates one script parameter in the in-memory profile.
func (p *Profile) SetValue(script, name string, v Value) {
	params, ok := p.Config[script]
	if !ok {
		params = make(map[string]Value)
		p.Config[script] = params
	}
	params[name] = v
}

// Save writes the profile definition back to its file.
func (p *Profile) Save() error {
	pf := profileFile{
		ID:            p.ID.String(),
		Name:          p.Name,
		Description:   p.Description,
		ActiveScripts: p.ActiveScripts,
		Config:        make(map[string][]paramEntry),
	}
	for script, params := range p.Config {
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)
		entries := make([]paramEntry, 0, len(params))
		for _, name := range names {
			v := params[name]
			entries = append(entries, paramEntry{
				Type:  v.Kind.String(),
				Name:  name,
				Value: encodeValue(v),
			})
		}
		pf.Config[script] = entries
	}

	data, err := toml.Marshal(pf)
	if err != nil {
		return errors.Wrapf(err, "profile %s", filepath.Base(p.Path))
	}
	return errors.Wrapf(os.WriteFile(p.Path, data, 0o644), "profile %s", filepath.Base(p.Path))
}

// Enumerate lists all profile files under the given directories.
func Enumerate(profileDirs []string) []string {
	var out []string
	for _, dir := range profileDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ProfileExt {
				continue
			}
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out
}
