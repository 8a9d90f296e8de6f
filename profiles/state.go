package profiles

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// The `.state` sidecar persists parameter values a running script has
// changed (through the persistence extension module or a parameter
// edit), layered over the profile file on the next load.

type stateFile struct {
	Config map[string][]paramEntry `toml:"config"`
}

func loadState(path string) (map[string]map[string]Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "profile state %s", filepath.Base(path))
	}

	var sf stateFile
	if err := toml.Unmarshal(data, &sf); err != nil {
		return nil, errors.Wrapf(err, "profile state %s", filepath.Base(path))
	}

	out := make(map[string]map[string]Value, len(sf.Config))
	for script, entries := range sf.Config {
		params := make(map[string]Value, len(entries))
		for _, e := range entries {
			kind, err := ParseKind(e.Type)
			if err != nil {
				return nil, errors.Wrapf(err, "profile state %s, script %q", filepath.Base(path), script)
			}
			v, err := decodeValue(kind, e.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "profile state %s, script %q, parameter %q", filepath.Base(path), script, e.Name)
			}
			params[e.Name] = v
		}
		out[script] = params
	}
	return out, nil
}

// SaveState writes the given parameter values to the profile's `.state`
// sidecar.
func (p *Profile) SaveState(values map[string]map[string]Value) error {
	sf := stateFile{Config: make(map[string][]paramEntry, len(values))}
	for script, params := range values {
		entries := make([]paramEntry, 0, len(params))
		for name, v := range params {
			entries = append(entries, paramEntry{
				Type:  v.Kind.String(),
				Name:  name,
				Value: encodeValue(v),
			})
		}
		sf.Config[script] = entries
	}

	data, err := toml.Marshal(sf)
	if err != nil {
		return errors.Wrapf(err, "profile state for %s", filepath.Base(p.Path))
	}
	return errors.Wrapf(os.WriteFile(p.Path+StateExt, data, 0o644), "profile state for %s", filepath.Base(p.Path))
}
