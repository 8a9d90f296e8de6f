package main

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// daemonConfig is the daemon's own TOML config file. Changes to it are
// logged by the filesystem watcher but require a restart to apply.
type daemonConfig struct {
	ProfileDirs    []string `toml:"profile_dirs"`
	ScriptDirs     []string `toml:"script_dirs"`
	StateDir       string   `toml:"state_dir"`
	StartProfile   string   `toml:"start_profile"`
	AfkProfile     string   `toml:"afk_profile"`
	AfkTimeoutSecs int      `toml:"afk_timeout_secs"`
	FadeMillis     int      `toml:"fade_millis"`
}

func defaultConfig() daemonConfig {
	return daemonConfig{
		ProfileDirs: []string{"/var/lib/eruption/profiles"},
		ScriptDirs:  []string{"/usr/share/eruption/scripts"},
		StateDir:    "/var/lib/eruption/state",
		FadeMillis:  0, // controller default applies
	}
}

// loadConfig reads the config file, falling back to defaults when the
// file does not exist.
func loadConfig(path string) (daemonConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}
