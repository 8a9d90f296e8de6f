package persist

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const stateFileExt = ".toml"

// FileHelper contains a list of configurations to be loaded, saved, and applied
type FileHelper struct {
	configs  map[string]Registry
	stateDir string
}

// NewFileHelper returns a helper to persist config to files under stateDir
func NewFileHelper(stateDir string) (*FileHelper, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "persist: cannot create state directory")
	}
	return &FileHelper{
		configs:  make(map[string]Registry),
		stateDir: stateDir,
	}, nil
}

// Register will add the config to the list
func (h *FileHelper) Register(config Registry) {
	h.configs[config.Name()] = config
}

func (h *FileHelper) pathFor(name string) string {
	return filepath.Join(h.stateDir, name+stateFileExt)
}

// Load will retrieve and populate configs from the state directory
func (h *FileHelper) Load() error {
	for _, config := range h.configs {
		log.Printf("persist: loading \"%s\" from the state directory\n", config.Name())
		v, err := os.ReadFile(h.pathFor(config.Name()))
		if os.IsNotExist(err) {
			// nothing to load
			continue
		}
		if err != nil {
			log.Printf("persist: error loading \"%s\": %s\n", config.Name(), err)
			return err
		}
		if err := config.Load(v); err != nil {
			log.Printf("persist: error decoding \"%s\": %s\n", config.Name(), err)
			return err
		}
	}

	return nil
}

// Save will persist all the configs to the state directory
func (h *FileHelper) Save() error {
	for _, config := range h.configs {
		log.Printf("persist: saving \"%s\" to the state directory\n", config.Name())
		err := writeFileAtomic(h.pathFor(config.Name()), config.Value())
		if err != nil {
			log.Printf("persist: error saving \"%s\": %s\n", config.Name(), err)
			return err
		}
	}

	return nil
}

// Apply will apply each config accordingly. This is usually called after Load()
func (h *FileHelper) Apply() error {
	for _, config := range h.configs {
		log.Printf("persist: applying \"%s\"\n", config.Name())
		if err := config.Apply(); err != nil {
			return err
		}
		time.Sleep(time.Millisecond * 25)
	}

	return nil
}

// Close will release resources of each config
func (h *FileHelper) Close() {
	for _, config := range h.configs {
		log.Printf("persist: closing \"%s\"\n", config.Name())
		err := config.Close()
		if err != nil {
			log.Printf("persist: error closing \"%s\": %s\n", config.Name(), err)
		}
	}
}

// writeFileAtomic writes via a temp file and rename so a crash mid-write
// cannot leave a truncated state file behind.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
