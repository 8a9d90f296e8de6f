package modules

import (
	"os"
	"sync"

	"github.com/dop251/goja"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Persistence exposes a key/value store to scripts (store_get,
// store_set, store_del). All instances share one store; values survive
// restarts through a TOML file written at shutdown.
type Persistence struct {
	mu   sync.RWMutex
	path string
	data map[string]interface{}
}

// NewPersistence loads the store file if it exists.
func NewPersistence(path string) (*Persistence, error) {
	p := &Persistence{
		path: path,
		data: make(map[string]interface{}),
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, errors.Wrap(err, "persistence store")
	}
	if err := toml.Unmarshal(raw, &p.data); err != nil {
		return nil, errors.Wrap(err, "persistence store")
	}
	return p, nil
}

func (p *Persistence) Name() string {
	return "persistence"
}

func (p *Persistence) Register(vm *goja.Runtime) error {
	if err := vm.Set("store_get", func(key string, def goja.Value) interface{} {
		p.mu.RLock()
		defer p.mu.RUnlock()
		if v, ok := p.data[key]; ok {
			return v
		}
		return def.Export()
	}); err != nil {
		return err
	}
	if err := vm.Set("store_set", func(key string, v goja.Value) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.data[key] = v.Export()
	}); err != nil {
		return err
	}
	return vm.Set("store_del", func(key string) {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.data, key)
	})
}

func (p *Persistence) MainLoopHook(tick uint64) {}

// Save writes the store to its backing file.
func (p *Persistence) Save() error {
	p.mu.RLock()
	data, err := toml.Marshal(p.data)
	p.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "persistence store")
	}
	return errors.Wrap(os.WriteFile(p.path, data, 0o644), "persistence store")
}
