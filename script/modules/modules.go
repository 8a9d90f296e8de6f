// Package modules defines the extension surface exposed to scripts.
// Modules are independent of each other and of the core: the engine
// only calls Register once per instance, and the main loop calls
// MainLoopHook once per iteration.
package modules

import "github.com/dop251/goja"

// Module is one script extension. Register installs the module's
// callables into an instance's global namespace; it runs once per
// spawned instance and must be safe to call from multiple instance
// goroutines over the module's lifetime (the callables it installs
// share the module's state across instances).
type Module interface {
	Name() string
	Register(vm *goja.Runtime) error

	// MainLoopHook runs synchronously inside the scheduler iteration
	// and must return quickly; long work belongs on a module-owned
	// background goroutine.
	MainLoopHook(tick uint64)
}
