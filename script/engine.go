package script

import (
	"log"
	"os"
	"path/filepath"

	"github.com/dop251/goja"
	"github.com/pkg/errors"

	"github.com/eruption-project/eruption-sub000/profiles"
	"github.com/eruption-project/eruption-sub000/script/modules"
	"github.com/eruption-project/eruption-sub000/system/canvas"
)

// Engine is one isolated interpreter bound to one script file. It owns
// a private goja runtime and a thread-local canvas layer; all handler
// execution happens sequentially on the instance goroutine, so the
// runtime is never touched concurrently.
type Engine struct {
	manifest *profiles.Manifest
	shared   *canvas.Canvas

	vm    *goja.Runtime
	layer []canvas.RGBA // thread-local layer, composited on submit
	view  []canvas.RGBA // read-only copy of the shared canvas

	onStartup goja.Callable
	onTick    goja.Callable
	onRender  goja.Callable
	onKeyDown goja.Callable
	onKeyUp   goja.Callable
	onQuit    goja.Callable
}

// newEngine builds the runtime, exposes the core canvas API and the
// merged profile parameters, registers every extension module, and
// executes the script body so handler functions are bound.
func newEngine(m *profiles.Manifest, params map[string]profiles.Value, shared *canvas.Canvas, mods []modules.Module) (*Engine, error) {
	src := m.Source
	if src == "" {
		data, err := os.ReadFile(m.ScriptFile)
		if err != nil {
			return nil, errors.Wrapf(err, "script %s", filepath.Base(m.ScriptFile))
		}
		src = string(data)
	}

	e := &Engine{
		manifest: m,
		shared:   shared,
		vm:       goja.New(),
		layer:    make([]canvas.RGBA, shared.Size()),
		view:     make([]canvas.RGBA, shared.Size()),
	}

	if err := e.registerRuntime(); err != nil {
		return nil, err
	}
	for name, v := range params {
		if err := e.vm.Set(name, v.Export()); err != nil {
			return nil, errors.Wrapf(err, "script %s: parameter %q", m.Name, name)
		}
	}
	for _, mod := range mods {
		if err := mod.Register(e.vm); err != nil {
			return nil, errors.Wrapf(err, "script %s: module %s", m.Name, mod.Name())
		}
	}

	if _, err := e.vm.RunScript(filepath.Base(m.ScriptFile), src); err != nil {
		return nil, errors.Wrapf(err, "script %s", m.Name)
	}

	e.onStartup = e.handler("on_startup")
	e.onTick = e.handler("on_tick")
	e.onRender = e.handler("on_render")
	e.onKeyDown = e.handler("on_key_down")
	e.onKeyUp = e.handler("on_key_up")
	e.onQuit = e.handler("on_quit")

	return e, nil
}

func (e *Engine) handler(name string) goja.Callable {
	fn, ok := goja.AssertFunction(e.vm.Get(name))
	if !ok {
		return nil
	}
	return fn
}

// registerRuntime installs the core script API. Everything else the
// scripts see comes from extension modules.
func (e *Engine) registerRuntime() error {
	api := map[string]interface{}{
		"canvas_size": func() int {
			return len(e.layer)
		},
		"canvas_set": func(idx int, color int64) {
			if idx >= 0 && idx < len(e.layer) {
				e.layer[idx] = canvas.FromPacked(uint32(color))
			}
		},
		"canvas_get": func(idx int) int64 {
			if idx >= 0 && idx < len(e.view) {
				return int64(e.view[idx].Packed())
			}
			return 0
		},
		"canvas_submit": func() {
			if err := e.shared.Composite(e.layer); err != nil {
				log.Printf("[script] %s: submit: %v\n", e.manifest.Name, err)
			}
		},
		"rgba": func(r, g, b, a uint8) int64 {
			return int64(canvas.RGBA{R: r, G: g, B: b, A: a}.Packed())
		},
		"hsla": func(h, s, l float64, a uint8) int64 {
			return int64(canvas.FromHSL(h, s, l, a).Packed())
		},
	}
	for name, fn := range api {
		if err := e.vm.Set(name, fn); err != nil {
			return errors.Wrapf(err, "script %s: runtime binding %q", e.manifest.Name, name)
		}
	}
	return nil
}

// handle runs one message through the script. Any interpreter error is
// returned so the instance loop can latch the failure; it never
// propagates past the instance boundary.
func (e *Engine) handle(msg Message) error {
	switch msg.Kind {
	case MsgStartup:
		return e.call(e.onStartup)
	case MsgTick:
		return e.call(e.onTick, e.vm.ToValue(msg.Delta))
	case MsgRender:
		e.shared.CopyInto(e.view)
		return e.call(e.onRender)
	case MsgKeyDown:
		return e.call(e.onKeyDown, e.vm.ToValue(msg.Key))
	case MsgKeyUp:
		return e.call(e.onKeyUp, e.vm.ToValue(msg.Key))
	case MsgQuit:
		return e.call(e.onQuit, e.vm.ToValue(msg.Code))
	case MsgUnload:
		// nothing for the script; the instance loop exits
	}
	return nil
}

func (e *Engine) call(fn goja.Callable, args ...goja.Value) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("script %s: handler panic: %v", e.manifest.Name, r)
		}
	}()
	if _, err := fn(goja.Undefined(), args...); err != nil {
		return errors.Wrapf(err, "script %s", e.manifest.Name)
	}
	return nil
}
