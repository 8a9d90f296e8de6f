package modules

import (
	"github.com/dop251/goja"

	"github.com/eruption-project/eruption-sub000/system/persist"
)

// ColorSchemes exposes the named scheme table to scripts. A scheme
// edit through the control surface triggers a profile reload, so the
// values a script captured at startup never go stale.
type ColorSchemes struct {
	store *persist.ColorSchemes
}

func NewColorSchemes(store *persist.ColorSchemes) *ColorSchemes {
	return &ColorSchemes{store: store}
}

func (c *ColorSchemes) Name() string {
	return "colorschemes"
}

func (c *ColorSchemes) Register(vm *goja.Runtime) error {
	// color_scheme returns the packed color stops, or null when the
	// scheme does not exist
	if err := vm.Set("color_scheme", func(name string) interface{} {
		stops, err := c.store.Stops(name)
		if err != nil {
			return nil
		}
		packed := make([]uint32, len(stops))
		for i, s := range stops {
			packed[i] = s.Packed()
		}
		return packed
	}); err != nil {
		return err
	}
	return vm.Set("color_scheme_names", func() []string {
		return c.store.Names()
	})
}

func (c *ColorSchemes) MainLoopHook(tick uint64) {}
