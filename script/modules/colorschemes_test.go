package modules

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"

	"github.com/eruption-project/eruption-sub000/system/canvas"
	"github.com/eruption-project/eruption-sub000/system/persist"
)

func TestColorSchemeBindings(t *testing.T) {
	store := persist.NewColorSchemes()
	require.NoError(t, store.Set("warm", []canvas.RGBA{
		{R: 0xff, G: 0x80, A: 0xff},
		{R: 0xff, A: 0xff},
	}))

	m := NewColorSchemes(store)
	vm := goja.New()
	require.NoError(t, m.Register(vm))

	v, err := vm.RunString(`color_scheme("warm")[0]`)
	require.NoError(t, err)
	require.Equal(t, int64(0xffff8000), v.ToInteger())

	v, err = vm.RunString(`color_scheme("missing")`)
	require.NoError(t, err)
	require.True(t, goja.IsNull(v))

	v, err = vm.RunString(`color_scheme_names()[0]`)
	require.NoError(t, err)
	require.Equal(t, "warm", v.String())
}
