package canvas

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackedRoundTrip(t *testing.T) {
	c := RGBA{R: 0x12, G: 0x34, B: 0x56, A: 0x78}
	require.Equal(t, uint32(0x78123456), c.Packed())
	require.Equal(t, c, FromPacked(c.Packed()))
}

func TestOverOperator(t *testing.T) {
	red := RGBA{R: 255, A: 255}
	green := RGBA{G: 255, A: 255}

	// opaque src replaces dst
	require.Equal(t, red, red.Over(green))

	// transparent src leaves dst
	require.Equal(t, green, RGBA{}.Over(green))

	// half-transparent white over opaque black lands mid-gray
	half := RGBA{R: 255, G: 255, B: 255, A: 128}
	out := half.Over(RGBA{A: 255})
	require.InDelta(t, 128, int(out.R), 1)
	require.Equal(t, uint8(255), out.A)
}

func TestLerp(t *testing.T) {
	a := RGBA{R: 0, G: 100, B: 200, A: 255}
	b := RGBA{R: 100, G: 0, B: 200, A: 255}

	require.Equal(t, a, Lerp(a, b, 0))
	require.Equal(t, b, Lerp(a, b, 1))

	mid := Lerp(a, b, 0.5)
	require.Equal(t, uint8(50), mid.R)
	require.Equal(t, uint8(50), mid.G)
	require.Equal(t, uint8(200), mid.B)
}

func TestHSLRoundTrip(t *testing.T) {
	colors := []RGBA{
		{R: 255, A: 255},
		{G: 255, A: 255},
		{B: 255, A: 255},
		{R: 255, G: 255, B: 255, A: 255},
		{A: 255},
		{R: 120, G: 80, B: 200, A: 255},
	}
	for _, c := range colors {
		h, s, l := c.ToHSL()
		back := FromHSL(h, s, l, c.A)
		require.InDelta(t, int(c.R), int(back.R), 2)
		require.InDelta(t, int(c.G), int(back.G), 2)
		require.InDelta(t, int(c.B), int(back.B), 2)
	}
}

func TestAdjustHSLHueShift(t *testing.T) {
	red := RGBA{R: 255, A: 255}
	shifted := red.AdjustHSL(120, 1, 1)
	// red shifted by 120 degrees is green
	require.InDelta(t, 0, int(shifted.R), 2)
	require.InDelta(t, 255, int(shifted.G), 2)
}

func TestDim(t *testing.T) {
	c := RGBA{R: 200, G: 100, B: 50, A: 255}
	require.Equal(t, RGBA{R: 100, G: 50, B: 25, A: 255}, c.Dim(50))
	require.Equal(t, c, c.Dim(100))
	require.Equal(t, RGBA{A: 255}, c.Dim(0))
	// out-of-range brightness clamps rather than overflowing
	require.Equal(t, c, c.Dim(150))
}
