package canvas

import "math"

// RGBA is one canvas cell. Channels are 8 bit, alpha is straight
// (not premultiplied).
type RGBA struct {
	R uint8
	G uint8
	B uint8
	A uint8
}

// Packed returns the color as a single 0xAARRGGBB value, the format
// used inside profile files and the color-scheme store.
func (c RGBA) Packed() uint32 {
	return uint32(c.A)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// FromPacked decodes a 0xAARRGGBB value.
func FromPacked(v uint32) RGBA {
	return RGBA{
		A: uint8(v >> 24),
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
	}
}

// Over composites src over dst using the straight-alpha "over" operator.
// Scripts stack like layers; an instance that paints with zero alpha
// leaves the cells below it visible.
func (c RGBA) Over(dst RGBA) RGBA {
	sa := float64(c.A) / 255.0
	da := float64(dst.A) / 255.0
	oa := sa + da*(1.0-sa)
	if oa <= 0 {
		return RGBA{}
	}
	blend := func(s, d uint8) uint8 {
		v := (float64(s)*sa + float64(d)*da*(1.0-sa)) / oa
		return uint8(math.Round(clamp(v, 0, 255)))
	}
	return RGBA{
		R: blend(c.R, dst.R),
		G: blend(c.G, dst.G),
		B: blend(c.B, dst.B),
		A: uint8(math.Round(oa * 255.0)),
	}
}

// Lerp interpolates between a and b with t in [0, 1].
func Lerp(a, b RGBA, t float64) RGBA {
	t = clamp(t, 0, 1)
	l := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return RGBA{
		R: l(a.R, b.R),
		G: l(a.G, b.G),
		B: l(a.B, b.B),
		A: l(a.A, b.A),
	}
}

// ToHSL converts to hue [0, 360), saturation [0, 1] and lightness [0, 1].
func (c RGBA) ToHSL() (h, s, l float64) {
	r := float64(c.R) / 255.0
	g := float64(c.G) / 255.0
	b := float64(c.B) / 255.0

	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	l = (max + min) / 2.0

	if max == min {
		return 0, 0, l
	}

	d := max - min
	if l > 0.5 {
		s = d / (2.0 - max - min)
	} else {
		s = d / (max + min)
	}

	switch max {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	h *= 60
	return h, s, l
}

// FromHSL builds a color from hue [0, 360), saturation [0, 1],
// lightness [0, 1] and an explicit alpha.
func FromHSL(h, s, l float64, a uint8) RGBA {
	h = math.Mod(math.Mod(h, 360)+360, 360)
	s = clamp(s, 0, 1)
	l = clamp(l, 0, 1)

	if s == 0 {
		v := uint8(math.Round(l * 255.0))
		return RGBA{R: v, G: v, B: v, A: a}
	}

	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q

	conv := func(t float64) uint8 {
		if t < 0 {
			t++
		}
		if t > 1 {
			t--
		}
		var v float64
		switch {
		case t < 1.0/6.0:
			v = p + (q-p)*6*t
		case t < 1.0/2.0:
			v = q
		case t < 2.0/3.0:
			v = p + (q-p)*(2.0/3.0-t)*6
		default:
			v = p
		}
		return uint8(math.Round(clamp(v, 0, 1) * 255.0))
	}

	hk := h / 360.0
	return RGBA{
		R: conv(hk + 1.0/3.0),
		G: conv(hk),
		B: conv(hk - 1.0/3.0),
		A: a,
	}
}

// AdjustHSL shifts hue by dh degrees and scales saturation/lightness by
// ds/dl factors. Used by the canvas post-processing stage.
func (c RGBA) AdjustHSL(dh, ds, dl float64) RGBA {
	h, s, l := c.ToHSL()
	return FromHSL(h+dh, s*ds, l*dl, c.A)
}

// Dim scales the color channels by brightness in [0, 100].
func (c RGBA) Dim(brightness int) RGBA {
	b := clamp(float64(brightness)/100.0, 0, 1)
	return RGBA{
		R: uint8(math.Round(float64(c.R) * b)),
		G: uint8(math.Round(float64(c.G) * b)),
		B: uint8(math.Round(float64(c.B) * b)),
		A: c.A,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
