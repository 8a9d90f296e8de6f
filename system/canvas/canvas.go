package canvas

import (
	"sync"

	"github.com/pkg/errors"
)

// Zone is the contiguous canvas region allocated to one device.
type Zone struct {
	Offset int
	Len    int
}

// Contains reports whether the cell index falls inside the zone.
func (z Zone) Contains(idx int) bool {
	return idx >= z.Offset && idx < z.Offset+z.Len
}

var (
	// ErrZoneOutOfBounds is returned when a zone does not fit the canvas.
	ErrZoneOutOfBounds = errors.New("canvas: zone out of bounds")
	// ErrZoneOverlap is returned when two zones share cells.
	ErrZoneOverlap = errors.New("canvas: zones overlap")
)

// ValidateZones checks the zone invariant: every zone lies within
// [0, size) and no two zones overlap.
func ValidateZones(size int, zones []Zone) error {
	for i, z := range zones {
		if z.Offset < 0 || z.Len < 0 || z.Offset+z.Len > size {
			return errors.Wrapf(ErrZoneOutOfBounds, "zone %d (%+v)", i, z)
		}
		for j := 0; j < i; j++ {
			o := zones[j]
			if z.Offset < o.Offset+o.Len && o.Offset < z.Offset+z.Len && z.Len > 0 && o.Len > 0 {
				return errors.Wrapf(ErrZoneOverlap, "zone %d (%+v) and zone %d (%+v)", i, z, j, o)
			}
		}
	}
	return nil
}

// Params is the post-processing applied when turning the composited
// canvas into outgoing LED frames. Brightness is 0..100; Hue is a shift
// in degrees; Saturation and Lightness are multipliers.
type Params struct {
	Brightness int
	Hue        float64
	Saturation float64
	Lightness  float64
}

// DefaultParams leaves colors untouched at full brightness.
func DefaultParams() Params {
	return Params{Brightness: 100, Hue: 0, Saturation: 1, Lightness: 1}
}

// Canvas is the shared frame buffer: one cell per LED across all bound
// devices. Its length is fixed at startup. Script engine instances
// composite their layers into it; the I/O dispatcher reads zones out of
// it when writing to hardware.
type Canvas struct {
	mu       sync.RWMutex
	cells    []RGBA
	snapshot []RGBA // last frame of the previous profile, source of the cross-fade
}

// New creates an all-zero canvas with the given fixed cell count.
func New(size int) *Canvas {
	return &Canvas{
		cells:    make([]RGBA, size),
		snapshot: make([]RGBA, size),
	}
}

// Size returns the immutable cell count.
func (c *Canvas) Size() int {
	return len(c.cells)
}

// Composite blends the layer over the current canvas content. The layer
// must be exactly canvas-sized; each instance renders a full-canvas
// layer and the layers stack in instance order.
func (c *Canvas) Composite(layer []RGBA) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(layer) != len(c.cells) {
		return errors.Errorf("canvas: layer size %d does not match canvas size %d", len(layer), len(c.cells))
	}
	for i := range c.cells {
		c.cells[i] = layer[i].Over(c.cells[i])
	}
	return nil
}

// CopyInto writes the raw (pre post-processing) canvas into dst, which
// must be canvas-sized. Scripts use this to read neighboring cells.
func (c *Canvas) CopyInto(dst []RGBA) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	copy(dst, c.cells)
}

// Clear zeroes every cell and the fade snapshot. Called on every
// profile switch so a profile that does not repaint all cells does not
// inherit stale pixels.
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.cells {
		c.cells[i] = RGBA{}
		c.snapshot[i] = RGBA{}
	}
}

// TakeSnapshot records the current content as the fade source.
func (c *Canvas) TakeSnapshot() {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.snapshot, c.cells)
}

// Output produces the outgoing frame: post-processing applied to every
// cell, then the cross-fade mixed in. fadeRemaining counts down from
// fadeTotal to zero over the fade; zero means no fade is in progress.
func (c *Canvas) Output(p Params, fadeRemaining, fadeTotal int) []RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]RGBA, len(c.cells))
	var t float64
	if fadeTotal > 0 && fadeRemaining > 0 {
		if fadeRemaining > fadeTotal {
			fadeRemaining = fadeTotal
		}
		t = float64(fadeRemaining) / float64(fadeTotal)
	}
	for i, cell := range c.cells {
		v := cell
		if t > 0 {
			v = Lerp(cell, c.snapshot[i], t)
		}
		if p.Hue != 0 || p.Saturation != 1 || p.Lightness != 1 {
			v = v.AdjustHSL(p.Hue, p.Saturation, p.Lightness)
		}
		out[i] = v.Dim(p.Brightness)
	}
	return out
}
