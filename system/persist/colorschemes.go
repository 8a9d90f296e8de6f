package persist

import (
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/eruption-project/eruption-sub000/system/canvas"
)

var (
	// ErrSchemeNotFound is returned when removing or querying a scheme that does not exist
	ErrSchemeNotFound = errors.New("persist: color scheme not found")
	// ErrSchemeEmpty is returned when defining a scheme with no color stops
	ErrSchemeEmpty = errors.New("persist: color scheme needs at least one color stop")
)

// ColorSchemes holds named ordered lists of color stops that scripts can
// reference by name. It implements Registry so the definitions survive
// daemon restarts.
type ColorSchemes struct {
	mu      sync.RWMutex
	schemes map[string][]canvas.RGBA
}

var _ Registry = &ColorSchemes{}

// NewColorSchemes returns an empty scheme table
func NewColorSchemes() *ColorSchemes {
	return &ColorSchemes{
		schemes: make(map[string][]canvas.RGBA),
	}
}

// Set defines or replaces a named scheme
func (c *ColorSchemes) Set(name string, stops []canvas.RGBA) error {
	if len(stops) == 0 {
		return ErrSchemeEmpty
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemes[name] = append([]canvas.RGBA(nil), stops...)
	return nil
}

// Remove deletes a named scheme
func (c *ColorSchemes) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.schemes[name]; !ok {
		return ErrSchemeNotFound
	}
	delete(c.schemes, name)
	return nil
}

// Stops returns the color stops of a named scheme
func (c *ColorSchemes) Stops(name string) ([]canvas.RGBA, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stops, ok := c.schemes[name]
	if !ok {
		return nil, ErrSchemeNotFound
	}
	return append([]canvas.RGBA(nil), stops...), nil
}

// Names returns the defined scheme names in sorted order
func (c *ColorSchemes) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.schemes))
	for name := range c.schemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type colorSchemesFile struct {
	Schemes map[string][]uint32 `toml:"schemes"`
}

// Name satisfies Registry
func (c *ColorSchemes) Name() string {
	return "colorschemes"
}

// Value satisfies Registry
func (c *ColorSchemes) Value() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := colorSchemesFile{Schemes: make(map[string][]uint32, len(c.schemes))}
	for name, stops := range c.schemes {
		packed := make([]uint32, len(stops))
		for i, stop := range stops {
			packed[i] = stop.Packed()
		}
		out.Schemes[name] = packed
	}
	b, err := toml.Marshal(out)
	if err != nil {
		return nil
	}
	return b
}

// Load satisfies Registry
func (c *ColorSchemes) Load(v []byte) error {
	if len(v) == 0 {
		return nil
	}
	var in colorSchemesFile
	if err := toml.Unmarshal(v, &in); err != nil {
		return errors.Wrap(err, "persist: cannot decode color schemes")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemes = make(map[string][]canvas.RGBA, len(in.Schemes))
	for name, packed := range in.Schemes {
		if len(packed) == 0 {
			continue
		}
		stops := make([]canvas.RGBA, len(packed))
		for i, p := range packed {
			stops[i] = canvas.FromPacked(p)
		}
		c.schemes[name] = stops
	}
	return nil
}

// Apply satisfies Registry
func (c *ColorSchemes) Apply() error {
	return nil
}

// Close satisfies Registry
func (c *ColorSchemes) Close() error {
	return nil
}
