package controller

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/eruption-project/eruption-sub000/system/canvas"
)

// DaemonState is the cross-goroutine shared state of the daemon:
// simple flags and scalars as atomics, composite records behind a
// short-held RWMutex. The main loop is the only writer of the active
// profile record; the request handler and extension modules get narrow
// accessor methods instead of the struct itself.
type DaemonState struct {
	activeSlot atomic.Int32
	brightness atomic.Int32
	hue        atomic.Uint64 // float64 bits, degrees
	saturation atomic.Uint64 // float64 bits, multiplier
	lightness  atomic.Uint64 // float64 bits, multiplier
	sfxEnabled atomic.Bool

	quit     atomic.Bool
	reenter  atomic.Bool
	failsafe atomic.Bool
	reload   atomic.Bool
	afk      atomic.Bool

	frameGen      atomic.Uint64
	fadeRemaining atomic.Int64 // millis left of the cross-fade
	fadeTotal     atomic.Int64

	mu            sync.RWMutex
	slotNames     [NumSlots]string
	slotProfiles  [NumSlots]string
	activeProfile string // display name
	activePath    string // profile file path
	preAfkPath    string
	overrides     map[string]int // vendor:product:serial -> brightness
	switchTarget  string
	switchPending bool
}

// NewDaemonState returns state with neutral post-processing and
// default slot names.
func NewDaemonState() *DaemonState {
	s := &DaemonState{
		overrides: make(map[string]int),
	}
	s.brightness.Store(100)
	s.saturation.Store(math.Float64bits(1))
	s.lightness.Store(math.Float64bits(1))
	s.sfxEnabled.Store(true)
	for i := 0; i < NumSlots; i++ {
		s.slotNames[i] = fmt.Sprintf("Profile Slot %d", i+1)
	}
	return s
}

func (s *DaemonState) ActiveSlot() int {
	return int(s.activeSlot.Load())
}

func (s *DaemonState) SetActiveSlot(slot int) error {
	if slot < 0 || slot >= NumSlots {
		return errors.Errorf("[controller] slot index %d out of range", slot)
	}
	s.activeSlot.Store(int32(slot))
	return nil
}

func (s *DaemonState) Brightness() int {
	return int(s.brightness.Load())
}

func (s *DaemonState) SetBrightness(v int) {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	s.brightness.Store(int32(v))
}

func (s *DaemonState) Hue() float64 {
	return math.Float64frombits(s.hue.Load())
}

func (s *DaemonState) SetHue(v float64) {
	s.hue.Store(math.Float64bits(v))
}

func (s *DaemonState) Saturation() float64 {
	return math.Float64frombits(s.saturation.Load())
}

func (s *DaemonState) SetSaturation(v float64) {
	s.saturation.Store(math.Float64bits(v))
}

func (s *DaemonState) Lightness() float64 {
	return math.Float64frombits(s.lightness.Load())
}

func (s *DaemonState) SetLightness(v float64) {
	s.lightness.Store(math.Float64bits(v))
}

func (s *DaemonState) SfxEnabled() bool {
	return s.sfxEnabled.Load()
}

func (s *DaemonState) SetSfxEnabled(v bool) {
	s.sfxEnabled.Store(v)
}

// Params assembles the canvas post-processing from the current
// atomics.
func (s *DaemonState) Params() canvas.Params {
	return canvas.Params{
		Brightness: s.Brightness(),
		Hue:        s.Hue(),
		Saturation: s.Saturation(),
		Lightness:  s.Lightness(),
	}
}

func (s *DaemonState) SlotName(slot int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slotNames[slot]
}

func (s *DaemonState) SlotNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.slotNames[:]...)
}

func (s *DaemonState) SetSlotName(slot int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slotNames[slot] = name
}

func (s *DaemonState) SlotProfile(slot int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slotProfiles[slot]
}

func (s *DaemonState) SlotProfiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.slotProfiles[:]...)
}

func (s *DaemonState) SetSlotProfile(slot int, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slotProfiles[slot] = path
}

// ActiveProfile returns the display name and file path of the running
// profile.
func (s *DaemonState) ActiveProfile() (name, path string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeProfile, s.activePath
}

func (s *DaemonState) setActiveProfile(name, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeProfile = name
	s.activePath = path
}

func (s *DaemonState) clearActiveProfile() {
	s.setActiveProfile("", "")
}

// RequestSwitch stages an explicit switch-by-path, picked up by the
// main loop on its next iteration. A second request before pickup
// replaces the first.
func (s *DaemonState) RequestSwitch(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchTarget = path
	s.switchPending = true
}

// TakeSwitchRequest consumes a staged switch request.
func (s *DaemonState) TakeSwitchRequest() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.switchPending {
		return "", false
	}
	s.switchPending = false
	target := s.switchTarget
	s.switchTarget = ""
	return target, true
}

func (s *DaemonState) RequestReload() { s.reload.Store(true) }
func (s *DaemonState) TakeReload() bool {
	return s.reload.Swap(false)
}

func (s *DaemonState) RequestFailsafe() { s.failsafe.Store(true) }
func (s *DaemonState) TakeFailsafe() bool {
	return s.failsafe.Swap(false)
}
func (s *DaemonState) FailsafePending() bool { return s.failsafe.Load() }

func (s *DaemonState) RequestReenter() { s.reenter.Store(true) }
func (s *DaemonState) TakeReenter() bool {
	return s.reenter.Swap(false)
}

func (s *DaemonState) RequestQuit()        { s.quit.Store(true) }
func (s *DaemonState) QuitRequested() bool { return s.quit.Load() }

func (s *DaemonState) Afk() bool       { return s.afk.Load() }
func (s *DaemonState) SetAfk(afk bool) { s.afk.Store(afk) }

// SavePreAfk remembers the profile path active before the AFK swap.
func (s *DaemonState) SavePreAfk(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preAfkPath = path
}

func (s *DaemonState) TakePreAfk() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.preAfkPath
	s.preAfkPath = ""
	return path
}

// BumpFrameGeneration invalidates the dispatcher's per-device frame
// cache so the next render rewrites every device even when the canvas
// content is unchanged.
func (s *DaemonState) BumpFrameGeneration() uint64 {
	return s.frameGen.Add(1)
}

func (s *DaemonState) FrameGeneration() uint64 {
	return s.frameGen.Load()
}

// StartFade arms the cross-fade countdown for a profile switch.
func (s *DaemonState) StartFade(millis int) {
	s.fadeTotal.Store(int64(millis))
	s.fadeRemaining.Store(int64(millis))
}

// AdvanceFade burns elapsed wall-clock millis off the countdown. An
// additive counter rather than a deadline, so a slow render sub-tick
// does not visually skip ahead.
func (s *DaemonState) AdvanceFade(elapsedMillis int64) {
	if s.fadeRemaining.Load() <= 0 {
		return
	}
	if s.fadeRemaining.Add(-elapsedMillis) < 0 {
		s.fadeRemaining.Store(0)
	}
}

// Fade returns the remaining and total fade millis.
func (s *DaemonState) Fade() (remaining, total int) {
	return int(s.fadeRemaining.Load()), int(s.fadeTotal.Load())
}

func (s *DaemonState) Override(key string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.overrides[key]
	return v, ok
}

// Overrides returns a copy of the per-device brightness overrides.
func (s *DaemonState) Overrides() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.overrides))
	for k, v := range s.overrides {
		out[k] = v
	}
	return out
}

func (s *DaemonState) SetOverride(key string, brightness int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[key] = brightness
}

func (s *DaemonState) RemoveOverride(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, key)
}

// slotStateFile is the persisted slot table.
type slotStateFile struct {
	ActiveSlot int      `toml:"active_slot"`
	Names      []string `toml:"slot_names"`
	Profiles   []string `toml:"slot_profiles"`
}

// SlotRegistry persists the slot table through the config registry.
type SlotRegistry struct {
	state *DaemonState
}

func NewSlotRegistry(state *DaemonState) *SlotRegistry {
	return &SlotRegistry{state: state}
}

func (r *SlotRegistry) Name() string {
	return "slots"
}

func (r *SlotRegistry) Value() []byte {
	f := slotStateFile{
		ActiveSlot: r.state.ActiveSlot(),
		Names:      r.state.SlotNames(),
		Profiles:   r.state.SlotProfiles(),
	}
	b, err := toml.Marshal(f)
	if err != nil {
		return nil
	}
	return b
}

func (r *SlotRegistry) Load(v []byte) error {
	if len(v) == 0 {
		return nil
	}
	var f slotStateFile
	if err := toml.Unmarshal(v, &f); err != nil {
		return errors.Wrap(err, "[controller] cannot decode slot state")
	}
	if f.ActiveSlot >= 0 && f.ActiveSlot < NumSlots {
		r.state.activeSlot.Store(int32(f.ActiveSlot))
	}
	for i := 0; i < NumSlots && i < len(f.Names); i++ {
		if f.Names[i] != "" {
			r.state.SetSlotName(i, f.Names[i])
		}
	}
	for i := 0; i < NumSlots && i < len(f.Profiles); i++ {
		r.state.SetSlotProfile(i, f.Profiles[i])
	}
	return nil
}

func (r *SlotRegistry) Apply() error {
	return nil
}

func (r *SlotRegistry) Close() error {
	return nil
}

// canvasStateFile is the persisted post-processing record.
type canvasStateFile struct {
	Brightness int            `toml:"brightness"`
	Hue        float64        `toml:"hue"`
	Saturation float64        `toml:"saturation"`
	Lightness  float64        `toml:"lightness"`
	SfxEnabled bool           `toml:"enable_sfx"`
	Overrides  map[string]int `toml:"brightness_overrides,omitempty"`
}

// CanvasRegistry persists brightness, HSL offsets, and per-device
// brightness overrides.
type CanvasRegistry struct {
	state *DaemonState
}

func NewCanvasRegistry(state *DaemonState) *CanvasRegistry {
	return &CanvasRegistry{state: state}
}

func (r *CanvasRegistry) Name() string {
	return "canvas"
}

func (r *CanvasRegistry) Value() []byte {
	f := canvasStateFile{
		Brightness: r.state.Brightness(),
		Hue:        r.state.Hue(),
		Saturation: r.state.Saturation(),
		Lightness:  r.state.Lightness(),
		SfxEnabled: r.state.SfxEnabled(),
		Overrides:  r.state.Overrides(),
	}
	b, err := toml.Marshal(f)
	if err != nil {
		return nil
	}
	return b
}

func (r *CanvasRegistry) Load(v []byte) error {
	if len(v) == 0 {
		return nil
	}
	f := canvasStateFile{
		Brightness: 100,
		Saturation: 1,
		Lightness:  1,
		SfxEnabled: true,
	}
	if err := toml.Unmarshal(v, &f); err != nil {
		return errors.Wrap(err, "[controller] cannot decode canvas state")
	}
	r.state.SetBrightness(f.Brightness)
	r.state.SetHue(f.Hue)
	r.state.SetSaturation(f.Saturation)
	r.state.SetLightness(f.Lightness)
	r.state.SetSfxEnabled(f.SfxEnabled)
	for key, v := range f.Overrides {
		r.state.SetOverride(key, v)
	}
	return nil
}

func (r *CanvasRegistry) Apply() error {
	return nil
}

func (r *CanvasRegistry) Close() error {
	return nil
}
