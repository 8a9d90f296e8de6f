package controller

import (
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/eruption-project/eruption-sub000/profiles"
	"github.com/eruption-project/eruption-sub000/rpc"
	"github.com/eruption-project/eruption-sub000/script"
	"github.com/eruption-project/eruption-sub000/script/modules"
	"github.com/eruption-project/eruption-sub000/system/canvas"
)

// SwitchResult is the outcome of one switch attempt.
type SwitchResult int

const (
	// Switched means the target profile's fleet is now active.
	Switched SwitchResult = iota
	// InvalidProfile means the target failed to load and the previous
	// profile was kept untouched.
	InvalidProfile
	// FallbackToFailsafe means the built-in failsafe profile is now
	// active.
	FallbackToFailsafe
)

func (r SwitchResult) String() string {
	return [...]string{"Switched", "InvalidProfile", "FallbackToFailsafe"}[r]
}

var (
	// ErrNoTargetProfile is returned when a switch is requested with
	// no target and no failsafe request pending.
	ErrNoTargetProfile = errors.New("[controller] no target profile for switch")
	// ErrFenceTimeout is returned when another switch holds the fence
	// past FenceTimeout. Indicates a deadlock elsewhere; the caller
	// must re-enter the main loop.
	ErrFenceTimeout = errors.New("[controller] switch fence timed out")
)

// Switcher owns the active fleet and runs the profile switch protocol.
// The fence admits one switch at a time; a concurrent attempt blocks
// until the fence frees or FenceTimeout passes.
type Switcher struct {
	state       *DaemonState
	cv          *canvas.Canvas
	scriptDirs  []string
	version     string
	mods        []modules.Module
	broadcaster *rpc.Broadcaster
	fadeMillis  int

	fence        chan struct{}
	fenceTimeout time.Duration

	mu    sync.RWMutex
	fleet *script.Fleet
}

func NewSwitcher(state *DaemonState, cv *canvas.Canvas, scriptDirs []string, version string, mods []modules.Module, broadcaster *rpc.Broadcaster, fadeMillis int) *Switcher {
	return &Switcher{
		state:       state,
		cv:          cv,
		scriptDirs:  scriptDirs,
		version:     version,
		mods:        mods,
		broadcaster: broadcaster,
		fadeMillis:  fadeMillis,

		fence:        make(chan struct{}, 1),
		fenceTimeout: FenceTimeout,
	}
}

// Fleet returns the currently active fleet, or nil before the first
// switch.
func (s *Switcher) Fleet() *script.Fleet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fleet
}

func (s *Switcher) setFleet(f *script.Fleet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fleet = f
}

func (s *Switcher) acquireFence() error {
	select {
	case s.fence <- struct{}{}:
		return nil
	case <-time.After(s.fenceTimeout):
		// a stuck switch means deadlock elsewhere; force the main
		// loop to rebuild rather than pile up behind it
		s.state.RequestReenter()
		return ErrFenceTimeout
	}
}

func (s *Switcher) releaseFence() {
	<-s.fence
}

// Switch runs the transition protocol. target is the profile file
// path; an empty target is only valid when a failsafe request is
// pending. notify controls observer notification (slot-driven and
// reload switches stay silent).
func (s *Switcher) Switch(target string, notify bool) (SwitchResult, error) {
	if err := s.acquireFence(); err != nil {
		return InvalidProfile, err
	}
	defer s.releaseFence()

	if s.state.TakeFailsafe() {
		return s.enterFailsafe(notify), nil
	}

	if target == "" {
		return InvalidProfile, ErrNoTargetProfile
	}

	p, err := profiles.LoadFully(target, s.scriptDirs, s.version)
	if err != nil {
		_, activePath := s.state.ActiveProfile()
		if activePath == "" && s.Fleet() == nil {
			// nothing to keep running; the failsafe is better than
			// dark hardware
			log.Printf("[controller] cannot load profile %s with no active profile, entering failsafe: %v\n", target, err)
			return s.enterFailsafe(notify), nil
		}
		log.Printf("[controller] cannot load profile %s, keeping current profile: %v\n", target, err)
		return InvalidProfile, err
	}

	s.replaceFleet(p)

	if s.Fleet().LiveCount() == 0 {
		// a profile where nothing spawned is indistinguishable from a
		// broken one
		log.Printf("[controller] no script instance started for profile %s, entering failsafe\n", p.Name)
		return s.enterFailsafe(notify), nil
	}

	for _, failed := range s.Fleet().FailedScripts() {
		log.Printf("[controller] script %s failed to start in profile %s\n", failed, p.Name)
	}

	s.state.setActiveProfile(p.Name, p.Path)
	s.state.SetSlotProfile(s.state.ActiveSlot(), p.Path)
	if notify {
		s.broadcaster.Publish(rpc.Notification{
			Type:    rpc.ActiveProfileChanged,
			Profile: p.Name,
		})
	}
	log.Printf("[controller] switched to profile %s (%d/%d instances live)\n", p.Name, s.Fleet().LiveCount(), s.Fleet().Len())
	return Switched, nil
}

// replaceFleet tears down the running fleet and spawns the new one.
// Teardown completes before the spawn so two profile generations never
// race on the shared canvas.
func (s *Switcher) replaceFleet(p *profiles.Profile) {
	s.cv.TakeSnapshot()
	if f := s.Fleet(); f != nil {
		f.Teardown()
	}
	s.cv.Clear()
	s.setFleet(script.Spawn(p, s.cv, s.mods))
	s.state.StartFade(s.fadeMillis)
}

func (s *Switcher) enterFailsafe(notify bool) SwitchResult {
	s.state.clearActiveProfile()
	p := profiles.NewFailsafe()
	s.replaceFleet(p)
	s.state.setActiveProfile(p.Name, "")
	if notify {
		s.broadcaster.Publish(rpc.Notification{
			Type:    rpc.ActiveProfileChanged,
			Profile: p.Name,
		})
	}
	log.Printf("[controller] failsafe profile active\n")
	return FallbackToFailsafe
}

// Drain runs the quit handlers of the active fleet with a bounded
// wait. Called once on shutdown, before hardware teardown.
func (s *Switcher) Drain(code int) {
	f := s.Fleet()
	if f == nil {
		return
	}
	if err := f.Drain(code, QuitDrainTimeout); err != nil {
		log.Printf("[controller] quit drain incomplete: %v\n", err)
	}
}
