package controller

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/eruption-project/eruption-sub000/rpc"
	"github.com/eruption-project/eruption-sub000/script/modules"
	"github.com/eruption-project/eruption-sub000/system/canvas"
	"github.com/eruption-project/eruption-sub000/system/fswatch"
	"github.com/eruption-project/eruption-sub000/system/hwdevices"
	"github.com/eruption-project/eruption-sub000/system/input"
	"github.com/eruption-project/eruption-sub000/system/persist"
	"github.com/eruption-project/eruption-sub000/util"
)

const (
	// TargetFPS is the LED frame rate.
	TargetFPS = 24
	// TickFPS is the script animation tick rate.
	TickFPS = 24
	// NumSlots is the number of quick-switch profile slots.
	NumSlots = 4

	// RenderInterval is the render sub-tick period.
	RenderInterval = time.Second / TargetFPS
	// TickInterval is the timer sub-tick period.
	TickInterval = time.Second / TickFPS
	// HidPollInterval is the device HID report poll period, 8x the
	// frame rate so key events land within a frame.
	HidPollInterval = time.Second / (TargetFPS * 8)
	// SelectTimeout bounds the event wait to half a frame period so an
	// iteration always progresses toward the render deadline.
	SelectTimeout = time.Second / (TargetFPS * 2)
	// PollTimerInterval is the device status poll period.
	PollTimerInterval = 800 * time.Millisecond

	// JitterThreshold is how far past the render period an iteration
	// may run before a dropped-frame warning.
	JitterThreshold = 82 * time.Millisecond
	// QuitDrainTimeout bounds the wait for script on_quit handlers at
	// shutdown.
	QuitDrainTimeout = 2500 * time.Millisecond
	// FenceTimeout bounds the wait on the profile switch fence.
	FenceTimeout = 4 * time.Second
	// DeviceSettleDelay is how long the outer loop waits after a fatal
	// pass before evicting failed devices and re-entering.
	DeviceSettleDelay = 500 * time.Millisecond

	// DefaultFadeMillis is the cross-fade duration on profile switch.
	DefaultFadeMillis = 600

	persistDebounce = time.Second
)

// Config contains the configuration for the controller
type Config struct {
	ProfileDirs []string
	ScriptDirs  []string

	// StartProfile seeds slot 0 on a fresh state directory.
	StartProfile string
	// AfkProfile, when set, is switched to after AfkTimeout without
	// raw input. Zero timeout disables the swap.
	AfkProfile string
	AfkTimeout time.Duration

	FadeMillis int
	DryRun     bool
	Version    string

	Registry       *hwdevices.Registry
	ConfigRegistry persist.ConfigRegistry
	Schemes        *persist.ColorSchemes
	Broadcaster    *rpc.Broadcaster
	RequestCh      chan rpc.Request
	FsEvents       <-chan fswatch.Event
	Modules        []modules.Module
}

type workQueue struct {
	noisy chan<- interface{}
	clean <-chan util.DebounceEvent
}

// Controller runs the main loop: raw input, control requests, and
// filesystem events in; script ticks and LED frames out.
type Controller struct {
	Config

	state       *DaemonState
	registry    *hwdevices.Registry
	cv          *canvas.Canvas
	dispatcher  *hwdevices.Dispatcher
	router      *input.Router
	switcher    *Switcher
	broadcaster *rpc.Broadcaster

	requestCh    chan rpc.Request
	fsEvents     <-chan fswatch.Event
	persistQueue workQueue

	initialized bool
}

// New validates the configuration and returns an unstarted controller.
func New(conf Config) (*Controller, error) {
	if len(conf.ProfileDirs) == 0 {
		return nil, errors.New("[controller] empty profile directories is invalid")
	}
	if len(conf.ScriptDirs) == 0 {
		return nil, errors.New("[controller] empty script directories is invalid")
	}
	if conf.ConfigRegistry == nil {
		return nil, errors.New("[controller] nil ConfigRegistry is invalid")
	}
	if conf.Broadcaster == nil {
		return nil, errors.New("[controller] nil Broadcaster is invalid")
	}
	if conf.RequestCh == nil {
		return nil, errors.New("[controller] nil request channel is invalid")
	}
	if conf.Schemes == nil {
		conf.Schemes = persist.NewColorSchemes()
	}
	if conf.FadeMillis == 0 {
		conf.FadeMillis = DefaultFadeMillis
	}
	return &Controller{
		Config: conf,

		state:       NewDaemonState(),
		broadcaster: conf.Broadcaster,
		requestCh:   conf.RequestCh,
		fsEvents:    conf.FsEvents,
	}, nil
}

// State exposes the shared daemon state to extension modules and the
// command surface.
func (c *Controller) State() *DaemonState {
	return c.state
}

func (c *Controller) String() string {
	return "controller.Controller"
}

// initialize probes hardware, allocates the canvas, restores persisted
// state, and brings up the first profile.
func (c *Controller) initialize(haltCtx context.Context) error {
	registry := c.Config.Registry
	if registry == nil {
		var err error
		registry, err = hwdevices.Probe(c.Config.DryRun)
		if err != nil {
			return errors.Wrap(err, "[controller] cannot probe devices")
		}
	}
	c.registry = registry
	c.registry.OpenAndInit()
	if removed := c.registry.RemoveFailed(); len(removed) > 0 {
		for _, r := range removed {
			log.Printf("[controller] device %s failed to initialize\n", r.Info)
		}
	}

	cv, err := c.registry.AllocateZones()
	if err != nil {
		return errors.Wrap(err, "[controller] cannot allocate canvas zones")
	}
	c.cv = cv
	log.Printf("[controller] canvas allocated with %d cells across %d devices\n", cv.Size(), len(c.registry.All()))

	c.dispatcher = hwdevices.NewDispatcher(c.registry, cv)

	c.router = input.NewRouter()
	if !c.Config.DryRun {
		c.router.AttachAll(c.registry)
	}

	c.Config.ConfigRegistry.Register(NewSlotRegistry(c.state))
	c.Config.ConfigRegistry.Register(NewCanvasRegistry(c.state))
	c.Config.ConfigRegistry.Register(c.Config.Schemes)
	if err := c.Config.ConfigRegistry.Load(); err != nil {
		return errors.Wrap(err, "[controller] error loading persisted state")
	}
	if err := c.Config.ConfigRegistry.Apply(); err != nil {
		return errors.Wrap(err, "[controller] error applying persisted state")
	}

	if c.state.SlotProfile(c.state.ActiveSlot()) == "" && c.Config.StartProfile != "" {
		c.state.SetSlotProfile(c.state.ActiveSlot(), c.Config.StartProfile)
	}

	c.switcher = NewSwitcher(c.state, cv, c.Config.ScriptDirs, c.Config.Version, c.Config.Modules, c.broadcaster, c.Config.FadeMillis)

	in, out := util.Debounce(haltCtx, persistDebounce)
	c.persistQueue = workQueue{noisy: in, clean: out}

	c.initialized = true
	return nil
}

// Serve runs the controller as a supervised service: initialize once,
// then the outer restart loop around main loop passes. A fatal pass
// logs, waits for the hardware to settle, evicts failed devices, and
// re-enters. Returns only on shutdown.
func (c *Controller) Serve(haltCtx context.Context) error {
	if !c.initialized {
		if err := c.initialize(haltCtx); err != nil {
			return err
		}
	}

	log.Println("[controller] starting main loop")

	// bring up the active slot's profile; a bad profile falls back per
	// the switch protocol
	target := c.state.SlotProfile(c.state.ActiveSlot())
	if _, err := c.switcher.Switch(target, false); err != nil {
		log.Printf("[controller] startup profile switch failed: %v\n", err)
		c.state.RequestFailsafe()
		if _, err := c.switcher.Switch("", false); err != nil {
			return errors.Wrap(err, "[controller] cannot enter failsafe at startup")
		}
	}

	go func() {
		if err := c.dispatcher.Serve(haltCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[controller] dispatcher exited: %v\n", err)
		}
	}()

	for {
		err := c.runLoop(haltCtx)

		if c.state.QuitRequested() {
			c.shutdown()
			if haltCtx.Err() != nil {
				return haltCtx.Err()
			}
			return nil
		}

		switch {
		case errors.Is(err, errReenter):
			log.Println("[controller] main loop re-entry requested")
		case err != nil:
			log.Printf("[controller] main loop pass failed: %v\n", err)
		}

		time.Sleep(DeviceSettleDelay)
		c.evictFailedDevices()
	}
}

// evictFailedDevices removes failed devices from the registry and the
// raw input router in matching order, then notifies observers.
func (c *Controller) evictFailedDevices() {
	removed := c.registry.RemoveFailed()
	// removals carry pre-eviction indices and each router.Remove shifts
	// later same-category readers down, so replay per category from the
	// highest index. RemoveFailed reports each category in ascending
	// order; walking the slice backwards gives the order we need.
	for i := len(removed) - 1; i >= 0; i-- {
		c.router.Remove(removed[i].Class, removed[i].Index)
	}
	for _, r := range removed {
		log.Printf("[controller] device %s removed\n", r.Info)
		c.broadcaster.Publish(rpc.Notification{
			Type:    rpc.DeviceHotplug,
			Device:  r.Info.String(),
			Removed: true,
		})
	}
	if len(removed) > 0 {
		// zones shifted; rebuilding mid-flight is not supported, the
		// remaining devices keep their allocation
		c.state.BumpFrameGeneration()
	}
}

// shutdown is the orderly teardown: drain script quit handlers, save
// state, blank the LEDs, close the hardware.
func (c *Controller) shutdown() {
	log.Println("[controller] shutting down")

	c.switcher.Drain(0)

	if err := c.Config.ConfigRegistry.Save(); err != nil {
		log.Printf("[controller] error saving state at shutdown: %v\n", err)
	}
	c.Config.ConfigRegistry.Close()

	c.dispatcher.LedsOff()
	c.router.CloseAll()
	c.registry.CloseAll()
}
