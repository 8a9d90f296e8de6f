package controller

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/eruption-project/eruption-sub000/rpc"
	"github.com/eruption-project/eruption-sub000/script"
	"github.com/eruption-project/eruption-sub000/system/fswatch"
	"github.com/eruption-project/eruption-sub000/system/hwdevices"
	"github.com/eruption-project/eruption-sub000/system/input"
)

var (
	// errReenter asks the outer loop to rebuild device state and call
	// the main loop again. Not a failure.
	errReenter = errors.New("[controller] re-entering main loop")
	// errDeviceFailed aborts the main loop pass after one or more
	// devices failed this iteration.
	errDeviceFailed = errors.New("[controller] device failure in main loop")
)

// loopState carries the per-pass bookkeeping of the main loop: cached
// values from the previous iteration for change detection, and the
// sub-tick deadlines.
type loopState struct {
	savedSlot  int
	brightness int
	hue        float64
	saturation float64
	lightness  float64
	wasAfk     bool

	lastIter       time.Time
	lastStatusPoll time.Time
	lastHidPoll    time.Time
	lastTick       time.Time
	lastRender     time.Time

	prevStatus map[string]hwdevices.Status
	tickCount  uint64
}

func (c *Controller) newLoopState() *loopState {
	now := time.Now()
	return &loopState{
		savedSlot:  c.state.ActiveSlot(),
		brightness: c.state.Brightness(),
		hue:        c.state.Hue(),
		saturation: c.state.Saturation(),
		lightness:  c.state.Lightness(),
		wasAfk:     c.state.Afk(),

		lastIter:       now,
		lastStatusPoll: now,
		lastHidPoll:    now,
		lastTick:       now,
		lastRender:     now,

		prevStatus: make(map[string]hwdevices.Status),
	}
}

// runLoop is one pass of the main loop: iterations until quit,
// re-entry, or a fatal device error.
func (c *Controller) runLoop(haltCtx context.Context) error {
	lp := c.newLoopState()
	for {
		if err := c.iteration(haltCtx, lp); err != nil {
			return err
		}
		if c.state.QuitRequested() {
			return nil
		}
	}
}

// iteration is one scheduler pass. Change detection and sub-tick
// dispatch run first, then the bounded event wait, then the fatal
// check against any device failure the handlers recorded.
func (c *Controller) iteration(haltCtx context.Context, lp *loopState) error {
	iterStart := time.Now()
	elapsed := iterStart.Sub(lp.lastIter)
	lp.lastIter = iterStart

	if c.state.TakeReenter() {
		return errReenter
	}

	if c.state.FailsafePending() {
		if _, err := c.switcher.Switch("", false); err != nil {
			log.Printf("[controller] failsafe switch failed: %v\n", err)
		}
	}

	if err := c.checkSlotChange(lp); err != nil {
		return err
	}

	c.checkParamChanges(lp)
	c.checkAfkTransition(lp)

	if target, ok := c.state.TakeSwitchRequest(); ok {
		if _, err := c.switcher.Switch(target, true); err != nil && !errors.Is(err, ErrFenceTimeout) {
			log.Printf("[controller] profile switch to %s failed: %v\n", target, err)
		}
	}

	if c.state.TakeReload() {
		// re-switching to the same file picks up live edits; silent to
		// avoid a notification feeding back into another reload
		if _, path := c.state.ActiveProfile(); path != "" {
			if _, err := c.switcher.Switch(path, false); err != nil && !errors.Is(err, ErrFenceTimeout) {
				log.Printf("[controller] profile reload failed: %v\n", err)
			}
		}
	}

	for _, m := range c.Config.Modules {
		m.MainLoopHook(lp.tickCount)
	}

	if iterStart.Sub(lp.lastStatusPoll) >= PollTimerInterval {
		lp.lastStatusPoll = iterStart
		c.pollDeviceStatus(lp)
		c.state.BumpFrameGeneration()
	}

	deviceFailed := c.waitForEvents(haltCtx)

	if deviceFailed || c.registry.AnyFailed() {
		return errDeviceFailed
	}

	if iterStart.Sub(lp.lastHidPoll) >= HidPollInterval {
		lp.lastHidPoll = iterStart
		c.pollHidEvents()
	}

	if since := iterStart.Sub(lp.lastTick); since >= TickInterval {
		lp.lastTick = iterStart
		lp.tickCount++
		c.broadcast(script.Message{Kind: script.MsgTick, Delta: uint32(since.Milliseconds())})
	}

	if iterStart.Sub(lp.lastRender) >= RenderInterval {
		lp.lastRender = iterStart
		c.broadcast(script.Message{Kind: script.MsgRender})
		remaining, total := c.state.Fade()
		c.dispatcher.RenderNow(hwdevices.RenderRequest{
			Params:        c.state.Params(),
			FadeRemaining: remaining,
			FadeTotal:     total,
			Overrides:     c.state.Overrides(),
			Generation:    c.state.FrameGeneration(),
		})
	}

	c.state.AdvanceFade(elapsed.Milliseconds())

	if c.Config.AfkTimeout > 0 {
		c.state.SetAfk(time.Since(c.router.LastInput()) >= c.Config.AfkTimeout)
	}

	if iterTime := time.Since(iterStart); iterTime > RenderInterval+JitterThreshold {
		log.Printf("[controller] frame dropped: iteration took %s\n", iterTime)
	}

	return nil
}

// checkSlotChange switches profiles when the active slot moved since
// the previous iteration. Slot switches are silent; the slot change
// notification itself is enough for observers.
func (c *Controller) checkSlotChange(lp *loopState) error {
	slot := c.state.ActiveSlot()
	if slot == lp.savedSlot {
		return nil
	}
	lp.savedSlot = slot
	target := c.state.SlotProfile(slot)
	if _, err := c.switcher.Switch(target, false); err != nil {
		if errors.Is(err, ErrFenceTimeout) {
			return errReenter
		}
		log.Printf("[controller] slot %d profile switch failed: %v\n", slot, err)
	}
	c.broadcaster.Publish(rpc.Notification{Type: rpc.ActiveSlotChanged, Slot: slot})
	c.requestPersist()
	return nil
}

func (c *Controller) checkParamChanges(lp *loopState) {
	if b := c.state.Brightness(); b != lp.brightness {
		lp.brightness = b
		c.broadcaster.Publish(rpc.Notification{Type: rpc.BrightnessChanged, IntValue: b})
		c.requestPersist()
	}
	if h := c.state.Hue(); h != lp.hue {
		lp.hue = h
		c.broadcaster.Publish(rpc.Notification{Type: rpc.HueChanged, FloatValue: h})
		c.requestPersist()
	}
	if s := c.state.Saturation(); s != lp.saturation {
		lp.saturation = s
		c.broadcaster.Publish(rpc.Notification{Type: rpc.SaturationChanged, FloatValue: s})
		c.requestPersist()
	}
	if l := c.state.Lightness(); l != lp.lightness {
		lp.lightness = l
		c.broadcaster.Publish(rpc.Notification{Type: rpc.LightnessChanged, FloatValue: l})
		c.requestPersist()
	}
}

// checkAfkTransition swaps to the configured AFK profile when the AFK
// flag flips, and restores the pre-AFK profile when it flips back.
func (c *Controller) checkAfkTransition(lp *loopState) {
	afk := c.state.Afk()
	if afk == lp.wasAfk {
		return
	}
	lp.wasAfk = afk
	if c.Config.AfkProfile == "" {
		return
	}
	if afk {
		_, path := c.state.ActiveProfile()
		c.state.SavePreAfk(path)
		log.Printf("[controller] away from keyboard, switching to %s\n", c.Config.AfkProfile)
		c.state.RequestSwitch(c.Config.AfkProfile)
		return
	}
	if path := c.state.TakePreAfk(); path != "" {
		log.Printf("[controller] input resumed, restoring %s\n", path)
		c.state.RequestSwitch(path)
	}
}

// pollDeviceStatus diffs every device's status against the previous
// snapshot and notifies observers about the changed ones.
func (c *Controller) pollDeviceStatus(lp *loopState) {
	for _, dev := range c.registry.All() {
		status, err := dev.Status()
		if err != nil {
			log.Printf("[controller] status poll failed for %s: %v\n", dev.Info(), err)
			continue
		}
		key := dev.Info().OverrideKey()
		if status.Equal(lp.prevStatus[key]) {
			continue
		}
		lp.prevStatus[key] = status
		c.broadcaster.Publish(rpc.Notification{
			Type:   rpc.DeviceStatusChanged,
			Device: dev.Info().String(),
			Status: status,
		})
	}
}

// pollHidEvents drains decoded HID reports from every device and
// forwards key events to the fleet. This path is distinct from the raw
// evdev channel: it carries device-local key indices.
func (c *Controller) pollHidEvents() {
	for _, dev := range c.registry.All() {
		for _, ev := range dev.PendingEvents() {
			switch ev.Kind {
			case hwdevices.HidKeyDown:
				c.broadcast(script.Message{Kind: script.MsgKeyDown, Key: ev.KeyIndex})
			case hwdevices.HidKeyUp:
				c.broadcast(script.Message{Kind: script.MsgKeyUp, Key: ev.KeyIndex})
			case hwdevices.HidStatusReport:
				// picked up by the next status poll
			}
		}
	}
}

// waitForEvents is the bounded selection wait: at most half a frame
// period across quit, filesystem, control requests, raw input, and the
// debounced persist queue. Returns true when a handler recorded a
// device failure; eviction is deferred to the outer loop so the device
// collections are never mutated mid-iteration.
func (c *Controller) waitForEvents(haltCtx context.Context) (deviceFailed bool) {
	select {
	case <-haltCtx.Done():
		c.state.RequestQuit()

	case ev := <-c.fsEvents:
		switch ev.Kind {
		case fswatch.ProfilesChanged, fswatch.ScriptsChanged:
			log.Printf("[controller] %s: %s, scheduling profile reload\n", ev.Kind, ev.Path)
			c.state.RequestReload()
		case fswatch.ConfigChanged:
			log.Printf("[controller] daemon config %s changed, restart to apply\n", ev.Path)
		}

	case req := <-c.requestCh:
		c.handleRequest(req)

	case ev := <-c.router.Events():
		deviceFailed = c.handleRawInput(ev)

	case <-c.persistQueue.clean:
		if err := c.Config.ConfigRegistry.Save(); err != nil {
			log.Printf("[controller] error persisting state: %v\n", err)
		}

	case <-time.After(SelectTimeout):
	}
	return deviceFailed
}

// handleRawInput forwards evdev key events to the fleet and converts
// reader errors into a deferred device failure.
func (c *Controller) handleRawInput(ev input.Event) bool {
	if ev.Err != nil {
		log.Printf("[controller] raw input error on %s #%d: %v\n", ev.Class, ev.Index, ev.Err)
		c.failDeviceAt(ev.Class, ev.Index)
		return true
	}
	switch {
	case ev.Value == 1:
		c.broadcast(script.Message{Kind: script.MsgKeyDown, Key: uint8(ev.Code)})
	case ev.Value == 0:
		c.broadcast(script.Message{Kind: script.MsgKeyUp, Key: uint8(ev.Code)})
	}
	return false
}

func (c *Controller) failDeviceAt(class hwdevices.DeviceClass, index int) {
	var devs []hwdevices.Device
	switch class {
	case hwdevices.ClassKeyboard:
		devs = c.registry.Keyboards()
	case hwdevices.ClassMouse:
		devs = c.registry.Mice()
	default:
		devs = c.registry.Misc()
	}
	if index >= 0 && index < len(devs) {
		devs[index].Fail()
	}
}

// broadcast delivers a message to the active fleet, if any.
func (c *Controller) broadcast(msg script.Message) {
	if f := c.switcher.Fleet(); f != nil {
		f.Broadcast(msg)
	}
}

// requestPersist pushes into the debounced persist queue so bursts of
// changes coalesce into one state write.
func (c *Controller) requestPersist() {
	select {
	case c.persistQueue.noisy <- struct{}{}:
	default:
	}
}
