package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eruption-project/eruption-sub000/rpc"
	"github.com/eruption-project/eruption-sub000/system/fswatch"
)

func collectNotifications(d *testDaemon, typ rpc.EventType) int {
	n := 0
	for {
		select {
		case ev := <-d.notifications:
			if ev.Type == typ {
				n++
			}
		default:
			return n
		}
	}
}

func TestIterationNotifiesBrightnessChangeOnce(t *testing.T) {
	d := newTestDaemon(t)
	_, err := d.c.switcher.Switch(d.profile, false)
	require.NoError(t, err)
	d.drainNotifications()

	lp := d.c.newLoopState()
	d.c.state.SetBrightness(50)

	require.NoError(t, d.c.iteration(context.Background(), lp))
	require.Equal(t, 1, collectNotifications(d, rpc.BrightnessChanged))

	// unchanged value stays silent on the next pass
	require.NoError(t, d.c.iteration(context.Background(), lp))
	require.Zero(t, collectNotifications(d, rpc.BrightnessChanged))
}

func TestIterationSwitchesOnSlotChange(t *testing.T) {
	d := newTestDaemon(t)
	_, err := d.c.switcher.Switch(d.profile, false)
	require.NoError(t, err)

	other := writeTestProfile(t, d.profileDir, "second", []string{"solid.js"})
	d.c.state.SetSlotProfile(2, other)
	require.NoError(t, d.c.state.SetActiveSlot(2))
	d.drainNotifications()

	lp := d.c.newLoopState()
	lp.savedSlot = 0 // plays the previous iteration's observation

	require.NoError(t, d.c.iteration(context.Background(), lp))

	name, path := d.c.state.ActiveProfile()
	require.Equal(t, "second", name)
	require.Equal(t, other, path)
	require.Equal(t, 1, collectNotifications(d, rpc.ActiveSlotChanged))

	// the cached slot caught up, no re-switch on the next pass
	fleetBefore := d.c.switcher.Fleet()
	require.NoError(t, d.c.iteration(context.Background(), lp))
	require.Same(t, fleetBefore, d.c.switcher.Fleet())
	require.Zero(t, collectNotifications(d, rpc.ActiveSlotChanged))
}

func TestIterationReloadPicksUpEdits(t *testing.T) {
	d := newTestDaemon(t)
	_, err := d.c.switcher.Switch(d.profile, false)
	require.NoError(t, err)
	fleetBefore := d.c.switcher.Fleet()

	d.c.state.RequestReload()
	lp := d.c.newLoopState()
	require.NoError(t, d.c.iteration(context.Background(), lp))

	require.NotSame(t, fleetBefore, d.c.switcher.Fleet())
	name, _ := d.c.state.ActiveProfile()
	require.Equal(t, "default", name)
}

func TestIterationAbortsOnDeviceFailure(t *testing.T) {
	d := newTestDaemon(t)
	_, err := d.c.switcher.Switch(d.profile, false)
	require.NoError(t, err)

	d.c.registry.Keyboards()[0].Fail()

	lp := d.c.newLoopState()
	require.ErrorIs(t, d.c.iteration(context.Background(), lp), errDeviceFailed)

	d.drainNotifications()
	d.c.evictFailedDevices()
	require.Empty(t, d.c.registry.Keyboards())
	require.Equal(t, 1, collectNotifications(d, rpc.DeviceHotplug))

	// the loop re-enters cleanly with the remaining devices
	require.NoError(t, d.c.iteration(context.Background(), lp))
}

func TestIterationReentryFlag(t *testing.T) {
	d := newTestDaemon(t)
	_, err := d.c.switcher.Switch(d.profile, false)
	require.NoError(t, err)

	d.c.state.RequestReenter()
	lp := d.c.newLoopState()
	require.ErrorIs(t, d.c.iteration(context.Background(), lp), errReenter)
}

func TestFsEventSchedulesReload(t *testing.T) {
	d := newTestDaemon(t)
	_, err := d.c.switcher.Switch(d.profile, false)
	require.NoError(t, err)

	d.fsEvents <- fswatch.Event{Kind: fswatch.ProfilesChanged, Path: d.profile}
	d.c.waitForEvents(context.Background())
	require.True(t, d.c.state.TakeReload())

	// config changes only log, a restart is required to apply them
	d.fsEvents <- fswatch.Event{Kind: fswatch.ConfigChanged, Path: "eruption.conf"}
	d.c.waitForEvents(context.Background())
	require.False(t, d.c.state.TakeReload())
}

func TestRunLoopStopsOnQuit(t *testing.T) {
	d := newTestDaemon(t)
	_, err := d.c.switcher.Switch(d.profile, false)
	require.NoError(t, err)

	d.c.state.RequestQuit()

	done := make(chan error, 1)
	go func() { done <- d.c.runLoop(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("main loop did not stop on quit")
	}
}

func TestRunLoopStopsOnContextCancel(t *testing.T) {
	d := newTestDaemon(t)
	_, err := d.c.switcher.Switch(d.profile, false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.c.runLoop(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
		require.True(t, d.c.state.QuitRequested())
	case <-time.After(2 * time.Second):
		t.Fatal("main loop did not observe the cancel")
	}
}

func TestFailsafeRequestHandledInIteration(t *testing.T) {
	d := newTestDaemon(t)
	_, err := d.c.switcher.Switch(d.profile, false)
	require.NoError(t, err)

	d.c.state.RequestFailsafe()
	lp := d.c.newLoopState()
	require.NoError(t, d.c.iteration(context.Background(), lp))

	require.True(t, d.c.switcher.Fleet().Profile().IsFailsafe())
}
