package controller

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlotBounds(t *testing.T) {
	s := NewDaemonState()
	require.NoError(t, s.SetActiveSlot(NumSlots-1))
	require.Error(t, s.SetActiveSlot(NumSlots))
	require.Error(t, s.SetActiveSlot(-1))
	require.Equal(t, NumSlots-1, s.ActiveSlot())
}

func TestBrightnessClamped(t *testing.T) {
	s := NewDaemonState()
	s.SetBrightness(150)
	require.Equal(t, 100, s.Brightness())
	s.SetBrightness(-3)
	require.Equal(t, 0, s.Brightness())
}

func TestSwitchRequestConsumedOnce(t *testing.T) {
	s := NewDaemonState()

	_, ok := s.TakeSwitchRequest()
	require.False(t, ok)

	s.RequestSwitch("first.profile")
	s.RequestSwitch("second.profile")

	target, ok := s.TakeSwitchRequest()
	require.True(t, ok)
	require.Equal(t, "second.profile", target)

	_, ok = s.TakeSwitchRequest()
	require.False(t, ok)
}

func TestFlagsConsumedOnce(t *testing.T) {
	s := NewDaemonState()

	s.RequestReload()
	require.True(t, s.TakeReload())
	require.False(t, s.TakeReload())

	s.RequestReenter()
	require.True(t, s.TakeReenter())
	require.False(t, s.TakeReenter())

	s.RequestFailsafe()
	require.True(t, s.FailsafePending())
	require.True(t, s.TakeFailsafe())
	require.False(t, s.FailsafePending())
}

func TestFadeCountdown(t *testing.T) {
	s := NewDaemonState()

	remaining, total := s.Fade()
	require.Zero(t, remaining)
	require.Zero(t, total)

	s.StartFade(600)
	s.AdvanceFade(250)
	remaining, total = s.Fade()
	require.Equal(t, 350, remaining)
	require.Equal(t, 600, total)

	// over-advancing clamps at zero instead of going negative
	s.AdvanceFade(10_000)
	remaining, _ = s.Fade()
	require.Zero(t, remaining)
}

func TestOverridesCopied(t *testing.T) {
	s := NewDaemonState()
	s.SetOverride("1e7d:3098:X1", 40)

	out := s.Overrides()
	out["1e7d:3098:X1"] = 99

	v, ok := s.Override("1e7d:3098:X1")
	require.True(t, ok)
	require.Equal(t, 40, v)

	s.RemoveOverride("1e7d:3098:X1")
	_, ok = s.Override("1e7d:3098:X1")
	require.False(t, ok)
}

func TestSlotRegistryRoundTrip(t *testing.T) {
	s := NewDaemonState()
	require.NoError(t, s.SetActiveSlot(2))
	s.SetSlotName(2, "Gaming")
	s.SetSlotProfile(2, "/var/lib/profiles/gaming.profile")

	loaded := NewDaemonState()
	require.NoError(t, NewSlotRegistry(loaded).Load(NewSlotRegistry(s).Value()))

	require.Equal(t, 2, loaded.ActiveSlot())
	require.Equal(t, "Gaming", loaded.SlotName(2))
	require.Equal(t, "/var/lib/profiles/gaming.profile", loaded.SlotProfile(2))
	// untouched slots keep their default names
	require.Equal(t, "Profile Slot 1", loaded.SlotName(0))
}

func TestCanvasRegistryRoundTrip(t *testing.T) {
	s := NewDaemonState()
	s.SetBrightness(55)
	s.SetHue(30)
	s.SetSaturation(0.8)
	s.SetLightness(1.2)
	s.SetSfxEnabled(false)
	s.SetOverride("1e7d:2dcb:serial9", 25)

	loaded := NewDaemonState()
	require.NoError(t, NewCanvasRegistry(loaded).Load(NewCanvasRegistry(s).Value()))

	require.Equal(t, 55, loaded.Brightness())
	require.InDelta(t, 30, loaded.Hue(), 1e-9)
	require.InDelta(t, 0.8, loaded.Saturation(), 1e-9)
	require.InDelta(t, 1.2, loaded.Lightness(), 1e-9)
	require.False(t, loaded.SfxEnabled())

	v, ok := loaded.Override("1e7d:2dcb:serial9")
	require.True(t, ok)
	require.Equal(t, 25, v)
}

func TestRegistriesTolerateEmptyState(t *testing.T) {
	s := NewDaemonState()
	require.NoError(t, NewSlotRegistry(s).Load(nil))
	require.NoError(t, NewCanvasRegistry(s).Load(nil))
	require.Equal(t, 100, s.Brightness())
}
