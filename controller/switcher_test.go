package controller

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eruption-project/eruption-sub000/rpc"
	"github.com/eruption-project/eruption-sub000/system/canvas"
)

const testVersion = "1.0.0"

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeTestScript(t *testing.T, dir, name, body string) {
	t.Helper()
	script := filepath.Join(dir, name)
	writeTestFile(t, script, body)
	writeTestFile(t, script+".manifest", `
name = "`+name+`"
version = "0.1.0"
author = "test"
`)
}

func writeTestProfile(t *testing.T, dir, name string, scripts []string) string {
	t.Helper()
	path := filepath.Join(dir, name+".profile")
	body := `
id = "5dc62fa6-e965-45cb-a0da-e87d29713093"
name = "` + name + `"
description = "test profile"
active_scripts = [`
	for i, s := range scripts {
		if i > 0 {
			body += ", "
		}
		body += `"` + s + `"`
	}
	body += "]\n"
	writeTestFile(t, path, body)
	return path
}

func newTestSwitcher(t *testing.T, scriptDirs []string) (*Switcher, *DaemonState, <-chan rpc.Notification) {
	t.Helper()
	state := NewDaemonState()
	b := rpc.NewBroadcaster()
	sw := NewSwitcher(state, canvas.New(16), scriptDirs, testVersion, nil, b, DefaultFadeMillis)
	t.Cleanup(func() {
		if f := sw.Fleet(); f != nil {
			f.Teardown()
		}
	})
	return sw, state, b.Subscribe()
}

func TestSwitchSpawnsFleet(t *testing.T) {
	dir := t.TempDir()
	writeTestScript(t, dir, "solid.js", "function on_render() {}\n")
	profile := writeTestProfile(t, dir, "plain", []string{"solid.js"})

	sw, state, notifications := newTestSwitcher(t, []string{dir})

	result, err := sw.Switch(profile, true)
	require.NoError(t, err)
	require.Equal(t, Switched, result)
	require.Equal(t, 1, sw.Fleet().LiveCount())

	name, path := state.ActiveProfile()
	require.Equal(t, "plain", name)
	require.Equal(t, profile, path)
	require.Equal(t, profile, state.SlotProfile(state.ActiveSlot()))

	select {
	case n := <-notifications:
		require.Equal(t, rpc.ActiveProfileChanged, n.Type)
		require.Equal(t, "plain", n.Profile)
	case <-time.After(time.Second):
		t.Fatal("no profile change notification")
	}

	remaining, total := state.Fade()
	require.Equal(t, DefaultFadeMillis, remaining)
	require.Equal(t, DefaultFadeMillis, total)
}

func TestSwitchBrokenScriptKeepsSiblingsLive(t *testing.T) {
	dir := t.TempDir()
	writeTestScript(t, dir, "good.js", "function on_render() {}\n")
	writeTestScript(t, dir, "broken.js", "this is not a script {{{\n")
	profile := writeTestProfile(t, dir, "mixed", []string{"good.js", "broken.js"})

	sw, _, _ := newTestSwitcher(t, []string{dir})

	result, err := sw.Switch(profile, false)
	require.NoError(t, err)
	require.Equal(t, Switched, result)
	require.Equal(t, 1, sw.Fleet().LiveCount())
	require.Equal(t, []string{filepath.Join(dir, "broken.js")}, sw.Fleet().FailedScripts())
	require.False(t, sw.Fleet().Profile().IsFailsafe())
}

func TestSwitchAllScriptsBrokenFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeTestScript(t, dir, "broken.js", "also not a script ]]\n")
	profile := writeTestProfile(t, dir, "dead", []string{"broken.js"})

	sw, _, _ := newTestSwitcher(t, []string{dir})

	result, err := sw.Switch(profile, false)
	require.NoError(t, err)
	require.Equal(t, FallbackToFailsafe, result)
	require.True(t, sw.Fleet().Profile().IsFailsafe())
	require.Equal(t, 1, sw.Fleet().LiveCount())
}

func TestSwitchMissingScriptWithoutActiveProfileFallsBack(t *testing.T) {
	dir := t.TempDir()
	profile := writeTestProfile(t, dir, "ghost", []string{"nope.js"})

	sw, state, _ := newTestSwitcher(t, []string{dir})

	result, err := sw.Switch(profile, false)
	require.NoError(t, err)
	require.Equal(t, FallbackToFailsafe, result)
	require.True(t, sw.Fleet().Profile().IsFailsafe())

	name, _ := state.ActiveProfile()
	require.NotEmpty(t, name)
}

func TestSwitchMissingScriptKeepsCurrentProfile(t *testing.T) {
	dir := t.TempDir()
	writeTestScript(t, dir, "solid.js", "function on_render() {}\n")
	good := writeTestProfile(t, dir, "good", []string{"solid.js"})
	bad := writeTestProfile(t, dir, "bad", []string{"nope.js"})

	sw, state, _ := newTestSwitcher(t, []string{dir})

	result, err := sw.Switch(good, false)
	require.NoError(t, err)
	require.Equal(t, Switched, result)
	runningFleet := sw.Fleet()

	result, err = sw.Switch(bad, false)
	require.Error(t, err)
	require.Equal(t, InvalidProfile, result)

	// the working fleet is untouched
	require.Same(t, runningFleet, sw.Fleet())
	require.Equal(t, 1, sw.Fleet().LiveCount())
	name, _ := state.ActiveProfile()
	require.Equal(t, "good", name)
}

func TestSwitchEmptyTargetIsAnError(t *testing.T) {
	sw, _, _ := newTestSwitcher(t, []string{t.TempDir()})

	_, err := sw.Switch("", false)
	require.ErrorIs(t, err, ErrNoTargetProfile)
	require.Nil(t, sw.Fleet())
}

func TestFailsafeRequestBypassesLoad(t *testing.T) {
	sw, state, _ := newTestSwitcher(t, []string{t.TempDir()})

	state.RequestFailsafe()
	result, err := sw.Switch("", false)
	require.NoError(t, err)
	require.Equal(t, FallbackToFailsafe, result)
	require.True(t, sw.Fleet().Profile().IsFailsafe())
	require.False(t, state.FailsafePending())
}

func TestReloadSameProfileKeepsIdentity(t *testing.T) {
	dir := t.TempDir()
	writeTestScript(t, dir, "solid.js", "function on_render() {}\n")
	profile := writeTestProfile(t, dir, "steady", []string{"solid.js"})

	sw, state, _ := newTestSwitcher(t, []string{dir})

	result, err := sw.Switch(profile, false)
	require.NoError(t, err)
	require.Equal(t, Switched, result)
	firstID := sw.Fleet().Profile().ID

	result, err = sw.Switch(profile, false)
	require.NoError(t, err)
	require.Equal(t, Switched, result)
	require.Equal(t, firstID, sw.Fleet().Profile().ID)
	require.Equal(t, []string{"solid.js"}, sw.Fleet().Profile().ActiveScripts)

	name, path := state.ActiveProfile()
	require.Equal(t, "steady", name)
	require.Equal(t, profile, path)
}

func TestFenceTimeoutRequestsReenter(t *testing.T) {
	sw, state, _ := newTestSwitcher(t, []string{t.TempDir()})
	sw.fenceTimeout = 50 * time.Millisecond

	// occupy the fence so the switch attempt has to wait
	require.NoError(t, sw.acquireFence())
	defer sw.releaseFence()

	_, err := sw.Switch("whatever", false)
	require.ErrorIs(t, err, ErrFenceTimeout)
	require.True(t, state.TakeReenter())
}

func TestConcurrentSwitchesSerialize(t *testing.T) {
	dir := t.TempDir()
	writeTestScript(t, dir, "a.js", "function on_render() {}\n")
	writeTestScript(t, dir, "b.js", "function on_render() {}\n")
	pa := writeTestProfile(t, dir, "alpha", []string{"a.js"})
	pb := writeTestProfile(t, dir, "beta", []string{"b.js"})

	sw, state, _ := newTestSwitcher(t, []string{dir})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		target := pa
		if i%2 == 1 {
			target = pb
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sw.Switch(target, false)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	// whichever switch won last, the state is fully one profile
	f := sw.Fleet()
	require.Equal(t, 1, f.Len())
	require.Equal(t, 1, f.LiveCount())
	name, path := state.ActiveProfile()
	require.Equal(t, f.Profile().Name, name)
	require.Equal(t, f.Profile().Path, path)
}
