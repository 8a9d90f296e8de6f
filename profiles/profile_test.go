package profiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eruption-project/eruption-sub000/system/canvas"
)

const testDaemonVersion = "1.0.0"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeScript(t *testing.T, dir, name, manifestName string) string {
	t.Helper()
	script := filepath.Join(dir, name)
	writeFile(t, script, "function on_render() {}\n")
	writeFile(t, ManifestPath(script), `
name = "`+manifestName+`"
version = "0.1.0"
author = "test"

[[config]]
type = 'color'
name = 'color_background'
default = 0xff102030

[[config]]
type = 'float'
name = 'speed'
default = 1.0
min = 0.1
max = 10.0
`)
	return script
}

func writeProfile(t *testing.T, dir, name string, scripts []string, config string) string {
	t.Helper()
	path := filepath.Join(dir, name+ProfileExt)
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
	body += "]\n" + config
	writeFile(t, path, body)
	return path
}

func TestLoadFullyMergesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "solid.js", "Solid")

	path := writeProfile(t, dir, "red", []string{"solid.js"}, `
[[config.Solid]]
type = 'color'
name = 'color_background'
value = 0xffff0000
`)

	p, err := LoadFully(path, []string{dir}, testDaemonVersion)
	require.NoError(t, err)
	require.Equal(t, "red", p.Name)
	require.Len(t, p.Manifests, 1)

	params := p.Parameters(0)
	// override from the profile
	require.Equal(t, canvas.RGBA{R: 0xff, A: 0xff}, params["color_background"].Color())
	// default from the manifest
	require.Equal(t, 1.0, params["speed"].Float())
}

func TestLoadFullyMissingScript(t *testing.T) {
	dir := t.TempDir()
	path := writeProfile(t, dir, "broken", []string{"nope.js"}, "")

	_, err := LoadFully(path, []string{dir}, testDaemonVersion)
	require.ErrorIs(t, err, ErrScriptNotFound)
}

func TestLoadFullyStateSidecar(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "solid.js", "Solid")
	path := writeProfile(t, dir, "plain", []string{"solid.js"}, "")

	writeFile(t, path+StateExt, `
[[config.Solid]]
type = 'float'
name = 'speed'
value = 3.5
`)

	p, err := LoadFully(path, []string{dir}, testDaemonVersion)
	require.NoError(t, err)
	require.Equal(t, 3.5, p.Parameters(0)["speed"].Float())
}

func TestSaveStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "solid.js", "Solid")
	path := writeProfile(t, dir, "plain", []string{"solid.js"}, "")

	p, err := LoadFully(path, []string{dir}, testDaemonVersion)
	require.NoError(t, err)

	require.NoError(t, p.SaveState(map[string]map[string]Value{
		"Solid": {"speed": FloatValue(7.25)},
	}))

	reloaded, err := LoadFully(path, []string{dir}, testDaemonVersion)
	require.NoError(t, err)
	require.Equal(t, 7.25, reloaded.Parameters(0)["speed"].Float())
}

func TestManifestVersionGate(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "future.js")
	writeFile(t, script, "")
	writeFile(t, ManifestPath(script), `
name = "Future"
version = "0.1.0"
min_supported_version = "99.0.0"
`)

	_, err := LoadManifest(script, testDaemonVersion)
	require.Error(t, err)
	require.Contains(t, err.Error(), "requires daemon")
}

func TestLoadRejectsEmptyScripts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty"+ProfileExt)
	writeFile(t, path, `
id = "5dc62fa6-e965-45cb-a0da-e87d29713093"
name = "empty"
active_scripts = []
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestFailsafeProfile(t *testing.T) {
	p := NewFailsafe()
	require.True(t, p.IsFailsafe())
	require.Len(t, p.Manifests, 1)
	require.NotEmpty(t, p.Manifests[0].Source)
	require.Contains(t, p.Parameters(0), "color_failsafe")

	other := NewFailsafe()
	require.Equal(t, p.ID, other.ID)
}

func TestEnumerate(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "one", []string{"a.js"}, "")
	writeProfile(t, dir, "two", []string{"b.js"}, "")
	writeFile(t, filepath.Join(dir, "not-a-profile.txt"), "")

	found := Enumerate([]string{dir})
	require.Len(t, found, 2)
}
