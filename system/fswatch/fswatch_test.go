package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	w := New(nil, nil, "/etc/eruption/eruption.conf")

	kind, ok := w.classify("/var/lib/eruption/profiles/red.profile")
	require.True(t, ok)
	require.Equal(t, ProfilesChanged, kind)

	kind, ok = w.classify("/var/lib/eruption/profiles/red.profile.state")
	require.True(t, ok)
	require.Equal(t, ProfilesChanged, kind)

	kind, ok = w.classify("/usr/share/eruption/scripts/wave.js")
	require.True(t, ok)
	require.Equal(t, ScriptsChanged, kind)

	kind, ok = w.classify("/usr/share/eruption/scripts/wave.js.manifest")
	require.True(t, ok)
	require.Equal(t, ScriptsChanged, kind)

	kind, ok = w.classify("/etc/eruption/eruption.conf")
	require.True(t, ok)
	require.Equal(t, ConfigChanged, kind)

	_, ok = w.classify("/tmp/unrelated.txt")
	require.False(t, ok)
}

func TestServePublishesProfileChanges(t *testing.T) {
	dir := t.TempDir()
	w := New([]string{dir}, nil, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Serve(ctx)
	}()

	// give the watcher a moment to install its watches
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "new.profile")
	require.NoError(t, os.WriteFile(path, []byte("id = \"x\"\n"), 0o644))

	select {
	case ev := <-w.Events():
		require.Equal(t, ProfilesChanged, ev.Kind)
		require.Equal(t, path, ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	<-done
}
