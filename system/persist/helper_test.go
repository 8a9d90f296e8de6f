package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eruption-project/eruption-sub000/system/canvas"
)

type mockConfig struct {
	bytes   []byte
	applied int
	closed  int
}

func (m *mockConfig) Name() string        { return "MockConfig" }
func (m *mockConfig) Value() []byte       { return m.bytes }
func (m *mockConfig) Load(v []byte) error { m.bytes = v; return nil }
func (m *mockConfig) Apply() error        { m.applied++; return nil }
func (m *mockConfig) Close() error        { m.closed++; return nil }

var _ Registry = &mockConfig{}

func TestPersistToStateDir(t *testing.T) {
	dir := t.TempDir()
	expectedBytes := []byte{1, 2, 3, 4, 5, 6}

	h, err := NewFileHelper(dir)
	require.NoError(t, err)

	m := mockConfig{
		bytes: expectedBytes,
	}
	h.Register(&m)

	require.NoError(t, h.Save())

	hL, err := NewFileHelper(dir)
	require.NoError(t, err)

	m = mockConfig{}
	hL.Register(&m)

	require.NoError(t, hL.Load())
	require.EqualValues(t, expectedBytes, m.bytes)

	require.NoError(t, hL.Apply())
	require.Equal(t, 1, m.applied)

	hL.Close()
	require.Equal(t, 1, m.closed)
}

func TestLoadMissingStateFile(t *testing.T) {
	h, err := NewFileHelper(t.TempDir())
	require.NoError(t, err)

	m := mockConfig{}
	h.Register(&m)

	require.NoError(t, h.Load())
	require.Empty(t, m.bytes)
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	h, err := NewFileHelper(dir)
	require.NoError(t, err)

	m := mockConfig{bytes: []byte("state")}
	h.Register(&m)
	require.NoError(t, h.Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "MockConfig"+stateFileExt, entries[0].Name())

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Equal(t, []byte("state"), data)
}

func TestColorSchemesRoundTrip(t *testing.T) {
	cs := NewColorSchemes()
	stops := []canvas.RGBA{
		{R: 0xff, A: 0xff},
		{G: 0xff, A: 0xff},
		{B: 0xff, A: 0x80},
	}
	require.NoError(t, cs.Set("rainbow", stops))
	require.NoError(t, cs.Set("night", []canvas.RGBA{{B: 0x20, A: 0xff}}))

	loaded := NewColorSchemes()
	require.NoError(t, loaded.Load(cs.Value()))

	got, err := loaded.Stops("rainbow")
	require.NoError(t, err)
	require.Equal(t, stops, got)
	require.Equal(t, []string{"night", "rainbow"}, loaded.Names())
}

func TestColorSchemesErrors(t *testing.T) {
	cs := NewColorSchemes()
	require.ErrorIs(t, cs.Set("empty", nil), ErrSchemeEmpty)
	require.ErrorIs(t, cs.Remove("nope"), ErrSchemeNotFound)

	_, err := cs.Stops("nope")
	require.ErrorIs(t, err, ErrSchemeNotFound)

	require.NoError(t, cs.Set("one", []canvas.RGBA{{R: 1, A: 0xff}}))
	require.NoError(t, cs.Remove("one"))
	require.Empty(t, cs.Names())
}
