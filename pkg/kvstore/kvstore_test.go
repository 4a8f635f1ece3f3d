package kvstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	compactionInterval = 100 * time.Millisecond
}

type closer interface {
	Store
	Close() error
}

func testStore(t *testing.T, s Store) {
	_, err := s.Get(`SOFTWARE\Test`, "missing")
	require.ErrorIs(t, err, ErrNotExist)

	require.NoError(t, s.Set(`SOFTWARE\Test`, "str", StringValue("hello")))
	require.NoError(t, s.Set(`SOFTWARE\Test`, "bin", BinaryValue([]byte{0x00, 0x01, 0xff})))

	v, err := s.Get(`SOFTWARE\Test`, "str")
	require.NoError(t, err)
	assert.Equal(t, TypeString, v.Type)
	assert.Equal(t, []byte("hello"), v.Data)

	// paths and names are case-insensitive, like the registry
	v, err = s.Get(`software\test`, "BIN")
	require.NoError(t, err)
	assert.Equal(t, TypeBinary, v.Type)
	assert.Equal(t, []byte{0x00, 0x01, 0xff}, v.Data)

	str, err := GetString(s, `SOFTWARE\Test`, "str")
	require.NoError(t, err)
	assert.Equal(t, "hello", str)

	_, err = GetString(s, `SOFTWARE\Test`, "bin")
	require.Error(t, err)

	// overwrite
	require.NoError(t, s.Set(`SOFTWARE\Test`, "str", StringValue("bye")))
	str, err = GetString(s, `SOFTWARE\Test`, "str")
	require.NoError(t, err)
	assert.Equal(t, "bye", str)

	// same name under another path is a distinct value
	_, err = s.Get(`SOFTWARE\Other`, "str")
	require.ErrorIs(t, err, ErrNotExist)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	testStore(t, m)
	assert.Equal(t, 2, m.Len(`SOFTWARE\Test`))

	m.Delete(`SOFTWARE\Test`, "str")
	_, err := m.Get(`SOFTWARE\Test`, "str")
	require.ErrorIs(t, err, ErrNotExist)
}

func TestBadger(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "db")
	b, err := OpenBadger(dir)
	require.NoError(t, err)
	testStore(t, b)
	require.NoError(t, b.Close())

	testReopen(t, func() (closer, error) { return OpenBadger(dir) })
}

func TestBolt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.bolt")
	b, err := OpenBolt(path)
	require.NoError(t, err)
	testStore(t, b)
	require.NoError(t, b.Close())

	testReopen(t, func() (closer, error) { return OpenBolt(path) })
}

// testReopen checks values written before closing are still there.
func testReopen(t *testing.T, open func() (closer, error)) {
	s, err := open()
	require.NoError(t, err)
	defer s.Close()

	str, err := GetString(s, `SOFTWARE\Test`, "str")
	require.NoError(t, err)
	assert.Equal(t, "bye", str)
}

func TestBadgerCompactionPanic(t *testing.T) {
	t.Parallel()

	b, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	// Try to start the compaction routine again
	assert.Panics(t, func() { b.startBackgroundCompaction() })
}

func TestDecodeEmpty(t *testing.T) {
	_, err := decode(nil)
	require.Error(t, err)

	v, err := decode(encode(Value{Type: TypeOther}))
	require.NoError(t, err)
	assert.Equal(t, TypeOther, v.Type)
	assert.Empty(t, v.Data)
}
