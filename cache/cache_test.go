package cache

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/runit/function"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func writeModule(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.py")
	require.NoError(t, os.WriteFile(path, []byte("def index():\n    return 1\n"), 0o644))
	return path
}

func table() function.Table {
	return function.Table{"index": {Name: "index"}}
}

func TestDefaults(t *testing.T) {
	c := New()
	assert.Equal(t, DefaultTTL, c.TTL())

	for i := 0; i < DefaultMaxEntries+1; i++ {
		c.Put(filepath.Join("/srv", strconv.Itoa(i)+".py"), time.Unix(0, 0), table())
	}
	assert.Equal(t, DefaultMaxEntries, c.Stats().Entries)
}

func TestGetHitWithinTTL(t *testing.T) {
	path := writeModule(t)
	info, err := os.Stat(path)
	require.NoError(t, err)

	c := New()
	c.Put(path, info.ModTime(), table())

	got, ok := c.Get(path)
	require.True(t, ok)
	assert.Contains(t, got, "index")
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestGetMissAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	path := writeModule(t)
	info, err := os.Stat(path)
	require.NoError(t, err)

	c := New(WithTTL(time.Minute), WithClock(clock.Now))
	c.Put(path, info.ModTime(), table())

	clock.Advance(59 * time.Second)
	_, ok := c.Get(path)
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get(path)
	assert.False(t, ok, "entry must expire once the TTL has elapsed")
}

func TestGetMissAfterTouch(t *testing.T) {
	path := writeModule(t)
	info, err := os.Stat(path)
	require.NoError(t, err)

	c := New()
	c.Put(path, info.ModTime(), table())

	later := info.ModTime().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	_, ok := c.Get(path)
	assert.False(t, ok, "a changed mtime must invalidate the entry")
}

func TestGetMissingFile(t *testing.T) {
	c := New()
	_, ok := c.Get(filepath.Join(t.TempDir(), "nope.py"))
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestPutOverwrites(t *testing.T) {
	path := writeModule(t)
	mtime := time.Unix(42, 0)

	c := New()
	c.Put(path, mtime, table())
	c.Put(path, mtime, function.Table{"other": {Name: "other"}})

	got, ok := c.Lookup(path, mtime)
	require.True(t, ok)
	assert.Equal(t, []string{"other"}, got.Names())
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestReturnedTableIsACopy(t *testing.T) {
	mtime := time.Unix(42, 0)
	c := New()
	c.Put("/m.py", mtime, table())

	got, _ := c.Lookup("/m.py", mtime)
	delete(got, "index")

	again, ok := c.Lookup("/m.py", mtime)
	require.True(t, ok)
	assert.Contains(t, again, "index")
}

func TestMaxEntries(t *testing.T) {
	mtime := time.Unix(42, 0)
	c := New(WithMaxEntries(2))
	c.Put("/a", mtime, table())
	c.Put("/b", mtime, table())
	c.Put("/c", mtime, table())

	assert.Equal(t, 2, c.Stats().Entries)
	_, ok := c.Lookup("/a", mtime)
	assert.False(t, ok, "least recently used entry should be evicted")
}

func TestRemoveAndPurge(t *testing.T) {
	mtime := time.Unix(42, 0)
	c := New()
	c.Put("/a", mtime, table())
	c.Put("/b", mtime, table())

	c.Remove("/a")
	_, ok := c.Lookup("/a", mtime)
	assert.False(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestConcurrentAccess(t *testing.T) {
	mtime := time.Unix(42, 0)
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := filepath.Join("/mod", string(rune('a'+i%5)))
			c.Put(key, mtime, table())
			c.Lookup(key, mtime)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, c.Stats().Entries)
}
