package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := Open(t.TempDir(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCheckAndMarkFirstTimeIsNew(t *testing.T) {
	c := openTestCache(t, time.Hour)
	assert.False(t, c.CheckAndMark("msg-1"))
	assert.True(t, c.CheckAndMark("msg-1"))
}

func TestDistinctKeysIndependent(t *testing.T) {
	c := openTestCache(t, time.Hour)
	assert.False(t, c.CheckAndMark("msg-1"))
	assert.False(t, c.CheckAndMark("msg-2"))
	assert.True(t, c.CheckAndMark("msg-2"))
}

func TestEmptyKeyNeverDuplicate(t *testing.T) {
	c := openTestCache(t, time.Hour)
	assert.False(t, c.CheckAndMark(""))
	assert.False(t, c.CheckAndMark(""))
}

func TestExpiredKeyIsNewAgain(t *testing.T) {
	c := openTestCache(t, 50*time.Millisecond)
	assert.False(t, c.CheckAndMark("msg-1"))
	time.Sleep(1100 * time.Millisecond) // timestamps have second precision
	assert.False(t, c.CheckAndMark("msg-1"))
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, time.Hour)
	require.NoError(t, err)
	assert.False(t, c.CheckAndMark("msg-1"))
	require.NoError(t, c.Close())

	c2, err := Open(dir, time.Hour)
	require.NoError(t, err)
	defer c2.Close()
	assert.True(t, c2.CheckAndMark("msg-1"))
}

func TestCloseTwice(t *testing.T) {
	c, err := Open(t.TempDir(), time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestConcurrentCheckAndMarkSingleWinner(t *testing.T) {
	c := openTestCache(t, time.Hour)
	const n = 16
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		go func() { results <- c.CheckAndMark("contended") }()
	}
	news := 0
	for i := 0; i < n; i++ {
		if !<-results {
			news++
		}
	}
	assert.Equal(t, 1, news, "exactly one caller should see the key as new")
}
