package syncutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardedMutex_MutualExclusionPerKey(t *testing.T) {
	var m ShardedMutex
	counter := 0

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock := m.Lock("same-key")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, n, counter)
}

func TestShardedMutex_ReentryAfterUnlock(t *testing.T) {
	var m ShardedMutex
	unlock := m.Lock("key")
	unlock()
	unlock = m.Lock("key")
	unlock()
}
