// Package syncutil holds small concurrency helpers shared across stores.
package syncutil

import (
	"hash/fnv"
	"sync"
)

const shardCount = 256

// ShardedMutex is a fixed pool of mutexes keyed by string hash. Memory
// stays bounded no matter how many distinct keys lock through it; two
// keys landing on the same shard contend with each other, which is
// acceptable for the short critical sections it guards (slug
// registration, per-counter increments).
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the shard for key and returns its unlock function.
func (s *ShardedMutex) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &s.shards[h.Sum32()%shardCount]
	mu.Lock()
	return mu.Unlock
}
