package service

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 256

// keyedMutex serializes work per key using a fixed set of stripes. Two keys
// may share a stripe.
type keyedMutex struct {
	stripes [lockStripes]sync.Mutex
}

func (k *keyedMutex) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &k.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
