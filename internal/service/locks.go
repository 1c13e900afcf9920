package service

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
)

const lockStripes = 64

// RequestLocks serialises, per request, a commit together with the events it publishes,
// so subscribers see one request's changes in commit order. Requests hash onto a fixed
// set of stripes; two requests sharing a stripe simply wait for each other.
type RequestLocks struct {
	stripes [lockStripes]sync.Mutex
}

func NewRequestLocks() *RequestLocks {
	return &RequestLocks{}
}

// Lock blocks until the request's stripe is held and returns its release func.
func (l *RequestLocks) Lock(id uuid.UUID) func() {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
