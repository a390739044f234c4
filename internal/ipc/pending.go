package ipc

import (
	"sync"

	"dball/internal/wire"
)

type result struct {
	resp wire.ResponsePayload
	err  error
}

// pendingMap maps correlation ids to single-use response slots. Every entry
// is removed exactly once, by whichever of resolve, remove or failAll gets to
// it first.
type pendingMap struct {
	mu    sync.Mutex
	slots map[string]chan result
}

func newPendingMap() *pendingMap {
	return &pendingMap{slots: make(map[string]chan result)}
}

func (p *pendingMap) add(id string) <-chan result {
	ch := make(chan result, 1)
	p.mu.Lock()
	p.slots[id] = ch
	p.mu.Unlock()
	return ch
}

func (p *pendingMap) take(id string) (chan result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.slots[id]
	if ok {
		delete(p.slots, id)
	}
	return ch, ok
}

func (p *pendingMap) resolve(id string, r result) bool {
	ch, ok := p.take(id)
	if ok {
		ch <- r
	}
	return ok
}

func (p *pendingMap) remove(id string) {
	p.take(id)
}

func (p *pendingMap) failAll(err error) int {
	p.mu.Lock()
	slots := p.slots
	p.slots = make(map[string]chan result)
	p.mu.Unlock()
	for _, ch := range slots {
		ch <- result{err: err}
	}
	return len(slots)
}

func (p *pendingMap) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
