package generator

import "sync"

// pendingRegistry holds one future per in-flight generation request,
// keyed by correlation ID. A request is resolved at most once: the first
// Resolve wins and removes the entry, later calls for the same ID report
// an unknown ID.
type pendingRegistry struct {
	mu      sync.Mutex
	waiters map[string]chan string
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{waiters: make(map[string]chan string)}
}

// register creates a future for the given correlation ID and returns its
// receive channel.
func (p *pendingRegistry) register(id string) <-chan string {
	ch := make(chan string, 1)

	p.mu.Lock()
	p.waiters[id] = ch
	p.mu.Unlock()

	return ch
}

// release drops a future that will no longer be awaited (timeout or
// cancellation). A callback arriving afterwards is treated as unknown.
func (p *pendingRegistry) release(id string) {
	p.mu.Lock()
	delete(p.waiters, id)
	p.mu.Unlock()
}

// resolve delivers the generated text to the waiting future. Returns false
// when the correlation ID is unknown or already resolved.
func (p *pendingRegistry) resolve(id, text string) bool {
	p.mu.Lock()
	ch, ok := p.waiters[id]
	if ok {
		delete(p.waiters, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	ch <- text
	return true
}

// size returns the number of in-flight requests.
func (p *pendingRegistry) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
