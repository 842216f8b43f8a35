package guard

import "sync"

// Guard provides per-connection mutual exclusion for the end-of-turn
// pipeline. Redundant end signals coalesce: a second caller observes the
// in-flight run instead of starting a duplicate.
type Guard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	done chan struct{}
}

// New creates an empty guard.
func New() *Guard {
	return &Guard{entries: make(map[string]*entry)}
}

// TryEnter attempts to start the pipeline for the connection. When another
// run is already in flight it returns alreadyRunning=true together with a
// wait channel that closes when that run finishes; the caller must not start
// a new pipeline. Otherwise it returns a release function which must be
// invoked exactly once, regardless of pipeline outcome, typically via defer.
func (g *Guard) TryEnter(connectionID string) (release func(), wait <-chan struct{}, alreadyRunning bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entries[connectionID]; ok {
		return nil, e.done, true
	}

	e := &entry{done: make(chan struct{})}
	g.entries[connectionID] = e

	var once sync.Once
	release = func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.entries, connectionID)
			g.mu.Unlock()
			close(e.done)
		})
	}
	return release, nil, false
}

// Running reports whether a pipeline is currently in flight for the
// connection.
func (g *Guard) Running(connectionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.entries[connectionID]
	return ok
}
