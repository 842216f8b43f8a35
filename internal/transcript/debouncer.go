package transcript

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EmitFunc receives exactly one finalized utterance per silence window.
type EmitFunc func(connectionID, text string)

type state struct {
	accumulated string
	lastEmitted string
	lastUpdate  time.Time
	timer       *time.Timer
}

// Debouncer converts a rapid stream of partial user-speech fragments into
// one finalized utterance per pause in speech. Each new fragment restarts
// the silence window; the timer firing emits the accumulated text if it
// differs from the last emission.
type Debouncer struct {
	mu     sync.Mutex
	states map[string]*state
	window time.Duration
	emit   EmitFunc
	logger *zap.Logger
}

// NewDebouncer creates a debouncer with the given silence window.
func NewDebouncer(window time.Duration, emit EmitFunc, logger *zap.Logger) *Debouncer {
	return &Debouncer{
		states: make(map[string]*state),
		window: window,
		emit:   emit,
		logger: logger,
	}
}

// AddFragment accumulates one incremental fragment for the connection and
// (re)starts its silence timer. Fragments that clean down to nothing are
// ignored.
func (d *Debouncer) AddFragment(connectionID, fragment string) {
	cleaned := CleanFragment(fragment)
	if cleaned == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.states[connectionID]
	if !ok {
		st = &state{}
		d.states[connectionID] = st
	}

	if st.timer != nil {
		st.timer.Stop()
	}

	st.accumulated = Join(st.accumulated, cleaned)
	st.lastUpdate = time.Now()
	st.timer = time.AfterFunc(d.window, func() {
		d.fire(connectionID)
	})

	d.logger.Debug("Transcript fragment accumulated",
		zap.String("connectionID", connectionID),
		zap.String("fragment", cleaned))
}

// Clear cancels any pending timer and drops the connection's state. It must
// run on every disconnect so no timer callback outlives its connection.
func (d *Debouncer) Clear(connectionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.states[connectionID]
	if !ok {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	delete(d.states, connectionID)
}

// Pending reports whether unfinalized text is accumulated for the connection.
func (d *Debouncer) Pending(connectionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.states[connectionID]
	return ok && st.accumulated != ""
}

func (d *Debouncer) fire(connectionID string) {
	d.mu.Lock()

	st, ok := d.states[connectionID]
	if !ok {
		d.mu.Unlock()
		return
	}
	st.timer = nil

	text := CleanFinal(st.accumulated)
	if text == "" || text == st.lastEmitted {
		st.accumulated = ""
		d.mu.Unlock()
		return
	}

	st.lastEmitted = text
	st.accumulated = ""
	d.mu.Unlock()

	d.logger.Debug("Transcript finalized",
		zap.String("connectionID", connectionID),
		zap.String("text", text))

	d.emit(connectionID, text)
}
