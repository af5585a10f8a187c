package board

import "sync"

// EventKind names what happened inside the engine.
type EventKind string

const (
	EventView       EventKind = "view"
	EventLoadFailed EventKind = "load-failed"
	EventSignedOut  EventKind = "signed-out"
	EventWarning    EventKind = "warning"
)

// Event is delivered to subscribers after the engine lock is released.
type Event struct {
	Kind EventKind
	View *View
	Err  error
}

type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Event)
}

func (l *listeners) add(fn func(Event)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = map[int]func(Event){}
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners) emit(ev Event) {
	l.mu.Lock()
	fns := make([]func(Event), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
