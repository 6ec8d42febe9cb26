package session

import "sync"

// Feed fans out progress snapshots of one session to N listeners.
type Feed struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	closed    bool
}

// Listener receives progress snapshots from a Feed.
type Listener struct {
	C    chan Progress
	done chan struct{}
	once sync.Once
}

// Done is closed when the listener is unsubscribed or the feed closes.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

func (l *Listener) stop() {
	l.once.Do(func() { close(l.done) })
}

// NewFeed creates a new Feed.
func NewFeed() *Feed {
	return &Feed{listeners: make(map[*Listener]struct{})}
}

// Subscribe registers a new listener.
func (f *Feed) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan Progress, 16),
		done: make(chan struct{}),
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		l.stop()
		return l
	}
	f.listeners[l] = struct{}{}
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (f *Feed) Unsubscribe(l *Listener) {
	f.mu.Lock()
	delete(f.listeners, l)
	f.mu.Unlock()
	l.stop()
}

// ListenerCount returns the number of subscribed listeners.
func (f *Feed) ListenerCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.listeners)
}

// Publish delivers p to every listener. Slow listeners miss snapshots rather
// than blocking the session clock.
func (f *Feed) Publish(p Progress) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for l := range f.listeners {
		select {
		case l.C <- p:
		default:
		}
	}
}

// Close stops every listener. Later subscribers are stopped immediately.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for l := range f.listeners {
		l.stop()
		delete(f.listeners, l)
	}
}
