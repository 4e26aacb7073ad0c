package server

import "sync"

// Notifier broadcasts reload events to all subscribed listeners.
// Each event carries the path of the file that triggered it.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan string]struct{}
}

// NewNotifier creates a new Notifier instance.
func NewNotifier() *Notifier {
	return &Notifier{
		listeners: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives reload events.
// The caller must call Unsubscribe when done.
func (n *Notifier) Subscribe() chan string {
	ch := make(chan string, 1)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan string) {
	n.mu.Lock()
	delete(n.listeners, ch)
	n.mu.Unlock()
	close(ch)
}

// Broadcast sends path to all listeners.
// Non-blocking: a listener whose channel is full misses the event.
func (n *Notifier) Broadcast(path string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- path:
		default:
		}
	}
}
