package relay

import "sync"

// Conn is the subset of a websocket connection the relay needs.
// *websocket.Conn implements it; tests substitute fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Broadcaster relays camera frames from a single sender to any number of
// viewers. At most one sender is active at a time; a new sender displaces
// the previous one. Safe for concurrent use.
type Broadcaster struct {
	mu      sync.Mutex
	sender  Conn
	viewers map[Conn]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{viewers: make(map[Conn]struct{})}
}

// SetSender registers c as the active sender, closing any previous one.
func (b *Broadcaster) SetSender(c Conn) {
	b.mu.Lock()
	prev := b.sender
	b.sender = c
	b.mu.Unlock()

	if prev != nil && prev != c {
		_ = prev.Close()
	}
}

// ClearSender removes c as the active sender. A sender that was already
// displaced by a newer connection is left alone.
func (b *Broadcaster) ClearSender(c Conn) {
	b.mu.Lock()
	if b.sender == c {
		b.sender = nil
	}
	b.mu.Unlock()
}

// AddViewer subscribes c to future frames.
func (b *Broadcaster) AddViewer(c Conn) {
	b.mu.Lock()
	b.viewers[c] = struct{}{}
	b.mu.Unlock()
}

// RemoveViewer unsubscribes c. The caller owns closing the connection.
func (b *Broadcaster) RemoveViewer(c Conn) {
	b.mu.Lock()
	delete(b.viewers, c)
	b.mu.Unlock()
}

// Broadcast sends one frame to every viewer. A viewer whose write fails is
// dropped and closed; the frame still reaches the remaining viewers.
func (b *Broadcaster) Broadcast(messageType int, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for c := range b.viewers {
		if err := c.WriteMessage(messageType, data); err != nil {
			delete(b.viewers, c)
			_ = c.Close()
		}
	}
}

// Status reports whether a sender is connected and how many viewers are
// subscribed.
func (b *Broadcaster) Status() (senderConnected bool, viewers int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sender != nil, len(b.viewers)
}
