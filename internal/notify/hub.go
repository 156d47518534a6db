// Package notify fans live events out to connected sessions. Every user has
// a channel of their own and all sessions also sit on one broadcast channel.
package notify

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

const broadcastChannel = "broadcast"

// Event is one frame sent to a client.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Session is a connected client. Deliver must hand the event off without
// blocking; an error means the session is dead.
type Session interface {
	Deliver(Event) error
	Close() error
}

// UserChannel names the private channel of userID.
func UserChannel(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

// channel keeps sessions in registration order.
type channel struct {
	sessions []Session
	index    map[Session]int
}

func (c *channel) add(s Session) {
	if _, ok := c.index[s]; ok {
		return
	}
	c.index[s] = len(c.sessions)
	c.sessions = append(c.sessions, s)
}

func (c *channel) remove(s Session) {
	i, ok := c.index[s]
	if !ok {
		return
	}
	c.sessions = append(c.sessions[:i], c.sessions[i+1:]...)
	delete(c.index, s)
	for j := i; j < len(c.sessions); j++ {
		c.index[c.sessions[j]] = j
	}
}

type Hub struct {
	mu       sync.Mutex
	channels map[string]*channel
	// member maps each live session to its user channel.
	member map[Session]string
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]*channel),
		member:   make(map[Session]string),
	}
}

func (h *Hub) channelLocked(name string) *channel {
	c, ok := h.channels[name]
	if !ok {
		c = &channel{index: make(map[Session]int)}
		h.channels[name] = c
	}
	return c
}

// Subscribe joins s to the user channel of userID and to the broadcast
// channel. Subscribing the same session twice has no further effect.
func (h *Hub) Subscribe(userID int64, s Session) {
	name := UserChannel(userID)
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.member[s]; ok && prev != name {
		h.removeLocked(s)
	}
	h.member[s] = name
	h.channelLocked(name).add(s)
	h.channelLocked(broadcastChannel).add(s)
}

// Unsubscribe removes s from every channel. Unknown sessions are ignored.
func (h *Hub) Unsubscribe(_ int64, s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s Session) bool {
	name, ok := h.member[s]
	if !ok {
		return false
	}
	delete(h.member, s)
	for _, cn := range []string{name, broadcastChannel} {
		c, ok := h.channels[cn]
		if !ok {
			continue
		}
		c.remove(s)
		if len(c.sessions) == 0 {
			delete(h.channels, cn)
		}
	}
	return true
}

func (h *Hub) snapshot(name string) []Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.channels[name]
	if !ok {
		return nil
	}
	return append([]Session(nil), c.sessions...)
}

// Publish delivers e to every session of userID. It never reaches sessions
// of other users.
func (h *Hub) Publish(userID int64, e Event) {
	h.deliver(UserChannel(userID), e)
}

// Broadcast delivers e to every live session.
func (h *Hub) Broadcast(e Event) {
	h.deliver(broadcastChannel, e)
}

func (h *Hub) deliver(name string, e Event) {
	for _, s := range h.snapshot(name) {
		if err := s.Deliver(e); err != nil {
			h.drop(s, err)
		}
	}
}

func (h *Hub) drop(s Session, cause error) {
	h.mu.Lock()
	removed := h.removeLocked(s)
	h.mu.Unlock()
	if !removed {
		return
	}
	log.WithError(cause).Debug("dropping live session after failed delivery")
	_ = s.Close()
}

// Sessions reports the number of live sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.member)
}

// CloseAll drops and closes every session. It is used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sessions := make([]Session, 0, len(h.member))
	for s := range h.member {
		sessions = append(sessions, s)
	}
	h.channels = make(map[string]*channel)
	h.member = make(map[Session]string)
	h.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
