package realtime

import (
	"log/slog"
	"sync"
)

// Channel is the subscriber set of one conversation.
//
// Join and Leave are safe under concurrent Broadcast, and Broadcast never
// blocks: a member whose queue is full misses the event.
type Channel struct {
	log *slog.Logger
	Key string

	mu      sync.RWMutex
	members map[string]*Client
}

// NewChannel constructs an empty channel.
func NewChannel(log *slog.Logger, key string) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{log: log, Key: key, members: make(map[string]*Client)}
}

// Join adds a client.
func (c *Channel) Join(client *Client) {
	if c == nil || client == nil || client.ID == "" {
		return
	}
	c.mu.Lock()
	c.members[client.ID] = client
	c.mu.Unlock()

	c.log.Debug("channel.member.join", "channel", c.Key, "client_id", client.ID, "username", client.Username)
}

// Leave removes a client and returns how many members remain.
func (c *Channel) Leave(clientID string) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	delete(c.members, clientID)
	n := len(c.members)
	c.mu.Unlock()

	c.log.Debug("channel.member.leave", "channel", c.Key, "client_id", clientID)
	return n
}

// Len returns the member count.
func (c *Channel) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Broadcast offers env to every member and returns delivered and dropped counts.
func (c *Channel) Broadcast(env Envelope) (delivered, dropped int) {
	if c == nil {
		return 0, 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, m := range c.members {
		if m == nil {
			continue
		}
		if m.offer(env) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}
