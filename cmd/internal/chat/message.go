package chat

import (
	"context"
	"time"
)

// MaxMessageLen caps message text, in bytes.
const MaxMessageLen = 4096

// Message is one chat line. User1 <= User2 always holds.
type Message struct {
	ID       string
	User1    string
	User2    string
	Sender   string
	Text     string
	SentAt   time.Time
	Upvoters []string
}

// HasUpvoter reports whether user is in the upvoter set.
func (m Message) HasUpvoter(user string) bool {
	for _, u := range m.Upvoters {
		if u == user {
			return true
		}
	}
	return false
}

// Participants returns the ordered pair for a conversation between a and b.
func Participants(a, b string) (user1, user2 string) {
	if b < a {
		return b, a
	}
	return a, b
}

// ChannelKey names the notification channel shared by a and b, independent of order.
// Usernames never contain whitespace, so the space keeps keys unambiguous.
func ChannelKey(a, b string) string {
	u1, u2 := Participants(a, b)
	return u1 + " " + u2
}

// Store persists messages.
type Store interface {
	// Append stores m (ID and ordering are filled in by the caller).
	Append(ctx context.Context, m Message) error
	// List returns the conversation between a and b, oldest first.
	List(ctx context.Context, a, b string) ([]Message, error)
	// Find loads a message by id, or ErrNotFound.
	Find(ctx context.Context, id string) (Message, error)
	// SetUpvoter adds (member) or removes (!member) user from the message's upvoters.
	// changed is false if the set already had the requested membership or the message is gone.
	SetUpvoter(ctx context.Context, id, user string, member bool) (changed bool, err error)
}

// Notifier delivers an event to every subscriber of channel. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, channel, kind string, payload any) error
}

// Event kinds published on a conversation channel.
const (
	EventMessageNew = "message.new"
	EventVoteUpdate = "vote.update"
)
