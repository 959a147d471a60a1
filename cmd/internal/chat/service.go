package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"duet/cmd/identity"
)

// Users is the part of the user directory conversations need.
type Users interface {
	Find(ctx context.Context, username string) (identity.User, error)
	AddChat(ctx context.Context, username, peer string) (changed bool, err error)
	Chats(ctx context.Context, username string) ([]string, error)
}

// Service runs the conversation operations behind the HTTP handlers.
type Service struct {
	store    Store
	users    Users
	notifier Notifier
	log      *slog.Logger
}

// NewService wires a Service. notifier may be nil.
func NewService(store Store, users Users, notifier Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, users: users, notifier: notifier, log: log}
}

// MessageEvent is the payload of a message.new notification.
type MessageEvent struct {
	MessageID string    `json:"message_id"`
	Sender    string    `json:"sender"`
	SentAt    time.Time `json:"sent_at"`
}

// Send appends a message from sender to recipient, makes sure both list each
// other as chat partners, then notifies the conversation channel.
func (s *Service) Send(ctx context.Context, now time.Time, sender, recipient, text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyMessage
	}
	if len(text) > MaxMessageLen {
		return Message{}, ErrMessageTooLong
	}
	if err := s.requireUser(ctx, recipient); err != nil {
		return Message{}, err
	}

	id, err := identity.NewULID(now)
	if err != nil {
		return Message{}, err
	}
	u1, u2 := Participants(sender, recipient)
	m := Message{
		ID:       id,
		User1:    u1,
		User2:    u2,
		Sender:   sender,
		Text:     text,
		SentAt:   now.UTC(),
		Upvoters: []string{},
	}
	if err := s.store.Append(ctx, m); err != nil {
		return Message{}, err
	}

	for _, p := range [][2]string{{sender, recipient}, {recipient, sender}} {
		if _, err := s.users.AddChat(ctx, p[0], p[1]); err != nil {
			return Message{}, fmt.Errorf("chat: link %s -> %s: %w", p[0], p[1], err)
		}
	}

	s.notify(ctx, ChannelKey(sender, recipient), EventMessageNew,
		MessageEvent{MessageID: m.ID, Sender: sender, SentAt: m.SentAt})
	return m, nil
}

// History returns the conversation between a and b, oldest first.
func (s *Service) History(ctx context.Context, a, b string) ([]Message, error) {
	return s.store.List(ctx, a, b)
}

// Open adds peer to user's chat list.
func (s *Service) Open(ctx context.Context, user, peer string) error {
	if err := s.requireUser(ctx, peer); err != nil {
		return err
	}
	_, err := s.users.AddChat(ctx, user, peer)
	return err
}

// Chats lists user's chat partners.
func (s *Service) Chats(ctx context.Context, user string) ([]string, error) {
	return s.users.Chats(ctx, user)
}

func (s *Service) requireUser(ctx context.Context, username string) error {
	if _, err := s.users.Find(ctx, username); err != nil {
		if identity.IsNotFound(err) {
			return ErrUnknownUser
		}
		return err
	}
	return nil
}

func (s *Service) notify(ctx context.Context, channel, kind string, payload any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, channel, kind, payload); err != nil {
		s.log.Warn("chat.notify.fail", "channel", channel, "kind", kind, "err", err)
	}
}
