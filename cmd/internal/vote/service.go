package vote

import (
	"context"
	"errors"
	"log/slog"

	"duet/cmd/internal/chat"
	"duet/cmd/internal/keylock"
)

// Result reports the upvoter's membership after a toggle.
type Result struct {
	MessageID string
	Member    bool
	Count     int
}

// UpdateEvent is the payload of a vote.update notification.
type UpdateEvent struct {
	MessageID string `json:"message_id"`
	Username  string `json:"username"`
	Member    bool   `json:"member"`
}

// Service applies toggles.
type Service struct {
	messages chat.Store
	locks    *keylock.Registry
	notifier chat.Notifier
	metrics  *Metrics
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier publishes vote.update after each successful toggle.
func WithNotifier(n chat.Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithMetrics enables toggle counters.
func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLogger sets the logger (default: slog.Default).
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// NewService wires a toggle applier over messages, serialized by locks.
func NewService(messages chat.Store, locks *keylock.Registry, opts ...Option) *Service {
	s := &Service{messages: messages, locks: locks, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Toggle adds user to the message's upvoters if absent, removes it if present.
//
// Errors: ErrNotFound, ErrStoreMutation, *keylock.TimeoutError (errors.Is
// keylock.ErrTimeout), or a store error. The lock is released before the
// notification is sent; notification failures are logged and ignored.
func (s *Service) Toggle(ctx context.Context, messageID, user string) (Result, error) {
	if _, err := s.messages.Find(ctx, messageID); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			s.metrics.inc("not_found")
			return Result{}, ErrNotFound
		}
		s.metrics.inc("error")
		return Result{}, err
	}

	var (
		res Result
		msg chat.Message
	)
	err := s.locks.Do(ctx, messageID, func(ctx context.Context) error {
		cur, err := s.messages.Find(ctx, messageID)
		if err != nil {
			if errors.Is(err, chat.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		member := !cur.HasUpvoter(user)
		changed, err := s.messages.SetUpvoter(ctx, messageID, user, member)
		if err != nil {
			return err
		}
		if !changed {
			return ErrStoreMutation
		}

		count := len(cur.Upvoters) + 1
		if !member {
			count = len(cur.Upvoters) - 1
		}
		res = Result{MessageID: messageID, Member: member, Count: count}
		msg = cur
		return nil
	})
	if err != nil {
		s.metrics.inc(resultLabel(err))
		return Result{}, err
	}

	if res.Member {
		s.metrics.inc("added")
	} else {
		s.metrics.inc("removed")
	}
	s.publish(ctx, msg, user, res)
	return res, nil
}

func (s *Service) publish(ctx context.Context, msg chat.Message, user string, res Result) {
	if s.notifier == nil {
		return
	}
	channel := chat.ChannelKey(msg.User1, msg.User2)
	ev := UpdateEvent{MessageID: res.MessageID, Username: user, Member: res.Member}
	if err := s.notifier.Notify(ctx, channel, chat.EventVoteUpdate, ev); err != nil {
		s.log.Warn("vote.toggle.notify.fail", "message_id", res.MessageID, "channel", channel, "err", err)
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStoreMutation):
		return "no_effect"
	case errors.Is(err, keylock.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
