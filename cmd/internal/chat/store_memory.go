package chat

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Message
	chats map[string][]string // channel key -> message ids in append order
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Message),
		chats: make(map[string][]string),
	}
}

var _ Store = (*MemoryStore)(nil)

// Append stores m.
func (s *MemoryStore) Append(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Upvoters = slices.Clone(m.Upvoters)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[m.ID] = &m
	key := ChannelKey(m.User1, m.User2)
	s.chats[key] = append(s.chats[key], m.ID)
	return nil
}

// List returns the conversation oldest first.
func (s *MemoryStore) List(ctx context.Context, a, b string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.chats[ChannelKey(a, b)]
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.byID[id]; ok {
			out = append(out, clone(m))
		}
	}
	return out, nil
}

// Find loads a message by id.
func (s *MemoryStore) Find(ctx context.Context, id string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	return clone(m), nil
}

// SetUpvoter conditionally adds or removes user.
func (s *MemoryStore) SetUpvoter(ctx context.Context, id, user string, member bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	i := slices.Index(m.Upvoters, user)
	switch {
	case member && i < 0:
		m.Upvoters = append(m.Upvoters, user)
		return true, nil
	case !member && i >= 0:
		m.Upvoters = slices.Delete(m.Upvoters, i, i+1)
		return true, nil
	default:
		return false, nil
	}
}

func clone(m *Message) Message {
	out := *m
	out.Upvoters = slices.Clone(m.Upvoters)
	if out.Upvoters == nil {
		out.Upvoters = []string{}
	}
	return out
}
