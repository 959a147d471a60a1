package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"duet/cmd/identity"
	"duet/cmd/internal/keylock"
	"duet/cmd/security/token"
)

// Service is the session authority: Issue at login, Authenticate on every
// request, Logout on demand.
//
// Rotation and expiry cleanup of a record run while holding the record id in a
// keylock.Registry, so concurrent callers presenting the same pair serialize and
// at most one of them rotates.
type Service struct {
	cfg     Config
	ledger  Ledger
	dir     Directory
	tx      Transactor
	locks   *keylock.Registry
	hasher  token.Hasher
	metrics *Metrics
	log     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHasher sets the token hasher (default: token.HasherFromEnv).
func WithHasher(h token.Hasher) Option { return func(s *Service) { s.hasher = h } }

// WithLocks shares a lock registry (default: a private one bounded by cfg.LockTimeout).
func WithLocks(r *keylock.Registry) Option { return func(s *Service) { s.locks = r } }

// WithMetrics enables Prometheus counters.
func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLogger sets the logger (default: slog.Default).
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// WithoutTransactions ignores a ledger's Transactor implementation.
func WithoutTransactions() Option { return func(s *Service) { s.tx = nil } }

// NewService wires the authority. If ledger also implements Transactor, every
// multi-step operation runs inside one transaction.
func NewService(cfg Config, ledger Ledger, dir Directory, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ledger == nil || dir == nil {
		return nil, fmt.Errorf("session: nil ledger or directory")
	}

	s := &Service{
		cfg:    cfg,
		ledger: ledger,
		dir:    dir,
		hasher: token.HasherFromEnv(),
	}
	if tx, ok := ledger.(Transactor); ok {
		s.tx = tx
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.locks == nil {
		s.locks = keylock.New(keylock.Options{Name: "session", Timeout: cfg.LockTimeout})
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

// Config returns the active configuration.
func (s *Service) Config() Config { return s.cfg }

// Issue mints a pair for username and attaches it to the user.
// If the directory does not take the reference, the record is discarded and
// ErrStoreMutation returned.
func (s *Service) Issue(ctx context.Context, now time.Time, username string) (Pair, error) {
	var out Pair

	err := s.unit(ctx, func(ctx context.Context, led Ledger, dir Directory) error {
		rec, pair, err := s.mint(now, username)
		if err != nil {
			return err
		}
		id, err := led.Insert(ctx, rec)
		if err != nil {
			return err
		}

		changed, err := dir.AddTokenID(ctx, username, id)
		if err == nil && !changed {
			err = fmt.Errorf("%w: attach %s", ErrStoreMutation, id)
		}
		if err != nil {
			// Outside a transaction nothing else would remove it.
			if s.tx == nil {
				_, _ = led.Delete(ctx, id)
			}
			return err
		}

		out = pair
		return nil
	})
	if err != nil {
		s.log.Warn("auth.issue.fail", "username", username, "err", err)
		return Pair{}, err
	}

	s.metrics.issue()
	return out, nil
}

// Authenticate validates pair for username at now and, inside the refresh window,
// rotates it. It never returns an error; failures are folded into an
// unauthorized Result.
func (s *Service) Authenticate(ctx context.Context, now time.Time, pair Pair, username string) Result {
	res := s.authenticate(ctx, now, pair, username)
	s.metrics.outcome(res.Outcome)

	switch res.Outcome {
	case OutcomeStoreFailure, OutcomeAborted:
		s.log.Warn("auth.authenticate.fail",
			"username", username,
			"outcome", res.Outcome.String(),
			"err", res.Err,
		)
	case OutcomeRotated:
		s.log.Debug("auth.rotate.ok", "username", username)
	}
	return res
}

func (s *Service) authenticate(ctx context.Context, now time.Time, pair Pair, username string) Result {
	if pair.Empty() || username == "" {
		return Result{Outcome: OutcomeNotFound}
	}

	rec, err := s.ledger.FindExact(ctx, username, s.hasher.Hash(pair.Access), s.hasher.Hash(pair.Refresh))
	if errors.Is(err, ErrRecordNotFound) {
		return Result{Outcome: OutcomeNotFound}
	}
	if err != nil {
		return Result{Outcome: OutcomeStoreFailure, Err: err}
	}

	switch rec.WindowAt(now) {
	case WindowAccess:
		return Result{Outcome: OutcomeValid, pair: pair}
	case WindowRefresh:
		return s.rotate(ctx, now, rec)
	default:
		return s.expire(ctx, rec)
	}
}

// rotate runs detach, delete, mint, insert, attach under the record's lock.
func (s *Service) rotate(ctx context.Context, now time.Time, rec Record) Result {
	var fresh Pair

	err := s.locks.Do(ctx, lockKey(rec.ID), func(ctx context.Context) error {
		return s.unit(ctx, func(ctx context.Context, led Ledger, dir Directory) error {
			cur, err := led.Get(ctx, rec.ID)
			if errors.Is(err, ErrRecordNotFound) {
				return errRecordGone
			}
			if err != nil {
				return err
			}

			changed, err := dir.RemoveTokenID(ctx, cur.Username, cur.ID)
			if err != nil {
				return err
			}
			if !changed {
				return fmt.Errorf("%w: detach %s", ErrStoreMutation, cur.ID)
			}

			deleted, err := led.Delete(ctx, cur.ID)
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("%w: delete %s", ErrStoreMutation, cur.ID)
			}

			next, pair, err := s.mint(now, cur.Username)
			if err != nil {
				return err
			}
			id, err := led.Insert(ctx, next)
			if err != nil {
				return err
			}

			changed, err = dir.AddTokenID(ctx, cur.Username, id)
			if err != nil {
				return err
			}
			if !changed {
				// Outside a transaction the new record stays orphaned until the sweeper finds it.
				return fmt.Errorf("%w: attach %s", ErrStoreMutation, id)
			}

			fresh = pair
			return nil
		})
	})

	if err != nil {
		return Result{Outcome: classify(err), Err: err}
	}
	return Result{Outcome: OutcomeRotated, pair: fresh}
}

// expire removes a record whose refresh window has closed. A detach that finds
// nothing to remove does not stop the delete.
func (s *Service) expire(ctx context.Context, rec Record) Result {
	err := s.remove(ctx, rec)
	if err != nil && !errors.Is(err, errRecordGone) {
		return Result{Outcome: OutcomeStoreFailure, Err: err}
	}
	return Result{Outcome: OutcomeExpired}
}

// remove detaches and deletes rec under its lock.
func (s *Service) remove(ctx context.Context, rec Record) error {
	return s.locks.Do(ctx, lockKey(rec.ID), func(ctx context.Context) error {
		return s.unit(ctx, func(ctx context.Context, led Ledger, dir Directory) error {
			if _, err := led.Get(ctx, rec.ID); err != nil {
				if errors.Is(err, ErrRecordNotFound) {
					return errRecordGone
				}
				return err
			}
			if _, err := dir.RemoveTokenID(ctx, rec.Username, rec.ID); err != nil {
				return err
			}
			_, err := led.Delete(ctx, rec.ID)
			return err
		})
	})
}

// Logout deletes the record matching pair. It reports false when nothing matched.
// A failed detach does not prevent the delete.
func (s *Service) Logout(ctx context.Context, pair Pair, username string) (bool, error) {
	if pair.Empty() || username == "" {
		return false, nil
	}

	rec, err := s.ledger.FindExact(ctx, username, s.hasher.Hash(pair.Access), s.hasher.Hash(pair.Refresh))
	if errors.Is(err, ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.remove(ctx, rec); err != nil {
		if errors.Is(err, errRecordGone) {
			return false, nil
		}
		s.log.Warn("auth.logout.fail", "username", username, "err", err)
		return false, err
	}

	s.metrics.logout()
	return true, nil
}

// mint creates a fresh pair and the record that stores its hashes.
func (s *Service) mint(now time.Time, username string) (Record, Pair, error) {
	access, err := token.New(s.cfg.TokenBytes)
	if err != nil {
		return Record{}, Pair{}, err
	}
	refresh, err := token.New(s.cfg.TokenBytes)
	if err != nil {
		return Record{}, Pair{}, err
	}
	id, err := identity.NewULID(now)
	if err != nil {
		return Record{}, Pair{}, err
	}

	now = now.UTC()
	rec := Record{
		ID:               id,
		Username:         username,
		AccessHash:       s.hasher.Hash(access),
		AccessExpiresAt:  now.Add(s.cfg.AccessTTL),
		RefreshHash:      s.hasher.Hash(refresh),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTTL),
		CreatedAt:        now,
	}
	return rec, Pair{Access: access, Refresh: refresh}, nil
}

// unit runs fn in a transaction when the ledger supports one.
func (s *Service) unit(ctx context.Context, fn func(ctx context.Context, led Ledger, dir Directory) error) error {
	if s.tx != nil {
		return s.tx.InTx(ctx, fn)
	}
	return fn(ctx, s.ledger, s.dir)
}

func classify(err error) Outcome {
	switch {
	case errors.Is(err, ErrStoreMutation),
		errors.Is(err, errRecordGone),
		errors.Is(err, keylock.ErrTimeout),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return OutcomeAborted
	default:
		return OutcomeStoreFailure
	}
}

func lockKey(recordID string) string { return "token:" + recordID }
