package restore

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	apperrors "github.com/kbukum/dbfixture/errors"
	"github.com/kbukum/dbfixture/ledger"
	"github.com/kbukum/dbfixture/logger"
	"github.com/kbukum/dbfixture/session"
)

// Restorable is a sandbox over one session provider.
type Restorable struct {
	provider session.Provider
	log      *logger.Logger

	sub      *session.Subscription
	recorded *ledger.Ledger
}

// Option configures a Restorable.
type Option func(*Restorable)

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(r *Restorable) { r.log = log.WithComponent("restore") }
}

// New creates a sandbox for the session p resolves to.
func New(p session.Provider, opts ...Option) *Restorable {
	r := &Restorable{
		provider: p,
		log:      logger.WithComponent("restore"),
		recorded: ledger.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enter starts recording inserts and returns the session to work with.
func (r *Restorable) Enter() (*session.Session, error) {
	if r.sub != nil {
		return nil, apperrors.InvalidInput("restore", "already entered")
	}
	s, err := session.Resolve(r.provider)
	if err != nil {
		return nil, err
	}
	sub, err := s.Subscribe(session.FlushFunc(r.afterFlush))
	if err != nil {
		return nil, err
	}
	r.sub = sub
	return s, nil
}

// Recorded returns a copy of the keys recorded so far.
func (r *Restorable) Recorded() *ledger.Ledger { return r.recorded.Clone() }

func (r *Restorable) afterFlush(s *session.Session, fc *session.FlushContext) {
	for _, obj := range fc.New {
		if key, ok, err := s.IdentityKey(obj); err == nil && ok {
			r.recorded.AddKey(key)
		}
	}
}

// Exit deletes every recorded row that still exists. It stops observing
// even when cleanup fails.
func (r *Restorable) Exit() error {
	if r.sub == nil {
		return nil
	}
	defer func() {
		r.sub.Cancel()
		r.sub = nil
		r.recorded.Clear()
	}()

	s, err := session.Resolve(r.provider)
	if err != nil {
		return apperrors.CleanupFailed(err)
	}
	if err := r.cleanup(s); err != nil {
		r.log.Error("Restoring the store failed", logger.ErrorFields("cleanup", err))
		return apperrors.CleanupFailed(err)
	}
	return nil
}

func (r *Restorable) cleanup(s *session.Session) error {
	var errs []error
	if err := s.Close(); err != nil {
		errs = append(errs, err)
	}

	autoflush := s.Autoflush()
	s.SetAutoflush(false)
	defer s.SetAutoflush(autoflush)

	if s.Autocommit() {
		if err := s.Begin(); err != nil {
			return errors.Join(append(errs, err)...)
		}
	}

	deleted := 0
	classes := r.recorded.Classes()
	slices.Reverse(classes)
	for _, class := range classes {
		idents := r.recorded.Idents(class).Sorted()
		slices.Reverse(idents)
		for _, ident := range idents {
			obj, err := s.Get(class, ident)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if obj == nil {
				continue
			}
			if err := s.Delete(obj); err != nil {
				errs = append(errs, err)
				continue
			}
			deleted++
			r.log.Debug("Deleting recorded row", logger.Fields(
				logger.FieldModel, ledger.ClassName(class), logger.FieldIdent, ident.String(),
			))
		}
	}

	if err := s.Commit(); err != nil {
		errs = append(errs, fmt.Errorf("commit cleanup: %w", err))
	}
	if err := s.Close(); err != nil {
		errs = append(errs, err)
	}
	r.log.Debug("Store restored", logger.Fields(logger.FieldCount, deleted, "recorded", r.recorded.Len()))
	return errors.Join(errs...)
}

// Run calls fn inside a sandbox. Cleanup runs when fn returns an error or
// panics; a panic is re-raised afterwards and a cleanup error is joined
// with fn's.
func Run(p session.Provider, fn func(s *session.Session) error, opts ...Option) (err error) {
	r := New(p, opts...)
	s, err := r.Enter()
	if err != nil {
		return err
	}
	defer func() {
		rec := recover()
		if cerr := r.Exit(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		if rec != nil {
			panic(rec)
		}
	}()
	return fn(s)
}

// Track enters a sandbox that is cleaned up with the test.
func Track(t testing.TB, p session.Provider, opts ...Option) *session.Session {
	t.Helper()
	r := New(p, opts...)
	s, err := r.Enter()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	t.Cleanup(func() {
		if err := r.Exit(); err != nil {
			t.Errorf("restore: %v", err)
		}
	})
	return s
}
