package history

import (
	"testing"

	apperrors "github.com/kbukum/dbfixture/errors"
	"github.com/kbukum/dbfixture/ledger"
	"github.com/kbukum/dbfixture/logger"
	"github.com/kbukum/dbfixture/session"
)

// History tracks the changes made through one session.
type History struct {
	provider session.Provider
	log      *logger.Logger

	s   *session.Session
	sub *session.Subscription

	created *ledger.Ledger
	updated *ledger.Ledger
	deleted *ledger.Ledger

	// raw objects per transaction depth, not yet committed
	frames map[int]*frame
}

// Option configures a History.
type Option func(*History)

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(h *History) { h.log = log.WithComponent("history") }
}

// New creates a History over the session p resolves to. Nothing is
// observed until Enter.
func New(p session.Provider, opts ...Option) *History {
	h := &History{
		provider: p,
		log:      logger.WithComponent("history"),
		created:  ledger.New(),
		updated:  ledger.New(),
		deleted:  ledger.New(),
		frames:   make(map[int]*frame),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Enter resolves the provider and starts observing the session.
func (h *History) Enter() error {
	if h.sub != nil {
		return apperrors.InvalidInput("history", "already entered")
	}
	s, err := session.Resolve(h.provider)
	if err != nil {
		return err
	}
	sub, err := s.Subscribe(observer{h})
	if err != nil {
		return err
	}
	h.s = s
	h.sub = sub
	return nil
}

// Exit stops observing and forgets everything recorded.
func (h *History) Exit() {
	if h.sub == nil {
		return
	}
	h.sub.Cancel()
	h.sub = nil
	h.s = nil
	h.Clear()
}

// Session returns the observed session, nil outside Enter/Exit.
func (h *History) Session() *session.Session { return h.s }

// Track enters a History for the rest of the test.
func Track(t testing.TB, p session.Provider, opts ...Option) *History {
	t.Helper()
	h := New(p, opts...)
	if err := h.Enter(); err != nil {
		t.Fatalf("history: %v", err)
	}
	t.Cleanup(h.Exit)
	return h
}

// Run calls fn with an entered History and exits it afterwards.
func Run(p session.Provider, fn func(h *History) error, opts ...Option) error {
	h := New(p, opts...)
	if err := h.Enter(); err != nil {
		return err
	}
	defer h.Exit()
	return fn(h)
}

// Clear drops the ledgers and uncommitted frames. Observation continues.
func (h *History) Clear() {
	h.created.Clear()
	h.updated.Clear()
	h.deleted.Clear()
	h.frames = make(map[int]*frame)
}

// Last returns the keys of model's class recorded as kind.
func (h *History) Last(model any, kind Kind) (ledger.IdentSet, error) {
	l, err := h.ledger(kind)
	if err != nil {
		return nil, err
	}
	return l.Idents(ledger.ClassOf(model)), nil
}

// Idents returns a copy of the whole ledger for kind.
func (h *History) Idents(kind Kind) (*ledger.Ledger, error) {
	l, err := h.ledger(kind)
	if err != nil {
		return nil, err
	}
	return l.Clone(), nil
}

// LastCreated loads the recorded created entities of model's class. Keys
// whose row is gone are skipped.
func (h *History) LastCreated(model any) ([]any, error) {
	return h.resolve(model, h.created.Idents(ledger.ClassOf(model)))
}

// LastUpdated loads the recorded updated entities of model's class.
func (h *History) LastUpdated(model any) ([]any, error) {
	return h.resolve(model, h.updated.Idents(ledger.ClassOf(model)))
}

// LastDeleted returns the recorded deleted keys of model's class.
func (h *History) LastDeleted(model any) ledger.IdentSet {
	return h.deleted.Idents(ledger.ClassOf(model))
}

func (h *History) ledger(kind Kind) (*ledger.Ledger, error) {
	switch kind {
	case Created:
		return h.created, nil
	case Updated:
		return h.updated, nil
	case Deleted:
		return h.deleted, nil
	}
	return nil, apperrors.InvalidMode(kind.String())
}

func (h *History) resolve(model any, idents ledger.IdentSet) ([]any, error) {
	if len(idents) == 0 {
		return nil, nil
	}
	s, err := h.session()
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(idents))
	for _, ident := range idents.Sorted() {
		obj, err := s.Get(model, ident)
		if err != nil {
			return nil, err
		}
		if obj != nil {
			out = append(out, obj)
		}
	}
	return out, nil
}

// session returns the observed session, resolving the provider again
// outside Enter/Exit.
func (h *History) session() (*session.Session, error) {
	if h.s != nil {
		return h.s, nil
	}
	return session.Resolve(h.provider)
}
