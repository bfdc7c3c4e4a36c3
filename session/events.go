package session

import (
	"slices"

	apperrors "github.com/kbukum/dbfixture/errors"
)

// FlushContext carries the object sets a flush wrote, captured before the
// flush changed any state.
type FlushContext struct {
	New     []any
	Dirty   []any
	Deleted []any
}

// FlushObserver is notified after every successful flush.
type FlushObserver interface {
	AfterFlush(s *Session, fc *FlushContext)
}

// CommitObserver is notified after a transaction level commits.
type CommitObserver interface {
	AfterCommit(s *Session)
}

// RollbackObserver is notified after a transaction level rolls back.
type RollbackObserver interface {
	AfterSoftRollback(s *Session, previous *Transaction)
}

// FlushFunc adapts a function to FlushObserver.
type FlushFunc func(s *Session, fc *FlushContext)

func (f FlushFunc) AfterFlush(s *Session, fc *FlushContext) { f(s, fc) }

// CommitFunc adapts a function to CommitObserver.
type CommitFunc func(s *Session)

func (f CommitFunc) AfterCommit(s *Session) { f(s) }

// RollbackFunc adapts a function to RollbackObserver.
type RollbackFunc func(s *Session, previous *Transaction)

func (f RollbackFunc) AfterSoftRollback(s *Session, previous *Transaction) { f(s, previous) }

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	hub      *hub
	flush    FlushObserver
	commit   CommitObserver
	rollback RollbackObserver
	canceled bool
}

// Cancel stops delivery. Calling it more than once is a no-op.
func (sub *Subscription) Cancel() {
	if sub == nil || sub.canceled {
		return
	}
	sub.canceled = true
	sub.hub.remove(sub)
}

type hub struct {
	subs []*Subscription
}

func (h *hub) add(sub *Subscription) { h.subs = append(h.subs, sub) }

func (h *hub) remove(sub *Subscription) {
	h.subs = slices.DeleteFunc(h.subs, func(s *Subscription) bool { return s == sub })
}

// snapshot lets observers cancel themselves while being notified.
func (h *hub) snapshot() []*Subscription { return slices.Clone(h.subs) }

func (h *hub) afterFlush(s *Session, fc *FlushContext) {
	for _, sub := range h.snapshot() {
		if sub.flush != nil && !sub.canceled {
			sub.flush.AfterFlush(s, fc)
		}
	}
}

func (h *hub) afterCommit(s *Session) {
	for _, sub := range h.snapshot() {
		if sub.commit != nil && !sub.canceled {
			sub.commit.AfterCommit(s)
		}
	}
}

func (h *hub) afterSoftRollback(s *Session, previous *Transaction) {
	for _, sub := range h.snapshot() {
		if sub.rollback != nil && !sub.canceled {
			sub.rollback.AfterSoftRollback(s, previous)
		}
	}
}

// Subscribe registers observer for every event interface it implements.
// An observer implementing none of FlushObserver, CommitObserver and
// RollbackObserver is rejected with ErrCodeInvalidObserver.
func (s *Session) Subscribe(observer any) (*Subscription, error) {
	sub := &Subscription{hub: &s.events}
	sub.flush, _ = observer.(FlushObserver)
	sub.commit, _ = observer.(CommitObserver)
	sub.rollback, _ = observer.(RollbackObserver)
	if sub.flush == nil && sub.commit == nil && sub.rollback == nil {
		return nil, apperrors.InvalidObserver(observer)
	}
	s.events.add(sub)
	return sub, nil
}

// Observers returns the number of live subscriptions.
func (s *Session) Observers() int { return len(s.events.subs) }
