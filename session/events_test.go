package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "github.com/kbukum/dbfixture/errors"
	"github.com/kbukum/dbfixture/internal/testmodels"
	"github.com/kbukum/dbfixture/session"
)

// recorder observes every event.
type recorder struct {
	flushes   []*session.FlushContext
	commits   []bool
	rollbacks []int
}

func (r *recorder) AfterFlush(_ *session.Session, fc *session.FlushContext) {
	r.flushes = append(r.flushes, fc)
}

func (r *recorder) AfterCommit(s *session.Session) {
	r.commits = append(r.commits, s.Transaction().Nested())
}

func (r *recorder) AfterSoftRollback(_ *session.Session, prev *session.Transaction) {
	r.rollbacks = append(r.rollbacks, prev.Depth())
}

func TestEvents_Ordering(t *testing.T) {
	s, _ := newSession(t)
	rec := &recorder{}
	_, err := s.Subscribe(rec)
	require.NoError(t, err)

	require.NoError(t, s.Begin())
	first := &testmodels.User{Name: "first"}
	s.Add(first)
	require.NoError(t, s.BeginNested())

	second := &testmodels.User{Name: "second"}
	s.Add(second)
	first.Name = "renamed"
	require.NoError(t, s.Commit())

	require.NoError(t, s.BeginNested())
	s.Add(&testmodels.User{Name: "dropped"})
	require.NoError(t, s.Rollback())

	require.NoError(t, s.Delete(second))
	require.NoError(t, s.Commit())

	require.Len(t, rec.flushes, 3)
	assert.Equal(t, []any{first}, rec.flushes[0].New)
	assert.Equal(t, []any{second}, rec.flushes[1].New)
	assert.Equal(t, []any{first}, rec.flushes[1].Dirty)
	assert.Equal(t, []any{second}, rec.flushes[2].Deleted)
	assert.Equal(t, []bool{true, false}, rec.commits)
	assert.Equal(t, []int{2}, rec.rollbacks)
}

func TestSubscribe(t *testing.T) {
	s, _ := newSession(t)

	_, err := s.Subscribe(struct{}{})
	assert.Equal(t, apperrors.ErrCodeInvalidObserver, apperrors.Code(err))

	var flushes int
	sub, err := s.Subscribe(session.FlushFunc(func(*session.Session, *session.FlushContext) { flushes++ }))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Observers())

	s.Add(&testmodels.User{Name: "alice"})
	require.NoError(t, s.Flush())
	assert.Equal(t, 1, flushes)

	sub.Cancel()
	sub.Cancel()
	assert.Zero(t, s.Observers())

	s.Add(&testmodels.User{Name: "bob"})
	require.NoError(t, s.Flush())
	assert.Equal(t, 1, flushes)
}

func TestSubscribe_CancelDuringDelivery(t *testing.T) {
	s, _ := newSession(t)

	var calls int
	var sub *session.Subscription
	sub, err := s.Subscribe(session.FlushFunc(func(*session.Session, *session.FlushContext) {
		calls++
		sub.Cancel()
	}))
	require.NoError(t, err)
	_, err = s.Subscribe(session.FlushFunc(func(*session.Session, *session.FlushContext) { calls++ }))
	require.NoError(t, err)

	s.Add(&testmodels.User{Name: "alice"})
	require.NoError(t, s.Flush())
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, s.Observers())
}

func TestTracing(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	s, _ := newSession(t, session.WithTracer(tp.Tracer("test")))

	s.Add(&testmodels.User{Name: "alice"})
	require.NoError(t, s.Commit())
	require.NoError(t, s.Begin())
	require.NoError(t, s.Rollback())

	ended := spans.Ended()
	require.Len(t, ended, 3)
	assert.Equal(t, "session.flush", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.Int("session.new", 1))
	assert.Equal(t, "session.commit", ended[1].Name())
	assert.Contains(t, ended[1].Attributes(), attribute.Bool("session.nested", false))
	assert.Equal(t, "session.rollback", ended[2].Name())
}

func TestRegistry(t *testing.T) {
	_, db := testmodels.Open(t)

	created := 0
	reg := session.NewRegistry(func() *session.Session {
		created++
		return session.New(db)
	})
	assert.False(t, reg.Has())

	s := reg.Current()
	assert.Same(t, s, reg.Current())
	assert.Equal(t, 1, created)

	resolved, err := session.Resolve(reg)
	require.NoError(t, err)
	assert.Same(t, s, resolved)

	s.Add(&testmodels.User{Name: "alice"})
	require.NoError(t, s.Flush())
	require.NoError(t, reg.Remove())
	assert.False(t, reg.Has())
	assert.False(t, s.InTransaction())
	require.NoError(t, reg.Remove())

	assert.NotSame(t, s, reg.Current())
	assert.Equal(t, 2, created)
	require.NoError(t, reg.Remove())
}

func TestResolve(t *testing.T) {
	_, err := session.Resolve(nil)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))

	_, err = session.Resolve(session.NewRegistry(func() *session.Session { return nil }))
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))

	s := session.New(nil)
	got, err := session.Resolve(s)
	require.NoError(t, err)
	assert.Same(t, s, got)
}
