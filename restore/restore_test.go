package restore_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbtest "github.com/kbukum/dbfixture/database/testutil"
	apperrors "github.com/kbukum/dbfixture/errors"
	"github.com/kbukum/dbfixture/internal/testmodels"
	"github.com/kbukum/dbfixture/logger"
	"github.com/kbukum/dbfixture/restore"
	"github.com/kbukum/dbfixture/session"
)

var quiet = restore.WithLogger(logger.NewNop())

func newSession(t *testing.T, db *gorm.DB, opts ...session.Option) *session.Session {
	t.Helper()
	s := session.New(db, append([]session.Option{session.WithLogger(logger.NewNop())}, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// buildGraph adds one user and one smi with three roles between them.
func buildGraph(s *session.Session) {
	user := &testmodels.User{Name: "john"}
	smi := &testmodels.Smi{Name: "daily"}
	for range 3 {
		user.Roles = append(user.Roles, &testmodels.Role{Smi: smi})
	}
	s.Add(user)
}

func TestRun_UndoesCommittedWorkAndReturnsError(t *testing.T) {
	_, db := testmodels.Open(t)
	s := newSession(t, db)
	boom := errors.New("boom")

	err := restore.Run(s, func(s *session.Session) error {
		buildGraph(s)
		if err := s.Commit(); err != nil {
			return err
		}
		dbtest.AssertRowCount(t, db, "roles", 3)
		return boom
	}, quiet)

	assert.ErrorIs(t, err, boom)
	dbtest.AssertTablesEmpty(t, db, "users", "smis", "roles")
	assert.Zero(t, s.Observers())
}

func TestRun_KeepsRowsFromBefore(t *testing.T) {
	_, db := testmodels.Open(t)
	dbtest.MustLoadFixture(t, db, "users", []map[string]interface{}{{"name": "existing"}})
	s := newSession(t, db)

	err := restore.Run(s, func(s *session.Session) error {
		s.AddAll(&testmodels.User{Name: "a"}, &testmodels.User{Name: "b"})
		return s.Commit()
	}, quiet)

	require.NoError(t, err)
	dbtest.AssertRowCount(t, db, "users", 1)
}

func TestRun_ManyToMany(t *testing.T) {
	_, db := testmodels.Open(t)
	s := newSession(t, db)

	err := restore.Run(s, func(s *session.Session) error {
		s.Add(&testmodels.Role{
			User:       &testmodels.User{Name: "john"},
			Smi:        &testmodels.Smi{Name: "daily"},
			Categories: []*testmodels.Category{{Name: "news"}, {Name: "sport"}},
		})
		if err := s.Commit(); err != nil {
			return err
		}
		s.Add(&testmodels.Category{Name: "culture"})
		return s.Commit()
	}, quiet)

	require.NoError(t, err)
	dbtest.AssertTablesEmpty(t, db, testmodels.Tables...)
}

func TestRun_PanicStillCleansUp(t *testing.T) {
	_, db := testmodels.Open(t)
	s := newSession(t, db)

	assert.PanicsWithValue(t, "boom", func() {
		_ = restore.Run(s, func(s *session.Session) error {
			s.Add(&testmodels.User{Name: "john"})
			if err := s.Commit(); err != nil {
				return err
			}
			panic("boom")
		}, quiet)
	})
	dbtest.AssertTableEmpty(t, db, "users")
}

func TestRun_UncommittedWorkIsRolledBack(t *testing.T) {
	_, db := testmodels.Open(t)
	s := newSession(t, db)

	err := restore.Run(s, func(s *session.Session) error {
		s.Add(&testmodels.User{Name: "flushed"})
		if err := s.Flush(); err != nil {
			return err
		}
		s.Add(&testmodels.User{Name: "pending"})
		return nil
	}, quiet)

	require.NoError(t, err)
	assert.False(t, s.InTransaction())
	assert.Empty(t, s.New())
	dbtest.AssertTableEmpty(t, db, "users")
}

func TestRun_AutocommitSession(t *testing.T) {
	_, db := testmodels.Open(t)
	s := newSession(t, db, session.WithAutocommit())

	err := restore.Run(s, func(s *session.Session) error {
		buildGraph(s)
		return s.Flush()
	}, quiet)

	require.NoError(t, err)
	assert.True(t, s.Autoflush(), "autoflush restored")
	dbtest.AssertTablesEmpty(t, db, "users", "smis", "roles")
}

func TestRun_RowsDeletedInsideBlock(t *testing.T) {
	_, db := testmodels.Open(t)
	s := newSession(t, db)

	err := restore.Run(s, func(s *session.Session) error {
		user := &testmodels.User{Name: "john"}
		s.Add(user)
		if err := s.Commit(); err != nil {
			return err
		}
		if err := s.Delete(user); err != nil {
			return err
		}
		return s.Commit()
	}, quiet)

	require.NoError(t, err)
	dbtest.AssertTableEmpty(t, db, "users")
}

func TestTrack_ScopedRegistry(t *testing.T) {
	_, db := testmodels.Open(t)
	reg := session.NewRegistry(func() *session.Session {
		return session.New(db, session.WithLogger(logger.NewNop()))
	})
	t.Cleanup(func() { _ = reg.Remove() })

	t.Run("block", func(t *testing.T) {
		s := restore.Track(t, reg, quiet)
		assert.Same(t, reg.Current(), s)

		reg.Current().Add(&testmodels.User{Name: "john"})
		require.NoError(t, reg.Current().Commit())

		// a fresh scoped session is what gets cleaned up
		require.NoError(t, reg.Remove())
		dbtest.AssertRowCount(t, db, "users", 1)
	})
	dbtest.AssertTableEmpty(t, db, "users")
}

func TestEnterExit(t *testing.T) {
	_, db := testmodels.Open(t)
	s := newSession(t, db)

	r := restore.New(s, quiet)
	got, err := r.Enter()
	require.NoError(t, err)
	assert.Same(t, s, got)
	_, err = r.Enter()
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))

	user := &testmodels.User{Name: "john"}
	s.Add(user)
	require.NoError(t, s.Commit())
	assert.Equal(t, 1, r.Recorded().Len())

	require.NoError(t, r.Exit())
	require.NoError(t, r.Exit())
	assert.Zero(t, r.Recorded().Len())
	assert.Zero(t, s.Observers())
	dbtest.AssertTableEmpty(t, db, "users")

	_, err = restore.New(nil).Enter()
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))
}

func TestRun_CleanupErrorIsJoined(t *testing.T) {
	_, db := testmodels.Open(t)
	s := newSession(t, db)
	boom := errors.New("boom")
	refused := errors.New("delete refused")

	err := restore.Run(s, func(s *session.Session) error {
		s.Add(&testmodels.User{Name: "john"})
		if err := s.Commit(); err != nil {
			return err
		}
		require.NoError(t, db.Callback().Delete().Before("gorm:delete").Register("test:refuse", func(tx *gorm.DB) {
			_ = tx.AddError(refused)
		}))
		return boom
	}, quiet)

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, apperrors.ErrCodeCleanupFailed, apperrors.Code(err))
	assert.Zero(t, s.Observers())
	dbtest.AssertRowCount(t, db, "users", 1)
}
