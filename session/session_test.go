package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbtest "github.com/kbukum/dbfixture/database/testutil"
	apperrors "github.com/kbukum/dbfixture/errors"
	"github.com/kbukum/dbfixture/internal/testmodels"
	"github.com/kbukum/dbfixture/ledger"
	"github.com/kbukum/dbfixture/logger"
	"github.com/kbukum/dbfixture/session"
)

func newSession(t *testing.T, opts ...session.Option) (*session.Session, *gorm.DB) {
	t.Helper()
	_, db := testmodels.Open(t)
	s := session.New(db, append([]session.Option{session.WithLogger(logger.NewNop())}, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s, db
}

func TestAdd_CascadesThroughAssociations(t *testing.T) {
	s, db := newSession(t)

	smi := &testmodels.Smi{Name: "daily"}
	news := &testmodels.Category{Name: "news"}
	sport := &testmodels.Category{Name: "sport"}
	role := &testmodels.Role{Smi: smi, Categories: []*testmodels.Category{news, sport}}
	user := &testmodels.User{Name: "alice", Roles: []*testmodels.Role{role}}

	s.Add(user)
	assert.Len(t, s.New(), 5)
	assert.True(t, s.Contains(news))

	require.NoError(t, s.Commit())
	assert.Empty(t, s.New())
	assert.Equal(t, user.ID, role.UserID)
	assert.Equal(t, smi.ID, role.SmiID)
	dbtest.AssertRowCount(t, db, "users", 1)
	dbtest.AssertRowCount(t, db, "roles", 1)
	dbtest.AssertRowCount(t, db, "roles_category", 2)
}

func TestAdd_PanicsOnNonPointer(t *testing.T) {
	s, _ := newSession(t)
	assert.Panics(t, func() { s.Add(testmodels.User{Name: "alice"}) })
}

func TestAdd_PanicValueIsAppError(t *testing.T) {
	s, _ := newSession(t)
	defer func() {
		r := recover()
		err, ok := r.(error)
		require.True(t, ok, "panic value %v", r)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))
	}()
	s.Add((*testmodels.User)(nil))
}

// Parsing User registers its Roles relation inside Role's schema as well;
// flushing a role must only follow Role's own fields.
func TestFlush_BelongsToAfterOwnerSchemaParsed(t *testing.T) {
	s, db := newSession(t)

	s.Add(&testmodels.User{Name: "first"})
	require.NoError(t, s.Commit())

	user := &testmodels.User{Name: "john"}
	smi := &testmodels.Smi{Name: "daily"}
	role := &testmodels.Role{User: user, Smi: smi}
	s.Add(role)
	assert.Len(t, s.New(), 3)
	require.NoError(t, s.Commit())

	assert.NotZero(t, role.ID)
	assert.Equal(t, user.ID, role.UserID)
	assert.Equal(t, smi.ID, role.SmiID)
	dbtest.AssertRowCount(t, db, "users", 2)
	dbtest.AssertRowCount(t, db, "smis", 1)
	dbtest.AssertRowCount(t, db, "roles", 1)
}

func TestFlush_RoleBeforeUserSchemaParsed(t *testing.T) {
	s, db := newSession(t)

	role := &testmodels.Role{User: &testmodels.User{Name: "john"}, Smi: &testmodels.Smi{Name: "daily"}}
	s.Add(role)
	require.NoError(t, s.Commit())

	user := &testmodels.User{Name: "jane", Roles: []*testmodels.Role{{Smi: &testmodels.Smi{Name: "weekly"}}}}
	s.Add(user)
	require.NoError(t, s.Commit())

	assert.Equal(t, user.ID, user.Roles[0].UserID)
	dbtest.AssertRowCount(t, db, "roles", 2)
	dbtest.AssertRowCount(t, db, "smis", 2)
}

func TestFlush_UpdatesDirtyColumns(t *testing.T) {
	s, db := newSession(t)

	user := &testmodels.User{Name: "alice"}
	s.Add(user)
	require.NoError(t, s.Commit())
	assert.Empty(t, s.Dirty())

	user.Name = "alicia"
	assert.Equal(t, []any{user}, s.Dirty())
	require.NoError(t, s.Commit())
	assert.Empty(t, s.Dirty())

	var name string
	require.NoError(t, db.Table("users").Select("name").Where("id = ?", user.ID).Scan(&name).Error)
	assert.Equal(t, "alicia", name)
}

func TestFlush_SyncsManyToManyLinks(t *testing.T) {
	s, db := newSession(t)

	news := &testmodels.Category{Name: "news"}
	sport := &testmodels.Category{Name: "sport"}
	role := &testmodels.Role{
		User:       &testmodels.User{Name: "alice"},
		Smi:        &testmodels.Smi{Name: "daily"},
		Categories: []*testmodels.Category{news, sport},
	}
	s.Add(role)
	require.NoError(t, s.Commit())
	dbtest.AssertRowCount(t, db, "roles_category", 2)

	role.Categories = role.Categories[:1]
	assert.Equal(t, []any{role}, s.Dirty())
	require.NoError(t, s.Commit())
	dbtest.AssertRowCount(t, db, "roles_category", 1)

	role.Categories = append(role.Categories, sport, &testmodels.Category{Name: "culture"})
	require.NoError(t, s.Commit())
	dbtest.AssertRowCount(t, db, "roles_category", 3)
	dbtest.AssertRowCount(t, db, "categories", 3)
}

func TestDelete(t *testing.T) {
	s, db := newSession(t)

	user := &testmodels.User{Name: "alice"}
	err := s.Delete(user)
	assert.Equal(t, apperrors.ErrCodeNotPersistent, apperrors.Code(err))

	s.Add(user)
	require.NoError(t, s.Commit())
	require.NoError(t, s.Delete(user))
	require.NoError(t, s.Delete(user))
	assert.Equal(t, []any{user}, s.Deleted())

	got, err := s.Get(testmodels.User{}, user.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Commit())
	assert.False(t, s.Contains(user))
	assert.NotZero(t, user.ID, "deleted entities keep their key")
	dbtest.AssertTableEmpty(t, db, "users")
}

func TestDelete_ChildrenBeforeParents(t *testing.T) {
	s, db := newSession(t)

	user := &testmodels.User{Name: "alice"}
	smi := &testmodels.Smi{Name: "daily"}
	role := &testmodels.Role{User: user, Smi: smi}
	s.Add(role)
	require.NoError(t, s.Commit())

	require.NoError(t, s.Delete(user))
	require.NoError(t, s.Delete(smi))
	require.NoError(t, s.Delete(role))
	require.NoError(t, s.Commit())
	dbtest.AssertTablesEmpty(t, db, "users", "smis", "roles")
}

func TestExpunge(t *testing.T) {
	s, _ := newSession(t)

	user := &testmodels.User{Name: "alice"}
	s.Add(user)
	s.Expunge(user)
	assert.False(t, s.Contains(user))
	assert.Empty(t, s.New())

	s.AddAll(user, &testmodels.User{Name: "bob"})
	s.ExpungeAll()
	assert.Empty(t, s.New())
}

func TestIdentityKey(t *testing.T) {
	s, _ := newSession(t)

	user := &testmodels.User{Name: "alice"}
	s.Add(user)
	_, ok, err := s.IdentityKey(user)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Flush())
	key, ok, err := s.IdentityKey(user)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ledger.ClassOf(user), key.Class)
	assert.True(t, key.Ident.Equal(ledger.NewIdent(user.ID)))

	_, _, err = s.IdentityKey(42)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))
}

func TestFlush_ErrorRollsBack(t *testing.T) {
	s, _ := newSession(t)

	var rollbacks int
	_, err := s.Subscribe(session.RollbackFunc(func(*session.Session, *session.Transaction) { rollbacks++ }))
	require.NoError(t, err)

	s.AddAll(&testmodels.Category{Name: "news"}, &testmodels.Category{Name: "news"})
	err = s.Flush()
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	assert.False(t, s.InTransaction())
	assert.Equal(t, 1, rollbacks)
	assert.Empty(t, s.New())

	n, err := s.Count(testmodels.Category{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConfig_Options(t *testing.T) {
	off := false
	s := session.New(nil, session.Config{Autocommit: true, Autoflush: &off}.Options()...)
	assert.True(t, s.Autocommit())
	assert.False(t, s.Autoflush())

	s = session.New(nil, session.Config{}.Options()...)
	assert.False(t, s.Autocommit())
	assert.True(t, s.Autoflush())

	s.SetAutoflush(false)
	assert.False(t, s.Autoflush())
}
