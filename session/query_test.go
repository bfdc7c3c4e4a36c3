package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kbukum/dbfixture/errors"
	"github.com/kbukum/dbfixture/internal/testmodels"
	"github.com/kbukum/dbfixture/ledger"
)

func TestGet(t *testing.T) {
	s, _ := newSession(t)

	user := &testmodels.User{Name: "alice"}
	s.Add(user)
	require.NoError(t, s.Commit())

	got, err := s.Get(testmodels.User{}, user.ID)
	require.NoError(t, err)
	assert.Same(t, user, got, "held entities come from the identity map")

	got, err = s.Get(&testmodels.User{}, ledger.NewIdent(int(user.ID)))
	require.NoError(t, err)
	assert.Same(t, user, got)

	s.Expunge(user)
	got, err = s.Get(testmodels.User{}, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotSame(t, user, got)
	assert.Equal(t, "alice", got.(*testmodels.User).Name)
	assert.True(t, s.Contains(got))

	got, err = s.Get(testmodels.User{}, 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGet_InvalidInput(t *testing.T) {
	s, _ := newSession(t)

	tests := []struct {
		name  string
		model any
		ident []any
	}{
		{"no ident", testmodels.User{}, nil},
		{"too many values", testmodels.User{}, []any{1, 2}},
		{"not a model", 42, []any{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Get(tt.model, tt.ident...)
			assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))
		})
	}
}

func TestGet_Autoflush(t *testing.T) {
	s, _ := newSession(t)

	user := &testmodels.User{Name: "alice"}
	s.Add(user)

	n, err := s.Count(testmodels.User{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, s.InTransaction())
	assert.Empty(t, s.New())

	s.SetAutoflush(false)
	s.Add(&testmodels.User{Name: "bob"})
	n, err = s.Count(testmodels.User{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, s.New(), 1)
}

func TestFind(t *testing.T) {
	s, _ := newSession(t)

	alice := &testmodels.User{Name: "alice"}
	bob := &testmodels.User{Name: "bob"}
	s.AddAll(alice, bob)
	require.NoError(t, s.Commit())
	s.Expunge(bob)

	var users []*testmodels.User
	require.NoError(t, s.Find(&users))
	require.Len(t, users, 2)
	assert.Same(t, alice, users[0])
	assert.NotSame(t, bob, users[1])
	assert.True(t, s.Contains(users[1]))

	require.NoError(t, s.Delete(alice))
	s.SetAutoflush(false)
	users = nil
	require.NoError(t, s.Find(&users))
	assert.Len(t, users, 1, "entities marked for deletion are skipped")

	var values []testmodels.User
	err := s.Find(&values)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))
}
