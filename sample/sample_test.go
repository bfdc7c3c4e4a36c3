package sample_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbtest "github.com/kbukum/dbfixture/database/testutil"
	"github.com/kbukum/dbfixture/internal/testmodels"
	"github.com/kbukum/dbfixture/logger"
	"github.com/kbukum/dbfixture/restore"
	"github.com/kbukum/dbfixture/sample"
	"github.com/kbukum/dbfixture/session"
)

var quiet = sample.WithLogger(logger.NewNop())

func newSession(t *testing.T, opts ...session.Option) (*session.Session, *gorm.DB) {
	t.Helper()
	_, db := testmodels.Open(t)
	s := session.New(db, append([]session.Option{session.WithLogger(logger.NewNop())}, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s, db
}

func accounts(calls map[string]int) *sample.Definition {
	return sample.Define("accounts").
		Node("a", func(g *sample.Graph) any {
			calls["a"]++
			return &testmodels.User{Name: "john"}
		}).
		Node("b", func(g *sample.Graph) any {
			calls["b"]++
			return &testmodels.Role{
				User: sample.Ref[*testmodels.User](g, "a"),
				Smi:  &testmodels.Smi{Name: "daily"},
			}
		})
}

func TestCreateAll_BuildsEachNodeOnce(t *testing.T) {
	s, db := newSession(t)
	calls := map[string]int{}
	g := accounts(calls).New(s, quiet)

	role := sample.Ref[*testmodels.Role](g, "b")
	assert.True(t, g.Built("a"), "b pulls in a")
	assert.Equal(t, []string{"a", "b"}, g.Used())

	require.NoError(t, g.CreateAll())
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, calls)
	assert.Same(t, g.Get("a"), role.User)
	assert.Equal(t, role.User.ID, role.UserID)
	dbtest.AssertRowCount(t, db, "users", 1)
	dbtest.AssertRowCount(t, db, "roles", 1)
	dbtest.AssertRowCount(t, db, "smis", 1)
}

func TestGet_Memoized(t *testing.T) {
	s, _ := newSession(t)
	calls := map[string]int{}
	g := accounts(calls).New(s, quiet)

	first := g.Get("a")
	assert.Same(t, first, g.Get("a"))
	assert.Equal(t, 1, calls["a"])
	assert.True(t, s.Contains(first))
	assert.False(t, g.Built("b"))
	assert.Equal(t, []string{"a"}, g.Used())
}

func TestExtend_OverridesKeepOrder(t *testing.T) {
	s, _ := newSession(t)
	base := accounts(map[string]int{})
	child := base.Extend("admins").
		Node("a", func(*sample.Graph) any { return &testmodels.User{Name: "admin"} }).
		Node("c", func(*sample.Graph) any { return &testmodels.Category{Name: "ops"} })

	assert.Equal(t, []string{"a", "b", "c"}, child.Nodes())
	assert.Equal(t, []string{"a", "b"}, base.Nodes())

	g := child.New(s, quiet)
	role := sample.Ref[*testmodels.Role](g, "b")
	assert.Equal(t, "admin", role.User.Name)

	assert.Equal(t, "john", sample.Ref[*testmodels.User](base.New(s, quiet), "a").Name)
}

func TestImport_IndependentlyMemoized(t *testing.T) {
	s, _ := newSession(t)
	outlets := sample.Define("outlets").
		Node("smi", func(g *sample.Graph) any { return &testmodels.Smi{Name: g.Param("outlet").(string)} })

	def := sample.Define("mixed").
		Node("smi", func(*sample.Graph) any { return &testmodels.Smi{Name: "own"} }).
		Import(outlets, "smi", "outlet")

	g := def.New(s, sample.WithParam("outlet", "weekly"), quiet)
	own := sample.Ref[*testmodels.Smi](g, "smi")
	imported := sample.Ref[*testmodels.Smi](g, "outlet")
	assert.NotSame(t, own, imported)
	assert.Equal(t, "weekly", imported.Name)

	assert.Panics(t, func() { def.Import(outlets, "missing", "x") })
}

func TestSliceNodes(t *testing.T) {
	s, db := newSession(t)
	def := sample.Define("categories").
		Node("categories", func(*sample.Graph) any {
			return []*testmodels.Category{{Name: "news"}, {Name: "sport"}}
		}).
		Node("empty", func(*sample.Graph) any { return nil })

	g := def.New(s, quiet)
	require.NoError(t, g.CreateAll())
	assert.Len(t, sample.Ref[[]*testmodels.Category](g, "categories"), 2)
	assert.Nil(t, sample.Ref[*testmodels.User](g, "empty"))
	dbtest.AssertRowCount(t, db, "categories", 2)
}

func TestUsageErrors(t *testing.T) {
	s, _ := newSession(t)
	g := accounts(map[string]int{}).New(s, quiet)

	assert.Panics(t, func() { g.Get("missing") })
	assert.Panics(t, func() { sample.Ref[*testmodels.Smi](g, "a") })
	assert.Panics(t, func() { sample.Define("x").Node("n", nil) })
	assert.Panics(t, func() { sample.Define("x").New(nil, quiet).Session() })
}

func TestCycleDetection(t *testing.T) {
	s, _ := newSession(t)
	def := sample.Define("loop").
		Node("a", func(g *sample.Graph) any { return g.Get("b") }).
		Node("b", func(g *sample.Graph) any { return g.Get("a") })
	g := def.New(s, quiet)

	defer func() {
		r := recover()
		cycle, ok := r.(*sample.CycleError)
		require.True(t, ok, "panic value %v", r)
		assert.Equal(t, []string{"a", "b", "a"}, cycle.Path)
		assert.Equal(t, "sample: dependency cycle a -> b -> a", cycle.Error())
		assert.Empty(t, g.Used())
	}()
	g.Get("a")
}

func TestCreateAll_Autocommit(t *testing.T) {
	s, db := newSession(t, session.WithAutocommit())
	g := accounts(map[string]int{}).New(s, quiet)

	require.NoError(t, g.CreateAll())
	assert.False(t, s.InTransaction())
	dbtest.AssertRowCount(t, db, "roles", 1)
}

func TestCreateAll_InsideSandbox(t *testing.T) {
	s, db := newSession(t)

	err := restore.Run(s, func(s *session.Session) error {
		return accounts(map[string]int{}).New(s, quiet).CreateAll()
	}, restore.WithLogger(logger.NewNop()))

	require.NoError(t, err)
	dbtest.AssertTablesEmpty(t, db, "users", "roles", "smis")
}
