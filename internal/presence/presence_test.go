package presence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sociogram/internal/presence"
)

type fakeConn struct {
	events []string
}

func (f *fakeConn) Send(event string, payload any) bool {
	f.events = append(f.events, event)
	return true
}

func TestRegisterAndLookup(t *testing.T) {
	table := presence.NewTable()
	conn := &fakeConn{}

	prev := table.Register("u1", conn)
	assert.Nil(t, prev)

	got, ok := table.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, conn, got.(*fakeConn))

	_, ok = table.Lookup("u2")
	assert.False(t, ok)
}

func TestRegisterLastWins(t *testing.T) {
	table := presence.NewTable()
	first := &fakeConn{}
	second := &fakeConn{}

	require.Nil(t, table.Register("u1", first))
	prev := table.Register("u1", second)
	assert.Same(t, first, prev.(*fakeConn))

	got, ok := table.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, second, got.(*fakeConn))
	assert.Equal(t, 1, table.Len())
}

func TestDeregisterIgnoresStaleConn(t *testing.T) {
	table := presence.NewTable()
	first := &fakeConn{}
	second := &fakeConn{}

	table.Register("u1", first)
	table.Register("u1", second)

	// The replaced connection's deferred cleanup must not evict the
	// successor.
	assert.False(t, table.Deregister("u1", first))
	got, ok := table.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, second, got.(*fakeConn))

	assert.True(t, table.Deregister("u1", second))
	_, ok = table.Lookup("u1")
	assert.False(t, ok)
}

func TestActiveUserIDsSorted(t *testing.T) {
	table := presence.NewTable()
	table.Register("charlie", &fakeConn{})
	table.Register("alice", &fakeConn{})
	table.Register("bob", &fakeConn{})

	assert.Equal(t, []string{"alice", "bob", "charlie"}, table.ActiveUserIDs())
	assert.Equal(t, 3, table.Len())

	table.Deregister("bob", nil)
	// nil does not match the stored conn, so bob stays online.
	assert.Equal(t, 3, table.Len())
}
