// Package presence tracks which users are currently reachable over a live
// connection. The table is process-local and rebuilt from scratch on restart;
// it owns no persistence.
package presence

import (
	"sort"
	"sync"
)

// Conn is a live client connection able to receive pushed events. Send must
// not block; it reports whether the event was accepted for delivery.
type Conn interface {
	Send(event string, payload any) bool
}

// Table maps user ids to their single live connection. One slot per user:
// a newer connection for the same user replaces the older one
// (last-connection-wins); multi-device fan-out is deliberately unsupported.
type Table struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewTable() *Table {
	return &Table{conns: make(map[string]Conn)}
}

// Register stores conn as the user's connection, returning the connection it
// displaced (nil if the user was offline).
func (t *Table) Register(userID string, conn Conn) (prev Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev = t.conns[userID]
	t.conns[userID] = conn
	return prev
}

// Deregister removes the user's entry, but only if it still is conn: the
// disconnect of a replaced connection must not evict its successor.
// Returns whether an entry was removed. Absent entries are a no-op;
// disconnect races are expected and tolerated.
func (t *Table) Deregister(userID string, conn Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.conns[userID]; ok && cur == conn {
		delete(t.conns, userID)
		return true
	}
	return false
}

// Lookup returns the user's live connection. Absence means "not currently
// reachable", not an error.
func (t *Table) Lookup(userID string) (Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[userID]
	return c, ok
}

// ActiveUserIDs returns the ids of all currently connected users, sorted for
// stable roster broadcasts.
func (t *Table) ActiveUserIDs() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.conns))
	for id := range t.conns {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of connected users.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
