package storage

import "context"

// SessionStore maps session tokens to user ids. The tokens are issued by the
// external identity service; this process only resolves them.
// Implementations: redis.Client, memory.Client (for -dev without Redis).
type SessionStore interface {
	SetSession(ctx context.Context, token, userID string) error
	GetSession(ctx context.Context, token string) (userID string, err error)
	DeleteSession(ctx context.Context, token string) error
	Close() error
}
