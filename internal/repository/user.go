package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sociogram/internal/logger"
	"github.com/sociogram/internal/model"
)

var ErrNotFound = errors.New("not found")

const userCols = `id, username, email, image_url, bio, created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// scanUser scans a row into model.User (column order matches userCols).
func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Username, &u.Email, &u.ImageURL, &u.Bio, &u.CreatedAt)
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, image_url, bio, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.Email, u.ImageURL, u.Bio, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByUsername", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByUsername: %w", err)
	}
	return u, nil
}

// GetByIdentifier resolves a user by id or by username. The message history
// endpoint accepts either, matching the original peer-identifier contract.
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByIdentifier", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id = $1 OR username = $1`, identifier)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByIdentifier: %w", err)
	}
	return u, nil
}

// Search returns users whose username starts with the query, excluding the
// caller.
func (r *UserRepository) Search(ctx context.Context, userID, query string, limit int) ([]model.UserSummary, error) {
	defer logger.DeferLogDuration("user.Search", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, username, image_url FROM users
		 WHERE username ILIKE $2 || '%' AND id != $1
		 ORDER BY username
		 LIMIT $3`, userID, query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.Search query: %w", err)
	}
	defer rows.Close()

	users := make([]model.UserSummary, 0, limit)
	for rows.Next() {
		var u model.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.ImageURL); err != nil {
			return nil, fmt.Errorf("userRepo.Search scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.Search rows: %w", err)
	}
	return users, nil
}

// ChatCandidates returns users connected to userID through the follow graph
// (either direction) who do not yet share a chat with them. Used by the chat
// list to offer new-conversation targets.
func (r *UserRepository) ChatCandidates(ctx context.Context, userID string, limit int) ([]model.UserSummary, error) {
	defer logger.DeferLogDuration("user.ChatCandidates", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.username, u.image_url
		 FROM users u
		 WHERE u.id != $1
		   AND EXISTS (
		     SELECT 1 FROM follows f
		     WHERE (f.follower_id = $1 AND f.followee_id = u.id)
		        OR (f.follower_id = u.id AND f.followee_id = $1)
		   )
		   AND NOT EXISTS (
		     SELECT 1 FROM chats c
		     WHERE (c.member_low = LEAST($1, u.id) AND c.member_high = GREATEST($1, u.id))
		   )
		 ORDER BY u.username
		 LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.ChatCandidates query: %w", err)
	}
	defer rows.Close()

	users := make([]model.UserSummary, 0, 16)
	for rows.Next() {
		var u model.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.ImageURL); err != nil {
			return nil, fmt.Errorf("userRepo.ChatCandidates scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.ChatCandidates rows: %w", err)
	}
	return users, nil
}
