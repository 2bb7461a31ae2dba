package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sociogram/internal/logger"
)

type FollowRepository struct {
	pool *pgxpool.Pool
}

func NewFollowRepository(pool *pgxpool.Pool) *FollowRepository {
	return &FollowRepository{pool: pool}
}

// Follow adds a follow edge. Reports whether the edge was newly created
// (false means it already existed).
func (r *FollowRepository) Follow(ctx context.Context, followerID, followeeID string) (bool, error) {
	defer logger.DeferLogDuration("follow.Follow", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO follows (follower_id, followee_id, created_at)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		followerID, followeeID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("followRepo.Follow: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *FollowRepository) Unfollow(ctx context.Context, followerID, followeeID string) error {
	defer logger.DeferLogDuration("follow.Unfollow", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`,
		followerID, followeeID,
	)
	if err != nil {
		return fmt.Errorf("followRepo.Unfollow: %w", err)
	}
	return nil
}

func (r *FollowRepository) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	defer logger.DeferLogDuration("follow.IsFollowing", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM follows WHERE follower_id = $1 AND followee_id = $2)`,
		followerID, followeeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("followRepo.IsFollowing: %w", err)
	}
	return exists, nil
}
