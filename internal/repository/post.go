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

type PostRepository struct {
	pool *pgxpool.Pool
}

func NewPostRepository(pool *pgxpool.Pool) *PostRepository {
	return &PostRepository{pool: pool}
}

func (r *PostRepository) Create(ctx context.Context, p *model.Post) error {
	defer logger.DeferLogDuration("post.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO posts (id, author_id, caption, image_url, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.AuthorID, p.Caption, p.ImageURL, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postRepo.Create: %w", err)
	}
	return nil
}

func (r *PostRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	defer logger.DeferLogDuration("post.GetByID", time.Now())()
	p := &model.Post{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, author_id, caption, image_url, created_at FROM posts WHERE id = $1`, id,
	).Scan(&p.ID, &p.AuthorID, &p.Caption, &p.ImageURL, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postRepo.GetByID: %w", err)
	}
	return p, nil
}

// Like adds the user to the post's like set. Reports whether the like was
// newly added (false means the post was already liked).
func (r *PostRepository) Like(ctx context.Context, postID, userID string) (bool, error) {
	defer logger.DeferLogDuration("post.Like", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO post_likes (post_id, user_id, created_at)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		postID, userID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("postRepo.Like: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostRepository) Unlike(ctx context.Context, postID, userID string) error {
	defer logger.DeferLogDuration("post.Unlike", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`, postID, userID)
	if err != nil {
		return fmt.Errorf("postRepo.Unlike: %w", err)
	}
	return nil
}

func (r *PostRepository) HasLiked(ctx context.Context, postID, userID string) (bool, error) {
	defer logger.DeferLogDuration("post.HasLiked", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM post_likes WHERE post_id = $1 AND user_id = $2)`,
		postID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postRepo.HasLiked: %w", err)
	}
	return exists, nil
}
