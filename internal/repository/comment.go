package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sociogram/internal/logger"
	"github.com/sociogram/internal/model"
)

type CommentRepository struct {
	pool *pgxpool.Pool
}

func NewCommentRepository(pool *pgxpool.Pool) *CommentRepository {
	return &CommentRepository{pool: pool}
}

func (r *CommentRepository) Create(ctx context.Context, c *model.Comment) error {
	defer logger.DeferLogDuration("comment.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO comments (id, post_id, author_id, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.PostID, c.AuthorID, c.Body, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("commentRepo.Create: %w", err)
	}
	return nil
}

func (r *CommentRepository) ListByPost(ctx context.Context, postID string, limit int) ([]model.Comment, error) {
	defer logger.DeferLogDuration("comment.ListByPost", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.post_id, c.author_id, c.body, c.created_at,
		        u.id, u.username, u.image_url
		 FROM comments c
		 JOIN users u ON u.id = c.author_id
		 WHERE c.post_id = $1
		 ORDER BY c.created_at DESC
		 LIMIT $2`, postID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("commentRepo.ListByPost query: %w", err)
	}
	defer rows.Close()

	comments := make([]model.Comment, 0, limit)
	for rows.Next() {
		c := model.Comment{Author: &model.UserSummary{}}
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Body, &c.CreatedAt,
			&c.Author.ID, &c.Author.Username, &c.Author.ImageURL); err != nil {
			return nil, fmt.Errorf("commentRepo.ListByPost scan: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("commentRepo.ListByPost rows: %w", err)
	}
	return comments, nil
}
