package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quockhanh41/blog-microservice/internal/post/core/domain"
	"github.com/quockhanh41/blog-microservice/internal/post/core/ports"
)

// DTO tampon entre la base et le domaine
type sqlPost struct {
	ID        string
	AuthorID  string
	Username  string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(db *pgxpool.Pool) ports.PostRepository {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, post *domain.Post) error {
	q := `
		INSERT INTO posts (id, author_id, username, title, content, created_at, updated_at)
		VALUES (@id, @author_id, @username, @title, @content, @created_at, @updated_at)
	`

	args := pgx.NamedArgs{
		"id":         post.ID,
		"author_id":  post.AuthorID,
		"username":   post.Username,
		"title":      post.Title,
		"content":    post.Content,
		"created_at": post.CreatedAt,
		"updated_at": post.UpdatedAt,
	}

	if _, err := r.db.Exec(ctx, q, args); err != nil {
		return fmt.Errorf("db: save post: %w", err)
	}
	return nil
}

func (r *PostgresRepo) FindByID(ctx context.Context, postID string) (*domain.Post, error) {
	q := `SELECT id, author_id, username, title, content, created_at, updated_at FROM posts WHERE id = $1`

	var p sqlPost
	err := r.db.QueryRow(ctx, q, postID).Scan(
		&p.ID, &p.AuthorID, &p.Username, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPostNotFound
		}
		return nil, fmt.Errorf("db: find post: %w", err)
	}

	return p.toDomain(), nil
}

// ListByAuthors : batch fetch pour l'hydratation du feed, une seule requête
// quel que soit le nombre d'auteurs suivis.
func (r *PostgresRepo) ListByAuthors(ctx context.Context, authorIDs []string, limit int, sortAsc bool) ([]*domain.Post, error) {
	order := "DESC"
	if sortAsc {
		order = "ASC"
	}

	// L'id en second critère rend l'ordre déterministe à date égale
	q := fmt.Sprintf(`
		SELECT id, author_id, username, title, content, created_at, updated_at
		FROM posts
		WHERE author_id = ANY($1)
		ORDER BY created_at %s, id ASC
		LIMIT $2
	`, order)

	rows, err := r.db.Query(ctx, q, authorIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list posts: %w", err)
	}
	defer rows.Close()

	var posts []*domain.Post
	for rows.Next() {
		var p sqlPost
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Username, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db: scan post: %w", err)
		}
		posts = append(posts, p.toDomain())
	}
	return posts, rows.Err()
}

// --- COPIE DÉNORMALISÉE ---

// UpsertUserReference : remplacement en bloc, jamais de merge partiel.
func (r *PostgresRepo) UpsertUserReference(ctx context.Context, ref domain.UserReference) error {
	q := `
		INSERT INTO user_refs (user_id, username, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.Exec(ctx, q, ref.UserID, ref.Username, ref.UpdatedAt); err != nil {
		return fmt.Errorf("db: upsert user reference: %w", err)
	}
	return nil
}

func (r *PostgresRepo) GetUserReference(ctx context.Context, userID string) (*domain.UserReference, error) {
	q := `SELECT user_id, username, updated_at FROM user_refs WHERE user_id = $1`

	var ref domain.UserReference
	err := r.db.QueryRow(ctx, q, userID).Scan(&ref.UserID, &ref.Username, &ref.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAuthorNotFound
		}
		return nil, fmt.Errorf("db: get user reference: %w", err)
	}
	return &ref, nil
}

// RewriteAuthorUsername : réécriture bulk, un UPDATE pour tous les posts
// de l'auteur. Rejouable sans effet de bord (pure overwrite).
func (r *PostgresRepo) RewriteAuthorUsername(ctx context.Context, userID, username string) (int64, error) {
	q := `UPDATE posts SET username = $2, updated_at = NOW() WHERE author_id = $1`

	tag, err := r.db.Exec(ctx, q, userID, username)
	if err != nil {
		return 0, fmt.Errorf("db: rewrite username: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- HELPERS ---

func (p *sqlPost) toDomain() *domain.Post {
	return &domain.Post{
		ID:        p.ID,
		AuthorID:  p.AuthorID,
		Username:  p.Username,
		Title:     p.Title,
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
