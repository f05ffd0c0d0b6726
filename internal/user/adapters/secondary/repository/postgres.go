package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quockhanh41/blog-microservice/internal/user/core/domain"
	"github.com/quockhanh41/blog-microservice/internal/user/core/ports"
)

// DTO tampon entre la base et le domaine
type sqlUser struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(pool *pgxpool.Pool) ports.UserRepository {
	return &PostgresRepo{db: pool}
}

func (r *PostgresRepo) Save(ctx context.Context, user *domain.User) error {
	q := `
		INSERT INTO users (id, email, username, password_hash, created_at, updated_at)
		VALUES (@id, @email, @username, @password_hash, @created_at, @updated_at)
	`

	args := pgx.NamedArgs{
		"id":            user.ID,
		"email":         user.Email,
		"username":      user.Username,
		"password_hash": user.PasswordHash,
		"created_at":    user.CreatedAt,
		"updated_at":    user.UpdatedAt,
	}

	if _, err := r.db.Exec(ctx, q, args); err != nil {
		return r.handleError(err)
	}
	return nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *PostgresRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `WHERE email = $1`, email)
}

func (r *PostgresRepo) Update(ctx context.Context, user *domain.User) error {
	q := `
		UPDATE users
		SET email = @email, username = @username, password_hash = @password_hash, updated_at = @updated_at
		WHERE id = @id
	`
	args := pgx.NamedArgs{
		"id":            user.ID,
		"email":         user.Email,
		"username":      user.Username,
		"password_hash": user.PasswordHash,
		"updated_at":    user.UpdatedAt,
	}

	tag, err := r.db.Exec(ctx, q, args)
	if err != nil {
		return r.handleError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// GetUsernames : hydratation batch pour la liste des suivis, une seule
// requête quel que soit le nombre d'IDs.
func (r *PostgresRepo) GetUsernames(ctx context.Context, ids []string) (map[string]string, error) {
	q := `SELECT id, username FROM users WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("db: get usernames: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string, len(ids))
	for rows.Next() {
		var id, username string
		if err := rows.Scan(&id, &username); err != nil {
			return nil, fmt.Errorf("db: scan username: %w", err)
		}
		out[id] = username
	}
	return out, rows.Err()
}

// --- HELPERS ---

func (r *PostgresRepo) getOne(ctx context.Context, where string, arg any) (*domain.User, error) {
	q := `SELECT id, email, username, password_hash, created_at, updated_at FROM users ` + where

	var u sqlUser
	err := r.db.QueryRow(ctx, q, arg).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("db: get user: %w", err)
	}

	return &domain.User{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}, nil
}

// handleError traduit les codes PostgreSQL en erreurs du domaine.
func (r *PostgresRepo) handleError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 = unique violation ; le détail dit quelle contrainte
		if pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "username") {
				return domain.ErrUsernameTaken
			}
			return domain.ErrEmailAlreadyExists
		}
	}
	return err
}
