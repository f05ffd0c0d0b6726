package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// --- ERREURS DU DOMAINE ---
var (
	ErrPostNotFound   = errors.New("post not found")
	ErrAuthorNotFound = errors.New("author not found")
	ErrInvalidTitle   = errors.New("title is required")
	ErrInvalidContent = errors.New("content is required")
)

// Post porte une copie dénormalisée du username de l'auteur : pas de
// jointure synchrone vers le user-service à chaque rendu. La copie est
// réécrite par le consumer d'événements quand l'identité change.
type Post struct {
	ID        string
	AuthorID  string
	Username  string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPost valide les invariants et génère l'identité.
func NewPost(authorID, username, title, content string) (*Post, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrInvalidTitle
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrInvalidContent
	}

	now := time.Now().UTC()
	return &Post{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Username:  username,
		Title:     strings.TrimSpace(title),
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UserReference est la copie locale dénormalisée {userId -> username}.
// Source de vérité pour "quel nom tamponner sur un post" sans appel
// identité synchrone. Toujours remplacée en bloc, jamais fusionnée champ
// par champ (évite les lost-updates entre événements concurrents).
type UserReference struct {
	UserID    string
	Username  string
	UpdatedAt time.Time
}
