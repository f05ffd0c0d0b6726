package domain

import (
	"errors"
	"time"
)

// --- ERREURS DU DOMAINE ---
var (
	// ErrServiceUnavailable : aucune instance saine découverte et pas de fallback statique
	ErrServiceUnavailable = errors.New("upstream service unavailable")
	// ErrUpstreamTimeout : un appel vers un pair a dépassé son deadline
	ErrUpstreamTimeout = errors.New("upstream call timed out")
	// ErrUpstream : le pair a répondu avec un statut non-succès
	ErrUpstream = errors.New("upstream service returned an error")
)

// UnknownUsername : sentinelle quand la métadonnée auteur est absente.
// Un post sans username ne doit jamais casser la page entière.
const UnknownUsername = "unknown"

type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// FeedEntry est le post dénormalisé tel qu'il part vers le front.
// Immuable une fois en cache : régénéré en bloc, jamais patché champ par champ.
type FeedEntry struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Author        Author    `json:"author"`
	CreatedAt     time.Time `json:"createdAt"`
	LikesCount    int       `json:"likesCount"`
	CommentsCount int       `json:"commentsCount"`
	IsLiked       bool      `json:"isLiked"`
}

// FollowedUser : entrée de la liste de suivi renvoyée par le social graph.
type FollowedUser struct {
	ID       string
	Username string
}

// RawPost : enregistrement brut du content service, avant transformation.
// CreatedAt reste une string ici : la validation se fait dans le transform.
type RawPost struct {
	ID        string
	AuthorID  string
	Username  string
	Title     string
	Content   string
	CreatedAt string
}

// FeedPage est une tranche paginée du feed matérialisé.
// Invariant : HasMore == (offset + limit < Total), Total = taille du feed complet.
type FeedPage struct {
	Entries []FeedEntry
	HasMore bool
	Total   int
}
