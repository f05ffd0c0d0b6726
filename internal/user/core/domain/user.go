package domain

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// --- ERREURS DU DOMAINE ---

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidUsername    = errors.New("username must be at least 3 characters")
	ErrSelfFollow         = errors.New("cannot follow yourself")
)

// --- ENTITÉ ---

type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FollowedUser : projection minimale pour la liste des suivis
// (id + username dénormalisé, c'est tout ce que le feed consomme).
type FollowedUser struct {
	ID       string
	Username string
}

// --- FACTORY ---

// NewUser est le seul moyen de créer un user valide (ID + invariants).
func NewUser(email, username, passwordHash string) (*User, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &User{
		ID:           uuid.NewString(), // L'identité est générée ici, pas en DB
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Username:     strings.TrimSpace(username),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// --- COMPORTEMENTS ---

// ChangeUsername valide puis applique le nouveau nom. C'est CE changement
// qui déclenche la propagation événementielle vers les copies dénormalisées.
func (u *User) ChangeUsername(username string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	u.Username = strings.TrimSpace(username)
	u.touch()
	return nil
}

func (u *User) touch() {
	u.UpdatedAt = time.Now().UTC()
}

// --- VALIDATEURS INTERNES ---

func validateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

func validateUsername(username string) error {
	if len(strings.TrimSpace(username)) < 3 {
		return ErrInvalidUsername
	}
	return nil
}
