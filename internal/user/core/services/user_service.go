package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quockhanh41/blog-microservice/internal/user/core/domain"
	"github.com/quockhanh41/blog-microservice/internal/user/core/ports"
)

const accessTokenTTL = 15 * time.Minute

// UserService implémente ports.UserService (Primary Port).
// C'est le producteur du flux d'événements user.* que le post-service
// consomme pour maintenir ses copies dénormalisées.
type UserService struct {
	repo   ports.UserRepository
	graph  ports.SocialGraph
	hasher ports.PasswordHasher
	tokens ports.TokenProvider
	broker ports.EventPublisher
}

func NewUserService(
	repo ports.UserRepository,
	graph ports.SocialGraph,
	hasher ports.PasswordHasher,
	tokens ports.TokenProvider,
	broker ports.EventPublisher,
) *UserService {
	return &UserService{
		repo:   repo,
		graph:  graph,
		hasher: hasher,
		tokens: tokens,
		broker: broker,
	}
}

// --- AUTHENTIFICATION ---

func (s *UserService) Register(ctx context.Context, cmd ports.RegisterCmd) (*ports.AuthResponse, error) {
	// Vérification "soft" : la contrainte UNIQUE de la DB reste la
	// sécurité ultime contre la race condition.
	if existing, err := s.repo.GetByEmail(ctx, cmd.Email); err == nil && existing != nil {
		return nil, domain.ErrEmailAlreadyExists
	}

	hashed, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := domain.NewUser(cmd.Email, cmd.Username, hashed)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("repository save failed: %w", err)
	}

	// Publication APRÈS le commit, best effort : le broker down ne doit
	// pas faire échouer une inscription déjà persistée. Avant la génération
	// des tokens : toute création commitée émet son événement, même si la
	// suite de la requête échoue.
	if err := s.broker.PublishUserCreated(ctx, user); err != nil {
		slog.Error("❌ Failed to publish user.created", "user_id", user.ID, "error", err)
	}

	access, refresh, err := s.tokens.GenerateTokens(user)
	if err != nil {
		// User créé mais tokens échoués : le client devra retry le login.
		return nil, fmt.Errorf("token generation failed: %w", err)
	}

	return &ports.AuthResponse{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    accessTokenTTL,
	}, nil
}

func (s *UserService) Login(ctx context.Context, cmd ports.LoginCmd) (*ports.AuthResponse, error) {
	user, err := s.repo.GetByEmail(ctx, cmd.Email)
	if err != nil {
		// Erreur générique : on ne dit pas si c'est l'email ou le mdp
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, cmd.Password); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	access, refresh, err := s.tokens.GenerateTokens(user)
	if err != nil {
		return nil, fmt.Errorf("login token gen failed: %w", err)
	}

	return &ports.AuthResponse{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    accessTokenTTL,
	}, nil
}

// --- GESTION UTILISATEUR ---

func (s *UserService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.GetByID(ctx, userID)
}

// UpdateUsername : persiste d'abord, publie ensuite. L'ordre compte —
// un événement pour un état non commité ferait diverger les copies.
func (s *UserService) UpdateUsername(ctx context.Context, userID, username string) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	if user.Username == username {
		// Rien à faire, pas d'événement inutile
		return user, nil
	}

	if err := user.ChangeUsername(username); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update username failed: %w", err)
	}

	if err := s.broker.PublishUserUpdated(ctx, user); err != nil {
		// Le nom est déjà commité : on logue, la réconciliation passera
		// par le lookup synchrone côté consommateurs.
		slog.Error("❌ Failed to publish user.updated", "user_id", user.ID, "error", err)
	}

	return user, nil
}

// --- GRAPHE SOCIAL ---

func (s *UserService) Follow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return domain.ErrSelfFollow
	}

	// La cible doit exister : le graphe ne référence que des users réels
	if _, err := s.repo.GetByID(ctx, followeeID); err != nil {
		return domain.ErrUserNotFound
	}

	return s.graph.Follow(ctx, followerID, followeeID)
}

func (s *UserService) Unfollow(ctx context.Context, followerID, followeeID string) error {
	return s.graph.Unfollow(ctx, followerID, followeeID)
}

// Following retourne les suivis hydratés avec leurs usernames courants
// (une requête graphe + une requête SQL batch).
func (s *UserService) Following(ctx context.Context, userID string) ([]domain.FollowedUser, error) {
	ids, err := s.graph.FollowingIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("graph lookup failed: %w", err)
	}
	if len(ids) == 0 {
		return []domain.FollowedUser{}, nil
	}

	names, err := s.repo.GetUsernames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("username hydration failed: %w", err)
	}

	out := make([]domain.FollowedUser, 0, len(ids))
	for _, id := range ids {
		name, ok := names[id]
		if !ok {
			// Arête orpheline (user supprimé) : on la saute plutôt que
			// de renvoyer une entrée sans nom
			continue
		}
		out = append(out, domain.FollowedUser{ID: id, Username: name})
	}
	return out, nil
}
