package services

import (
	"context"
	"errors"
	"testing"

	"github.com/quockhanh41/blog-microservice/internal/user/core/domain"
	"github.com/quockhanh41/blog-microservice/internal/user/core/ports"
)

// --- FAKES ---

type fakeRepo struct {
	byID    map[string]*domain.User
	byEmail map[string]*domain.User

	saveErr   error
	updateErr error
	updates   int
}

func newFakeRepo(users ...*domain.User) *fakeRepo {
	r := &fakeRepo{byID: map[string]*domain.User{}, byEmail: map[string]*domain.User{}}
	for _, u := range users {
		r.byID[u.ID] = u
		r.byEmail[u.Email] = u
	}
	return r
}

func (f *fakeRepo) Save(_ context.Context, u *domain.User) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.byID[u.ID] = u
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeRepo) Update(_ context.Context, u *domain.User) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates++
	f.byID[u.ID] = u
	return nil
}

func (f *fakeRepo) GetUsernames(_ context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		if u, ok := f.byID[id]; ok {
			out[id] = u.Username
		}
	}
	return out, nil
}

type fakeGraph struct {
	edges map[string]map[string]bool
	err   error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{edges: map[string]map[string]bool{}}
}

func (f *fakeGraph) Follow(_ context.Context, follower, followee string) error {
	if f.err != nil {
		return f.err
	}
	if f.edges[follower] == nil {
		f.edges[follower] = map[string]bool{}
	}
	f.edges[follower][followee] = true
	return nil
}

func (f *fakeGraph) Unfollow(_ context.Context, follower, followee string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.edges[follower], followee)
	return nil
}

func (f *fakeGraph) FollowingIDs(_ context.Context, userID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var ids []string
	for id := range f.edges[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeHasher struct{ compareErr error }

func (f *fakeHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }
func (f *fakeHasher) Compare(encoded, password string) error {
	if f.compareErr != nil {
		return f.compareErr
	}
	if encoded != "hashed:"+password {
		return errors.New("invalid password")
	}
	return nil
}

type fakeTokens struct{ err error }

func (f *fakeTokens) GenerateTokens(u *domain.User) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return "access-" + u.ID, "refresh-" + u.ID, nil
}
func (f *fakeTokens) Validate(string) (string, error) { return "", errors.New("not implemented") }

type fakeBroker struct {
	created []string // usernames publiés en created
	updated []string // usernames publiés en updated
	err     error
}

func (f *fakeBroker) PublishUserCreated(_ context.Context, u *domain.User) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, u.Username)
	return nil
}

func (f *fakeBroker) PublishUserUpdated(_ context.Context, u *domain.User) error {
	if f.err != nil {
		return f.err
	}
	f.updated = append(f.updated, u.Username)
	return nil
}

func newService(repo *fakeRepo, graph *fakeGraph, broker *fakeBroker) *UserService {
	return NewUserService(repo, graph, &fakeHasher{}, &fakeTokens{}, broker)
}

func mustUser(t *testing.T, email, username string) *domain.User {
	t.Helper()
	u, err := domain.NewUser(email, username, "hashed:secret")
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	return u
}

// --- TESTS ---

func TestRegisterPublishesCreatedEvent(t *testing.T) {
	repo := newFakeRepo()
	broker := &fakeBroker{}
	svc := newService(repo, newFakeGraph(), broker)

	resp, err := svc.Register(context.Background(), ports.RegisterCmd{
		Email: "alice@example.com", Username: "alice", Password: "secret",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Error("expected token pair")
	}
	if len(broker.created) != 1 || broker.created[0] != "alice" {
		t.Errorf("created events = %v, want [alice]", broker.created)
	}
	if len(broker.updated) != 0 {
		t.Errorf("unexpected updated events: %v", broker.updated)
	}
	if _, err := repo.GetByEmail(context.Background(), "alice@example.com"); err != nil {
		t.Errorf("user not persisted: %v", err)
	}
}

func TestRegisterSurvivesBrokerOutage(t *testing.T) {
	repo := newFakeRepo()
	broker := &fakeBroker{err: errors.New("broker down")}
	svc := newService(repo, newFakeGraph(), broker)

	resp, err := svc.Register(context.Background(), ports.RegisterCmd{
		Email: "bob@example.com", Username: "bobby", Password: "secret",
	})
	if err != nil {
		t.Fatalf("Register should not fail when the broker is down: %v", err)
	}
	if resp.User == nil {
		t.Fatal("expected user in response")
	}
}

// La création est commitée avant la génération des tokens : même si
// celle-ci échoue, l'événement user.created doit partir.
func TestRegisterPublishesEventWhenTokensFail(t *testing.T) {
	repo := newFakeRepo()
	broker := &fakeBroker{}
	svc := NewUserService(repo, newFakeGraph(), &fakeHasher{}, &fakeTokens{err: errors.New("signing key unavailable")}, broker)

	_, err := svc.Register(context.Background(), ports.RegisterCmd{
		Email: "carol@example.com", Username: "carol", Password: "secret",
	})
	if err == nil {
		t.Fatal("expected token generation error")
	}
	if len(broker.created) != 1 || broker.created[0] != "carol" {
		t.Errorf("created events = %v, want [carol]", broker.created)
	}
	if _, err := repo.GetByEmail(context.Background(), "carol@example.com"); err != nil {
		t.Errorf("user not persisted: %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	existing := mustUser(t, "alice@example.com", "alice")
	svc := newService(newFakeRepo(existing), newFakeGraph(), &fakeBroker{})

	_, err := svc.Register(context.Background(), ports.RegisterCmd{
		Email: "alice@example.com", Username: "alice2", Password: "secret",
	})
	if !errors.Is(err, domain.ErrEmailAlreadyExists) {
		t.Fatalf("err = %v, want ErrEmailAlreadyExists", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	existing := mustUser(t, "alice@example.com", "alice")
	svc := newService(newFakeRepo(existing), newFakeGraph(), &fakeBroker{})

	_, err := svc.Login(context.Background(), ports.LoginCmd{Email: "alice@example.com", Password: "wrong"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	svc := newService(newFakeRepo(), newFakeGraph(), &fakeBroker{})

	_, err := svc.Login(context.Background(), ports.LoginCmd{Email: "ghost@example.com", Password: "x"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials (never ErrUserNotFound)", err)
	}
}

func TestUpdateUsernamePublishesUpdatedEvent(t *testing.T) {
	existing := mustUser(t, "alice@example.com", "alice")
	repo := newFakeRepo(existing)
	broker := &fakeBroker{}
	svc := newService(repo, newFakeGraph(), broker)

	updated, err := svc.UpdateUsername(context.Background(), existing.ID, "alice_new")
	if err != nil {
		t.Fatalf("UpdateUsername: %v", err)
	}
	if updated.Username != "alice_new" {
		t.Errorf("username = %q, want alice_new", updated.Username)
	}
	if len(broker.updated) != 1 || broker.updated[0] != "alice_new" {
		t.Errorf("updated events = %v, want [alice_new]", broker.updated)
	}
	if repo.updates != 1 {
		t.Errorf("updates = %d, want 1", repo.updates)
	}
}

func TestUpdateUsernameNoopSkipsEvent(t *testing.T) {
	existing := mustUser(t, "alice@example.com", "alice")
	repo := newFakeRepo(existing)
	broker := &fakeBroker{}
	svc := newService(repo, newFakeGraph(), broker)

	if _, err := svc.UpdateUsername(context.Background(), existing.ID, "alice"); err != nil {
		t.Fatalf("UpdateUsername: %v", err)
	}
	if len(broker.updated) != 0 {
		t.Errorf("no event expected for unchanged username, got %v", broker.updated)
	}
	if repo.updates != 0 {
		t.Errorf("no write expected for unchanged username, got %d", repo.updates)
	}
}

func TestUpdateUsernameValidation(t *testing.T) {
	existing := mustUser(t, "alice@example.com", "alice")
	svc := newService(newFakeRepo(existing), newFakeGraph(), &fakeBroker{})

	_, err := svc.UpdateUsername(context.Background(), existing.ID, "ab")
	if !errors.Is(err, domain.ErrInvalidUsername) {
		t.Fatalf("err = %v, want ErrInvalidUsername", err)
	}
}

func TestFollowRejectsSelf(t *testing.T) {
	existing := mustUser(t, "alice@example.com", "alice")
	svc := newService(newFakeRepo(existing), newFakeGraph(), &fakeBroker{})

	if err := svc.Follow(context.Background(), existing.ID, existing.ID); !errors.Is(err, domain.ErrSelfFollow) {
		t.Fatalf("err = %v, want ErrSelfFollow", err)
	}
}

func TestFollowUnknownTarget(t *testing.T) {
	existing := mustUser(t, "alice@example.com", "alice")
	svc := newService(newFakeRepo(existing), newFakeGraph(), &fakeBroker{})

	if err := svc.Follow(context.Background(), existing.ID, "missing"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestFollowingHydratesUsernames(t *testing.T) {
	alice := mustUser(t, "alice@example.com", "alice")
	bob := mustUser(t, "bob@example.com", "bobby")
	repo := newFakeRepo(alice, bob)
	graph := newFakeGraph()
	svc := newService(repo, graph, &fakeBroker{})

	if err := svc.Follow(context.Background(), alice.ID, bob.ID); err != nil {
		t.Fatalf("Follow: %v", err)
	}

	following, err := svc.Following(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("Following: %v", err)
	}
	if len(following) != 1 || following[0].ID != bob.ID || following[0].Username != "bobby" {
		t.Errorf("following = %+v, want [{%s bobby}]", following, bob.ID)
	}
}

func TestFollowingSkipsOrphanEdges(t *testing.T) {
	alice := mustUser(t, "alice@example.com", "alice")
	repo := newFakeRepo(alice)
	graph := newFakeGraph()
	graph.edges[alice.ID] = map[string]bool{"ghost": true}
	svc := newService(repo, graph, &fakeBroker{})

	following, err := svc.Following(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("Following: %v", err)
	}
	if len(following) != 0 {
		t.Errorf("orphan edge should be skipped, got %+v", following)
	}
}

func TestFollowingEmptyGraph(t *testing.T) {
	alice := mustUser(t, "alice@example.com", "alice")
	svc := newService(newFakeRepo(alice), newFakeGraph(), &fakeBroker{})

	following, err := svc.Following(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("Following: %v", err)
	}
	if following == nil || len(following) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", following)
	}
}
