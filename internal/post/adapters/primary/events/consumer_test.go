package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quockhanh41/blog-microservice/internal/post/core/domain"
)

type recordingService struct {
	events []domain.UserEvent
	err    error
}

func (r *recordingService) CreatePost(context.Context, string, string, string) (*domain.Post, error) {
	return nil, nil
}
func (r *recordingService) GetPost(context.Context, string) (*domain.Post, error) { return nil, nil }
func (r *recordingService) ListPosts(context.Context, []string, int, bool) ([]*domain.Post, error) {
	return nil, nil
}
func (r *recordingService) ApplyUserEvent(_ context.Context, e domain.UserEvent) error {
	r.events = append(r.events, e)
	return r.err
}

func testConsumer(svc *recordingService, connect connectFunc) *Consumer {
	c := NewConsumer("nats://unused:4222", svc)
	c.connect = connect
	c.attempts = 3
	c.backoff = time.Millisecond
	return c
}

// --- DECODE ---

func TestDecodeUserEvent(t *testing.T) {
	event, err := decodeUserEvent([]byte(`{"user_id":"U2","username":"renamed2","event_kind":"updated","emitted_at":"2026-01-10T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.UserID != "U2" || event.Username != "renamed2" || event.Kind != domain.EventKindUpdated {
		t.Fatalf("event: %+v", event)
	}
}

func TestDecodeUserEventRejectsMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{}`,
		`{"user_id":"U2"}`,
		`{"user_id":"U2","username":"x","event_kind":"deleted"}`,
		`{"username":"x","event_kind":"updated"}`,
	}
	for _, raw := range cases {
		if _, err := decodeUserEvent([]byte(raw)); !errors.Is(err, domain.ErrMalformedEvent) {
			t.Errorf("%q: want ErrMalformedEvent, got %v", raw, err)
		}
	}
}

// --- TRAITEMENT ---

func TestProcessMessageAppliesEvent(t *testing.T) {
	svc := &recordingService{}
	c := NewConsumer("", svc)

	err := c.processMessage(context.Background(), []byte(`{"user_id":"U2","username":"bob","event_kind":"created"}`))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(svc.events) != 1 || svc.events[0].Kind != domain.EventKindCreated {
		t.Fatalf("events: %+v", svc.events)
	}
}

func TestProcessMessageSkipsPoison(t *testing.T) {
	svc := &recordingService{}
	c := NewConsumer("", svc)

	// Payload pourri : loggé, jamais appliqué, mais considéré traité
	if err := c.processMessage(context.Background(), []byte(`garbage`)); err == nil {
		t.Fatal("expected decode error for tracing")
	}
	if len(svc.events) != 0 {
		t.Fatalf("poison message reached the service: %+v", svc.events)
	}
}

// --- MACHINE D'ÉTATS ---

func TestRunReachesRunningThenStops(t *testing.T) {
	stopped := make(chan struct{})
	connect := func(context.Context, *Consumer) (*session, error) {
		return &session{stop: func() { close(stopped) }, failed: make(chan error)}, nil
	}

	c := testConsumer(&recordingService{}, connect)

	done := make(chan struct{})
	go func() { c.Run(context.Background()); close(done) }()

	waitForState(t, c, StateRunning)
	c.Stop()

	<-done
	select {
	case <-stopped:
	default:
		t.Fatal("session not stopped on graceful shutdown")
	}
	if got := c.State(); got != StateDisconnected {
		t.Fatalf("state after stop: %v", got)
	}
}

func TestRunDegradesAfterBoundedRetries(t *testing.T) {
	var attempts int
	connect := func(context.Context, *Consumer) (*session, error) {
		attempts++
		return nil, errors.New("broker down")
	}

	c := testConsumer(&recordingService{}, connect)
	c.Run(context.Background())

	if attempts != 3 {
		t.Fatalf("attempts: %d, want 3", attempts)
	}
	if c.State() != StateDegraded {
		t.Fatalf("state: %v, want degraded", c.State())
	}
	if c.Healthy() {
		t.Fatal("degraded consumer must report unhealthy")
	}
}

func TestRunReconnectsOnTransportLoss(t *testing.T) {
	connections := make(chan chan error, 2)
	connect := func(context.Context, *Consumer) (*session, error) {
		failed := make(chan error, 1)
		connections <- failed
		return &session{stop: func() {}, failed: failed}, nil
	}

	c := testConsumer(&recordingService{}, connect)

	done := make(chan struct{})
	go func() { c.Run(context.Background()); close(done) }()

	// Première connexion établie, puis perte de transport
	first := <-connections
	waitForState(t, c, StateRunning)
	first <- errors.New("connection reset")

	// Le consumer doit se reconnecter tout seul
	<-connections
	waitForState(t, c, StateRunning)

	c.Stop()
	<-done
}

func TestRunStopsDuringRetry(t *testing.T) {
	connect := func(context.Context, *Consumer) (*session, error) {
		return nil, errors.New("broker down")
	}

	c := testConsumer(&recordingService{}, connect)
	c.backoff = time.Hour // le Stop doit interrompre l'attente

	done := make(chan struct{})
	go func() { c.Run(context.Background()); close(done) }()

	waitForState(t, c, StateConnecting)
	c.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit on Stop during backoff")
	}
	if c.State() == StateDegraded {
		t.Fatal("graceful stop must not end in degraded state")
	}
}

func waitForState(t *testing.T, c *Consumer, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state never reached %v (now %v)", want, c.State())
}
