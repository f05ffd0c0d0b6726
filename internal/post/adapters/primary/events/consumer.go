package events

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/quockhanh41/blog-microservice/internal/post/core/ports"
)

const (
	StreamName     = "USER_EVENTS"
	SubjectPattern = "user.>"
	DurableName    = "post-service" // un seul membre du groupe traite un message donné

	// Retry d'établissement borné : épuiser les tentatives laisse le
	// service en mode dégradé (usernames possiblement stale), pas mort.
	ConnectAttempts = 5
	ConnectBackoff  = 5 * time.Second

	handleTimeout = 30 * time.Second
)

// State : machine d'états de la connexion du consumer.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateRunning
	StateDegraded // terminal : retries épuisés, observable via /health
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateRunning:
		return "running"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// session : une connexion établie. failed signale une perte de transport.
type session struct {
	stop   func()
	failed <-chan error
}

// connectFunc est injectable pour tester la machine d'états sans broker.
type connectFunc func(ctx context.Context, c *Consumer) (*session, error)

// Consumer consomme le topic user-events et applique la dénormalisation.
type Consumer struct {
	natsURL string
	service ports.PostService

	connect  connectFunc
	attempts int
	backoff  time.Duration

	state  atomic.Int32
	stopCh chan struct{}
}

func NewConsumer(natsURL string, service ports.PostService) *Consumer {
	return &Consumer{
		natsURL:  natsURL,
		service:  service,
		connect:  connectJetStream,
		attempts: ConnectAttempts,
		backoff:  ConnectBackoff,
		stopCh:   make(chan struct{}),
	}
}

func (c *Consumer) State() State {
	return State(c.state.Load())
}

// Healthy est faux uniquement en mode dégradé (signal readiness).
func (c *Consumer) Healthy() bool {
	return c.State() != StateDegraded
}

// Stop arrête proprement : Running -> Disconnected sans retry.
func (c *Consumer) Stop() {
	close(c.stopCh)
}

// Run fait tourner le consumer jusqu'à Stop, annulation du contexte, ou
// épuisement des retries d'établissement (-> Degraded). À lancer en goroutine.
func (c *Consumer) Run(ctx context.Context) {
	for {
		sess, ok := c.establish(ctx)
		if !ok {
			return // Degraded ou arrêt demandé pendant l'établissement
		}

		c.setState(StateRunning)
		slog.Info("👂 Listening for user events", "stream", StreamName, "durable", DurableName)

		select {
		case <-ctx.Done():
			sess.stop()
			c.setState(StateDisconnected)
			return
		case <-c.stopCh:
			sess.stop()
			c.setState(StateDisconnected)
			slog.Info("✅ Event consumer stopped")
			return
		case err := <-sess.failed:
			// Perte de transport : on repasse par la boucle de retry
			sess.stop()
			c.setState(StateDisconnected)
			slog.Warn("⚠️ Event transport lost, reconnecting", "error", err)
		}
	}
}

// establish tente la connexion avec un backoff fixe borné.
func (c *Consumer) establish(ctx context.Context) (*session, bool) {
	for attempt := 1; attempt <= c.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, false
		case <-c.stopCh:
			return nil, false
		default:
		}

		c.setState(StateConnecting)
		sess, err := c.connect(ctx, c)
		if err == nil {
			return sess, true
		}

		slog.Warn("⚠️ Event transport connection failed", "attempt", attempt, "max", c.attempts, "error", err)

		if attempt < c.attempts {
			select {
			case <-ctx.Done():
				return nil, false
			case <-c.stopCh:
				return nil, false
			case <-time.After(c.backoff):
			}
		}
	}

	// Terminal : on sert des posts avec des usernames possiblement stale
	// plutôt que de crasher. Disponibilité > fraîcheur.
	c.setState(StateDegraded)
	slog.Error("❌ Event transport unavailable, running without live denormalization", "attempts", c.attempts)
	return nil, false
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
}

// --- TRANSPORT JETSTREAM ---

func connectJetStream(ctx context.Context, c *Consumer) (*session, error) {
	failed := make(chan error, 1)

	nc, err := nats.Connect(c.natsURL,
		nats.Timeout(10*time.Second),
		nats.ClosedHandler(func(conn *nats.Conn) {
			select {
			case failed <- conn.LastError():
			default:
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}

	setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Idempotent : le producteur crée aussi le stream, premier arrivé gagne
	_, err = js.CreateOrUpdateStream(setupCtx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPattern},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, err
	}

	cons, err := js.CreateOrUpdateConsumer(setupCtx, StreamName, jetstream.ConsumerConfig{
		Durable:       DurableName,
		FilterSubject: SubjectPattern,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, err
	}
	c.setState(StateSubscribed)

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.handleMessage(msg)
	})
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &session{
		stop: func() {
			cc.Stop()
			nc.Close()
		},
		failed: failed,
	}, nil
}

// handleMessage : toujours ack, même en échec. Un message poison ne doit
// pas bloquer la partition ; une mise à jour perdue se répare toute seule
// au prochain événement d'identité.
func (c *Consumer) handleMessage(msg jetstream.Msg) {
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Headers()))

	tracer := otel.Tracer("post-service")
	ctx, span := tracer.Start(ctx, "process_user_event", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	if err := c.processMessage(ctx, msg.Data()); err != nil {
		span.RecordError(err)
	}

	if err := msg.Ack(); err != nil {
		slog.Warn("⚠️ Failed to ack message", "error", err)
	}
}

// processMessage décode, valide et applique un événement. L'erreur retournée
// sert au tracing : côté broker le message est considéré traité quoi qu'il arrive.
func (c *Consumer) processMessage(ctx context.Context, data []byte) error {
	event, err := decodeUserEvent(data)
	if err != nil {
		// Quarantaine : log + skip, on ne rejoue pas un payload pourri
		slog.Error("❌ Invalid user event, skipping", "error", err)
		return err
	}

	slog.Info("📨 Received user event", "user_id", event.UserID, "kind", event.Kind)

	applyCtx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	if err := c.service.ApplyUserEvent(applyCtx, event); err != nil {
		slog.Error("❌ Failed to apply user event", "user_id", event.UserID, "error", err)
		return err
	}
	return nil
}
