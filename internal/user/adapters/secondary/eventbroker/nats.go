package eventbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/quockhanh41/blog-microservice/internal/user/core/domain"
	"github.com/quockhanh41/blog-microservice/internal/user/core/ports"
)

const (
	StreamName     = "USER_EVENTS"
	SubjectPattern = "user.>"

	SubjectUserCreated = "user.created"
	SubjectUserUpdated = "user.updated"
)

// userEventPayload est le contrat de fil consommé par le post-service.
// EmittedAt permet aux consommateurs d'ordonner des replays.
type userEventPayload struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	EventKind string `json:"event_kind"`
	EmittedAt string `json:"emitted_at"`
}

type NatsBroker struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewNatsBroker initialise la connexion et s'assure que le stream existe.
// Idempotent : le consumer fait le même CreateOrUpdateStream, premier
// arrivé gagne.
func NewNatsBroker(url string) (*NatsBroker, error) {
	nc, err := nats.Connect(url, nats.Timeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPattern},
		Storage:  jetstream.FileStorage, // persistance disque : les replays survivent au restart
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream: %w", err)
	}

	return &NatsBroker{nc: nc, js: js}, nil
}

func (n *NatsBroker) Close() {
	n.nc.Close()
}

var _ ports.EventPublisher = (*NatsBroker)(nil)

func (n *NatsBroker) PublishUserCreated(ctx context.Context, user *domain.User) error {
	return n.publish(ctx, SubjectUserCreated, "created", user)
}

func (n *NatsBroker) PublishUserUpdated(ctx context.Context, user *domain.User) error {
	return n.publish(ctx, SubjectUserUpdated, "updated", user)
}

func (n *NatsBroker) publish(ctx context.Context, subject, kind string, user *domain.User) error {
	payload := userEventPayload{
		UserID:    user.ID,
		Username:  user.Username,
		EventKind: kind,
		EmittedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Propagation du contexte de trace dans les headers NATS : le
	// consumer raccroche son span au nôtre.
	headers := nats.Header{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(headers)))

	msg := &nats.Msg{Subject: subject, Header: headers, Data: data}

	// Publish synchrone : JetStream confirme la persistance du message
	if _, err := n.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}
