//go:build integration

package containers

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NATSContainer wraps a NATS server started with JetStream enabled.
type NATSContainer struct {
	Container testcontainers.Container
	URL       string
	Conn      *nats.Conn
	JetStream jetstream.JetStream
}

// NewNATSContainer starts a new NATS container.
func NewNATSContainer(t *testing.T) *NATSContainer {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start nats container: %v", err)
	}

	url, err := container.PortEndpoint(ctx, "4222/tcp", "nats")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get nats endpoint: %v", err)
	}

	conn, err := nats.Connect(url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to nats: %v", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to create jetstream context: %v", err)
	}

	return &NATSContainer{
		Container: container,
		URL:       url,
		Conn:      conn,
		JetStream: js,
	}
}

// DeleteStream removes a stream if it exists, for test isolation.
func (n *NATSContainer) DeleteStream(ctx context.Context, name string) error {
	err := n.JetStream.DeleteStream(ctx, name)
	if err != nil && !errors.Is(err, jetstream.ErrStreamNotFound) {
		return err
	}
	return nil
}
