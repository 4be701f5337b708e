package event

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedNATSServer runs a JetStream-enabled NATS server inside the process
type EmbeddedNATSServer struct {
	server       *server.Server
	url          string
	shutdownOnce sync.Once
}

// StartEmbeddedNATSServer starts an embedded server on a random local port.
// An empty storeDir uses a temporary directory.
func StartEmbeddedNATSServer(storeDir string) (*EmbeddedNATSServer, error) {
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		JetStream: true,
		StoreDir:  storeDir,
		NoLog:     true,
		NoSigs:    true,
	}

	s, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded server: %w", err)
	}

	go s.Start()

	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		return nil, fmt.Errorf("embedded server not ready")
	}

	return &EmbeddedNATSServer{
		server: s,
		url:    s.ClientURL(),
	}, nil
}

// URL returns the client connection URL
func (e *EmbeddedNATSServer) URL() string {
	return e.url
}

// Shutdown stops the server. Safe to call more than once.
func (e *EmbeddedNATSServer) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.server.Shutdown()

		done := make(chan struct{})
		go func() {
			e.server.WaitForShutdown()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})
}
