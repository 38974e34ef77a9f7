package observers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedBus is an in-process NATS server for deployments that want the
// lifecycle subjects without running a broker.
type EmbeddedBus struct {
	ns  *server.Server
	log *slog.Logger
}

// StartEmbeddedBus starts a NATS server on host:port. A port of -1 picks a
// free one.
func StartEmbeddedBus(host string, port int, log *slog.Logger) (*EmbeddedBus, error) {
	if log == nil {
		log = slog.Default()
	}
	if host == "" {
		host = "127.0.0.1"
	}
	ns, err := server.NewServer(&server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded nats server not ready within 5s")
	}
	log.Info("bus_embedded_started", "url", ns.ClientURL())
	return &EmbeddedBus{ns: ns, log: log}, nil
}

func (e *EmbeddedBus) ClientURL() string { return e.ns.ClientURL() }

func (e *EmbeddedBus) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
	e.log.Info("bus_embedded_stopped")
}
