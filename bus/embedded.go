package bus

import (
	"fmt"
	"time"

	natsd "github.com/nats-io/nats-server/v2/server"
)

// Embedded is an in-process nats-server.
type Embedded struct {
	srv *natsd.Server
}

// NewEmbeddedNats starts a nats-server on host:port. Port -1 picks a free port.
func NewEmbeddedNats(host string, port int) (*Embedded, error) {
	opts := &natsd.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	srv, err := natsd.NewServer(opts)
	if err != nil {
		return nil, err
	}

	go srv.Start()

	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded nats on %s:%d not ready", host, port)
	}

	log.Info("embedded nats listening", "url", srv.ClientURL())
	return &Embedded{srv: srv}, nil
}

func (e *Embedded) URL() string {
	return e.srv.ClientURL()
}

func (e *Embedded) Shutdown() {
	e.srv.Shutdown()
	e.srv.WaitForShutdown()
}
