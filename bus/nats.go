package bus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Nats is a Bus over core NATS subjects.
type Nats struct {
	nc *nats.Conn
}

func ConnectNats(url string) (*Nats, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url, nats.Name("cursorkv"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Nats{nc: nc}, nil
}

func (n *Nats) Close() {
	n.nc.Close()
}

func (n *Nats) Send(topic string, v []byte) error {
	if err := n.nc.Publish(topic, v); err != nil {
		log.Warn("[nats].Send:", "topic", topic, "err", err)
		return err
	}
	return nil
}

func (n *Nats) Recv(ctx context.Context, topic string) ([]byte, error) {
	sub, err := n.nc.SubscribeSync(topic)
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := n.nc.Flush(); err != nil {
		return nil, err
	}

	msg, err := sub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return msg.Data, nil
}
