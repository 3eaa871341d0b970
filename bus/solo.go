package bus

import (
	"context"
	"sync"
)

// Solo is an in-process Bus for single node deployments and tests.
type Solo struct {
	m    sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

func NewSolo() *Solo {
	return &Solo{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

func (self *Solo) Send(topic string, v []byte) error {
	self.m.Lock()
	defer self.m.Unlock()

	for ch := range self.subs[topic] {
		select {
		case ch <- v:
		default:
		}
	}
	return nil
}

func (self *Solo) Recv(ctx context.Context, topic string) ([]byte, error) {
	ch := make(chan []byte, 1)

	self.m.Lock()
	if self.subs[topic] == nil {
		self.subs[topic] = make(map[chan []byte]struct{})
	}
	self.subs[topic][ch] = struct{}{}
	self.m.Unlock()

	defer func() {
		self.m.Lock()
		delete(self.subs[topic], ch)
		if len(self.subs[topic]) == 0 {
			delete(self.subs, topic)
		}
		self.m.Unlock()
	}()

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (self *Solo) Close() {}
