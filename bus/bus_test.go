package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buses(t *testing.T) map[string]Bus {
	solo := NewSolo()

	e, err := NewEmbeddedNats("127.0.0.1", -1)
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)

	n, err := ConnectNats(e.URL())
	require.NoError(t, err)
	t.Cleanup(n.Close)

	return map[string]Bus{"solo": solo, "nats": n}
}

func TestBusPubSub(t *testing.T) {
	for name, bus := range buses(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var wg sync.WaitGroup
			wg.Add(2)
			for range 2 {
				go func() {
					defer wg.Done()
					msg, err := bus.Recv(ctx, "topic1")
					assert.NoError(t, err)
					assert.Equal(t, "test message", string(msg))
				}()
			}

			// Send until both subscribers got it; a message sent before
			// a subscriber is registered is dropped.
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			tick := time.NewTicker(20 * time.Millisecond)
			defer tick.Stop()
			for {
				select {
				case <-done:
					return
				case <-tick.C:
					require.NoError(t, bus.Send("topic1", []byte("test message")))
				case <-ctx.Done():
					t.Fatal("subscribers did not receive")
				}
			}
		})
	}
}

func TestBusRecvTimeout(t *testing.T) {
	for name, bus := range buses(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			_, err := bus.Recv(ctx, "topic")
			assert.Error(t, err)
		})
	}
}

func TestSoloSendWithoutReceivers(t *testing.T) {
	s := NewSolo()
	require.NoError(t, s.Send("nobody", []byte("x")))
	assert.Empty(t, s.subs)
}

func TestSoloTopicsAreIsolated(t *testing.T) {
	s := NewSolo()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	got := make(chan error, 1)
	go func() {
		_, err := s.Recv(ctx, "a")
		got <- err
	}()

	require.Eventually(t, func() bool {
		s.m.Lock()
		defer s.m.Unlock()
		return len(s.subs["a"]) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Send("b", []byte("x")))
	assert.ErrorIs(t, <-got, context.DeadlineExceeded)
}
