package idb

import (
	"sync"

	"github.com/gammazero/deque"
)

// loop runs every task and event handler of one Factory on a single
// goroutine, in the order they were posted.
type loop struct {
	mu    sync.Mutex
	tasks deque.Deque[func()]
	wake  chan struct{}
	quit  chan struct{}
	once  sync.Once
}

func newLoop() *loop {
	l := &loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *loop) post(fn func()) {
	l.mu.Lock()
	l.tasks.PushBack(fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *loop) run() {
	for {
		l.mu.Lock()
		if l.tasks.Len() == 0 {
			l.mu.Unlock()
			select {
			case <-l.wake:
				continue
			case <-l.quit:
				return
			}
		}
		fn := l.tasks.PopFront()
		l.mu.Unlock()

		fn()
	}
}

func (l *loop) stop() {
	l.once.Do(func() { close(l.quit) })
}
