package bus

import (
	"context"
	"sync"
)

const memorySubBuffer = 64

// MemoryBus is an in-process Bus for tests and single-node runs. Slow
// subscribers are dropped rather than allowed to block publishers.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]bool
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[*memorySub]bool)}
}

type memorySub struct {
	bus   *MemoryBus
	topic string
	ch    chan Envelope
	once  sync.Once
}

func (s *memorySub) Events() <-chan Envelope { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		s.bus.detach(s)
	})
	return nil
}

// detach expects bus.mu held.
func (b *MemoryBus) detach(s *memorySub) {
	if subs, ok := b.subs[s.topic]; ok {
		if subs[s] {
			delete(subs, s)
			close(s.ch)
			if len(subs) == 0 {
				delete(b.subs, s.topic)
			}
		}
	}
}

func (b *MemoryBus) Publish(_ context.Context, topic string, env Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusUnavailable
	}
	for s := range b.subs[topic] {
		select {
		case s.ch <- env:
		default:
			b.detach(s)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusUnavailable
	}
	s := &memorySub{bus: b, topic: topic, ch: make(chan Envelope, memorySubBuffer)}
	if _, ok := b.subs[topic]; !ok {
		b.subs[topic] = make(map[*memorySub]bool)
	}
	b.subs[topic][s] = true
	return s, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for topic, subs := range b.subs {
		for s := range subs {
			delete(subs, s)
			close(s.ch)
		}
		delete(b.subs, topic)
	}
	return nil
}
