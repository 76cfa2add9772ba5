package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-flood-risk/internal/models"
)

// Broadcaster fans completed predictions out to live stream subscribers.
type Broadcaster struct {
	subscribers map[uint64]chan *models.PredictionResult
	bufferSize  int
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Broadcaster{
		subscribers: make(map[uint64]chan *models.PredictionResult),
		bufferSize:  bufferSize,
	}
}

func (b *Broadcaster) Subscribe() (uint64, <-chan *models.PredictionResult) {
	id := b.nextID.Add(1)
	ch := make(chan *models.PredictionResult, b.bufferSize)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Broadcast(p *models.PredictionResult) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- p:
		default:
			// Skip slow subscribers
		}
	}
}

// Publish lets the broadcaster act as a prediction sink.
func (b *Broadcaster) Publish(_ context.Context, p *models.PredictionResult) error {
	b.Broadcast(p)
	return nil
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, ending their streams.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
