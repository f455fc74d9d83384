package service

import (
	"sync"

	"github.com/audiolibrelab/coffeehunt/internal/metrics"
)

// broadcaster fans status snapshots out to subscribers, latest wins
type broadcaster struct {
	mutex sync.Mutex
	subs  map[int]chan Status
	next  int
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Status)}
}

func (b *broadcaster) subscribe() (chan Status, func()) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	id := b.next
	b.next++
	ch := make(chan Status, 1)
	b.subs[id] = ch
	metrics.EventSubscribers.Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mutex.Lock()
			defer b.mutex.Unlock()
			delete(b.subs, id)
			close(ch)
			metrics.EventSubscribers.Dec()
		})
	}
	return ch, cancel
}

func (b *broadcaster) publish(st Status) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, ch := range b.subs {
		offer(ch, st)
	}
}

// offer replaces any undelivered snapshot with st; callers hold b.mutex
func offer(ch chan Status, st Status) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- st:
	default:
	}
}
