package cli

import (
	"sync"

	"enotebook-sync/internal/domain"
	"enotebook-sync/internal/service"
)

// fanout hands every event to each subscribed sink in order.
type fanout struct {
	mu    sync.RWMutex
	sinks []service.EventSink
}

func (f *fanout) add(sink service.EventSink) {
	f.mu.Lock()
	f.sinks = append(f.sinks, sink)
	f.mu.Unlock()
}

func (f *fanout) Publish(event domain.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.sinks {
		s.Publish(event)
	}
}
