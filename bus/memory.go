package bus

import (
	"context"
)

// MemoryBus is a process-local Bus, used in tests and single-instance runs.
type MemoryBus struct {
	fanout *fanout
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{fanout: newFanout()}
}

func (b *MemoryBus) Publish(_ context.Context, topic Topic, event *Event) error {
	b.fanout.dispatch(topic, event)
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topics ...Topic) (Subscription, error) {
	return b.fanout.subscribe(ctx, topics), nil
}

func (b *MemoryBus) Close() {
	b.fanout.closeAll()
}
