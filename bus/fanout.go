package bus

import (
	"context"
	"sync"
)

const subscriptionBuffer = 64

// fanout tracks active subscriptions and distributes events to those
// interested in the event's topic. Shared by the in-memory and the postgres
// backed bus implementations.
type fanout struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func newFanout() *fanout {
	return &fanout{
		subs: make(map[*subscription]struct{}),
	}
}

type subscription struct {
	fanout *fanout
	topics map[Topic]bool
	events chan *TopicEvent
	once   sync.Once
}

func (f *fanout) subscribe(ctx context.Context, topics []Topic) *subscription {
	sub := &subscription{
		fanout: f,
		topics: make(map[Topic]bool, len(topics)),
		events: make(chan *TopicEvent, subscriptionBuffer),
	}
	for _, topic := range topics {
		sub.topics[topic] = true
	}

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub
}

func (f *fanout) dispatch(topic Topic, event *Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		if !sub.topics[topic] {
			continue
		}
		select {
		case sub.events <- &TopicEvent{Topic: topic, Event: event}:
		default:
			// slow subscriber, drop rather than block the dispatcher
		}
	}
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	subs := make([]*subscription, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

func (s *subscription) Events() <-chan *TopicEvent {
	return s.events
}

func (s *subscription) Close() {
	s.once.Do(func() {
		s.fanout.mu.Lock()
		delete(s.fanout.subs, s)
		s.fanout.mu.Unlock()
		close(s.events)
	})
}
