// Package bus is the notification channel between service instances. A write
// handled by any instance is published here so that stream subscribers
// connected to other instances observe it as well. The bus holds no durable
// state, offline subscribers catch up through the store-backed backfill.
package bus

import (
	"context"

	"github.com/stellar-multisig/coordinator/entity"
)

type Topic string

const (
	TopicRequestCreated Topic = "signature-request:created"
	TopicRequestUpdated Topic = "signature-request:updated"
)

// Event carries the serialized request plus the full signer key set, so that
// subscribers can filter on their interest set without a store round-trip.
type Event struct {
	Request    *entity.SignatureRequestInfo `json:"signature_request"`
	SignerKeys []string                     `json:"signer_keys"`
}

type TopicEvent struct {
	Topic Topic  `json:"topic"`
	Event *Event `json:"event"`
}

type Subscription interface {
	// Events is closed when the subscription is torn down. Delivery is
	// best-effort: a subscriber that doesn't keep up may miss events.
	Events() <-chan *TopicEvent
	Close()
}

type Bus interface {
	Publish(ctx context.Context, topic Topic, event *Event) error
	Subscribe(ctx context.Context, topics ...Topic) (Subscription, error)
}

func Topics() []Topic {
	return []Topic{TopicRequestCreated, TopicRequestUpdated}
}
