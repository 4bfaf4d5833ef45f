package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/stellar-multisig/coordinator/db"
	"github.com/stellar-multisig/coordinator/logging"
	"github.com/stellar-multisig/coordinator/utils"
)

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// PostgresBus distributes events across service instances over LISTEN/NOTIFY
// of the shared database. Publishes go through pg_notify, so every instance
// listening on the topic channel receives every event exactly as published
// (best-effort, no replay for instances that were down).
type PostgresBus struct {
	logger   logging.Logger
	db       *db.DB
	listener *pq.Listener
	fanout   *fanout
	cancel   context.CancelFunc
}

func NewPostgresBus(logger logging.Logger, dbConn *db.DB) (*PostgresBus, error) {
	listener := pq.NewListener(dbConn.DSN("postgres"), listenerMinReconnect, listenerMaxReconnect, func(_ pq.ListenerEventType, err error) {
		if err != nil {
			logger.WithError(err).Error("postgres notification listener error")
		}
	})
	for _, topic := range Topics() {
		if err := listener.Listen(string(topic)); err != nil {
			_ = listener.Close()
			return nil, fmt.Errorf("can't listen on channel %s: %w", topic, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &PostgresBus{
		logger:   logger,
		db:       dbConn,
		listener: listener,
		fanout:   newFanout(),
		cancel:   cancel,
	}
	go b.dispatchLoop()
	go b.pingLoop(ctx)
	return b, nil
}

func (b *PostgresBus) Publish(ctx context.Context, topic Topic, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("can't marshal event payload: %w", err)
	}
	_, err = b.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", string(topic), string(payload))
	if err != nil {
		return fmt.Errorf("can't publish notification: %w", err)
	}
	return nil
}

func (b *PostgresBus) Subscribe(ctx context.Context, topics ...Topic) (Subscription, error) {
	return b.fanout.subscribe(ctx, topics), nil
}

func (b *PostgresBus) Close() error {
	b.cancel()
	err := b.listener.Close()
	b.fanout.closeAll()
	return err
}

// pingLoop keeps the listener connection alive through idle periods and
// forces a reconnect when the connection died silently.
func (b *PostgresBus) pingLoop(ctx context.Context) {
	for utils.ContextSleep(ctx, listenerPingInterval) != nil {
		if err := b.listener.Ping(); err != nil {
			b.logger.WithError(err).Error("can't ping postgres notification listener")
		}
	}
}

func (b *PostgresBus) dispatchLoop() {
	for notification := range b.listener.Notify {
		if notification == nil {
			// listener reconnected, events in between may be lost
			continue
		}
		event := new(Event)
		if err := json.Unmarshal([]byte(notification.Extra), event); err != nil {
			b.logger.WithError(err).WithField("channel", notification.Channel).
				Error("can't unmarshal notification payload")
			continue
		}
		b.fanout.dispatch(Topic(notification.Channel), event)
	}
}
