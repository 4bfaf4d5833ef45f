// Package stream turns the notification bus and the request store into
// per-client event streams: a store-backed backfill from the client's cursor
// followed by a live tail of bus events, with no gap and no duplicate at the
// seam between the two.
package stream

import (
	"context"
	"time"

	"github.com/stellar-multisig/coordinator/bus"
	"github.com/stellar-multisig/coordinator/entity"
	"github.com/stellar-multisig/coordinator/logging"
)

const backfillPageSize = 100

// RequestLister is the store-backed replay source, satisfied by the
// coordination engine.
type RequestLister interface {
	ListRequestsForAccounts(ctx context.Context, accountIDs []string, cursor string, limit uint64) ([]*entity.SignatureRequestInfo, error)
}

type Gateway struct {
	logger logging.Logger
	lister RequestLister
	bus    bus.Bus
}

func NewGateway(logger logging.Logger, lister RequestLister, b bus.Bus) *Gateway {
	return &Gateway{
		logger: logger,
		lister: lister,
		bus:    b,
	}
}

// Subscribe streams every request whose signer snapshot intersects
// accountKeys: first the stored requests created after the cursor, then live
// bus events. The live subscription is taken out before the backfill query
// runs, so events published in between are buffered rather than lost;
// duplicates across the seam are dropped by comparing update timestamps.
//
// The returned channel is closed when ctx is cancelled. Each emitted
// request's own Cursor is a valid resumption point.
func (g *Gateway) Subscribe(ctx context.Context, accountKeys []string, cursor string) (<-chan *entity.SignatureRequestInfo, error) {
	sub, err := g.bus.Subscribe(ctx, bus.Topics()...)
	if err != nil {
		return nil, err
	}

	backfill, err := g.backfill(ctx, accountKeys, cursor)
	if err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan *entity.SignatureRequestInfo, backfillPageSize)
	go g.run(ctx, sub, accountKeys, backfill, out)
	return out, nil
}

func (g *Gateway) backfill(ctx context.Context, accountKeys []string, cursor string) ([]*entity.SignatureRequestInfo, error) {
	var res []*entity.SignatureRequestInfo
	for {
		page, err := g.lister.ListRequestsForAccounts(ctx, accountKeys, cursor, backfillPageSize)
		if err != nil {
			return nil, err
		}
		res = append(res, page...)
		if len(page) < backfillPageSize {
			return res, nil
		}
		cursor = page[len(page)-1].Cursor
	}
}

func (g *Gateway) run(ctx context.Context, sub bus.Subscription, accountKeys []string, backfill []*entity.SignatureRequestInfo, out chan<- *entity.SignatureRequestInfo) {
	defer close(out)
	defer sub.Close()

	// seen records the backfilled state per request, so that a bus event
	// buffered while the backfill query ran is recognized as already
	// delivered while a genuinely newer update still passes
	seen := make(map[string]time.Time, len(backfill))
	for _, info := range backfill {
		seen[info.Hash] = info.UpdatedAt
		if !emit(ctx, out, info) {
			return
		}
	}

	interest := make(map[string]bool, len(accountKeys))
	for _, key := range accountKeys {
		interest[key] = true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Event == nil || ev.Event.Request == nil {
				continue
			}
			if !intersects(ev.Event.SignerKeys, interest) {
				continue
			}
			info := ev.Event.Request
			if backfilled, ok := seen[info.Hash]; ok && !info.UpdatedAt.After(backfilled) {
				continue
			}
			delete(seen, info.Hash)
			if !emit(ctx, out, info) {
				return
			}
		}
	}
}

func emit(ctx context.Context, out chan<- *entity.SignatureRequestInfo, info *entity.SignatureRequestInfo) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- info:
		return true
	}
}

func intersects(keys []string, interest map[string]bool) bool {
	for _, key := range keys {
		if interest[key] {
			return true
		}
	}
	return false
}
