package entity

import (
	"context"

	"github.com/google/uuid"
)

// SourceAccount is a point-in-time snapshot of a ledger account whose
// authorization the transaction requires. It is owned by its signature
// request and never updated, later on-chain signer changes do not affect
// in-flight requests.
type SourceAccount struct {
	SignatureRequest   uuid.UUID `db:"signature_request"`
	AccountID          string    `db:"account_id"`
	KeyWeightThreshold int32     `db:"key_weight_threshold"`
}

type SourceAccountsRepo interface {
	Insert(ctx context.Context, accounts ...*SourceAccount) error
	FindByRequestID(ctx context.Context, requestID uuid.UUID) ([]*SourceAccount, error)
}
