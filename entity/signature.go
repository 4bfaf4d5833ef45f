package entity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Signature is one collected contribution, at most one per signer and
// request. The signature itself is the base64 encoded raw signature over
// the transaction's signing payload.
type Signature struct {
	SignatureRequest uuid.UUID `db:"signature_request"`
	SignerAccountID  string    `db:"signer_account_id"`
	Signature        string    `db:"signature"`
	CreatedAt        time.Time `db:"created_at"`
}

type SignaturesRepo interface {
	// InsertIfAbsent persists the signature and reports whether it was
	// actually inserted. A concurrent duplicate observes false, not an
	// error.
	InsertIfAbsent(ctx context.Context, sig *Signature) (bool, error)
	FindByRequestID(ctx context.Context, requestID uuid.UUID) ([]*Signature, error)
}
