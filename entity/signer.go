package entity

import (
	"context"

	"github.com/google/uuid"
)

// Signer is one weighted key authorized to sign for a source account,
// snapshotted at request creation time. The same account id may appear as a
// signer of several source accounts within one request.
type Signer struct {
	SignatureRequest uuid.UUID `db:"signature_request"`
	SourceAccountID  string    `db:"source_account_id"`
	AccountID        string    `db:"account_id"`
	KeyWeight        int32     `db:"key_weight"`
}

type SignersRepo interface {
	Insert(ctx context.Context, signers ...*Signer) error
	FindByRequestID(ctx context.Context, requestID uuid.UUID) ([]*Signer, error)
}
