package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/stellar-multisig/coordinator/db"
	"github.com/stellar-multisig/coordinator/entity"
)

type signersRepo basePostgresRepo

func NewSignersRepo(table string, db db.Executor) entity.SignersRepo {
	return (*signersRepo)(newBasePostgresRepo(table, db))
}

func (r *signersRepo) Insert(ctx context.Context, signers ...*entity.Signer) error {
	builder := sq.Insert(r.table).
		Columns("signature_request", "source_account_id", "account_id", "key_weight")
	for _, signer := range signers {
		builder = builder.Values(signer.SignatureRequest, signer.SourceAccountID, signer.AccountID, signer.KeyWeight)
	}
	q, args, err := builder.
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert signers: %w", err)
	}
	return nil
}

func (r *signersRepo) FindByRequestID(ctx context.Context, requestID uuid.UUID) ([]*entity.Signer, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"signature_request": requestID}).
		OrderBy("source_account_id", "account_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	signers := make([]*entity.Signer, 0, 4)
	err = r.db.SelectContext(ctx, &signers, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get signers: %w", err)
	}
	return signers, nil
}
