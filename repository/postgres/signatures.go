package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/stellar-multisig/coordinator/db"
	"github.com/stellar-multisig/coordinator/entity"
)

type signaturesRepo basePostgresRepo

func NewSignaturesRepo(table string, db db.Executor) entity.SignaturesRepo {
	return (*signaturesRepo)(newBasePostgresRepo(table, db))
}

func (r *signaturesRepo) InsertIfAbsent(ctx context.Context, sig *entity.Signature) (bool, error) {
	q, args, err := sq.Insert(r.table).
		Columns("signature_request", "signer_account_id", "signature").
		Values(sig.SignatureRequest, sig.SignerAccountID, sig.Signature).
		Suffix("ON CONFLICT (signature_request, signer_account_id) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("can't build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("can't insert signature: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("can't get affected rows: %w", err)
	}
	return inserted > 0, nil
}

func (r *signaturesRepo) FindByRequestID(ctx context.Context, requestID uuid.UUID) ([]*entity.Signature, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"signature_request": requestID}).
		OrderBy("created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	sigs := make([]*entity.Signature, 0, 4)
	err = r.db.SelectContext(ctx, &sigs, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get signatures: %w", err)
	}
	return sigs, nil
}
