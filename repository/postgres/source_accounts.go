package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/stellar-multisig/coordinator/db"
	"github.com/stellar-multisig/coordinator/entity"
)

type sourceAccountsRepo basePostgresRepo

func NewSourceAccountsRepo(table string, db db.Executor) entity.SourceAccountsRepo {
	return (*sourceAccountsRepo)(newBasePostgresRepo(table, db))
}

func (r *sourceAccountsRepo) Insert(ctx context.Context, accounts ...*entity.SourceAccount) error {
	builder := sq.Insert(r.table).
		Columns("signature_request", "account_id", "key_weight_threshold")
	for _, account := range accounts {
		builder = builder.Values(account.SignatureRequest, account.AccountID, account.KeyWeightThreshold)
	}
	q, args, err := builder.
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert source accounts: %w", err)
	}
	return nil
}

func (r *sourceAccountsRepo) FindByRequestID(ctx context.Context, requestID uuid.UUID) ([]*entity.SourceAccount, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"signature_request": requestID}).
		OrderBy("account_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	accounts := make([]*entity.SourceAccount, 0, 2)
	err = r.db.SelectContext(ctx, &accounts, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get source accounts: %w", err)
	}
	return accounts, nil
}
