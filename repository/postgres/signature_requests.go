package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/stellar-multisig/coordinator/db"
	"github.com/stellar-multisig/coordinator/entity"
)

type signatureRequestsRepo basePostgresRepo

func NewSignatureRequestsRepo(table string, db db.Executor) entity.SignatureRequestsRepo {
	return (*signatureRequestsRepo)(newBasePostgresRepo(table, db))
}

func (r *signatureRequestsRepo) CreateIfAbsent(ctx context.Context, req *entity.SignatureRequest) (*entity.SignatureRequest, bool, error) {
	q, args, err := sq.Insert(r.table).
		Columns("id", "hash", "req", "source_req", "status", "expires_at").
		Values(req.ID, strings.ToLower(req.Hash), req.RequestURI, req.SourceRequestURI, req.Status, req.ExpiresAt).
		Suffix("ON CONFLICT (hash) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("can't build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, false, fmt.Errorf("can't insert signature request: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("can't get affected rows: %w", err)
	}
	// re-read in both cases so that concurrent identical submissions all
	// observe the winning row
	winner, err := r.GetByHash(ctx, req.Hash)
	if err != nil {
		return nil, false, err
	}
	return winner, inserted > 0, nil
}

func (r *signatureRequestsRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.SignatureRequest, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	req := new(entity.SignatureRequest)
	err = r.db.GetContext(ctx, req, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get signature request by id: %w", err)
	}
	return req, nil
}

func (r *signatureRequestsRepo) GetByHash(ctx context.Context, hash string) (*entity.SignatureRequest, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"hash": strings.ToLower(hash)}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	req := new(entity.SignatureRequest)
	err = r.db.GetContext(ctx, req, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get signature request by hash: %w", err)
	}
	return req, nil
}

func (r *signatureRequestsRepo) SetStatus(ctx context.Context, id uuid.UUID, status entity.SignatureRequestStatus, reqError *entity.RequestError) error {
	q, args, err := sq.Update(r.table).
		Set("status", status).
		Set("error", reqError).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't update signature request status: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("can't get affected rows: %w", err)
	}
	if updated == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *signatureRequestsRepo) FindBySigners(ctx context.Context, accountIDs []string, createdAfter time.Time, limit uint64) ([]*entity.SignatureRequest, error) {
	q, args, err := sq.Select(r.table+".*").
		From(r.table).
		Where(fmt.Sprintf(`EXISTS (
			SELECT 1 FROM signers
			WHERE signers.signature_request = %s.id
			AND signers.account_id = ANY(?)
		)`, r.table), pq.Array(accountIDs)).
		Where(sq.Gt{"created_at": createdAfter}).
		OrderBy("created_at").
		Limit(limit).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	reqs := make([]*entity.SignatureRequest, 0, 10)
	err = r.db.SelectContext(ctx, &reqs, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get signature requests by signers: %w", err)
	}
	return reqs, nil
}
