package repository

import (
	"context"

	"github.com/stellar-multisig/coordinator/db"
	"github.com/stellar-multisig/coordinator/entity"
	"github.com/stellar-multisig/coordinator/repository/postgres"
)

type Repo struct {
	SignatureRequests entity.SignatureRequestsRepo
	SourceAccounts    entity.SourceAccountsRepo
	Signers           entity.SignersRepo
	Signatures        entity.SignaturesRepo
}

func NewRepo(e db.Executor) *Repo {
	return &Repo{
		SignatureRequests: postgres.NewSignatureRequestsRepo("signature_requests", e),
		SourceAccounts:    postgres.NewSourceAccountsRepo("source_accounts", e),
		Signers:           postgres.NewSignersRepo("signers", e),
		Signatures:        postgres.NewSignaturesRepo("signatures", e),
	}
}

// TxFunc runs cb with a Repo bound to a single database transaction. The
// transaction commits iff cb returns nil.
type TxFunc func(ctx context.Context, cb func(repo *Repo) error) error

func NewTxFunc(dbConn *db.DB) TxFunc {
	return func(ctx context.Context, cb func(repo *Repo) error) error {
		return dbConn.RunInTransaction(ctx, func(e db.Executor) error {
			return cb(NewRepo(e))
		})
	}
}
