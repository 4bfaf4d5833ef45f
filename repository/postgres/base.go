package postgres

import (
	"github.com/stellar-multisig/coordinator/db"
)

type basePostgresRepo struct {
	table string
	db    db.Executor
}

func newBasePostgresRepo(table string, db db.Executor) *basePostgresRepo {
	return &basePostgresRepo{
		table: table,
		db:    db,
	}
}
