package stellar

import (
	"errors"
	"fmt"
	"time"

	"github.com/stellar/go/txnbuild"
)

var ErrFeeBumpNotSupported = errors.New("fee bump transactions are not supported")

// ParseTransaction decodes a base64 transaction envelope.
func ParseTransaction(envelopeXDR string) (*txnbuild.Transaction, error) {
	generic, err := txnbuild.TransactionFromXDR(envelopeXDR)
	if err != nil {
		return nil, fmt.Errorf("can't parse transaction envelope: %w", err)
	}
	tx, ok := generic.Transaction()
	if !ok {
		return nil, ErrFeeBumpNotSupported
	}
	return tx, nil
}

// SourceAccounts returns the deduplicated set of accounts whose authorization
// the transaction requires: the top-level source plus any per-operation
// source overrides, in first-appearance order.
func SourceAccounts(tx *txnbuild.Transaction) []string {
	seen := make(map[string]bool)
	sources := make([]string, 0, 1+len(tx.Operations()))
	add := func(account string) {
		if account != "" && !seen[account] {
			seen[account] = true
			sources = append(sources, account)
		}
	}
	add(tx.SourceAccount().AccountID)
	for _, op := range tx.Operations() {
		add(op.GetSourceAccount())
	}
	return sources
}

// UpperTimeBound returns the transaction's upper validity bound, or the zero
// time when the transaction doesn't declare one.
func UpperTimeBound(tx *txnbuild.Transaction) time.Time {
	maxTime := tx.Timebounds().MaxTime
	if maxTime <= 0 {
		return time.Time{}
	}
	return time.Unix(maxTime, 0).UTC()
}

// SigningPayload is the hash all signatures of the transaction are made
// over on the given network.
func SigningPayload(tx *txnbuild.Transaction, networkPassphrase string) ([]byte, error) {
	hash, err := tx.Hash(networkPassphrase)
	if err != nil {
		return nil, fmt.Errorf("can't hash transaction: %w", err)
	}
	return hash[:], nil
}
