package coordinator

import (
	"fmt"

	"github.com/stellar-multisig/coordinator/entity"
)

// HasSufficientSignatures decides whether the collected signatures satisfy
// the request: for every source account, the summed weight of its snapshot
// signers that contributed a signature must reach the account's snapshotted
// weight threshold.
//
// The single snapshotted threshold is always used. A non-positive threshold
// is a data integrity fault and yields an error, never an auto-pass.
// Signers with weight 0 contribute nothing.
func HasSufficientSignatures(sourceAccounts []*entity.SourceAccount, signers []*entity.Signer, signatures []*entity.Signature) (bool, error) {
	signedBy := make(map[string]bool, len(signatures))
	for _, sig := range signatures {
		signedBy[sig.SignerAccountID] = true
	}

	for _, account := range sourceAccounts {
		if account.KeyWeightThreshold <= 0 {
			return false, fmt.Errorf("source account %s has a non-positive weight threshold %d", account.AccountID, account.KeyWeightThreshold)
		}
		var weight int32
		for _, signer := range signers {
			if signer.SourceAccountID != account.AccountID || signer.KeyWeight <= 0 {
				continue
			}
			if signedBy[signer.AccountID] {
				weight += signer.KeyWeight
			}
		}
		if weight < account.KeyWeightThreshold {
			return false, nil
		}
	}
	return true, nil
}
