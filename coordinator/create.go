package coordinator

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/stellar-multisig/coordinator/bus"
	"github.com/stellar-multisig/coordinator/entity"
	"github.com/stellar-multisig/coordinator/repository"
	"github.com/stellar-multisig/coordinator/sep7"
	"github.com/stellar-multisig/coordinator/stellar"
)

// CreateRequest starts a new signature collation ceremony from a web+stellar
// transaction descriptor, one founding signature and the claimed signer key.
// The signer sets and thresholds of every transaction source account are
// snapshotted from horizon at this point and never refreshed afterwards.
//
// Creation is idempotent on the sha256 hash of the canonical descriptor: a
// repeated call returns the already stored request without touching it.
func (c *Coordinator) CreateRequest(ctx context.Context, requestURI, signatureB64, signerKey string) (*entity.SignatureRequestInfo, error) {
	req, err := sep7.Parse(requestURI)
	if err != nil {
		return nil, InvalidInputf(err, "can't parse request URI")
	}
	hash := req.Hash()

	client, err := c.clients.Get(req.NetworkPassphrase)
	if err != nil {
		return nil, InvalidInputf(err, "unsupported network")
	}

	tx, err := stellar.ParseTransaction(req.XDR)
	if err != nil {
		return nil, InvalidInputf(err, "can't parse transaction")
	}
	if len(tx.Signatures()) > 0 {
		return nil, InvalidInputf(nil, "transaction must be submitted unsigned, pass the founding signature separately")
	}

	requestID := uuid.New()
	sourceAccounts, signers, err := c.snapshotAccounts(ctx, client, requestID, stellar.SourceAccounts(tx))
	if err != nil {
		return nil, err
	}
	for _, account := range sourceAccounts {
		if account.KeyWeightThreshold <= 0 {
			return nil, InvalidInputf(nil, "source account %s has a non-positive signature threshold", account.AccountID)
		}
	}

	payload, err := stellar.SigningPayload(tx, client.NetworkPassphrase())
	if err != nil {
		return nil, InvalidInputf(err, "can't compute signing payload")
	}
	sig, hint, err := stellar.DecodeSignature(signatureB64)
	if err != nil {
		return nil, InvalidInputf(err, "can't decode founding signature")
	}
	signerKey, err = c.resolveSigner(signerKey, hint, sourceAccounts, signers)
	if err != nil {
		return nil, err
	}
	if err = stellar.VerifySignature(signerKey, payload, sig); err != nil {
		return nil, Unauthorizedf(err, "invalid founding signature")
	}

	foundingSignature := &entity.Signature{
		SignatureRequest: requestID,
		SignerAccountID:  signerKey,
		Signature:        base64.StdEncoding.EncodeToString(sig),
	}
	sufficient, err := HasSufficientSignatures(sourceAccounts, signers, []*entity.Signature{foundingSignature})
	if err != nil {
		return nil, err
	}
	if sufficient {
		return nil, Conflictf("transaction is already sufficiently signed, nothing to coordinate")
	}

	expiresAt := stellar.UpperTimeBound(tx)
	if expiresAt.IsZero() {
		return nil, InvalidInputf(nil, "transaction must declare an upper time bound")
	}
	maxExpiresAt := c.now().Add(c.cfg.TxMaxTTL)
	if expiresAt.After(maxExpiresAt) {
		return nil, InvalidInputf(nil, "transaction upper time bound exceeds the maximum of %s from now", c.cfg.TxMaxTTL)
	}

	stored, err := c.patchDescriptor(req, hash)
	if err != nil {
		return nil, err
	}

	var (
		info       *entity.SignatureRequestInfo
		signerKeys []string
		created    bool
	)
	err = c.inTx(ctx, func(repo *repository.Repo) error {
		winner, inserted, err := repo.SignatureRequests.CreateIfAbsent(ctx, &entity.SignatureRequest{
			ID:               requestID,
			Hash:             hash,
			RequestURI:       stored,
			SourceRequestURI: requestURI,
			Status:           entity.StatusPending,
			ExpiresAt:        expiresAt,
		})
		if err != nil {
			return err
		}
		created = inserted
		if !inserted {
			info, signerKeys, err = c.serializeRequest(ctx, repo, winner)
			return err
		}

		if err = repo.SourceAccounts.Insert(ctx, sourceAccounts...); err != nil {
			return err
		}
		if err = repo.Signers.Insert(ctx, signers...); err != nil {
			return err
		}
		if _, err = repo.Signatures.InsertIfAbsent(ctx, foundingSignature); err != nil {
			return err
		}
		info, signerKeys, err = c.serializeRequest(ctx, repo, winner)
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		c.publish(ctx, bus.TopicRequestCreated, info, signerKeys)
	}
	return info, nil
}

// snapshotAccounts loads every transaction source account from horizon and
// converts it into the persisted snapshot form. Lookup failures surface as
// upstream failures, no request row exists yet to record them against.
func (c *Coordinator) snapshotAccounts(ctx context.Context, client stellar.Client, requestID uuid.UUID, accountIDs []string) ([]*entity.SourceAccount, []*entity.Signer, error) {
	sourceAccounts := make([]*entity.SourceAccount, 0, len(accountIDs))
	var signers []*entity.Signer
	for _, accountID := range accountIDs {
		account, err := client.LoadAccount(ctx, accountID)
		if err != nil {
			return nil, nil, UpstreamFailuref(err, "can't load source account %s", accountID)
		}
		sourceAccounts = append(sourceAccounts, &entity.SourceAccount{
			SignatureRequest:   requestID,
			AccountID:          account.AccountID,
			KeyWeightThreshold: account.HighThreshold,
		})
		for _, signer := range account.Signers {
			signers = append(signers, &entity.Signer{
				SignatureRequest: requestID,
				SourceAccountID:  account.AccountID,
				AccountID:        signer.Key,
				KeyWeight:        signer.Weight,
			})
		}
	}
	return sourceAccounts, signers, nil
}

// resolveSigner checks the claimed signer against the snapshot, or recovers
// it from the signature's key hint when no key was claimed. A key that is
// not in the signer union still passes when it is one of the source accounts
// themselves, covering accounts whose master key weight was lowered to zero
// after delegating to other signers.
func (c *Coordinator) resolveSigner(signerKey string, hint []byte, sourceAccounts []*entity.SourceAccount, signers []*entity.Signer) (string, error) {
	candidates := dedupe(append(signerAccountIDs(signers), accountIDs(sourceAccounts)...))
	if signerKey == "" {
		if hint == nil {
			return "", InvalidInputf(nil, "raw signatures require an explicit signer key")
		}
		resolved, err := stellar.ResolveSigner(candidates, hint)
		if err != nil {
			return "", Unauthorizedf(err, "can't resolve signer by signature hint")
		}
		return resolved, nil
	}
	if !contains(candidates, signerKey) {
		return "", Unauthorizedf(nil, "%s is not a signer of the transaction's source accounts", signerKey)
	}
	return signerKey, nil
}

// patchDescriptor rewrites the stored copy of the descriptor so that
// cosigners are routed back to this service. The submitter's original URI
// stays untouched in source_req and keeps feeding the idempotency hash.
func (c *Coordinator) patchDescriptor(req *sep7.TxRequest, hash string) (string, error) {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("can't parse base URL: %w", err)
	}
	patched := *req
	patched.Callback = fmt.Sprintf("%s/transactions/%s/signatures", c.cfg.BaseURL, hash)
	patched.OriginDomain = base.Host
	return patched.Encode(), nil
}

func accountIDs(accounts []*entity.SourceAccount) []string {
	ids := make([]string, 0, len(accounts))
	for _, account := range accounts {
		ids = append(ids, account.AccountID)
	}
	return ids
}
