package coordinator

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/stellar-multisig/coordinator/bus"
	"github.com/stellar-multisig/coordinator/db"
	"github.com/stellar-multisig/coordinator/entity"
	"github.com/stellar-multisig/coordinator/repository"
	"github.com/stellar-multisig/coordinator/sep7"
	"github.com/stellar-multisig/coordinator/stellar"
)

// CollateSignature verifies one cosigner contribution and folds it into the
// request. signerKey may be empty when the signature is a decorated one, the
// signer is then recovered from the signature's key hint.
//
// The insert and the sufficiency re-evaluation run in a single database
// transaction so that each collation attempt observes a consistent snapshot
// of all signatures accumulated so far.
func (c *Coordinator) CollateSignature(ctx context.Context, hash, signatureB64, signerKey string) (*entity.SignatureRequestInfo, error) {
	var (
		info       *entity.SignatureRequestInfo
		signerKeys []string
	)
	err := c.inTx(ctx, func(repo *repository.Repo) error {
		req, err := repo.SignatureRequests.GetByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return NotFoundf(err, "signature request not found: %s", hash)
			}
			return err
		}
		if req.IsStale(c.now()) {
			return Conflictf("transaction is stale")
		}
		switch req.Status {
		case entity.StatusReady:
			return Conflictf("request is already sufficiently signed")
		case entity.StatusSubmitted, entity.StatusFailed:
			return Conflictf("request is already finalized as %s", req.Status)
		}

		sourceAccounts, err := repo.SourceAccounts.FindByRequestID(ctx, req.ID)
		if err != nil {
			return err
		}
		signers, err := repo.Signers.FindByRequestID(ctx, req.ID)
		if err != nil {
			return err
		}

		payload, err := c.signingPayload(req)
		if err != nil {
			return err
		}
		sig, hint, err := stellar.DecodeSignature(signatureB64)
		if err != nil {
			return InvalidInputf(err, "can't decode signature")
		}
		signerKey, err = c.resolveSigner(signerKey, hint, sourceAccounts, signers)
		if err != nil {
			return err
		}
		if err = stellar.VerifySignature(signerKey, payload, sig); err != nil {
			return Unauthorizedf(err, "invalid signature")
		}

		inserted, err := repo.Signatures.InsertIfAbsent(ctx, &entity.Signature{
			SignatureRequest: req.ID,
			SignerAccountID:  signerKey,
			Signature:        base64.StdEncoding.EncodeToString(sig),
		})
		if err != nil {
			return err
		}
		if !inserted {
			return Conflictf("%s has already signed this request", signerKey)
		}

		signatures, err := repo.Signatures.FindByRequestID(ctx, req.ID)
		if err != nil {
			return err
		}
		sufficient, err := HasSufficientSignatures(sourceAccounts, signers, signatures)
		if err != nil {
			return err
		}
		if sufficient {
			if err = repo.SignatureRequests.SetStatus(ctx, req.ID, entity.StatusReady, nil); err != nil {
				return err
			}
			req.Status = entity.StatusReady
			req.UpdatedAt = c.now()
		}

		info, signerKeys, err = c.serializeRequest(ctx, repo, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.publish(ctx, bus.TopicRequestUpdated, info, signerKeys)
	return info, nil
}

// signingPayload recovers the transaction hash all signatures are made over
// from the stored descriptor.
func (c *Coordinator) signingPayload(req *entity.SignatureRequest) ([]byte, error) {
	desc, err := sep7.Parse(req.RequestURI)
	if err != nil {
		return nil, err
	}
	client, err := c.clients.Get(desc.NetworkPassphrase)
	if err != nil {
		return nil, err
	}
	tx, err := stellar.ParseTransaction(desc.XDR)
	if err != nil {
		return nil, err
	}
	return stellar.SigningPayload(tx, client.NetworkPassphrase())
}
