package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/stellar/go/txnbuild"

	"github.com/stellar-multisig/coordinator/bus"
	"github.com/stellar-multisig/coordinator/db"
	"github.com/stellar-multisig/coordinator/entity"
	"github.com/stellar-multisig/coordinator/sep7"
	"github.com/stellar-multisig/coordinator/stellar"
)

// maxSubmitResponseSize caps how much of the delivery response is read and
// recorded, callbacks are not trusted to be well-behaved.
const maxSubmitResponseSize = 1 << 20

// SubmissionResult is the raw delivery outcome, returned to the caller for
// observability on top of the persisted status transition.
type SubmissionResult struct {
	Destination string `json:"destination"`
	StatusCode  int    `json:"status_code"`
	Body        string `json:"body"`
}

// SubmitRequest assembles the fully signed transaction and delivers it to
// the submitter's callback, or to horizon when the original request carried
// none. Sufficiency and expiry are re-checked against live rows here, the
// stored status is not trusted because collation may race with submission.
//
// Delivery failures are folded into the request as status failed with the
// failure detail recorded, a later call may retry the submission.
func (c *Coordinator) SubmitRequest(ctx context.Context, hash string) (*SubmissionResult, error) {
	req, err := c.repo.SignatureRequests.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, NotFoundf(err, "signature request not found: %s", hash)
		}
		return nil, err
	}
	if req.Status == entity.StatusSubmitted {
		return nil, Conflictf("request is already submitted")
	}
	if req.IsStale(c.now()) {
		return nil, Conflictf("transaction is stale")
	}

	sourceAccounts, err := c.repo.SourceAccounts.FindByRequestID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	signers, err := c.repo.Signers.FindByRequestID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	signatures, err := c.repo.Signatures.FindByRequestID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	sufficient, err := HasSufficientSignatures(sourceAccounts, signers, signatures)
	if err != nil {
		return nil, err
	}
	if !sufficient {
		return nil, Conflictf("request is not sufficiently signed yet")
	}

	envelope, client, err := c.assembleEnvelope(req, signatures)
	if err != nil {
		return nil, err
	}
	destination, form, err := c.deliveryTarget(req, client, envelope)
	if err != nil {
		return nil, err
	}

	result, err := c.deliver(ctx, destination, form)
	if err != nil {
		c.recordOutcome(ctx, req, entity.StatusFailed, &entity.RequestError{Message: err.Error()})
		return nil, UpstreamFailuref(err, "can't deliver transaction to %s", destination)
	}
	if result.StatusCode >= http.StatusBadRequest {
		c.recordOutcome(ctx, req, entity.StatusFailed, &entity.RequestError{
			Message: fmt.Sprintf("submission to %s failed with status %d", destination, result.StatusCode),
			Details: result.Body,
		})
		return result, nil
	}

	c.recordOutcome(ctx, req, entity.StatusSubmitted, nil)
	return result, nil
}

// assembleEnvelope attaches every stored signature to the original unsigned
// envelope and re-encodes it.
func (c *Coordinator) assembleEnvelope(req *entity.SignatureRequest, signatures []*entity.Signature) (string, stellar.Client, error) {
	desc, err := sep7.Parse(req.RequestURI)
	if err != nil {
		return "", nil, err
	}
	client, err := c.clients.Get(desc.NetworkPassphrase)
	if err != nil {
		return "", nil, err
	}
	tx, err := stellar.ParseTransaction(desc.XDR)
	if err != nil {
		return "", nil, err
	}
	tx, err = attachSignatures(tx, client.NetworkPassphrase(), signatures)
	if err != nil {
		return "", nil, err
	}
	envelope, err := tx.Base64()
	if err != nil {
		return "", nil, fmt.Errorf("can't encode signed envelope: %w", err)
	}
	return envelope, client, nil
}

func attachSignatures(tx *txnbuild.Transaction, networkPassphrase string, signatures []*entity.Signature) (*txnbuild.Transaction, error) {
	var err error
	for _, sig := range signatures {
		tx, err = tx.AddSignatureBase64(networkPassphrase, sig.SignerAccountID, sig.Signature)
		if err != nil {
			return nil, fmt.Errorf("can't attach signature of %s: %w", sig.SignerAccountID, err)
		}
	}
	return tx, nil
}

// deliveryTarget picks the submitter's original callback when one was given,
// falling back to horizon's native submission endpoint. The stored request
// URI carries our own patched callback, so the original one is recovered
// from source_req.
func (c *Coordinator) deliveryTarget(req *entity.SignatureRequest, client stellar.Client, envelope string) (string, url.Values, error) {
	source, err := sep7.Parse(req.SourceRequestURI)
	if err != nil {
		return "", nil, err
	}
	if source.Callback != "" {
		return source.Callback, url.Values{"xdr": {envelope}}, nil
	}
	return client.SubmitURL(), url.Values{"tx": {envelope}}, nil
}

func (c *Coordinator) deliver(ctx context.Context, destination string, form url.Values) (*SubmissionResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("can't build submission request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("can't submit transaction: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSubmitResponseSize))
	if err != nil {
		return nil, fmt.Errorf("can't read submission response: %w", err)
	}
	return &SubmissionResult{
		Destination: destination,
		StatusCode:  resp.StatusCode,
		Body:        string(body),
	}, nil
}

// recordOutcome persists the delivery outcome and notifies subscribers. The
// request's state must reflect the outcome for future readers even when the
// delivery itself failed.
func (c *Coordinator) recordOutcome(ctx context.Context, req *entity.SignatureRequest, status entity.SignatureRequestStatus, reqError *entity.RequestError) {
	if err := c.repo.SignatureRequests.SetStatus(ctx, req.ID, status, reqError); err != nil {
		c.logger.WithError(err).WithField("request", req.ID).Error("can't record submission outcome")
		return
	}
	updated, err := c.repo.SignatureRequests.GetByID(ctx, req.ID)
	if err != nil {
		c.logger.WithError(err).WithField("request", req.ID).Error("can't reload request after submission")
		return
	}

	info, signerKeys, err := c.serializeRequest(ctx, c.repo, updated)
	if err != nil {
		c.logger.WithError(err).WithField("request", req.ID).Error("can't serialize request for notification")
		return
	}
	c.publish(ctx, bus.TopicRequestUpdated, info, signerKeys)
}
