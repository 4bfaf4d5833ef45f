// Package coordinator implements the signature collation and authorization
// engine: request creation, idempotent signature accumulation, weighted
// threshold evaluation and submission of sufficiently signed transactions.
package coordinator

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/stellar-multisig/coordinator/bus"
	"github.com/stellar-multisig/coordinator/config"
	"github.com/stellar-multisig/coordinator/db"
	"github.com/stellar-multisig/coordinator/entity"
	"github.com/stellar-multisig/coordinator/logging"
	"github.com/stellar-multisig/coordinator/repository"
	"github.com/stellar-multisig/coordinator/stellar"
)

const (
	defaultListLimit = 100
	maxListLimit     = 200
)

type Coordinator struct {
	logger     logging.Logger
	repo       *repository.Repo
	inTx       repository.TxFunc
	bus        bus.Bus
	clients    stellar.Registry
	cfg        *config.Config
	httpClient *http.Client
	now        func() time.Time
}

func New(logger logging.Logger, repo *repository.Repo, inTx repository.TxFunc, b bus.Bus, clients stellar.Registry, cfg *config.Config) *Coordinator {
	return &Coordinator{
		logger:     logger,
		repo:       repo,
		inTx:       inTx,
		bus:        b,
		clients:    clients,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.SubmitTimeout},
		now:        time.Now,
	}
}

func (c *Coordinator) GetRequestByHash(ctx context.Context, hash string) (*entity.SignatureRequestInfo, error) {
	req, err := c.repo.SignatureRequests.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, NotFoundf(err, "signature request not found: %s", hash)
		}
		return nil, err
	}
	info, _, err := c.serializeRequest(ctx, c.repo, req)
	return info, err
}

func (c *Coordinator) ListRequestsForAccounts(ctx context.Context, accountIDs []string, cursor string, limit uint64) ([]*entity.SignatureRequestInfo, error) {
	createdAfter, err := ParseCursor(cursor)
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	reqs, err := c.repo.SignatureRequests.FindBySigners(ctx, accountIDs, createdAfter, limit)
	if err != nil {
		return nil, err
	}
	infos := make([]*entity.SignatureRequestInfo, 0, len(reqs))
	for _, req := range reqs {
		info, _, err := c.serializeRequest(ctx, c.repo, req)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ParseCursor decodes a pagination cursor as produced in
// SignatureRequestInfo.Cursor, the unix millisecond creation timestamp of
// the last seen request. An empty cursor means "from the beginning".
func ParseCursor(cursor string) (time.Time, error) {
	if cursor == "" {
		return time.Time{}, nil
	}
	millis, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return time.Time{}, InvalidInputf(err, "can't parse cursor %q", cursor)
	}
	return time.UnixMilli(millis).UTC(), nil
}

// serializeRequest builds the read-side view of a request plus the full
// signer key set used for notification filtering.
func (c *Coordinator) serializeRequest(ctx context.Context, repo *repository.Repo, req *entity.SignatureRequest) (*entity.SignatureRequestInfo, []string, error) {
	signatures, err := repo.Signatures.FindByRequestID(ctx, req.ID)
	if err != nil {
		return nil, nil, err
	}
	signers, err := repo.Signers.FindByRequestID(ctx, req.ID)
	if err != nil {
		return nil, nil, err
	}

	signedBy := make([]string, 0, len(signatures))
	for _, sig := range signatures {
		signedBy = append(signedBy, sig.SignerAccountID)
	}
	signerKeys := dedupe(signerAccountIDs(signers))
	return req.Serialize(c.now(), signedBy), signerKeys, nil
}

func (c *Coordinator) publish(ctx context.Context, topic bus.Topic, info *entity.SignatureRequestInfo, signerKeys []string) {
	err := c.bus.Publish(ctx, topic, &bus.Event{
		Request:    info,
		SignerKeys: signerKeys,
	})
	if err != nil {
		c.logger.WithError(err).WithField("topic", topic).Error("can't publish notification")
	}
}

func signerAccountIDs(signers []*entity.Signer) []string {
	ids := make([]string, 0, len(signers))
	for _, signer := range signers {
		ids = append(ids, signer.AccountID)
	}
	return ids
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	res := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			res = append(res, v)
		}
	}
	return res
}

func contains(values []string, needle string) bool {
	for _, v := range values {
		if v == needle {
			return true
		}
	}
	return false
}
