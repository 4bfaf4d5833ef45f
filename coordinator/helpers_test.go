package coordinator_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/require"

	"github.com/stellar-multisig/coordinator/bus"
	"github.com/stellar-multisig/coordinator/config"
	"github.com/stellar-multisig/coordinator/coordinator"
	"github.com/stellar-multisig/coordinator/db"
	"github.com/stellar-multisig/coordinator/entity"
	"github.com/stellar-multisig/coordinator/logging"
	"github.com/stellar-multisig/coordinator/repository"
	"github.com/stellar-multisig/coordinator/sep7"
	"github.com/stellar-multisig/coordinator/stellar"
)

// memStore is an in-memory stand-in for the Postgres repositories, close
// enough in semantics (idempotent inserts, hash uniqueness, creation-order
// listing) to exercise the engine without a database.
type memStore struct {
	mu             sync.Mutex
	requests       map[uuid.UUID]*entity.SignatureRequest
	byHash         map[string]uuid.UUID
	sourceAccounts map[uuid.UUID][]*entity.SourceAccount
	signers        map[uuid.UUID][]*entity.Signer
	signatures     map[uuid.UUID][]*entity.Signature
}

func newMemStore() *memStore {
	return &memStore{
		requests:       map[uuid.UUID]*entity.SignatureRequest{},
		byHash:         map[string]uuid.UUID{},
		sourceAccounts: map[uuid.UUID][]*entity.SourceAccount{},
		signers:        map[uuid.UUID][]*entity.Signer{},
		signatures:     map[uuid.UUID][]*entity.Signature{},
	}
}

func (s *memStore) repo() *repository.Repo {
	return &repository.Repo{
		SignatureRequests: (*memRequestsRepo)(s),
		SourceAccounts:    (*memSourceAccountsRepo)(s),
		Signers:           (*memSignersRepo)(s),
		Signatures:        (*memSignaturesRepo)(s),
	}
}

func (s *memStore) inTx() repository.TxFunc {
	return func(ctx context.Context, cb func(repo *repository.Repo) error) error {
		return cb(s.repo())
	}
}

type memRequestsRepo memStore

func (r *memRequestsRepo) CreateIfAbsent(ctx context.Context, req *entity.SignatureRequest) (*entity.SignatureRequest, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byHash[req.Hash]; ok {
		existing := *r.requests[id]
		return &existing, false, nil
	}
	stored := *req
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	r.requests[stored.ID] = &stored
	r.byHash[stored.Hash] = stored.ID
	res := stored
	return &res, true, nil
}

func (r *memRequestsRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.SignatureRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	res := *req
	return &res, nil
}

func (r *memRequestsRepo) GetByHash(ctx context.Context, hash string) (*entity.SignatureRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHash[strings.ToLower(hash)]
	if !ok {
		return nil, db.ErrNotFound
	}
	res := *r.requests[id]
	return &res, nil
}

func (r *memRequestsRepo) SetStatus(ctx context.Context, id uuid.UUID, status entity.SignatureRequestStatus, reqError *entity.RequestError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return db.ErrNotFound
	}
	req.Status = status
	req.Error = reqError
	req.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memRequestsRepo) FindBySigners(ctx context.Context, accountIDs []string, createdAfter time.Time, limit uint64) ([]*entity.SignatureRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range accountIDs {
		wanted[id] = true
	}
	var res []*entity.SignatureRequest
	for id, req := range r.requests {
		if !req.CreatedAt.After(createdAfter) {
			continue
		}
		for _, signer := range r.signers[id] {
			if wanted[signer.AccountID] {
				reqCopy := *req
				res = append(res, &reqCopy)
				break
			}
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	if uint64(len(res)) > limit {
		res = res[:limit]
	}
	return res, nil
}

type memSourceAccountsRepo memStore

func (r *memSourceAccountsRepo) Insert(ctx context.Context, accounts ...*entity.SourceAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range accounts {
		r.sourceAccounts[account.SignatureRequest] = append(r.sourceAccounts[account.SignatureRequest], account)
	}
	return nil
}

func (r *memSourceAccountsRepo) FindByRequestID(ctx context.Context, requestID uuid.UUID) ([]*entity.SourceAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.SourceAccount{}, r.sourceAccounts[requestID]...), nil
}

type memSignersRepo memStore

func (r *memSignersRepo) Insert(ctx context.Context, signers ...*entity.Signer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, signer := range signers {
		r.signers[signer.SignatureRequest] = append(r.signers[signer.SignatureRequest], signer)
	}
	return nil
}

func (r *memSignersRepo) FindByRequestID(ctx context.Context, requestID uuid.UUID) ([]*entity.Signer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.Signer{}, r.signers[requestID]...), nil
}

type memSignaturesRepo memStore

func (r *memSignaturesRepo) InsertIfAbsent(ctx context.Context, sig *entity.Signature) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.signatures[sig.SignatureRequest] {
		if existing.SignerAccountID == sig.SignerAccountID {
			return false, nil
		}
	}
	stored := *sig
	stored.CreatedAt = time.Now().UTC()
	r.signatures[sig.SignatureRequest] = append(r.signatures[sig.SignatureRequest], &stored)
	return true, nil
}

func (r *memSignaturesRepo) FindByRequestID(ctx context.Context, requestID uuid.UUID) ([]*entity.Signature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.Signature{}, r.signatures[requestID]...), nil
}

// fakeHorizon serves canned account snapshots instead of a live horizon.
type fakeHorizon struct {
	passphrase string
	submitURL  string
	accounts   map[string]*stellar.Account
}

func (f *fakeHorizon) LoadAccount(ctx context.Context, accountID string) (*stellar.Account, error) {
	account, ok := f.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s not found on horizon", accountID)
	}
	return account, nil
}

func (f *fakeHorizon) SubmitURL() string         { return f.submitURL }
func (f *fakeHorizon) NetworkPassphrase() string { return f.passphrase }

func (f *fakeHorizon) Get(passphrase string) (stellar.Client, error) {
	if passphrase == "" || passphrase == f.passphrase {
		return f, nil
	}
	return nil, fmt.Errorf("unknown network passphrase %q", passphrase)
}

func fakeSigner(kp *keypair.Full, weight int32) stellar.AccountSigner {
	return stellar.AccountSigner{Key: kp.Address(), Weight: weight}
}

// fixture wires a full engine around the in-memory store, a memory bus and a
// fake horizon with one source account.
type fixture struct {
	engine  *coordinator.Coordinator
	store   *memStore
	bus     *bus.MemoryBus
	horizon *fakeHorizon
	cfg     *config.Config

	master, signerX, signerY *keypair.Full
	source                   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:   newMemStore(),
		bus:     bus.NewMemoryBus(),
		master:  keypair.MustRandom(),
		signerX: keypair.MustRandom(),
		signerY: keypair.MustRandom(),
	}
	f.source = f.master.Address()
	f.horizon = &fakeHorizon{
		passphrase: network.TestNetworkPassphrase,
		submitURL:  "https://horizon.invalid/transactions",
		accounts: map[string]*stellar.Account{
			f.source: {
				AccountID:     f.source,
				HighThreshold: 2,
				Signers: []stellar.AccountSigner{
					{Key: f.signerX.Address(), Weight: 1},
					{Key: f.signerY.Address(), Weight: 1},
				},
			},
		},
	}
	f.cfg = &config.Config{
		BaseURL:       "https://multisig.example.com",
		TxMaxTTL:      config.DefaultTxMaxTTL,
		SubmitTimeout: config.DefaultSubmitTimeout,
	}
	f.engine = coordinator.New(logging.New(), f.store.repo(), f.store.inTx(), f.bus, f.horizon, f.cfg)
	return f
}

// buildTransaction produces an unsigned single-operation transaction for the
// fixture's source account.
func (f *fixture) buildTransaction(t *testing.T, maxTime int64) *txnbuild.Transaction {
	t.Helper()

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: f.source, Sequence: 1},
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{&txnbuild.BumpSequence{BumpTo: 10}},
		BaseFee:              txnbuild.MinBaseFee,
		Timebounds:           txnbuild.NewTimebounds(0, maxTime),
	})
	require.NoError(t, err)
	return tx
}

// requestURI encodes tx as a minimal web+stellar:tx descriptor.
func (f *fixture) requestURI(t *testing.T, tx *txnbuild.Transaction) string {
	t.Helper()

	xdr, err := tx.Base64()
	require.NoError(t, err)
	req := &sep7.TxRequest{
		XDR:               xdr,
		NetworkPassphrase: network.TestNetworkPassphrase,
	}
	return req.Encode()
}

// sign produces the base64 raw signature of kp over the transaction hash.
func (f *fixture) sign(t *testing.T, tx *txnbuild.Transaction, kp *keypair.Full) string {
	t.Helper()

	hash, err := tx.Hash(network.TestNetworkPassphrase)
	require.NoError(t, err)
	sig, err := kp.Sign(hash[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

// createPendingRequest runs the full creation flow with signerX founding and
// returns the created request together with its transaction.
func (f *fixture) createPendingRequest(t *testing.T) (*entity.SignatureRequestInfo, *txnbuild.Transaction) {
	t.Helper()

	tx := f.buildTransaction(t, time.Now().Add(time.Hour).Unix())
	uri := f.requestURI(t, tx)
	info, err := f.engine.CreateRequest(context.Background(), uri, f.sign(t, tx, f.signerX), f.signerX.Address())
	require.NoError(t, err)
	return info, tx
}
