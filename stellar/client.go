package stellar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stellar/go/clients/horizonclient"

	"github.com/stellar-multisig/coordinator/config"
)

// AccountSigner is one weighted key of an on-chain account.
type AccountSigner struct {
	Key    string
	Weight int32
}

// Account is the signer configuration of an on-chain account as reported by
// horizon at lookup time.
type Account struct {
	AccountID     string
	Signers       []AccountSigner
	HighThreshold int32
}

type Client interface {
	LoadAccount(ctx context.Context, accountID string) (*Account, error)
	SubmitURL() string
	NetworkPassphrase() string
}

type horizonClient struct {
	passphrase string
	url        string
	timeout    time.Duration
	client     *horizonclient.Client
}

func NewClient(cfg *config.NetworkConfig) Client {
	url := strings.TrimSuffix(cfg.HorizonURL, "/")
	return &horizonClient{
		passphrase: cfg.Passphrase,
		url:        url,
		timeout:    cfg.Timeout,
		client: &horizonclient.Client{
			HorizonURL: url,
			HTTP: &http.Client{
				Timeout: cfg.Timeout,
			},
		},
	}
}

func (c *horizonClient) LoadAccount(ctx context.Context, accountID string) (*Account, error) {
	defer ObserveDuration(c.url, "account_detail")()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record, err := c.client.AccountDetail(horizonclient.AccountRequest{AccountID: accountID})
	ObserveError(c.url, "account_detail", err)
	if err != nil {
		return nil, fmt.Errorf("can't load account %s from horizon: %w", accountID, err)
	}

	account := &Account{
		AccountID:     record.AccountID,
		Signers:       make([]AccountSigner, 0, len(record.Signers)),
		HighThreshold: int32(record.Thresholds.HighThreshold),
	}
	for _, signer := range record.Signers {
		account.Signers = append(account.Signers, AccountSigner{
			Key:    signer.Key,
			Weight: signer.Weight,
		})
	}
	return account, nil
}

func (c *horizonClient) SubmitURL() string {
	return c.url + "/transactions"
}

func (c *horizonClient) NetworkPassphrase() string {
	return c.passphrase
}

// Registry resolves the configured client for a network passphrase. An empty
// passphrase selects the default network.
type Registry interface {
	Get(passphrase string) (Client, error)
}

type clientRegistry struct {
	cfg     *config.Config
	clients map[string]Client
}

func NewRegistry(cfg *config.Config) Registry {
	clients := make(map[string]Client, len(cfg.Networks))
	for _, network := range cfg.Networks {
		clients[network.Passphrase] = NewClient(network)
	}
	return &clientRegistry{cfg: cfg, clients: clients}
}

func (r *clientRegistry) Get(passphrase string) (Client, error) {
	network := r.cfg.GetNetworkConfig(passphrase)
	if network == nil {
		return nil, fmt.Errorf("unknown network passphrase %q", passphrase)
	}
	return r.clients[network.Passphrase], nil
}
