package coordinator_test

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stretchr/testify/require"

	"github.com/stellar-multisig/coordinator/coordinator"
	"github.com/stellar-multisig/coordinator/entity"
)

func TestCollateSignatureReachesSufficiency(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created, tx := f.createPendingRequest(t)

	info, err := f.engine.CollateSignature(context.Background(), created.Hash, f.sign(t, tx, f.signerY), f.signerY.Address())
	require.NoError(t, err)
	require.Equal(t, entity.StatusReady, info.Status)
	require.ElementsMatch(t, []string{f.signerX.Address(), f.signerY.Address()}, info.SignedBy)
}

func TestCollateSignatureResolvesSignerByHint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created, tx := f.createPendingRequest(t)

	hash, err := tx.Hash(network.TestNetworkPassphrase)
	require.NoError(t, err)
	decorated, err := f.signerY.SignDecorated(hash[:])
	require.NoError(t, err)
	raw, err := decorated.MarshalBinary()
	require.NoError(t, err)

	info, err := f.engine.CollateSignature(context.Background(), created.Hash, base64.StdEncoding.EncodeToString(raw), "")
	require.NoError(t, err)
	require.Contains(t, info.SignedBy, f.signerY.Address())
}

func TestCollateSignatureUnknownSigner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created, tx := f.createPendingRequest(t)
	stranger := keypair.MustRandom()

	_, err := f.engine.CollateSignature(context.Background(), created.Hash, f.sign(t, tx, stranger), stranger.Address())
	require.Error(t, err)
	require.Equal(t, coordinator.KindUnauthorized, coordinator.KindOf(err))
}

func TestCollateSignatureInvalidSignature(t *testing.T) {
	t.Parallel()

	// a valid signature by the wrong key, claimed as signerY
	f := newFixture(t)
	created, tx := f.createPendingRequest(t)

	_, err := f.engine.CollateSignature(context.Background(), created.Hash, f.sign(t, tx, f.signerX), f.signerY.Address())
	require.Error(t, err)
	require.Equal(t, coordinator.KindUnauthorized, coordinator.KindOf(err))
}

func TestCollateSignatureDuplicate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created, tx := f.createPendingRequest(t)

	_, err := f.engine.CollateSignature(context.Background(), created.Hash, f.sign(t, tx, f.signerX), f.signerX.Address())
	require.Error(t, err)
	require.Equal(t, coordinator.KindConflict, coordinator.KindOf(err))
}

func TestCollateSignatureRejectsReadyRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.horizon.accounts[f.source].HighThreshold = 3
	extra := keypair.MustRandom()
	f.horizon.accounts[f.source].Signers = append(f.horizon.accounts[f.source].Signers, fakeSigner(extra, 2))

	created, tx := f.createPendingRequest(t)
	info, err := f.engine.CollateSignature(context.Background(), created.Hash, f.sign(t, tx, extra), extra.Address())
	require.NoError(t, err)
	require.Equal(t, entity.StatusReady, info.Status)

	_, err = f.engine.CollateSignature(context.Background(), created.Hash, f.sign(t, tx, f.signerY), f.signerY.Address())
	require.Error(t, err)
	require.Equal(t, coordinator.KindConflict, coordinator.KindOf(err))
}

func TestCollateSignatureUnknownRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.engine.CollateSignature(context.Background(), "deadbeef", "c2ln", "")
	require.Error(t, err)
	require.Equal(t, coordinator.KindNotFound, coordinator.KindOf(err))
}
