package coordinator_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stellar-multisig/coordinator/coordinator"
	"github.com/stellar-multisig/coordinator/entity"
)

func sourceAccount(requestID uuid.UUID, accountID string, threshold int32) *entity.SourceAccount {
	return &entity.SourceAccount{
		SignatureRequest:   requestID,
		AccountID:          accountID,
		KeyWeightThreshold: threshold,
	}
}

func signer(requestID uuid.UUID, sourceAccountID, accountID string, weight int32) *entity.Signer {
	return &entity.Signer{
		SignatureRequest: requestID,
		SourceAccountID:  sourceAccountID,
		AccountID:        accountID,
		KeyWeight:        weight,
	}
}

func signature(requestID uuid.UUID, signerAccountID string) *entity.Signature {
	return &entity.Signature{
		SignatureRequest: requestID,
		SignerAccountID:  signerAccountID,
		Signature:        "c2lnbmF0dXJl",
	}
}

func TestHasSufficientSignatures(t *testing.T) {
	t.Parallel()

	requestID := uuid.New()
	accounts := []*entity.SourceAccount{sourceAccount(requestID, "GSOURCE", 2)}
	signers := []*entity.Signer{
		signer(requestID, "GSOURCE", "GX", 1),
		signer(requestID, "GSOURCE", "GY", 1),
	}

	sufficient, err := coordinator.HasSufficientSignatures(accounts, signers, nil)
	require.NoError(t, err)
	require.False(t, sufficient)

	withX := []*entity.Signature{signature(requestID, "GX")}
	sufficient, err = coordinator.HasSufficientSignatures(accounts, signers, withX)
	require.NoError(t, err)
	require.False(t, sufficient)

	withBoth := append(withX, signature(requestID, "GY"))
	sufficient, err = coordinator.HasSufficientSignatures(accounts, signers, withBoth)
	require.NoError(t, err)
	require.True(t, sufficient)
}

func TestHasSufficientSignaturesIsMonotone(t *testing.T) {
	t.Parallel()

	requestID := uuid.New()
	accounts := []*entity.SourceAccount{sourceAccount(requestID, "GSOURCE", 3)}
	signers := []*entity.Signer{
		signer(requestID, "GSOURCE", "GA", 2),
		signer(requestID, "GSOURCE", "GB", 1),
		signer(requestID, "GSOURCE", "GC", 1),
	}

	signatures := []*entity.Signature{
		signature(requestID, "GA"),
		signature(requestID, "GB"),
	}
	sufficient, err := coordinator.HasSufficientSignatures(accounts, signers, signatures)
	require.NoError(t, err)
	require.True(t, sufficient)

	// adding one more signature never turns true into false
	signatures = append(signatures, signature(requestID, "GC"))
	sufficient, err = coordinator.HasSufficientSignatures(accounts, signers, signatures)
	require.NoError(t, err)
	require.True(t, sufficient)
}

func TestHasSufficientSignaturesAllSourceAccountsMustClear(t *testing.T) {
	t.Parallel()

	requestID := uuid.New()
	accounts := []*entity.SourceAccount{
		sourceAccount(requestID, "GONE", 1),
		sourceAccount(requestID, "GTWO", 1),
	}
	signers := []*entity.Signer{
		signer(requestID, "GONE", "GX", 1),
		signer(requestID, "GTWO", "GY", 1),
		// the same key signs for both accounts
		signer(requestID, "GTWO", "GX", 1),
	}

	sufficient, err := coordinator.HasSufficientSignatures(accounts, signers, []*entity.Signature{signature(requestID, "GY")})
	require.NoError(t, err)
	require.False(t, sufficient)

	sufficient, err = coordinator.HasSufficientSignatures(accounts, signers, []*entity.Signature{signature(requestID, "GX")})
	require.NoError(t, err)
	require.True(t, sufficient)
}

func TestHasSufficientSignaturesIgnoresZeroWeightSigners(t *testing.T) {
	t.Parallel()

	requestID := uuid.New()
	accounts := []*entity.SourceAccount{sourceAccount(requestID, "GSOURCE", 1)}
	signers := []*entity.Signer{signer(requestID, "GSOURCE", "GMASTER", 0)}

	sufficient, err := coordinator.HasSufficientSignatures(accounts, signers, []*entity.Signature{signature(requestID, "GMASTER")})
	require.NoError(t, err)
	require.False(t, sufficient)
}

func TestHasSufficientSignaturesRejectsNonPositiveThreshold(t *testing.T) {
	t.Parallel()

	requestID := uuid.New()
	signers := []*entity.Signer{signer(requestID, "GSOURCE", "GX", 1)}
	signatures := []*entity.Signature{signature(requestID, "GX")}

	for _, threshold := range []int32{0, -1} {
		accounts := []*entity.SourceAccount{sourceAccount(requestID, "GSOURCE", threshold)}
		_, err := coordinator.HasSufficientSignatures(accounts, signers, signatures)
		require.Error(t, err)
	}
}
