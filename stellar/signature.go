package stellar

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/xdr"
)

const rawSignatureLen = 64

var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrNoMatchingSigner   = errors.New("no signer matches the signature hint")
)

// DecodeSignature accepts either a raw ed25519 signature or a decorated
// signature (hint + signature) in base64 and returns the raw signature bytes
// plus the key hint, if one was carried.
func DecodeSignature(signatureB64 string) (sig, hint []byte, err error) {
	raw, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return nil, nil, fmt.Errorf("can't decode base64 signature: %w", err)
	}
	if len(raw) == rawSignatureLen {
		return raw, nil, nil
	}
	var decorated xdr.DecoratedSignature
	if err = xdr.SafeUnmarshalBase64(signatureB64, &decorated); err != nil {
		return nil, nil, fmt.Errorf("%w: neither a raw nor a decorated signature", ErrMalformedSignature)
	}
	return decorated.Signature, decorated.Hint[:], nil
}

// ResolveSigner finds the candidate public key whose hint matches the
// signature's key hint.
func ResolveSigner(candidates []string, hint []byte) (string, error) {
	for _, candidate := range candidates {
		kp, err := keypair.ParseAddress(candidate)
		if err != nil {
			return "", fmt.Errorf("can't parse signer public key %s: %w", candidate, err)
		}
		candidateHint := kp.Hint()
		if bytes.Equal(candidateHint[:], hint) {
			return candidate, nil
		}
	}
	return "", ErrNoMatchingSigner
}

// VerifySignature checks that sig is a valid signature of payload by the
// given public key.
func VerifySignature(signerKey string, payload, sig []byte) error {
	kp, err := keypair.ParseAddress(signerKey)
	if err != nil {
		return fmt.Errorf("can't parse signer public key %s: %w", signerKey, err)
	}
	if err = kp.Verify(payload, sig); err != nil {
		return fmt.Errorf("signature of %s doesn't verify: %w", signerKey, err)
	}
	return nil
}
