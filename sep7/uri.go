// Package sep7 implements the web+stellar:tx request URI format used to
// describe a signature request: the base64 transaction envelope plus routing
// metadata such as the callback target and the network selector.
package sep7

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	Scheme      = "web+stellar:"
	OperationTx = "tx"

	callbackURLPrefix = "url:"
)

var (
	ErrInvalidScheme        = errors.New("expected request to start with 'web+stellar:'")
	ErrUnsupportedOperation = errors.New("only the 'tx' operation is supported")
	ErrMissingXDR           = errors.New("missing mandatory parameter in request URI: xdr")
)

// TxRequest is the parsed descriptor of one signature request. Known SEP-7
// parameters are typed, anything else is kept verbatim in Extra so that
// re-encoding stays lossless and the idempotency hash stays well-defined.
type TxRequest struct {
	XDR               string
	Callback          string
	Pubkey            string
	Message           string
	NetworkPassphrase string
	OriginDomain      string
	Signature         string
	Extra             url.Values
}

func Parse(requestURI string) (*TxRequest, error) {
	if !strings.HasPrefix(requestURI, Scheme) {
		return nil, ErrInvalidScheme
	}
	operation, rawQuery, _ := strings.Cut(strings.TrimPrefix(requestURI, Scheme), "?")
	if operation != OperationTx {
		return nil, ErrUnsupportedOperation
	}
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("can't parse request URI query: %w", err)
	}

	req := &TxRequest{
		XDR:               params.Get("xdr"),
		Callback:          strings.TrimPrefix(params.Get("callback"), callbackURLPrefix),
		Pubkey:            params.Get("pubkey"),
		Message:           params.Get("msg"),
		NetworkPassphrase: params.Get("network_passphrase"),
		OriginDomain:      params.Get("origin_domain"),
		Signature:         params.Get("signature"),
		Extra:             url.Values{},
	}
	for key, values := range params {
		switch key {
		case "xdr", "callback", "pubkey", "msg", "network_passphrase", "origin_domain", "signature":
		default:
			req.Extra[key] = values
		}
	}
	if req.XDR == "" {
		return nil, ErrMissingXDR
	}
	return req, nil
}

// Encode renders the canonical form of the descriptor. Parameters are
// emitted in sorted order, so two descriptors with the same content always
// encode to the same string.
func (r *TxRequest) Encode() string {
	params := url.Values{}
	for key, values := range r.Extra {
		params[key] = values
	}
	params.Set("xdr", r.XDR)
	setOptional(params, "callback", prefixCallback(r.Callback))
	setOptional(params, "pubkey", r.Pubkey)
	setOptional(params, "msg", r.Message)
	setOptional(params, "network_passphrase", r.NetworkPassphrase)
	setOptional(params, "origin_domain", r.OriginDomain)
	setOptional(params, "signature", r.Signature)
	return Scheme + OperationTx + "?" + params.Encode()
}

// Hash is the idempotency key of the descriptor: the lowercase hex sha256
// of its canonical encoding.
func (r *TxRequest) Hash() string {
	digest := sha256.Sum256([]byte(r.Encode()))
	return hex.EncodeToString(digest[:])
}

func prefixCallback(callback string) string {
	if callback == "" {
		return ""
	}
	return callbackURLPrefix + callback
}

func setOptional(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}
