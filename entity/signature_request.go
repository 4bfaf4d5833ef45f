package entity

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type SignatureRequestStatus string

const (
	StatusPending   SignatureRequestStatus = "pending"
	StatusReady     SignatureRequestStatus = "ready"
	StatusSubmitted SignatureRequestStatus = "submitted"
	StatusFailed    SignatureRequestStatus = "failed"
)

type RequestError struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *RequestError) Value() (driver.Value, error) {
	if e == nil {
		return nil, nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("can't marshal request error: %w", err)
	}
	return raw, nil
}

func (e *RequestError) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, e)
	case string:
		return json.Unmarshal([]byte(v), e)
	default:
		return fmt.Errorf("can't scan %T into RequestError", src)
	}
}

// SignatureRequest is one multisig coordination ceremony for one transaction.
// Hash is the lowercase hex sha256 of the submitter's original request URI
// and serves as the external idempotency key.
type SignatureRequest struct {
	ID               uuid.UUID              `db:"id"`
	Hash             string                 `db:"hash"`
	RequestURI       string                 `db:"req"`
	SourceRequestURI string                 `db:"source_req"`
	Status           SignatureRequestStatus `db:"status"`
	Error            *RequestError          `db:"error"`
	CreatedAt        time.Time              `db:"created_at"`
	UpdatedAt        time.Time              `db:"updated_at"`
	ExpiresAt        time.Time              `db:"expires_at"`
}

// IsStale reports whether the request's transaction timed out before being
// submitted to the network. Staleness is never persisted, it is derived on
// every read from expires_at, so no background expiry sweep is needed.
func (r *SignatureRequest) IsStale(now time.Time) bool {
	return r.Status != StatusSubmitted && now.After(r.ExpiresAt)
}

type SignatureRequestInfo struct {
	Cursor     string                 `json:"cursor"`
	Hash       string                 `json:"hash"`
	RequestURI string                 `json:"req"`
	Status     SignatureRequestStatus `json:"status"`
	Error      *RequestError          `json:"error"`
	SignedBy   []string               `json:"signed_by"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Serialize builds the read-side view of the request. A stale request is
// presented as failed without mutating the stored row.
func (r *SignatureRequest) Serialize(now time.Time, signedBy []string) *SignatureRequestInfo {
	status, reqError := r.Status, r.Error
	if r.IsStale(now) {
		status = StatusFailed
		reqError = &RequestError{Message: "Transaction is stale"}
	}
	if signedBy == nil {
		signedBy = []string{}
	}
	return &SignatureRequestInfo{
		Cursor:     strconv.FormatInt(r.CreatedAt.UnixMilli(), 10),
		Hash:       r.Hash,
		RequestURI: r.RequestURI,
		Status:     status,
		Error:      reqError,
		SignedBy:   signedBy,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type SignatureRequestsRepo interface {
	// CreateIfAbsent inserts the request unless another request with the
	// same hash already exists. It reports whether the insert happened and
	// returns the winning row either way.
	CreateIfAbsent(ctx context.Context, req *SignatureRequest) (*SignatureRequest, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*SignatureRequest, error)
	GetByHash(ctx context.Context, hash string) (*SignatureRequest, error)
	SetStatus(ctx context.Context, id uuid.UUID, status SignatureRequestStatus, reqError *RequestError) error
	// FindBySigners lists requests whose signer snapshot intersects the
	// given account set and that were created strictly after the cursor,
	// in ascending creation order.
	FindBySigners(ctx context.Context, accountIDs []string, createdAfter time.Time, limit uint64) ([]*SignatureRequest, error)
}
