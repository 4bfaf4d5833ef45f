package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stellar/go/keypair"

	"github.com/stellar-multisig/coordinator/coordinator"
	"github.com/stellar-multisig/coordinator/presenter/http/render"
)

type ctxKey int

const (
	requestHashCtxKey ctxKey = iota
	filterCtxKey
)

const requestHashLen = 64

// FilterContext carries the parsed listing/streaming parameters: the
// interest set of account keys, the resumption cursor and the page limit.
type FilterContext struct {
	AccountKeys []string
	Cursor      string
	Limit       uint64
}

// GetRequestHashMiddleware validates and normalizes the {hash} route
// parameter, the lowercase hex sha256 identifying a signature request.
func GetRequestHashMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := strings.ToLower(chi.URLParam(r, "hash"))
		if len(hash) != requestHashLen || strings.Trim(hash, "0123456789abcdef") != "" {
			render.Error(w, r, coordinator.InvalidInputf(nil, "%q is not a valid request hash", hash))
			return
		}
		ctx := context.WithValue(r.Context(), requestHashCtxKey, hash)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestHash(ctx context.Context) string {
	if hash, ok := ctx.Value(requestHashCtxKey).(string); ok {
		return hash
	}
	return ""
}

// GetFilterMiddleware parses the repeated key query parameters, the cursor
// (the Last-Event-ID header takes precedence for stream resumption) and the
// page limit.
func GetFilterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		filter := &FilterContext{
			AccountKeys: query["key"],
			Cursor:      r.Header.Get("Last-Event-ID"),
		}
		if filter.Cursor == "" {
			filter.Cursor = query.Get("cursor")
		}
		for _, key := range filter.AccountKeys {
			if _, err := keypair.ParseAddress(key); err != nil {
				render.Error(w, r, coordinator.InvalidInputf(err, "%q is not a valid account key", key))
				return
			}
		}
		if rawLimit := query.Get("limit"); rawLimit != "" {
			limit, err := strconv.ParseUint(rawLimit, 10, 32)
			if err != nil {
				render.Error(w, r, coordinator.InvalidInputf(err, "can't parse limit %q", rawLimit))
				return
			}
			filter.Limit = limit
		}

		ctx := context.WithValue(r.Context(), filterCtxKey, filter)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetFilterContext(ctx context.Context) *FilterContext {
	if filter, ok := ctx.Value(filterCtxKey).(*FilterContext); ok {
		return filter
	}
	return new(FilterContext)
}
