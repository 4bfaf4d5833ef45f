// Package presenter is the HTTP surface of the service: signature request
// creation and lookup, the SEP-7 signature callback, submission and the SSE
// event stream.
package presenter

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stellar-multisig/coordinator/coordinator"
	"github.com/stellar-multisig/coordinator/entity"
	"github.com/stellar-multisig/coordinator/logging"
	httpmiddleware "github.com/stellar-multisig/coordinator/presenter/http/middleware"
	"github.com/stellar-multisig/coordinator/presenter/http/render"
	"github.com/stellar-multisig/coordinator/stellar"
	"github.com/stellar-multisig/coordinator/stream"
)

const sseKeepaliveInterval = 15 * time.Second

type Presenter struct {
	logger  logging.Logger
	engine  *coordinator.Coordinator
	gateway *stream.Gateway
	root    chi.Router
}

func NewPresenter(logger logging.Logger, engine *coordinator.Coordinator, gateway *stream.Gateway) *Presenter {
	return &Presenter{
		logger:  logger,
		engine:  engine,
		gateway: gateway,
		root:    chi.NewMux(),
	}
}

func (p *Presenter) Serve(addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	p.root.Use(middleware.RequestID)
	p.root.Use(httpmiddleware.NewLoggerMiddleware(p.logger))
	p.root.Use(httpmiddleware.Recoverer)

	p.root.Get("/status/live", p.Liveness)
	p.root.With(middleware.Throttle(50)).Post("/transactions", p.CreateRequest)
	p.root.With(httpmiddleware.GetFilterMiddleware).Get("/transactions", p.ListRequests)
	p.root.Route("/transactions/{hash:[0-9a-fA-F]{64}}", func(r chi.Router) {
		r.Use(middleware.Throttle(50))
		r.Use(httpmiddleware.GetRequestHashMiddleware)
		r.Get("/", p.GetRequest)
		r.Post("/signatures", p.CollateSignature)
		r.Post("/submit", p.SubmitRequest)
	})
	p.root.With(httpmiddleware.GetFilterMiddleware).Get("/events", p.StreamEvents)
	return http.ListenAndServe(addr, p.root)
}

func (p *Presenter) Liveness(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, http.StatusOK, map[string]string{"status": "live"})
}

func (p *Presenter) CreateRequest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		render.Error(w, r, coordinator.InvalidInputf(err, "can't parse form"))
		return
	}
	info, err := p.engine.CreateRequest(r.Context(), r.PostFormValue("req"), r.PostFormValue("signature"), r.PostFormValue("signer"))
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusCreated, info)
}

func (p *Presenter) GetRequest(w http.ResponseWriter, r *http.Request) {
	info, err := p.engine.GetRequestByHash(r.Context(), httpmiddleware.RequestHash(r.Context()))
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusOK, info)
}

func (p *Presenter) ListRequests(w http.ResponseWriter, r *http.Request) {
	filter := httpmiddleware.GetFilterContext(r.Context())
	infos, err := p.engine.ListRequestsForAccounts(r.Context(), filter.AccountKeys, filter.Cursor, filter.Limit)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusOK, infos)
}

// CollateSignature accepts either a bare signature (the signature form field,
// with an optional signer key) or, for SEP-7 wallet compatibility, a full
// signed envelope in the xdr field from which the new signatures are
// extracted.
func (p *Presenter) CollateSignature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		render.Error(w, r, coordinator.InvalidInputf(err, "can't parse form"))
		return
	}
	hash := httpmiddleware.RequestHash(ctx)

	if envelope := r.PostFormValue("xdr"); envelope != "" {
		p.collateEnvelope(w, r, hash, envelope)
		return
	}

	info, err := p.engine.CollateSignature(ctx, hash, r.PostFormValue("signature"), r.PostFormValue("signer"))
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusOK, info)
}

// collateEnvelope folds in every decorated signature carried by the posted
// envelope. Signatures already collected come back as conflicts and are
// skipped, the call fails only when no signature was accepted.
func (p *Presenter) collateEnvelope(w http.ResponseWriter, r *http.Request, hash, envelope string) {
	tx, err := stellar.ParseTransaction(envelope)
	if err != nil {
		render.Error(w, r, coordinator.InvalidInputf(err, "can't parse signed envelope"))
		return
	}
	signatures := tx.Signatures()
	if len(signatures) == 0 {
		render.Error(w, r, coordinator.InvalidInputf(nil, "envelope carries no signatures"))
		return
	}

	var info *entity.SignatureRequestInfo
	var lastErr error
	for _, decorated := range signatures {
		raw, err := decorated.MarshalBinary()
		if err != nil {
			lastErr = coordinator.InvalidInputf(err, "can't encode decorated signature")
			continue
		}
		res, err := p.engine.CollateSignature(r.Context(), hash, base64.StdEncoding.EncodeToString(raw), "")
		if err != nil {
			lastErr = err
			continue
		}
		info = res
	}
	if info == nil {
		render.Error(w, r, lastErr)
		return
	}
	render.JSON(w, r, http.StatusOK, info)
}

func (p *Presenter) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	result, err := p.engine.SubmitRequest(r.Context(), httpmiddleware.RequestHash(r.Context()))
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusOK, result)
}

// StreamEvents serves the request stream over SSE. Each event's id is the
// request's cursor, so a reconnecting client resumes via Last-Event-ID
// without losing events.
func (p *Presenter) StreamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.LoggerFromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		render.Error(w, r, fmt.Errorf("response writer doesn't support streaming"))
		return
	}
	filter := httpmiddleware.GetFilterContext(ctx)

	events, err := p.gateway.Subscribe(ctx, filter.AccountKeys, filter.Cursor)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case info, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(info)
			if err != nil {
				logger.WithError(err).Error("can't marshal stream event")
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: signature-request\ndata: %s\n\n", info.Cursor, payload)
			flusher.Flush()
		}
	}
}
