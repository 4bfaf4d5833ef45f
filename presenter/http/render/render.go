package render

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/stellar-multisig/coordinator/coordinator"
	"github.com/stellar-multisig/coordinator/logging"
)

func JSON(w http.ResponseWriter, r *http.Request, status int, res interface{}) {
	enc := json.NewEncoder(w)

	if pretty, _ := strconv.ParseBool(r.URL.Query().Get("pretty")); pretty {
		enc.SetIndent("", "  ")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := enc.Encode(res); err != nil {
		logging.LoggerFromContext(r.Context()).WithError(err).Error("can't marshal JSON result")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// Error renders an engine error with the HTTP status matching its kind.
// Errors outside the engine taxonomy are internal and not echoed to the
// caller.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.LoggerFromContext(r.Context())

	status := statusOf(coordinator.KindOf(err))
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("request handling failed")
		JSON(w, r, status, &errorResponse{Error: "internal error"})
		return
	}
	logger.WithError(err).Info("request rejected")
	JSON(w, r, status, &errorResponse{Error: fmt.Sprintf("%v", err)})
}

func statusOf(kind coordinator.ErrorKind) int {
	switch kind {
	case coordinator.KindNotFound:
		return http.StatusNotFound
	case coordinator.KindConflict:
		return http.StatusConflict
	case coordinator.KindInvalidInput:
		return http.StatusBadRequest
	case coordinator.KindUnauthorized:
		return http.StatusUnauthorized
	case coordinator.KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
