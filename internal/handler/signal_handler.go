package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"camwatch/internal/middleware"
	"camwatch/internal/model"
	"camwatch/internal/service"
	"camwatch/pkg/apierror"
)

type SignalHandler struct {
	signal *service.SignalService
	status *service.StatusService
}

func NewSignalHandler(signal *service.SignalService, status *service.StatusService) *SignalHandler {
	return &SignalHandler{signal: signal, status: status}
}

func (h *SignalHandler) Offer(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrTokenInvalid)
		return
	}

	var payload model.OfferRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	answer, err := h.signal.Negotiate(r.Context(), claims.Username, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, answer)
}

// Ping is the HUD's round-trip probe. It returns the server clock so
// the client can also sanity-check its countdown.
func (h *SignalHandler) Ping(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, model.PingResponse{TS: time.Now().UTC().UnixMilli()})
}

func (h *SignalHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.status.Snapshot())
}
