/**
 * @description
 * This file contains the HTTP handlers for the gateway-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic, models, and custom errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shieldswap/gateway-service/internal/app"
	"github.com/shieldswap/gateway-service/internal/domain"
)

// TransferCreator is the slice of the coordinator the handlers depend on.
type TransferCreator interface {
	CreateTransfer(ctx context.Context, req domain.CreateTransferRequest) (*domain.CreateTransferResponse, error)
}

// StatusPoller is the slice of the status monitor the handlers depend on.
type StatusPoller interface {
	Poll(ctx context.Context, internalReference string) (*domain.TransferStatusView, error)
}

// GatewayHandlers holds the application services that handlers will use.
type GatewayHandlers struct {
	coordinator TransferCreator
	monitor     StatusPoller
}

// NewGatewayHandlers creates a new instance of GatewayHandlers.
func NewGatewayHandlers(coordinator TransferCreator, monitor StatusPoller) *GatewayHandlers {
	return &GatewayHandlers{coordinator: coordinator, monitor: monitor}
}

func (h *GatewayHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *GatewayHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// CreateTransferHandler handles requests to route a new transfer.
func (h *GatewayHandlers) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.coordinator.CreateTransfer(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAddress):
			h.writeError(w, http.StatusBadRequest, "Recipient address is not valid for the requested network")
		case errors.Is(err, domain.ErrUnsupportedAsset):
			h.writeError(w, http.StatusBadRequest, "Unsupported currency/network pair")
		case errors.Is(err, app.ErrInvalidTransferAmount):
			h.writeError(w, http.StatusBadRequest, "Transfer amount is not a valid positive number")
		case errors.Is(err, app.ErrAmountBelowMinimum):
			h.writeError(w, http.StatusBadRequest, "Transfer amount is below the minimum for this asset")
		case errors.Is(err, app.ErrInvalidTransferKind):
			h.writeError(w, http.StatusBadRequest, "Unknown transfer type")
		case errors.Is(err, app.ErrResponseIntegrity):
			log.Printf("level=error component=api endpoint=create_transfer outcome=failed reason=response_integrity")
			h.writeError(w, http.StatusBadGateway, "Transfer could not be verified and was not created")
		case errors.Is(err, app.ErrUpstreamUnavailable):
			log.Printf("level=warn component=api endpoint=create_transfer outcome=failed reason=upstream err=%v", err)
			h.writeError(w, http.StatusBadGateway, "Exchange service temporarily unavailable")
		case errors.Is(err, context.Canceled):
			// Client went away; nothing meaningful to write.
		default:
			log.Printf("level=error component=api endpoint=create_transfer outcome=failed err=%v", err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

// TransferStatusHandler handles status polling for a routed transfer. Unknown
// or not-yet-indexed references answer with a pending-class status, never an
// error: the window between creation and upstream indexing is expected.
func (h *GatewayHandlers) TransferStatusHandler(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		h.writeError(w, http.StatusBadRequest, "Missing transfer reference")
		return
	}

	view, err := h.monitor.Poll(r.Context(), reference)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("level=error component=api endpoint=transfer_status outcome=failed reference=%s err=%v", reference, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, view)
}
