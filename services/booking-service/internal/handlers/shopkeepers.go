package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/easybook/libs/httpx"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/registration"
)

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// RegisterShopkeeper takes the sign-up form posted by the web app.
func (h *Handler) RegisterShopkeeper(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req registration.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "invalid json body"})
		return
	}

	res, err := h.registrar.Register(r.Context(), req)
	switch {
	case errors.Is(err, registration.ErrInvalid):
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: err.Error()})
		return
	case errors.Is(err, registration.ErrLockTimeout):
		httpx.WriteJSON(w, http.StatusServiceUnavailable, errorResponse{Status: "error", Message: "busy, please retry"})
		return
	case err != nil:
		h.logger.Error("shopkeeper registration failed", "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, errorResponse{Status: "error", Message: "failed to register shop"})
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

type verifyRequest struct {
	ShopkeeperID string `json:"shopkeeper_id"`
}

func (h *Handler) VerifyShopkeeper(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ShopkeeperID = strings.TrimSpace(req.ShopkeeperID)
	if req.ShopkeeperID == "" {
		http.Error(w, "shopkeeper_id is required", http.StatusBadRequest)
		return
	}

	res, err := h.registrar.Verify(r.Context(), req.ShopkeeperID)
	if errors.Is(err, registration.ErrNotFound) {
		http.Error(w, "shopkeeper not found", http.StatusNotFound)
		return
	}
	if err != nil {
		// The shop is verified at this point; only some held appointments failed.
		h.logger.Error("release held appointments failed", "shopkeeper_id", req.ShopkeeperID, "err", err)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"shopkeeper_id": res.ShopkeeperID,
			"changed":       res.Changed,
			"released":      res.Released,
			"warning":       err.Error(),
		})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) BackfillLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n, err := h.registrar.BackfillLinks(r.Context())
	if err != nil {
		h.logger.Error("backfill links failed", "updated", n, "err", err)
		http.Error(w, "failed to backfill links", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"updated": n})
}
