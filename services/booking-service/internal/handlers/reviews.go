package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/easybook/libs/httpx"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
)

type submitReviewRequest struct {
	ShopkeeperID  string `json:"shopkeeper_id"`
	Rating        int    `json:"rating"`
	Text          string `json:"text"`
	ReviewerEmail string `json:"reviewer_email"`
}

func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.settings.Current(r.Context()).ReviewsEnabled {
		http.Error(w, "reviews are disabled", http.StatusForbidden)
		return
	}

	var req submitReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ShopkeeperID = strings.TrimSpace(req.ShopkeeperID)
	if req.ShopkeeperID == "" {
		http.Error(w, "shopkeeper_id is required", http.StatusBadRequest)
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		http.Error(w, "rating must be between 1 and 5", http.StatusBadRequest)
		return
	}

	_, found, err := h.directory.FindByID(r.Context(), req.ShopkeeperID)
	if err != nil {
		h.logger.Error("shopkeeper lookup failed", "shopkeeper_id", req.ShopkeeperID, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "shopkeeper not found", http.StatusNotFound)
		return
	}

	id, err := h.reviews.Insert(r.Context(), model.Review{
		ShopkeeperID:  req.ShopkeeperID,
		Rating:        req.Rating,
		Text:          strings.TrimSpace(req.Text),
		ReviewerEmail: strings.TrimSpace(req.ReviewerEmail),
	})
	if err != nil {
		h.logger.Error("review insert failed", "shopkeeper_id", req.ShopkeeperID, "err", err)
		http.Error(w, "failed to save review", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]int64{"review_id": id})
}
