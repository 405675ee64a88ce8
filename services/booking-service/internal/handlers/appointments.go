package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/easybook/libs/httpx"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/intake"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
)

type submitAppointmentRequest struct {
	ShopkeeperID    string `json:"shopkeeper_id"`
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email"`
	CustomerPhone   string `json:"customer_phone"`
	CustomerAddress string `json:"customer_address"`
	RequestedDate   string `json:"requested_date"`
	RequestedTime   string `json:"requested_time"`
}

type submitAppointmentResponse struct {
	intake.Decision
	Error string `json:"error,omitempty"`
}

func (h *Handler) SubmitAppointment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req submitAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	dec, err := h.intake.Submit(r.Context(), intake.Submission{
		ShopkeeperID:    req.ShopkeeperID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		CustomerAddress: req.CustomerAddress,
		RequestedDate:   req.RequestedDate,
		RequestedTime:   req.RequestedTime,
	})
	switch {
	case errors.Is(err, intake.ErrInvalidSubmission):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, intake.ErrLockTimeout):
		http.Error(w, "busy, please retry", http.StatusServiceUnavailable)
		return
	case errors.Is(err, intake.ErrNotification):
		h.logger.Error("appointment stored but notification failed", "appointment_id", dec.AppointmentID, "err", err)
		httpx.WriteJSON(w, http.StatusBadGateway, submitAppointmentResponse{Decision: dec, Error: "notification failed"})
		return
	case err != nil:
		h.logger.Error("appointment intake failed", "err", err)
		http.Error(w, "failed to submit appointment", http.StatusInternalServerError)
		return
	}

	code := http.StatusCreated
	switch dec.Reason {
	case intake.ReasonInvalidShopkeeper:
		code = http.StatusUnprocessableEntity
	case intake.ReasonShopUnverified, intake.ReasonPaymentRequired:
		code = http.StatusAccepted
	}
	httpx.WriteJSON(w, code, submitAppointmentResponse{Decision: dec})
}

type markPaidRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req markPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	err := h.intake.ConfirmPayment(r.Context(), req.AppointmentID, "admin")
	switch {
	case errors.Is(err, intake.ErrAppointmentNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	case errors.Is(err, intake.ErrNotAwaitingPayment):
		http.Error(w, "appointment is not awaiting payment", http.StatusConflict)
		return
	case errors.Is(err, intake.ErrLockTimeout):
		http.Error(w, "busy, please retry", http.StatusServiceUnavailable)
		return
	case errors.Is(err, intake.ErrNotification):
		h.logger.Error("payment recorded but shopkeeper not notified", "appointment_id", req.AppointmentID, "err", err)
		httpx.WriteJSON(w, http.StatusBadGateway, map[string]string{"appointment_id": req.AppointmentID, "status": "paid", "error": "notification failed"})
		return
	case err != nil:
		h.logger.Error("mark paid failed", "appointment_id", req.AppointmentID, "err", err)
		http.Error(w, "failed to mark paid", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"appointment_id": req.AppointmentID, "status": "paid"})
}

type appointmentItem struct {
	AppointmentID   string       `json:"appointment_id"`
	CustomerName    string       `json:"customer_name"`
	CustomerEmail   string       `json:"customer_email"`
	RequestedDate   string       `json:"requested_date"`
	RequestedTime   string       `json:"requested_time"`
	Status          model.Status `json:"status"`
	Paid            bool         `json:"paid"`
	ApprovedAt      string       `json:"approved_at,omitempty"`
	CalendarEventID string       `json:"calendar_event_id,omitempty"`
	LastError       string       `json:"last_error,omitempty"`
	CreatedAt       string       `json:"created_at"`
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	shopID := strings.TrimSpace(r.URL.Query().Get("shopkeeper_id"))
	if shopID == "" {
		http.Error(w, "shopkeeper_id is required", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	appts, err := h.appointments.ListByShop(r.Context(), shopID, limit)
	if err != nil {
		h.logger.Error("list appointments failed", "shopkeeper_id", shopID, "err", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		item := appointmentItem{
			AppointmentID:   a.ID,
			CustomerName:    a.CustomerName,
			CustomerEmail:   a.CustomerEmail,
			RequestedDate:   a.RequestedDate,
			RequestedTime:   a.RequestedTime,
			Status:          a.Status,
			Paid:            a.Paid,
			CalendarEventID: model.Deref(a.CalendarEventID),
			LastError:       model.Deref(a.LastError),
			CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
		}
		if a.ApprovedAt != nil {
			item.ApprovedAt = a.ApprovedAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}
