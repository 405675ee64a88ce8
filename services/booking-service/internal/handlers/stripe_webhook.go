package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/easybook/libs/httpx"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/intake"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeWebhook marks appointments paid when their checkout completes.
// Signature verification is the auth.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.cfg.StripeWebhookSecret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.cfg.StripeWebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                h.cfg.StripeWebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339),
	)

	if err := h.providerEvents.Record(r.Context(), storage.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("payment provider event duplicate ignored", "provider", "stripe", "provider_event_id", evt.ID)
			httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
		h.logger.Error("record provider event failed", "provider_event_id", evt.ID, "err", err)
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	switch evtType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
	default:
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		h.logger.Error("stripe: invalid checkout session payload", "err", err)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		// Delayed methods settle later with async_payment_succeeded.
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "pending"})
		return
	}
	appointmentID := strings.TrimSpace(session.Metadata[payments.MetadataAppointmentID])
	if appointmentID == "" {
		appointmentID = strings.TrimSpace(session.ClientReferenceID)
	}
	if appointmentID == "" {
		h.logger.Warn("stripe: checkout session without appointment_id", "session_id", session.ID)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	err = h.intake.ConfirmPayment(r.Context(), appointmentID, "stripe")
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "applied", "appointment_id": appointmentID})
	case errors.Is(err, intake.ErrNotification):
		h.logger.Warn("payment applied but shopkeeper not notified", "appointment_id", appointmentID, "err", err)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "applied", "appointment_id": appointmentID})
	case errors.Is(err, intake.ErrAppointmentNotFound), errors.Is(err, intake.ErrNotAwaitingPayment), errors.Is(err, intake.ErrShopkeeperNotFound):
		h.logger.Warn("stripe payment not applicable", "appointment_id", appointmentID, "err", err)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored", "appointment_id": appointmentID})
	default:
		// Let Stripe redeliver.
		if forgetErr := h.providerEvents.Forget(r.Context(), "stripe", evt.ID); forgetErr != nil {
			h.logger.Error("forget provider event failed", "provider_event_id", evt.ID, "err", forgetErr)
		}
		h.logger.Error("apply stripe payment failed", "appointment_id", appointmentID, "err", err)
		http.Error(w, "failed to apply payment", http.StatusInternalServerError)
	}
}
