package handlers

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/approval"
)

var actionPage = template.Must(template.New("action").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>EasyBook</title></head>
<body><div style="font-family:system-ui;line-height:1.5;padding:24px;">{{range $i, $l := .}}{{if $i}}<br>{{end}}{{$l}}{{end}}</div></body></html>
`))

const (
	msgInvalidLink  = "Invalid or expired link."
	msgNotFound     = "Appointment not found."
	msgUnknown      = "Unknown action."
	msgRejected     = "Appointment rejected."
	msgApproved     = "Appointment approved and added to your calendar."
	msgPayment      = "Payment required before approval. Please confirm payment and try again."
	msgProcessed    = "This appointment has already been processed."
	msgUnverified   = "This shop is not verified yet. The appointment will be sent for approval once it is."
	msgParse        = "Could not parse date/time. Please ensure the requested date is YYYY-MM-DD or DD/MM/YYYY and the time is HH:MM (optionally AM/PM)."
	msgBusy         = "Another action on this appointment is in progress. Please try again."
	msgCalendar     = "Could not add the appointment to the calendar. Please try again."
	msgInternal     = "Something went wrong. Please try again."
	msgMethodNotGet = "Method not allowed."
)

// Approve serves the approve/reject links mailed to shopkeepers.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		renderPage(w, http.StatusMethodNotAllowed, msgMethodNotGet)
		return
	}
	q := r.URL.Query()
	res, err := h.approver.HandleAction(r.Context(), q.Get("action"), q.Get("id"), q.Get("t"))
	if err != nil {
		switch {
		case errors.Is(err, approval.ErrLockTimeout):
			renderPage(w, http.StatusServiceUnavailable, msgBusy)
		case errors.Is(err, approval.ErrCalendar):
			h.logger.Error("calendar booking failed", "appointment_id", res.AppointmentID, "err", err)
			renderPage(w, http.StatusBadGateway, msgCalendar)
		default:
			h.logger.Error("approval action failed", "appointment_id", res.AppointmentID, "err", err)
			renderPage(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	switch res.Outcome {
	case approval.OutcomeApproved:
		renderPage(w, http.StatusOK, msgApproved, "Event ID: "+res.CalendarEventID)
	case approval.OutcomeRejected:
		renderPage(w, http.StatusOK, msgRejected)
	case approval.OutcomePaymentRequired:
		renderPage(w, http.StatusOK, msgPayment)
	case approval.OutcomeInvalidLink:
		renderPage(w, http.StatusForbidden, msgInvalidLink)
	case approval.OutcomeNotFound:
		renderPage(w, http.StatusNotFound, msgNotFound)
	case approval.OutcomeUnknownAction:
		renderPage(w, http.StatusBadRequest, msgUnknown)
	case approval.OutcomeAlreadyProcessed:
		renderPage(w, http.StatusConflict, msgProcessed)
	case approval.OutcomeShopUnverified:
		renderPage(w, http.StatusConflict, msgUnverified)
	case approval.OutcomeParseError:
		renderPage(w, http.StatusUnprocessableEntity, msgParse)
	default:
		renderPage(w, http.StatusInternalServerError, msgInternal)
	}
}

func renderPage(w http.ResponseWriter, code int, lines ...string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = actionPage.Execute(w, lines)
}
