package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
)

// Topic names equal event types: one event type per topic.
const (
	EventShopkeeperRegistered = "booking.shopkeeper.registered.v1"
	EventShopkeeperVerified   = "booking.shopkeeper.verified.v1"
	EventAppointmentSubmitted = "booking.appointment.submitted.v1"
	EventAppointmentApproved  = "booking.appointment.approved.v1"
	EventAppointmentRejected  = "booking.appointment.rejected.v1"
	EventAppointmentPaid      = "booking.appointment.paid.v1"
)

// Event is the envelope written to outbox_events in the same transaction as the state change.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type appointmentPayload struct {
	AppointmentID   string    `json:"appointment_id"`
	ShopkeeperID    string    `json:"shopkeeper_id"`
	CustomerEmail   string    `json:"customer_email"`
	Status          string    `json:"status"`
	Paid            bool      `json:"paid"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	PaymentSource   string    `json:"payment_source,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func AppointmentEvent(eventType string, appt model.Appointment, at time.Time) (Event, error) {
	return appointmentEvent(eventType, appt, "", at)
}

func PaymentEvent(appt model.Appointment, source string, at time.Time) (Event, error) {
	return appointmentEvent(EventAppointmentPaid, appt, source, at)
}

func appointmentEvent(eventType string, appt model.Appointment, source string, at time.Time) (Event, error) {
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID:   appt.ID,
		ShopkeeperID:    appt.ShopkeeperID,
		CustomerEmail:   appt.CustomerEmail,
		Status:          string(appt.Status),
		Paid:            appt.Paid,
		CalendarEventID: model.Deref(appt.CalendarEventID),
		PaymentSource:   source,
		OccurredAt:      at.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{AggregateType: "appointment", AggregateID: appt.ID, EventType: eventType, Payload: payload}, nil
}

func ShopkeeperEvent(eventType string, sk model.Shopkeeper, at time.Time) (Event, error) {
	payload, err := json.Marshal(map[string]any{
		"shopkeeper_id": sk.ID,
		"shop_name":     sk.ShopName,
		"email":         sk.Email,
		"verified":      sk.Verified,
		"booking_link":  sk.BookingLink,
		"occurred_at":   at.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{AggregateType: "shopkeeper", AggregateID: sk.ID, EventType: eventType, Payload: payload}, nil
}
