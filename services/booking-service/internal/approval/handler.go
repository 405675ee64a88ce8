// Package approval applies the approve and reject links a shopkeeper clicks.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/datetime"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/lock"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/settings"
)

type Outcome string

const (
	OutcomeApproved         Outcome = "approved"
	OutcomeRejected         Outcome = "rejected"
	OutcomeInvalidLink      Outcome = "invalid_link"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeUnknownAction    Outcome = "unknown_action"
	OutcomePaymentRequired  Outcome = "payment_required"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeShopUnverified   Outcome = "shop_unverified"
	OutcomeParseError       Outcome = "parse_error"
)

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

var (
	ErrLockTimeout = errors.New("approval lock not acquired")
	ErrCalendar    = errors.New("calendar booking failed")
)

type Result struct {
	Outcome         Outcome
	AppointmentID   string
	CalendarEventID string
	Start           time.Time
	End             time.Time
}

type Store interface {
	Get(ctx context.Context, id string) (model.Appointment, bool, error)
	Save(ctx context.Context, appt model.Appointment, events ...outbox.Event) error
	SetLastError(ctx context.Context, id, msg string) error
}

type Directory interface {
	FindByID(ctx context.Context, id string) (model.Shopkeeper, bool, error)
}

type TokenVerifier interface {
	Verify(ctx context.Context, appointmentID, token string) (bool, error)
}

type Notifier interface {
	Approved(ctx context.Context, appt model.Appointment, sk model.Shopkeeper, start time.Time) error
	Rejected(ctx context.Context, appt model.Appointment, sk model.Shopkeeper) error
}

type SettingsSource interface {
	Current(ctx context.Context) settings.Values
}

type Deps struct {
	Store     Store
	Directory Directory
	Verifier  TokenVerifier
	Calendar  calendar.Provider
	Notifier  Notifier
	Settings  SettingsSource
	Locker    lock.Locker
	Parser    datetime.Parser
	Logger    *slog.Logger
	Now       func() time.Time
}

type Handler struct {
	store     Store
	directory Directory
	verifier  TokenVerifier
	calendar  calendar.Provider
	notifier  Notifier
	settings  SettingsSource
	locker    lock.Locker
	parser    datetime.Parser
	logger    *slog.Logger
	now       func() time.Time
}

func NewHandler(d Deps) *Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{
		store:     d.Store,
		directory: d.Directory,
		verifier:  d.Verifier,
		calendar:  d.Calendar,
		notifier:  d.Notifier,
		settings:  d.Settings,
		locker:    d.Locker,
		parser:    d.Parser,
		logger:    d.Logger,
		now:       d.Now,
	}
}

// HandleAction validates the signed link and applies action to the
// appointment. Outcomes that leave state untouched are returned with a nil
// error; the error is reserved for infrastructure failures.
func (h *Handler) HandleAction(ctx context.Context, action, appointmentID, token string) (Result, error) {
	appointmentID = strings.TrimSpace(appointmentID)
	res := Result{AppointmentID: appointmentID}
	if appointmentID == "" || token == "" {
		res.Outcome = OutcomeInvalidLink
		return res, nil
	}
	ok, err := h.verifier.Verify(ctx, appointmentID, token)
	if err != nil {
		return res, fmt.Errorf("verify token: %w", err)
	}
	if !ok {
		res.Outcome = OutcomeInvalidLink
		return res, nil
	}

	release, err := h.locker.Acquire(ctx, lock.AppointmentKey(appointmentID))
	if errors.Is(err, lock.ErrTimeout) {
		return res, ErrLockTimeout
	}
	if err != nil {
		return res, fmt.Errorf("acquire lock: %w", err)
	}
	defer release()

	appt, found, err := h.store.Get(ctx, appointmentID)
	if err != nil {
		return res, fmt.Errorf("load appointment: %w", err)
	}
	if !found {
		res.Outcome = OutcomeNotFound
		return res, nil
	}

	switch strings.ToLower(strings.TrimSpace(action)) {
	case ActionReject:
		return h.reject(ctx, appt)
	case ActionApprove:
		return h.approve(ctx, appt)
	default:
		res.Outcome = OutcomeUnknownAction
		return res, nil
	}
}

func (h *Handler) reject(ctx context.Context, appt model.Appointment) (Result, error) {
	res := Result{AppointmentID: appt.ID, Outcome: OutcomeRejected}
	wasRejected := appt.Status == model.StatusRejected
	previousEvent := model.Deref(appt.CalendarEventID)

	now := h.now()
	appt.Status = model.StatusRejected
	appt.ApprovalToken = nil
	appt.CalendarEventID = nil
	appt.UpdatedAt = now

	evt, err := outbox.AppointmentEvent(outbox.EventAppointmentRejected, appt, now)
	if err != nil {
		return res, err
	}
	if err := h.store.Save(ctx, appt, evt); err != nil {
		return res, fmt.Errorf("save appointment: %w", err)
	}
	h.logger.Info("appointment rejected", "appointment_id", appt.ID)

	if previousEvent != "" {
		if err := h.calendar.Cancel(ctx, previousEvent); err != nil {
			h.logger.Warn("calendar event not cancelled", "appointment_id", appt.ID, "event_id", previousEvent, "err", err)
		}
	}
	if !wasRejected {
		if sk, ok := h.shopkeeper(ctx, appt); ok {
			if err := h.notifier.Rejected(ctx, appt, sk); err != nil {
				h.logger.Warn("rejection mail not sent", "appointment_id", appt.ID, "err", err)
			}
		}
	}
	return res, nil
}

func (h *Handler) approve(ctx context.Context, appt model.Appointment) (Result, error) {
	res := Result{AppointmentID: appt.ID}

	switch {
	case appt.Status == model.StatusAwaitingPayment && !appt.Paid:
		res.Outcome = OutcomePaymentRequired
		return res, nil
	case appt.Status == model.StatusApproved, appt.Status == model.StatusRejected:
		res.Outcome = OutcomeAlreadyProcessed
		res.CalendarEventID = model.Deref(appt.CalendarEventID)
		return res, nil
	case appt.Status == model.StatusPendingApproval && !appt.HasToken():
		res.Outcome = OutcomeShopUnverified
		return res, nil
	}

	start, err := h.parser.Start(appt.RequestedDate, appt.RequestedTime)
	if err != nil {
		h.logger.Info("appointment date not parseable", "appointment_id", appt.ID, "date", appt.RequestedDate, "time", appt.RequestedTime, "err", err)
		res.Outcome = OutcomeParseError
		return res, nil
	}
	end := start.Add(h.settings.Current(ctx).AppointmentDuration())

	sk, found := h.shopkeeper(ctx, appt)
	title := "Appointment with " + appt.CustomerName
	if found && sk.ShopName != "" {
		title += " - " + sk.ShopName
	}

	eventID, err := h.calendar.Create(ctx, calendar.Event{
		AppointmentID: appt.ID,
		Title:         title,
		Description:   describe(appt),
		Start:         start,
		End:           end,
		GuestEmail:    appt.CustomerEmail,
	})
	if err != nil {
		if setErr := h.store.SetLastError(ctx, appt.ID, err.Error()); setErr != nil {
			h.logger.Error("record last error failed", "appointment_id", appt.ID, "err", setErr)
		}
		return res, fmt.Errorf("%w: %v", ErrCalendar, err)
	}

	now := h.now()
	appt.Status = model.StatusApproved
	appt.ApprovedAt = &now
	appt.CalendarEventID = &eventID
	appt.ApprovalToken = nil
	appt.LastError = nil
	appt.UpdatedAt = now

	evt, err := outbox.AppointmentEvent(outbox.EventAppointmentApproved, appt, now)
	if err != nil {
		return res, err
	}
	if err := h.store.Save(ctx, appt, evt); err != nil {
		if cancelErr := h.calendar.Cancel(ctx, eventID); cancelErr != nil {
			h.logger.Error("orphaned calendar event", "appointment_id", appt.ID, "event_id", eventID, "err", cancelErr)
		}
		return res, fmt.Errorf("save appointment: %w", err)
	}
	h.logger.Info("appointment approved", "appointment_id", appt.ID, "event_id", eventID, "start", start)

	if found {
		if err := h.notifier.Approved(ctx, appt, sk, start); err != nil {
			h.logger.Warn("confirmation mail not sent", "appointment_id", appt.ID, "err", err)
		}
	}

	res.Outcome = OutcomeApproved
	res.CalendarEventID = eventID
	res.Start = start
	res.End = end
	return res, nil
}

func (h *Handler) shopkeeper(ctx context.Context, appt model.Appointment) (model.Shopkeeper, bool) {
	sk, found, err := h.directory.FindByID(ctx, appt.ShopkeeperID)
	if err != nil {
		h.logger.Warn("shopkeeper lookup failed", "shopkeeper_id", appt.ShopkeeperID, "err", err)
		return model.Shopkeeper{}, false
	}
	return sk, found
}

func describe(appt model.Appointment) string {
	lines := []string{
		"Customer: " + appt.CustomerName,
		"Email: " + appt.CustomerEmail,
	}
	if appt.CustomerPhone != "" {
		lines = append(lines, "Phone: "+appt.CustomerPhone)
	}
	if appt.CustomerAddress != "" {
		lines = append(lines, "Address: "+appt.CustomerAddress)
	}
	lines = append(lines, "Appointment ID: "+appt.ID)
	return strings.Join(lines, "\n")
}
