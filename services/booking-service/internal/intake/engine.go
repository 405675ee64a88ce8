// Package intake routes new appointment submissions: rejected for an unknown
// shop, held while the shop is unverified, deferred when the customer is over
// the monthly free quota, otherwise sent to the shopkeeper for approval.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/lock"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/settings"
)

// InvalidShopkeeperMessage is stored in last_error for submissions naming an unknown shop.
const InvalidShopkeeperMessage = "Invalid Shopkeeper ID"

var (
	ErrLockTimeout         = errors.New("intake lock not acquired")
	ErrInvalidSubmission   = errors.New("invalid submission")
	ErrNotification        = errors.New("notification failed")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrShopkeeperNotFound  = errors.New("shopkeeper not found")
	ErrShopUnverified      = errors.New("shopkeeper not verified")
	ErrNotAwaitingPayment  = errors.New("appointment is not awaiting payment")
)

type Directory interface {
	FindByID(ctx context.Context, id string) (model.Shopkeeper, bool, error)
}

type Store interface {
	Create(ctx context.Context, appt model.Appointment, events ...outbox.Event) error
	Save(ctx context.Context, appt model.Appointment, events ...outbox.Event) error
	SetLastError(ctx context.Context, id, msg string) error
	Get(ctx context.Context, id string) (model.Appointment, bool, error)
	ListHeldByShop(ctx context.Context, shopkeeperID string) ([]model.Appointment, error)
}

type UsageCounter interface {
	CountApproved(ctx context.Context, email string, asOf time.Time) (int, error)
}

type Notifier interface {
	ShopUnverified(ctx context.Context, appt model.Appointment) error
	PaymentRequired(ctx context.Context, appt model.Appointment, sk model.Shopkeeper, freeLimit int, checkoutURL string) error
	ApprovalRequest(ctx context.Context, appt model.Appointment, sk model.Shopkeeper, token string) error
}

type TokenSigner interface {
	Sign(ctx context.Context, appointmentID string) (string, error)
}

type SettingsSource interface {
	Current(ctx context.Context) settings.Values
}

// CheckoutCreator issues a hosted card-payment page for an appointment.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, appt model.Appointment, sk model.Shopkeeper) (string, error)
}

type Submission struct {
	ShopkeeperID    string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	CustomerAddress string
	RequestedDate   string
	RequestedTime   string
}

func (s *Submission) normalize() {
	s.ShopkeeperID = strings.TrimSpace(s.ShopkeeperID)
	s.CustomerName = strings.TrimSpace(s.CustomerName)
	s.CustomerEmail = strings.TrimSpace(s.CustomerEmail)
	s.CustomerPhone = strings.TrimSpace(s.CustomerPhone)
	s.CustomerAddress = strings.TrimSpace(s.CustomerAddress)
	s.RequestedDate = strings.TrimSpace(s.RequestedDate)
	s.RequestedTime = strings.TrimSpace(s.RequestedTime)
}

// validate checks required fields and reduces the customer email to its bare
// address, dropping any display name.
func (s *Submission) validate() error {
	if s.CustomerName == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalidSubmission)
	}
	if s.CustomerEmail == "" {
		return fmt.Errorf("%w: customer email is required", ErrInvalidSubmission)
	}
	addr, err := mail.ParseAddress(s.CustomerEmail)
	if err != nil {
		return fmt.Errorf("%w: customer email is not valid", ErrInvalidSubmission)
	}
	s.CustomerEmail = addr.Address
	return nil
}

// Decision is the routing outcome reported back to the submitter.
type Decision struct {
	AppointmentID string       `json:"appointment_id"`
	Status        model.Status `json:"status"`
	Reason        string       `json:"reason"`
}

const (
	ReasonInvalidShopkeeper = "invalid_shopkeeper"
	ReasonShopUnverified    = "shop_unverified"
	ReasonPaymentRequired   = "payment_required"
	ReasonApprovalRequested = "approval_requested"
)

type Deps struct {
	Directory Directory
	Store     Store
	Counter   UsageCounter
	Notifier  Notifier
	Signer    TokenSigner
	Settings  SettingsSource
	Locker    lock.Locker
	// Checkout is optional.
	Checkout CheckoutCreator
	Logger   *slog.Logger
	Now      func() time.Time
}

type Engine struct {
	directory Directory
	store     Store
	counter   UsageCounter
	notifier  Notifier
	signer    TokenSigner
	settings  SettingsSource
	locker    lock.Locker
	checkout  CheckoutCreator
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewEngine(d Deps) *Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Engine{
		directory: d.Directory,
		store:     d.Store,
		counter:   d.Counter,
		notifier:  d.Notifier,
		signer:    d.Signer,
		settings:  d.Settings,
		locker:    d.Locker,
		checkout:  d.Checkout,
		logger:    d.Logger,
		now:       d.Now,
		newID:     NewAppointmentID,
	}
}

// NewAppointmentID returns APT- followed by eight upper-case hex digits.
func NewAppointmentID() string {
	return "APT-" + strings.ToUpper(uuid.NewString()[:8])
}

// Submit records a new appointment and routes it. The record is persisted
// before any mail goes out; a failed notification is kept in last_error and
// returned wrapped in ErrNotification together with the decision.
func (e *Engine) Submit(ctx context.Context, sub Submission) (Decision, error) {
	sub.normalize()
	if err := sub.validate(); err != nil {
		return Decision{}, err
	}

	now := e.now()
	appt := model.Appointment{
		ID:              e.newID(),
		ShopkeeperID:    sub.ShopkeeperID,
		CustomerName:    sub.CustomerName,
		CustomerEmail:   sub.CustomerEmail,
		CustomerPhone:   sub.CustomerPhone,
		CustomerAddress: sub.CustomerAddress,
		RequestedDate:   sub.RequestedDate,
		RequestedTime:   sub.RequestedTime,
		Paid:            false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	release, err := e.acquire(ctx, lock.CustomerKey(appt.CustomerEmail))
	if err != nil {
		return Decision{}, err
	}
	defer release()

	sk, found, err := e.directory.FindByID(ctx, appt.ShopkeeperID)
	if err != nil {
		return Decision{}, fmt.Errorf("lookup shopkeeper: %w", err)
	}

	if !found {
		appt.Status = model.StatusRejected
		appt.LastError = model.StringPtr(InvalidShopkeeperMessage)
		if err := e.create(ctx, appt, now); err != nil {
			return Decision{}, err
		}
		e.logger.Info("appointment rejected", "appointment_id", appt.ID, "shopkeeper_id", appt.ShopkeeperID, "reason", ReasonInvalidShopkeeper)
		return decision(appt, ReasonInvalidShopkeeper), nil
	}

	if !sk.Verified {
		appt.Status = model.StatusPendingApproval
		if err := e.create(ctx, appt, now); err != nil {
			return Decision{}, err
		}
		// A verification committed after the lookup above may have listed the
		// held appointments before this row existed.
		if fresh, ok := e.verifiedNow(ctx, sk.ID); ok {
			return e.routeCreated(ctx, appt, fresh)
		}
		e.logger.Info("appointment held for shop verification", "appointment_id", appt.ID, "shopkeeper_id", sk.ID)
		return decision(appt, ReasonShopUnverified), e.notifyFailed(ctx, appt.ID, e.notifier.ShopUnverified(ctx, appt))
	}

	freeLimit, err := e.gate(ctx, &appt)
	if err != nil {
		return Decision{}, err
	}
	if err := e.create(ctx, appt, now); err != nil {
		return Decision{}, err
	}
	e.logger.Info("appointment routed", "appointment_id", appt.ID, "shopkeeper_id", sk.ID, "status", appt.Status)
	return decision(appt, reasonFor(appt)), e.notifyFailed(ctx, appt.ID, e.notifyGated(ctx, appt, sk, freeLimit))
}

func (e *Engine) verifiedNow(ctx context.Context, shopkeeperID string) (model.Shopkeeper, bool) {
	sk, found, err := e.directory.FindByID(ctx, shopkeeperID)
	if err != nil {
		e.logger.Warn("shopkeeper re-check failed", "shopkeeper_id", shopkeeperID, "err", err)
		return model.Shopkeeper{}, false
	}
	return sk, found && sk.Verified
}

// routeCreated gates an appointment that was stored as held. The caller
// holds the customer lock.
func (e *Engine) routeCreated(ctx context.Context, appt model.Appointment, sk model.Shopkeeper) (Decision, error) {
	freeLimit, err := e.gate(ctx, &appt)
	if err != nil {
		return Decision{}, err
	}
	appt.UpdatedAt = e.now()
	if err := e.store.Save(ctx, appt); err != nil {
		return Decision{}, fmt.Errorf("save appointment: %w", err)
	}
	e.logger.Info("appointment routed", "appointment_id", appt.ID, "shopkeeper_id", sk.ID, "status", appt.Status)
	return decision(appt, reasonFor(appt)), e.notifyFailed(ctx, appt.ID, e.notifyGated(ctx, appt, sk, freeLimit))
}

// ReleaseHeld routes every appointment parked while shopkeeperID was
// unverified. It returns how many were released.
func (e *Engine) ReleaseHeld(ctx context.Context, shopkeeperID string) (int, error) {
	sk, found, err := e.directory.FindByID(ctx, shopkeeperID)
	if err != nil {
		return 0, fmt.Errorf("lookup shopkeeper: %w", err)
	}
	if !found {
		return 0, ErrShopkeeperNotFound
	}
	if !sk.Verified {
		return 0, ErrShopUnverified
	}

	held, err := e.store.ListHeldByShop(ctx, shopkeeperID)
	if err != nil {
		return 0, fmt.Errorf("list held appointments: %w", err)
	}

	released := 0
	var errs []error
	for _, h := range held {
		ok, err := e.releaseOne(ctx, h, sk)
		if ok {
			released++
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.ID, err))
		}
	}
	return released, errors.Join(errs...)
}

func (e *Engine) releaseOne(ctx context.Context, held model.Appointment, sk model.Shopkeeper) (bool, error) {
	release, err := e.acquire(ctx, lock.CustomerKey(held.CustomerEmail))
	if err != nil {
		return false, err
	}
	defer release()

	appt, found, err := e.store.Get(ctx, held.ID)
	if err != nil {
		return false, err
	}
	if !found || appt.Status != model.StatusPendingApproval || appt.HasToken() {
		return false, nil
	}

	freeLimit, err := e.gate(ctx, &appt)
	if err != nil {
		return false, err
	}
	appt.LastError = nil
	appt.UpdatedAt = e.now()
	if err := e.store.Save(ctx, appt); err != nil {
		return false, fmt.Errorf("save appointment: %w", err)
	}
	e.logger.Info("held appointment released", "appointment_id", appt.ID, "status", appt.Status)
	return true, e.notifyFailed(ctx, appt.ID, e.notifyGated(ctx, appt, sk, freeLimit))
}

// ConfirmPayment marks an awaiting_payment appointment as paid and sends the
// shopkeeper the approval links. Repeated confirmations are no-ops.
func (e *Engine) ConfirmPayment(ctx context.Context, appointmentID, source string) error {
	release, err := e.acquire(ctx, lock.AppointmentKey(appointmentID))
	if err != nil {
		return err
	}
	defer release()

	appt, found, err := e.store.Get(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if !found {
		return ErrAppointmentNotFound
	}
	if appt.Paid {
		return nil
	}
	if appt.Status != model.StatusAwaitingPayment {
		return ErrNotAwaitingPayment
	}

	sk, found, err := e.directory.FindByID(ctx, appt.ShopkeeperID)
	if err != nil {
		return fmt.Errorf("lookup shopkeeper: %w", err)
	}
	if !found {
		return ErrShopkeeperNotFound
	}

	token, err := e.signer.Sign(ctx, appt.ID)
	if err != nil {
		return fmt.Errorf("sign approval token: %w", err)
	}
	now := e.now()
	appt.Paid = true
	appt.ApprovalToken = &token
	appt.LastError = nil
	appt.UpdatedAt = now

	evt, err := outbox.PaymentEvent(appt, source, now)
	if err != nil {
		return err
	}
	if err := e.store.Save(ctx, appt, evt); err != nil {
		return fmt.Errorf("save appointment: %w", err)
	}
	e.logger.Info("payment confirmed", "appointment_id", appt.ID, "source", source)
	return e.notifyFailed(ctx, appt.ID, e.notifier.ApprovalRequest(ctx, appt, sk, token))
}

// gate applies the free quota: over the limit the appointment waits for
// payment, otherwise it gets an approval token.
func (e *Engine) gate(ctx context.Context, appt *model.Appointment) (int, error) {
	freeLimit := e.settings.Current(ctx).FreeBookingsPerMonth
	used, err := e.counter.CountApproved(ctx, appt.CustomerEmail, e.now())
	if err != nil {
		return 0, fmt.Errorf("count approved appointments: %w", err)
	}
	if used >= freeLimit {
		appt.Status = model.StatusAwaitingPayment
		appt.ApprovalToken = nil
		return freeLimit, nil
	}

	token, err := e.signer.Sign(ctx, appt.ID)
	if err != nil {
		return 0, fmt.Errorf("sign approval token: %w", err)
	}
	appt.Status = model.StatusPendingApproval
	appt.ApprovalToken = &token
	return freeLimit, nil
}

func (e *Engine) notifyGated(ctx context.Context, appt model.Appointment, sk model.Shopkeeper, freeLimit int) error {
	if appt.Status != model.StatusAwaitingPayment {
		return e.notifier.ApprovalRequest(ctx, appt, sk, model.Deref(appt.ApprovalToken))
	}
	checkoutURL := ""
	if e.checkout != nil {
		url, err := e.checkout.CreateCheckout(ctx, appt, sk)
		if err != nil {
			e.logger.Warn("checkout session not created", "appointment_id", appt.ID, "err", err)
		} else {
			checkoutURL = url
		}
	}
	return e.notifier.PaymentRequired(ctx, appt, sk, freeLimit, checkoutURL)
}

func (e *Engine) create(ctx context.Context, appt model.Appointment, now time.Time) error {
	evt, err := outbox.AppointmentEvent(outbox.EventAppointmentSubmitted, appt, now)
	if err != nil {
		return err
	}
	if err := e.store.Create(ctx, appt, evt); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

func (e *Engine) notifyFailed(ctx context.Context, appointmentID string, err error) error {
	if err == nil {
		return nil
	}
	if setErr := e.store.SetLastError(ctx, appointmentID, err.Error()); setErr != nil {
		e.logger.Error("record last error failed", "appointment_id", appointmentID, "err", setErr)
	}
	return fmt.Errorf("%w: %v", ErrNotification, err)
}

func (e *Engine) acquire(ctx context.Context, key string) (func(), error) {
	release, err := e.locker.Acquire(ctx, key)
	if errors.Is(err, lock.ErrTimeout) {
		return nil, ErrLockTimeout
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	return release, nil
}

func decision(appt model.Appointment, reason string) Decision {
	return Decision{AppointmentID: appt.ID, Status: appt.Status, Reason: reason}
}

func reasonFor(appt model.Appointment) string {
	if appt.Status == model.StatusAwaitingPayment {
		return ReasonPaymentRequired
	}
	return ReasonApprovalRequested
}
