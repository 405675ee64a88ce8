// Package registration onboards shops: it assigns the shop id, builds the
// booking and QR links and mails them to the owner.
package registration

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
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/outbox"
)

var (
	ErrInvalid     = errors.New("invalid registration")
	ErrLockTimeout = errors.New("registration lock not acquired")
	ErrNotFound    = errors.New("shopkeeper not found")
)

type Store interface {
	FindByID(ctx context.Context, id string) (model.Shopkeeper, bool, error)
	Create(ctx context.Context, sk model.Shopkeeper, events ...outbox.Event) error
	MarkVerified(ctx context.Context, id string, events ...outbox.Event) (bool, error)
	ListVerifiedMissingLinks(ctx context.Context) ([]model.Shopkeeper, error)
	UpdateLinks(ctx context.Context, id, bookingLink, qrLink string, onboardedAt time.Time) error
}

type Notifier interface {
	Welcome(ctx context.Context, sk model.Shopkeeper) error
}

// HeldReleaser routes appointments that were parked while a shop was unverified.
type HeldReleaser interface {
	ReleaseHeld(ctx context.Context, shopkeeperID string) (int, error)
}

type TimeSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Registration struct {
	ShopName      string     `json:"shopName"`
	OwnerName     string     `json:"ownerName"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	Address       string     `json:"address"`
	MapLink       string     `json:"mapLink"`
	MinCharge     string     `json:"minCharge"`
	UPIID         string     `json:"upiId"`
	Telegram      string     `json:"telegram"`
	TimeSlots     []TimeSlot `json:"timeSlots"`
	BreakDuration string     `json:"breakDuration"`
}

func (r *Registration) normalize() {
	for _, f := range []*string{&r.ShopName, &r.OwnerName, &r.Email, &r.Phone, &r.Address, &r.MapLink, &r.MinCharge, &r.UPIID, &r.Telegram, &r.BreakDuration} {
		*f = strings.TrimSpace(*f)
	}
}

func (r *Registration) validate() error {
	var missing []string
	if r.ShopName == "" {
		missing = append(missing, "shopName")
	}
	if r.OwnerName == "" {
		missing = append(missing, "ownerName")
	}
	if r.Email == "" {
		missing = append(missing, "email")
	}
	if r.Phone == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	addr, err := mail.ParseAddress(r.Email)
	if err != nil {
		return fmt.Errorf("%w: email is not valid", ErrInvalid)
	}
	r.Email = addr.Address
	for i, s := range r.TimeSlots {
		if strings.TrimSpace(s.Start) == "" || strings.TrimSpace(s.End) == "" {
			return fmt.Errorf("%w: time slot %d needs start and end", ErrInvalid, i+1)
		}
	}
	return nil
}

// BusinessDetails renders the slots and break as stored on the shop record,
// e.g. "Slots: 09:00-12:00, 13:00-18:00 | Break: 15 mins".
func BusinessDetails(slots []TimeSlot, breakDuration string) string {
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, strings.TrimSpace(s.Start)+"-"+strings.TrimSpace(s.End))
	}
	return fmt.Sprintf("Slots: %s | Break: %s mins", strings.Join(parts, ", "), breakDuration)
}

type Result struct {
	Status       string `json:"status"`
	ShopkeeperID string `json:"shopkeeper_id"`
	BookingLink  string `json:"booking_link"`
	QRLink       string `json:"qr_link"`
}

type VerifyResult struct {
	ShopkeeperID string `json:"shopkeeper_id"`
	Changed      bool   `json:"changed"`
	Released     int    `json:"released"`
}

type Deps struct {
	Store               Store
	Notifier            Notifier
	Releaser            HeldReleaser
	Locker              lock.Locker
	BookingLinkTemplate string
	Logger              *slog.Logger
	Now                 func() time.Time
}

type Service struct {
	store    Store
	notifier Notifier
	releaser HeldReleaser
	locker   lock.Locker
	template string
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		store:    d.Store,
		notifier: d.Notifier,
		releaser: d.Releaser,
		locker:   d.Locker,
		template: d.BookingLinkTemplate,
		logger:   d.Logger,
		now:      d.Now,
		newID:    NewShopkeeperID,
	}
}

func NewShopkeeperID() string {
	return "SHP-" + strings.ToUpper(uuid.NewString()[:8])
}

// Register stores a new unverified shop and mails its links. A failed welcome
// mail is logged; the shop stays registered.
func (s *Service) Register(ctx context.Context, reg Registration) (Result, error) {
	reg.normalize()
	if err := reg.validate(); err != nil {
		return Result{}, err
	}

	release, err := s.locker.Acquire(ctx, lock.RegistrationKey)
	if errors.Is(err, lock.ErrTimeout) {
		return Result{}, ErrLockTimeout
	}
	if err != nil {
		return Result{}, fmt.Errorf("acquire lock: %w", err)
	}
	defer release()

	now := s.now()
	sk := model.Shopkeeper{
		ID:              s.newID(),
		ShopName:        reg.ShopName,
		OwnerName:       reg.OwnerName,
		Email:           reg.Email,
		Phone:           reg.Phone,
		Address:         reg.Address,
		MapLink:         reg.MapLink,
		BusinessDetails: BusinessDetails(reg.TimeSlots, reg.BreakDuration),
		MinCharge:       reg.MinCharge,
		UPIID:           reg.UPIID,
		Telegram:        reg.Telegram,
		Verified:        false,
		OnboardedAt:     &now,
		CreatedAt:       now,
	}
	sk.BookingLink = notify.BookingLink(s.template, sk.ID)
	sk.QRLink = notify.QRLink(sk.BookingLink)

	evt, err := outbox.ShopkeeperEvent(outbox.EventShopkeeperRegistered, sk, now)
	if err != nil {
		return Result{}, err
	}
	if err := s.store.Create(ctx, sk, evt); err != nil {
		return Result{}, fmt.Errorf("create shopkeeper: %w", err)
	}
	s.logger.Info("shopkeeper registered", "shopkeeper_id", sk.ID, "shop_name", sk.ShopName)

	if err := s.notifier.Welcome(ctx, sk); err != nil {
		s.logger.Warn("welcome mail not sent", "shopkeeper_id", sk.ID, "err", err)
	}
	return Result{Status: "success", ShopkeeperID: sk.ID, BookingLink: sk.BookingLink, QRLink: sk.QRLink}, nil
}

// Verify flips the shop to verified and releases its held appointments.
// Verifying an already verified shop still retries any held appointments.
func (s *Service) Verify(ctx context.Context, shopkeeperID string) (VerifyResult, error) {
	res := VerifyResult{ShopkeeperID: shopkeeperID}
	sk, found, err := s.store.FindByID(ctx, shopkeeperID)
	if err != nil {
		return res, fmt.Errorf("lookup shopkeeper: %w", err)
	}
	if !found {
		return res, ErrNotFound
	}

	sk.Verified = true
	evt, err := outbox.ShopkeeperEvent(outbox.EventShopkeeperVerified, sk, s.now())
	if err != nil {
		return res, err
	}
	changed, err := s.store.MarkVerified(ctx, shopkeeperID, evt)
	if err != nil {
		return res, fmt.Errorf("mark verified: %w", err)
	}
	res.Changed = changed
	if changed {
		s.logger.Info("shopkeeper verified", "shopkeeper_id", shopkeeperID)
	}

	res.Released, err = s.releaser.ReleaseHeld(ctx, shopkeeperID)
	return res, err
}

// BackfillLinks fills booking and QR links for verified shops that lack them.
func (s *Service) BackfillLinks(ctx context.Context) (int, error) {
	shops, err := s.store.ListVerifiedMissingLinks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list shopkeepers: %w", err)
	}
	updated := 0
	for _, sk := range shops {
		link := notify.BookingLink(s.template, sk.ID)
		if err := s.store.UpdateLinks(ctx, sk.ID, link, notify.QRLink(link), s.now()); err != nil {
			return updated, fmt.Errorf("update links for %s: %w", sk.ID, err)
		}
		updated++
	}
	if updated > 0 {
		s.logger.Info("booking links backfilled", "count", updated)
	}
	return updated, nil
}
