// Package notify composes the booking emails and records every send attempt.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/email"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/storage"
)

const (
	KindWelcome            = "shopkeeper_welcome"
	KindUnverifiedAdmin    = "unverified_admin"
	KindUnverifiedCustomer = "unverified_customer"
	KindPaymentRequired    = "payment_required"
	KindApprovalRequest    = "approval_request"
	KindApproved           = "approved"
	KindRejected           = "rejected"
)

type LogStore interface {
	Insert(ctx context.Context, n storage.Notification) error
}

type Config struct {
	AdminEmail string
	// ApprovalBaseURL is the public URL of the approve/reject endpoint.
	ApprovalBaseURL string
	PaymentLink     string
}

type Notifier struct {
	sender email.Sender
	log    LogStore
	logger *slog.Logger
	cfg    Config
}

func New(sender email.Sender, log LogStore, logger *slog.Logger, cfg Config) *Notifier {
	return &Notifier{sender: sender, log: log, logger: logger, cfg: cfg}
}

func (n *Notifier) Welcome(ctx context.Context, sk model.Shopkeeper) error {
	return n.send(ctx, KindWelcome, "", sk.ID, WelcomeMessage(sk))
}

// ShopUnverified tells the operator and the customer that the booking is parked.
// Both mails are attempted; every failure is returned, joined.
func (n *Notifier) ShopUnverified(ctx context.Context, appt model.Appointment) error {
	var errs []error
	if n.cfg.AdminEmail != "" {
		errs = append(errs, n.send(ctx, KindUnverifiedAdmin, appt.ID, appt.ShopkeeperID, UnverifiedAdminMessage(n.cfg.AdminEmail, appt)))
	} else {
		n.logger.Warn("admin email not configured; unverified shop notice skipped", "appointment_id", appt.ID)
	}
	errs = append(errs, n.send(ctx, KindUnverifiedCustomer, appt.ID, appt.ShopkeeperID, UnverifiedCustomerMessage(appt)))
	return errors.Join(errs...)
}

func (n *Notifier) PaymentRequired(ctx context.Context, appt model.Appointment, sk model.Shopkeeper, freeLimit int, checkoutURL string) error {
	msg := PaymentRequiredMessage(appt, sk, PaymentOptions{
		FreeLimit:   freeLimit,
		PaymentLink: n.cfg.PaymentLink,
		CheckoutURL: checkoutURL,
	})
	return n.send(ctx, KindPaymentRequired, appt.ID, sk.ID, msg)
}

func (n *Notifier) ApprovalRequest(ctx context.Context, appt model.Appointment, sk model.Shopkeeper, token string) error {
	if n.cfg.ApprovalBaseURL == "" {
		return errors.New("approval base url is not configured")
	}
	msg := ApprovalRequestMessage(appt, sk,
		ActionURL(n.cfg.ApprovalBaseURL, "approve", appt.ID, token),
		ActionURL(n.cfg.ApprovalBaseURL, "reject", appt.ID, token),
	)
	return n.send(ctx, KindApprovalRequest, appt.ID, sk.ID, msg)
}

func (n *Notifier) Approved(ctx context.Context, appt model.Appointment, sk model.Shopkeeper, start time.Time) error {
	return n.send(ctx, KindApproved, appt.ID, sk.ID, ApprovedMessage(appt, sk, start))
}

func (n *Notifier) Rejected(ctx context.Context, appt model.Appointment, sk model.Shopkeeper) error {
	return n.send(ctx, KindRejected, appt.ID, sk.ID, RejectedMessage(appt, sk))
}

func (n *Notifier) send(ctx context.Context, kind, appointmentID, shopkeeperID string, msg email.Message) error {
	if msg.To == "" {
		return fmt.Errorf("%s: no recipient", kind)
	}
	err := n.sender.Send(ctx, msg)

	entry := storage.Notification{
		AppointmentID: appointmentID,
		ShopkeeperID:  shopkeeperID,
		Kind:          kind,
		Recipient:     msg.To,
		Subject:       msg.Subject,
		Status:        "sent",
	}
	if err != nil {
		entry.Status = "failed"
		entry.Error = err.Error()
		n.logger.Error("email send failed", "kind", kind, "appointment_id", appointmentID, "to", msg.To, "err", err)
	}
	if n.log != nil {
		if logErr := n.log.Insert(ctx, entry); logErr != nil {
			n.logger.Warn("notification log insert failed", "kind", kind, "err", logErr)
		}
	}
	if err != nil {
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	return nil
}
