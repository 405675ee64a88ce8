package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/intake"
	"github.com/segmentio/kafka-go"
)

// DefaultPaymentsTopic carries payments collected outside Stripe, e.g. UPI
// transfers reconciled by the operator's bank feed.
const DefaultPaymentsTopic = "payments.appointment.paid.v1"

type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, appointmentID, source string) error
}

type paymentMessage struct {
	AppointmentID string `json:"appointment_id"`
	Source        string `json:"source"`
	Reference     string `json:"reference"`
}

// PaymentHandler marks the referenced appointment as paid. Messages that can
// never succeed are logged and acknowledged.
func PaymentHandler(confirmer PaymentConfirmer, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var p paymentMessage
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			logger.Warn("payment message is not valid json", "topic", msg.Topic, "offset", msg.Offset, "err", err)
			return nil
		}
		p.AppointmentID = strings.TrimSpace(p.AppointmentID)
		if p.AppointmentID == "" {
			logger.Warn("payment message without appointment_id", "topic", msg.Topic, "offset", msg.Offset)
			return nil
		}
		source := strings.TrimSpace(p.Source)
		if source == "" {
			source = "kafka"
		}

		err := confirmer.ConfirmPayment(ctx, p.AppointmentID, source)
		switch {
		case err == nil:
			logger.Info("payment applied", "appointment_id", p.AppointmentID, "source", source, "reference", p.Reference)
			return nil
		case errors.Is(err, intake.ErrAppointmentNotFound), errors.Is(err, intake.ErrNotAwaitingPayment), errors.Is(err, intake.ErrShopkeeperNotFound):
			logger.Warn("payment not applicable", "appointment_id", p.AppointmentID, "err", err)
			return nil
		case errors.Is(err, intake.ErrNotification):
			logger.Warn("payment applied but shopkeeper not notified", "appointment_id", p.AppointmentID, "err", err)
			return nil
		default:
			return err
		}
	}
}
