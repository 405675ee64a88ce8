// Package payments creates Stripe Checkout sessions for the deposit a
// customer pays once their free bookings for the month are used up.
package payments

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
)

// MetadataAppointmentID is the session metadata key the webhook reads back.
const MetadataAppointmentID = "appointment_id"

type CheckoutConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	Currency   string
	// DefaultDeposit is charged, in minor units, when the shop's minimum
	// charge has no number in it.
	DefaultDeposit int64
}

type Checkout struct {
	client checkoutsession.Client
	cfg    CheckoutConfig
}

// NewCheckout returns nil when no secret key is configured. backend may be
// nil to use Stripe's API.
func NewCheckout(cfg CheckoutConfig, backend stripe.Backend) (*Checkout, error) {
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	if cfg.SecretKey == "" {
		return nil, nil
	}
	if cfg.SuccessURL == "" || cfg.CancelURL == "" {
		return nil, errors.New("stripe checkout needs success and cancel urls")
	}
	if cfg.Currency == "" {
		cfg.Currency = "inr"
	}
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Checkout{client: checkoutsession.Client{B: backend, Key: cfg.SecretKey}, cfg: cfg}, nil
}

func (c *Checkout) CreateCheckout(ctx context.Context, appt model.Appointment, sk model.Shopkeeper) (string, error) {
	amount := DepositAmount(sk.MinCharge, c.cfg.DefaultDeposit)
	if amount <= 0 {
		return "", errors.New("no deposit amount for checkout")
	}
	metadata := map[string]string{
		MetadataAppointmentID: appt.ID,
		"shopkeeper_id":       sk.ID,
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(c.cfg.SuccessURL),
		CancelURL:         stripe.String(c.cfg.CancelURL),
		ClientReferenceID: stripe.String(appt.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(c.cfg.Currency),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Appointment %s - %s", appt.ID, sk.ShopName)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if appt.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(appt.CustomerEmail)
	}
	params.IdempotencyKey = stripe.String("checkout:" + appt.ID)
	params.Context = ctx

	sess, err := c.client.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	if sess.URL == "" {
		return "", errors.New("checkout session has no url")
	}
	return sess.URL, nil
}

var amountPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// DepositAmount is half of the first number in minCharge, in minor units.
func DepositAmount(minCharge string, fallback int64) int64 {
	raw := amountPattern.FindString(strings.ReplaceAll(minCharge, ",", ""))
	if raw == "" {
		return fallback
	}
	v, err := decimal.NewFromString(raw)
	if err != nil || !v.IsPositive() {
		return fallback
	}
	return v.Shift(2).Div(decimal.NewFromInt(2)).Round(0).IntPart()
}
