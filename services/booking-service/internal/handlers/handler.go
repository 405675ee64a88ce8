package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/easybook/libs/auth"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/approval"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/intake"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/registration"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/settings"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/storage"
)

type Intake interface {
	Submit(ctx context.Context, sub intake.Submission) (intake.Decision, error)
	ConfirmPayment(ctx context.Context, appointmentID, source string) error
}

type Approver interface {
	HandleAction(ctx context.Context, action, appointmentID, token string) (approval.Result, error)
}

type Registrar interface {
	Register(ctx context.Context, reg registration.Registration) (registration.Result, error)
	Verify(ctx context.Context, shopkeeperID string) (registration.VerifyResult, error)
	BackfillLinks(ctx context.Context) (int, error)
}

type Directory interface {
	FindByID(ctx context.Context, id string) (model.Shopkeeper, bool, error)
}

type AppointmentLister interface {
	ListByShop(ctx context.Context, shopkeeperID string, limit int) ([]model.Appointment, error)
}

type ReviewStore interface {
	Insert(ctx context.Context, rv model.Review) (int64, error)
}

type SettingsManager interface {
	Current(ctx context.Context) settings.Values
	Update(ctx context.Context, overrides map[string]string) (settings.Values, error)
}

type ProviderEvents interface {
	Record(ctx context.Context, evt storage.ProviderEvent) error
	Forget(ctx context.Context, provider, providerEventID string) error
}

type Config struct {
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
}

type Deps struct {
	Intake         Intake
	Approver       Approver
	Registrar      Registrar
	Directory      Directory
	Appointments   AppointmentLister
	Reviews        ReviewStore
	Settings       SettingsManager
	ProviderEvents ProviderEvents
	Logger         *slog.Logger
	Config         Config
}

type Handler struct {
	intake         Intake
	approver       Approver
	registrar      Registrar
	directory      Directory
	appointments   AppointmentLister
	reviews        ReviewStore
	settings       SettingsManager
	providerEvents ProviderEvents
	logger         *slog.Logger
	cfg            Config
}

func New(d Deps) *Handler {
	if d.Config.StripeWebhookTolerance <= 0 {
		d.Config.StripeWebhookTolerance = 5 * time.Minute
	}
	return &Handler{
		intake:         d.Intake,
		approver:       d.Approver,
		registrar:      d.Registrar,
		directory:      d.Directory,
		appointments:   d.Appointments,
		reviews:        d.Reviews,
		settings:       d.Settings,
		providerEvents: d.ProviderEvents,
		logger:         d.Logger,
		cfg:            d.Config,
	}
}

// Register mounts the public, link and admin routes. Admin routes require
// operator credentials.
func (h *Handler) Register(mux *http.ServeMux, operator auth.Operator) {
	mux.HandleFunc("/approve", h.Approve)
	mux.HandleFunc("/api/v1/public/appointments", h.SubmitAppointment)
	mux.HandleFunc("/api/v1/public/shopkeepers", h.RegisterShopkeeper)
	mux.HandleFunc("/api/v1/public/reviews", h.SubmitReview)
	mux.HandleFunc("/api/v1/webhooks/stripe", h.StripeWebhook)

	admin := func(f http.HandlerFunc) http.Handler {
		return operator.RequireRole(f, auth.RoleAdmin)
	}
	mux.Handle("/api/v1/admin/shopkeepers/verify", admin(h.VerifyShopkeeper))
	mux.Handle("/api/v1/admin/shopkeepers/backfill-links", admin(h.BackfillLinks))
	mux.Handle("/api/v1/admin/appointments", admin(h.ListAppointments))
	mux.Handle("/api/v1/admin/appointments/paid", admin(h.MarkPaid))
	mux.Handle("/api/v1/admin/settings", admin(h.Settings))
}
