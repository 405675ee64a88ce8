package registration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/lock"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/outbox"
)

type memStore struct {
	shops  map[string]model.Shopkeeper
	events []outbox.Event
}

func (m *memStore) FindByID(_ context.Context, id string) (model.Shopkeeper, bool, error) {
	sk, ok := m.shops[id]
	return sk, ok, nil
}

func (m *memStore) Create(_ context.Context, sk model.Shopkeeper, events ...outbox.Event) error {
	m.shops[sk.ID] = sk
	m.events = append(m.events, events...)
	return nil
}

func (m *memStore) MarkVerified(_ context.Context, id string, events ...outbox.Event) (bool, error) {
	sk := m.shops[id]
	if sk.Verified {
		return false, nil
	}
	sk.Verified = true
	m.shops[id] = sk
	m.events = append(m.events, events...)
	return true, nil
}

func (m *memStore) ListVerifiedMissingLinks(context.Context) ([]model.Shopkeeper, error) {
	var out []model.Shopkeeper
	for _, sk := range m.shops {
		if sk.Verified && (sk.BookingLink == "" || sk.QRLink == "") {
			out = append(out, sk)
		}
	}
	return out, nil
}

func (m *memStore) UpdateLinks(_ context.Context, id, booking, qr string, _ time.Time) error {
	sk := m.shops[id]
	sk.BookingLink, sk.QRLink = booking, qr
	m.shops[id] = sk
	return nil
}

type welcomeRecorder struct {
	sent []model.Shopkeeper
	err  error
}

func (w *welcomeRecorder) Welcome(_ context.Context, sk model.Shopkeeper) error {
	w.sent = append(w.sent, sk)
	return w.err
}

type releaser struct{ calls []string }

func (r *releaser) ReleaseHeld(_ context.Context, id string) (int, error) {
	r.calls = append(r.calls, id)
	return 2, nil
}

const template = "https://forms.example.com/viewform?usp=pp_url&entry.42=SHOPKEEPER_ID"

func newService(store *memStore, notifier *welcomeRecorder, rel *releaser) *Service {
	return NewService(Deps{
		Store:               store,
		Notifier:            notifier,
		Releaser:            rel,
		Locker:              lock.NewLocal(time.Second),
		BookingLinkTemplate: template,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func validRegistration() Registration {
	return Registration{
		ShopName:      " Glow Salon ",
		OwnerName:     "Meera",
		Email:         "meera@example.com",
		Phone:         "9999999999",
		UPIID:         "glow@upi",
		TimeSlots:     []TimeSlot{{Start: "09:00", End: "12:00"}, {Start: "13:00", End: "18:00"}},
		BreakDuration: "15",
	}
}

func TestRegisterBuildsLinksAndMailsOwner(t *testing.T) {
	store := &memStore{shops: map[string]model.Shopkeeper{}}
	notifier := &welcomeRecorder{err: errors.New("smtp down")}
	svc := newService(store, notifier, &releaser{})

	res, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Status != "success" || !strings.HasPrefix(res.ShopkeeperID, "SHP-") || len(res.ShopkeeperID) != 12 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.BookingLink != strings.Replace(template, "SHOPKEEPER_ID", res.ShopkeeperID, 1) {
		t.Fatalf("unexpected booking link %q", res.BookingLink)
	}
	if !strings.HasPrefix(res.QRLink, "https://quickchart.io/qr?size=300&format=png&text=https%3A%2F%2F") {
		t.Fatalf("unexpected qr link %q", res.QRLink)
	}

	sk := store.shops[res.ShopkeeperID]
	if sk.Verified || sk.ShopName != "Glow Salon" || sk.OnboardedAt == nil {
		t.Fatalf("unexpected shop %+v", sk)
	}
	if sk.BusinessDetails != "Slots: 09:00-12:00, 13:00-18:00 | Break: 15 mins" {
		t.Fatalf("unexpected business details %q", sk.BusinessDetails)
	}
	if len(notifier.sent) != 1 {
		t.Fatal("welcome mail should be attempted")
	}
	if len(store.events) != 1 || store.events[0].EventType != outbox.EventShopkeeperRegistered {
		t.Fatalf("unexpected events %+v", store.events)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newService(&memStore{shops: map[string]model.Shopkeeper{}}, &welcomeRecorder{}, &releaser{})

	reg := validRegistration()
	reg.Email = ""
	reg.Phone = ""
	_, err := svc.Register(context.Background(), reg)
	if !errors.Is(err, ErrInvalid) || !strings.Contains(err.Error(), "email, phone") {
		t.Fatalf("expected missing fields error, got %v", err)
	}

	reg = validRegistration()
	reg.TimeSlots = []TimeSlot{{Start: "09:00"}}
	if _, err := svc.Register(context.Background(), reg); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected slot error, got %v", err)
	}
}

func TestRegisterStoresBareOwnerAddress(t *testing.T) {
	store := &memStore{shops: map[string]model.Shopkeeper{}}
	notifier := &welcomeRecorder{}
	svc := newService(store, notifier, &releaser{})

	reg := validRegistration()
	reg.Email = "Meera Salon <meera@example.com>"
	res, err := svc.Register(context.Background(), reg)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := store.shops[res.ShopkeeperID].Email; got != "meera@example.com" {
		t.Fatalf("stored email %q", got)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Email != "meera@example.com" {
		t.Fatalf("welcome mail went to %+v", notifier.sent)
	}
}

func TestVerifyReleasesHeldAppointments(t *testing.T) {
	store := &memStore{shops: map[string]model.Shopkeeper{"SHP-1": {ID: "SHP-1"}}}
	rel := &releaser{}
	svc := newService(store, &welcomeRecorder{}, rel)

	res, err := svc.Verify(context.Background(), "SHP-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Changed || res.Released != 2 || !store.shops["SHP-1"].Verified {
		t.Fatalf("unexpected result %+v", res)
	}
	if store.events[0].EventType != outbox.EventShopkeeperVerified {
		t.Fatalf("expected verified event, got %s", store.events[0].EventType)
	}

	res, err = svc.Verify(context.Background(), "SHP-1")
	if err != nil || res.Changed || len(rel.calls) != 2 {
		t.Fatalf("second verify: %+v %v calls=%v", res, err, rel.calls)
	}

	if _, err := svc.Verify(context.Background(), "SHP-NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBackfillLinks(t *testing.T) {
	store := &memStore{shops: map[string]model.Shopkeeper{
		"SHP-A": {ID: "SHP-A", Verified: true},
		"SHP-B": {ID: "SHP-B", Verified: false},
		"SHP-C": {ID: "SHP-C", Verified: true, BookingLink: "x", QRLink: "y"},
	}}
	svc := newService(store, &welcomeRecorder{}, &releaser{})

	n, err := svc.BackfillLinks(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("BackfillLinks = %d, %v", n, err)
	}
	if store.shops["SHP-A"].BookingLink == "" || store.shops["SHP-B"].BookingLink != "" || store.shops["SHP-C"].BookingLink != "x" {
		t.Fatalf("unexpected shops %+v", store.shops)
	}
}
