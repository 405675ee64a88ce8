package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/linktoken"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/lock"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/settings"
)

type fakeDirectory map[string]model.Shopkeeper

func (d fakeDirectory) FindByID(_ context.Context, id string) (model.Shopkeeper, bool, error) {
	sk, ok := d[id]
	return sk, ok, nil
}

type memStore struct {
	mu     sync.Mutex
	appts  map[string]model.Appointment
	events []outbox.Event
}

func newMemStore() *memStore { return &memStore{appts: map[string]model.Appointment{}} }

func (s *memStore) Create(_ context.Context, appt model.Appointment, events ...outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.appts[appt.ID]; exists {
		return errors.New("duplicate id")
	}
	s.appts[appt.ID] = appt
	s.events = append(s.events, events...)
	return nil
}

func (s *memStore) Save(_ context.Context, appt model.Appointment, events ...outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.appts[appt.ID]; !exists {
		return errors.New("missing")
	}
	s.appts[appt.ID] = appt
	s.events = append(s.events, events...)
	return nil
}

func (s *memStore) SetLastError(_ context.Context, id, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt := s.appts[id]
	appt.LastError = model.StringPtr(msg)
	s.appts[id] = appt
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (model.Appointment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	return appt, ok, nil
}

func (s *memStore) ListHeldByShop(_ context.Context, shopkeeperID string) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if a.ShopkeeperID == shopkeeperID && a.Status == model.StatusPendingApproval && !a.HasToken() {
			out = append(out, a)
		}
	}
	return out, nil
}

type fixedCounter int

func (c fixedCounter) CountApproved(context.Context, string, time.Time) (int, error) { return int(c), nil }

type call struct {
	kind        string
	appointment string
	token       string
	freeLimit   int
	checkoutURL string
}

type fakeNotifier struct {
	calls []call
	err   error
}

func (n *fakeNotifier) ShopUnverified(_ context.Context, appt model.Appointment) error {
	n.calls = append(n.calls, call{kind: "unverified", appointment: appt.ID})
	return n.err
}

func (n *fakeNotifier) PaymentRequired(_ context.Context, appt model.Appointment, _ model.Shopkeeper, freeLimit int, checkoutURL string) error {
	n.calls = append(n.calls, call{kind: "payment", appointment: appt.ID, freeLimit: freeLimit, checkoutURL: checkoutURL})
	return n.err
}

func (n *fakeNotifier) ApprovalRequest(_ context.Context, appt model.Appointment, _ model.Shopkeeper, token string) error {
	n.calls = append(n.calls, call{kind: "approval", appointment: appt.ID, token: token})
	return n.err
}

type staticSettings settings.Values

func (s staticSettings) Current(context.Context) settings.Values { return settings.Values(s) }

type fakeCheckout struct{}

func (fakeCheckout) CreateCheckout(_ context.Context, appt model.Appointment, _ model.Shopkeeper) (string, error) {
	return "https://checkout.test/" + appt.ID, nil
}

type harness struct {
	engine   *Engine
	store    *memStore
	notifier *fakeNotifier
	signer   *linktoken.Signer
	dir      fakeDirectory
}

func newHarness(t *testing.T, used int) *harness {
	t.Helper()
	h := &harness{
		store:    newMemStore(),
		notifier: &fakeNotifier{},
		signer:   linktoken.NewStaticSigner([]byte("test-secret")),
		dir: fakeDirectory{
			"SHP-VERIFIED": {ID: "SHP-VERIFIED", ShopName: "Glow Salon", Email: "shop@example.com", UPIID: "glow@upi", Verified: true},
			"SHP-NEW":      {ID: "SHP-NEW", ShopName: "New Shop", Email: "new@example.com"},
		},
	}
	h.engine = NewEngine(Deps{
		Directory: h.dir,
		Store:     h.store,
		Counter:   fixedCounter(used),
		Notifier:  h.notifier,
		Signer:    h.signer,
		Settings:  staticSettings(settings.Defaults()),
		Locker:    lock.NewLocal(time.Second),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) },
	})
	return h
}

func submission(shop string) Submission {
	return Submission{
		ShopkeeperID:  shop,
		CustomerName:  "Ravi",
		CustomerEmail: "Ravi@Example.com",
		RequestedDate: "2024-03-10",
		RequestedTime: "14:30",
	}
}

func TestUnknownShopIsRejectedWithoutNotifications(t *testing.T) {
	for _, shop := range []string{"SHP-MISSING", ""} {
		h := newHarness(t, 0)
		dec, err := h.engine.Submit(context.Background(), submission(shop))
		if err != nil {
			t.Fatalf("Submit(%q): %v", shop, err)
		}
		if dec.Status != model.StatusRejected || dec.Reason != ReasonInvalidShopkeeper {
			t.Fatalf("expected rejected, got %+v", dec)
		}
		appt := h.store.appts[dec.AppointmentID]
		if model.Deref(appt.LastError) != "Invalid Shopkeeper ID" {
			t.Fatalf("unexpected last_error %q", model.Deref(appt.LastError))
		}
		if len(h.notifier.calls) != 0 {
			t.Fatalf("expected no notifications, got %+v", h.notifier.calls)
		}
	}
}

func TestUnverifiedShopHoldsWithoutTokenRegardlessOfUsage(t *testing.T) {
	for _, used := range []int{0, 10} {
		h := newHarness(t, used)
		dec, err := h.engine.Submit(context.Background(), submission("SHP-NEW"))
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		appt := h.store.appts[dec.AppointmentID]
		if appt.Status != model.StatusPendingApproval || appt.HasToken() {
			t.Fatalf("expected pending without token, got %+v", appt)
		}
		if len(h.notifier.calls) != 1 || h.notifier.calls[0].kind != "unverified" {
			t.Fatalf("expected unverified notice, got %+v", h.notifier.calls)
		}
	}
}

func TestOverQuotaAwaitsPayment(t *testing.T) {
	h := newHarness(t, 4)
	h.engine.checkout = fakeCheckout{}

	dec, err := h.engine.Submit(context.Background(), submission("SHP-VERIFIED"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if dec.Status != model.StatusAwaitingPayment {
		t.Fatalf("expected awaiting_payment, got %s", dec.Status)
	}
	if h.store.appts[dec.AppointmentID].HasToken() {
		t.Fatal("no token expected before payment")
	}
	got := h.notifier.calls
	if len(got) != 1 || got[0].kind != "payment" || got[0].freeLimit != 4 || got[0].checkoutURL != "https://checkout.test/"+dec.AppointmentID {
		t.Fatalf("unexpected notifications %+v", got)
	}
}

func TestUnderQuotaIssuesVerifiableToken(t *testing.T) {
	h := newHarness(t, 3)
	dec, err := h.engine.Submit(context.Background(), submission("SHP-VERIFIED"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	appt := h.store.appts[dec.AppointmentID]
	if appt.Status != model.StatusPendingApproval || !appt.HasToken() {
		t.Fatalf("expected pending with token, got %+v", appt)
	}
	ok, err := h.signer.Verify(context.Background(), appt.ID, *appt.ApprovalToken)
	if err != nil || !ok {
		t.Fatalf("token does not verify: ok=%v err=%v", ok, err)
	}
	if h.notifier.calls[0].kind != "approval" || h.notifier.calls[0].token != *appt.ApprovalToken {
		t.Fatalf("unexpected notifications %+v", h.notifier.calls)
	}
	if !strings.HasPrefix(appt.ID, "APT-") || len(appt.ID) != 12 || appt.ID != strings.ToUpper(appt.ID) {
		t.Fatalf("unexpected id format %q", appt.ID)
	}
	if appt.Paid {
		t.Fatal("new appointment must not be paid")
	}
	if len(h.store.events) != 1 || h.store.events[0].EventType != outbox.EventAppointmentSubmitted {
		t.Fatalf("expected submitted event, got %+v", h.store.events)
	}
}

func TestNotificationFailureKeepsRecordAndLastError(t *testing.T) {
	h := newHarness(t, 0)
	h.notifier.err = errors.New("smtp down")

	dec, err := h.engine.Submit(context.Background(), submission("SHP-VERIFIED"))
	if !errors.Is(err, ErrNotification) {
		t.Fatalf("expected ErrNotification, got %v", err)
	}
	appt, ok := h.store.appts[dec.AppointmentID]
	if !ok || appt.Status != model.StatusPendingApproval {
		t.Fatalf("record should persist, got %+v", appt)
	}
	if !strings.Contains(model.Deref(appt.LastError), "smtp down") {
		t.Fatalf("expected last_error, got %q", model.Deref(appt.LastError))
	}
}

func TestInvalidSubmission(t *testing.T) {
	h := newHarness(t, 0)
	sub := submission("SHP-VERIFIED")
	sub.CustomerEmail = "not-an-email"
	if _, err := h.engine.Submit(context.Background(), sub); !errors.Is(err, ErrInvalidSubmission) {
		t.Fatalf("expected ErrInvalidSubmission, got %v", err)
	}
}

func TestLockTimeout(t *testing.T) {
	h := newHarness(t, 0)
	locker := lock.NewLocal(20 * time.Millisecond)
	h.engine.locker = locker
	release, err := locker.Acquire(context.Background(), lock.CustomerKey("ravi@example.com"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	if _, err := h.engine.Submit(context.Background(), submission("SHP-VERIFIED")); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if len(h.store.appts) != 0 {
		t.Fatal("nothing should be persisted without the lock")
	}
}

func TestReleaseHeldRoutesParkedAppointments(t *testing.T) {
	h := newHarness(t, 0)
	dec, err := h.engine.Submit(context.Background(), submission("SHP-NEW"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := h.engine.ReleaseHeld(context.Background(), "SHP-NEW"); !errors.Is(err, ErrShopUnverified) {
		t.Fatalf("expected ErrShopUnverified, got %v", err)
	}

	sk := h.dir["SHP-NEW"]
	sk.Verified = true
	h.dir["SHP-NEW"] = sk

	n, err := h.engine.ReleaseHeld(context.Background(), "SHP-NEW")
	if err != nil || n != 1 {
		t.Fatalf("ReleaseHeld = %d, %v", n, err)
	}
	appt := h.store.appts[dec.AppointmentID]
	if !appt.HasToken() || appt.Status != model.StatusPendingApproval {
		t.Fatalf("expected token issued, got %+v", appt)
	}
	if last := h.notifier.calls[len(h.notifier.calls)-1]; last.kind != "approval" {
		t.Fatalf("expected approval request, got %+v", last)
	}

	n, err = h.engine.ReleaseHeld(context.Background(), "SHP-NEW")
	if err != nil || n != 0 {
		t.Fatalf("second release should be empty, got %d, %v", n, err)
	}
}

func TestConfirmPaymentIssuesTokenOnce(t *testing.T) {
	h := newHarness(t, 5)
	dec, err := h.engine.Submit(context.Background(), submission("SHP-VERIFIED"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := h.engine.ConfirmPayment(context.Background(), dec.AppointmentID, "admin"); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	appt := h.store.appts[dec.AppointmentID]
	if !appt.Paid || !appt.HasToken() || appt.Status != model.StatusAwaitingPayment {
		t.Fatalf("unexpected appointment after payment: %+v", appt)
	}
	if last := h.store.events[len(h.store.events)-1]; last.EventType != outbox.EventAppointmentPaid {
		t.Fatalf("expected paid event, got %s", last.EventType)
	}

	calls := len(h.notifier.calls)
	if err := h.engine.ConfirmPayment(context.Background(), dec.AppointmentID, "stripe"); err != nil {
		t.Fatalf("repeat ConfirmPayment: %v", err)
	}
	if len(h.notifier.calls) != calls {
		t.Fatal("repeat confirmation must not notify again")
	}

	if err := h.engine.ConfirmPayment(context.Background(), "APT-NOPE", "admin"); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestConfirmPaymentRejectsFreeAppointments(t *testing.T) {
	h := newHarness(t, 0)
	dec, err := h.engine.Submit(context.Background(), submission("SHP-VERIFIED"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := h.engine.ConfirmPayment(context.Background(), dec.AppointmentID, "admin"); !errors.Is(err, ErrNotAwaitingPayment) {
		t.Fatalf("expected ErrNotAwaitingPayment, got %v", err)
	}
}

type emailCounter map[string]int

func (c emailCounter) CountApproved(_ context.Context, email string, _ time.Time) (int, error) {
	return c[strings.ToLower(email)], nil
}

func TestSubmitStoresBareCustomerAddress(t *testing.T) {
	for _, raw := range []string{"ravi@example.com", "Ravi <ravi@example.com>", "<ravi@example.com>"} {
		h := newHarness(t, 0)
		h.engine.counter = emailCounter{"ravi@example.com": 4}
		sub := submission("SHP-VERIFIED")
		sub.CustomerEmail = raw

		dec, err := h.engine.Submit(context.Background(), sub)
		if err != nil {
			t.Fatalf("Submit(%q): %v", raw, err)
		}
		if dec.Status != model.StatusAwaitingPayment {
			t.Fatalf("Submit(%q): expected awaiting_payment, got %s", raw, dec.Status)
		}
		if got := h.store.appts[dec.AppointmentID].CustomerEmail; got != "ravi@example.com" {
			t.Fatalf("Submit(%q): stored %q", raw, got)
		}
	}
}

func TestSubmitLocksOnBareCustomerAddress(t *testing.T) {
	h := newHarness(t, 0)
	locker := lock.NewLocal(20 * time.Millisecond)
	h.engine.locker = locker
	release, err := locker.Acquire(context.Background(), lock.CustomerKey("ravi@example.com"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	sub := submission("SHP-VERIFIED")
	sub.CustomerEmail = "Ravi <ravi@example.com>"
	if _, err := h.engine.Submit(context.Background(), sub); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}

// verifiedAfter reports the shop as unverified for the first n lookups.
type verifiedAfter struct {
	mu    sync.Mutex
	shop  model.Shopkeeper
	n     int
	calls int
}

func (d *verifiedAfter) FindByID(_ context.Context, id string) (model.Shopkeeper, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id != d.shop.ID {
		return model.Shopkeeper{}, false, nil
	}
	d.calls++
	sk := d.shop
	sk.Verified = d.calls > d.n
	return sk, true, nil
}

func TestSubmitRoutesWhenShopVerifiedDuringIntake(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.directory = &verifiedAfter{shop: h.dir["SHP-VERIFIED"], n: 1}

	dec, err := h.engine.Submit(context.Background(), submission("SHP-VERIFIED"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	appt := h.store.appts[dec.AppointmentID]
	if dec.Reason != ReasonApprovalRequested || appt.Status != model.StatusPendingApproval || !appt.HasToken() {
		t.Fatalf("expected routed appointment, got %+v / %+v", dec, appt)
	}
	if len(h.notifier.calls) != 1 || h.notifier.calls[0].kind != "approval" {
		t.Fatalf("expected approval request only, got %+v", h.notifier.calls)
	}

	released, err := h.engine.ReleaseHeld(context.Background(), "SHP-VERIFIED")
	if err != nil || released != 0 {
		t.Fatalf("ReleaseHeld: released=%d err=%v", released, err)
	}
}
