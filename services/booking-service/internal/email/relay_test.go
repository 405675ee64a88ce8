package email

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
)

type delivery struct {
	from string
	to   []string
	data string
}

// relay is an in-process SMTP server that keeps whatever it receives.
type relay struct {
	mu       sync.Mutex
	received []delivery
}

func (r *relay) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &relaySession{relay: r}, nil
}

type relaySession struct {
	relay *relay
	cur   delivery
}

func (s *relaySession) AuthPlain(string, string) error { return nil }

func (s *relaySession) Mail(from string, _ *smtp.MailOptions) error {
	s.cur.from = from
	return nil
}

func (s *relaySession) Rcpt(to string) error {
	s.cur.to = append(s.cur.to, to)
	return nil
}

func (s *relaySession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.cur.data = string(b)
	s.relay.mu.Lock()
	s.relay.received = append(s.relay.received, s.cur)
	s.relay.mu.Unlock()
	return nil
}

func (s *relaySession) Reset() { s.cur = delivery{} }

func (s *relaySession) Logout() error { return nil }

func startRelay(t *testing.T) (*relay, string, int) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	r := &relay{}
	srv := smtp.NewServer(r)
	srv.Domain = "localhost"
	srv.ReadTimeout, srv.WriteTimeout = 5*time.Second, 5*time.Second
	srv.MaxMessageBytes = 1 << 20
	srv.AllowInsecureAuth = true
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { _ = srv.Close() })

	host, portStr, _ := net.SplitHostPort(lis.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return r, host, port
}

func TestSMTPSenderDeliversThroughRelay(t *testing.T) {
	r, host, port := startRelay(t)
	s := NewSMTPSender(SMTPConfig{Host: host, Port: port, From: "bookings@example.com", FromName: "EasyBook"})

	err := s.Send(context.Background(), Message{
		To:      "owner@example.com",
		Subject: "New appointment request",
		Text:    "Approve: https://easybook.example/approve",
		HTML:    "<p>Approve</p>",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.received) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(r.received))
	}
	got := r.received[0]
	if got.from != "bookings@example.com" {
		t.Fatalf("unexpected envelope sender %q", got.from)
	}
	if len(got.to) != 1 || got.to[0] != "owner@example.com" {
		t.Fatalf("unexpected recipients %v", got.to)
	}
	if !strings.Contains(got.data, "Subject: New appointment request") {
		t.Fatalf("subject missing from data:\n%s", got.data)
	}
}

func TestSMTPSenderHonoursCancelledContext(t *testing.T) {
	r, host, port := startRelay(t)
	s := NewSMTPSender(SMTPConfig{Host: host, Port: port})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, Message{To: "owner@example.com", Subject: "x", Text: "y"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.received) != 0 {
		t.Fatalf("expected no delivery, got %d", len(r.received))
	}
}
