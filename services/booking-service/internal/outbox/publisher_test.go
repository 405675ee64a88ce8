package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/easybook/libs/kafkax"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

type fakeSource struct {
	records   []Record
	published []Record
}

func (f *fakeSource) Claim(_ context.Context, limit int, publish func([]Record) error) (int, error) {
	batch := f.records
	if len(batch) > limit {
		batch = batch[:limit]
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := publish(batch); err != nil {
		return 0, err
	}
	f.published = append(f.published, batch...)
	f.records = f.records[len(batch):]
	return len(batch), nil
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPublishOnceWritesHeadersAndMarks(t *testing.T) {
	src := &fakeSource{records: []Record{
		{ID: 1, EventID: "e-1", AggregateID: "APT-1", EventType: EventAppointmentSubmitted, Payload: []byte(`{}`)},
		{ID: 2, EventID: "e-2", AggregateID: "APT-2", EventType: EventAppointmentApproved, Payload: []byte(`{}`)},
		{ID: 3, EventID: "e-3", AggregateID: "APT-3", EventType: EventAppointmentRejected, Payload: []byte(`{}`)},
	}}
	w := &fakeWriter{}
	p := NewPublisher(src, w, testLogger(), PublisherConfig{BatchSize: 2})

	n, err := p.PublishOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("PublishOnce = %d, %v", n, err)
	}
	if len(w.msgs) != 2 || w.msgs[1].Topic != EventAppointmentApproved {
		t.Fatalf("unexpected messages: %+v", w.msgs)
	}
	meta := kafkax.ExtractEventMeta(w.msgs[0])
	if meta.EventID != "e-1" || meta.EventType != EventAppointmentSubmitted {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	if string(w.msgs[0].Key) != "APT-1" {
		t.Fatalf("expected aggregate id as key, got %q", w.msgs[0].Key)
	}
	if len(src.records) != 1 {
		t.Fatalf("expected one record left, got %d", len(src.records))
	}
}

func TestPublishOnceWriteFailureLeavesRows(t *testing.T) {
	src := &fakeSource{records: []Record{{ID: 1, EventID: "e-1", EventType: EventAppointmentPaid}}}
	p := NewPublisher(src, &fakeWriter{err: errors.New("broker down")}, testLogger(), PublisherConfig{})

	if _, err := p.PublishOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(src.published) != 0 || len(src.records) != 1 {
		t.Fatal("records must stay unpublished after a failed write")
	}
}

func TestAppointmentEventPayload(t *testing.T) {
	ref := "evt-9"
	appt := model.Appointment{ID: "APT-1", ShopkeeperID: "SHP-1", CustomerEmail: "a@b.c", Status: model.StatusApproved, CalendarEventID: &ref}
	evt, err := AppointmentEvent(EventAppointmentApproved, appt, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("AppointmentEvent failed: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(evt.Payload, &body); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if body["calendar_event_id"] != "evt-9" || body["status"] != "approved" || evt.AggregateID != "APT-1" {
		t.Fatalf("unexpected event: %+v %s", evt, evt.Payload)
	}
}
