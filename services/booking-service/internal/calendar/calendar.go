// Package calendar books approved appointments on an external calendar.
package calendar

import (
	"context"
	"errors"
	"time"
)

type Event struct {
	AppointmentID string
	Title         string
	Description   string
	Start         time.Time
	End           time.Time
	GuestEmail    string
}

func (e Event) Validate() error {
	if e.Title == "" {
		return errors.New("calendar event title is required")
	}
	if !e.End.After(e.Start) {
		return errors.New("calendar event must end after it starts")
	}
	return nil
}

type Provider interface {
	// Create books the event and returns the provider's event id.
	Create(ctx context.Context, evt Event) (string, error)
	Cancel(ctx context.Context, eventID string) error
}
