package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

type GoogleConfig struct {
	CalendarID      string
	CredentialsFile string
	TimeZone        string
}

// Google books events through the Calendar v3 API and emails invitations to guests.
type Google struct {
	svc        *gcal.Service
	calendarID string
	timeZone   string
}

func NewGoogle(ctx context.Context, cfg GoogleConfig, opts ...option.ClientOption) (*Google, error) {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(gcal.CalendarEventsScope))
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar client: %w", err)
	}
	return &Google{svc: svc, calendarID: cfg.CalendarID, timeZone: cfg.TimeZone}, nil
}

func (g *Google) Create(ctx context.Context, evt Event) (string, error) {
	if err := evt.Validate(); err != nil {
		return "", err
	}
	ev := &gcal.Event{
		Summary:     evt.Title,
		Description: evt.Description,
		Start:       &gcal.EventDateTime{DateTime: evt.Start.Format(time.RFC3339), TimeZone: g.timeZone},
		End:         &gcal.EventDateTime{DateTime: evt.End.Format(time.RFC3339), TimeZone: g.timeZone},
	}
	if evt.GuestEmail != "" {
		ev.Attendees = []*gcal.EventAttendee{{Email: evt.GuestEmail}}
	}
	created, err := g.svc.Events.Insert(g.calendarID, ev).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}
	if created.Id == "" {
		return "", errors.New("calendar returned an empty event id")
	}
	return created.Id, nil
}

func (g *Google) Cancel(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	if err := g.svc.Events.Delete(g.calendarID, eventID).SendUpdates("all").Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}
