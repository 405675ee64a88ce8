package model

import "time"

type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusAwaitingPayment, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Appointment is one booking request. RequestedDate and RequestedTime keep
// the raw text the customer submitted; they are parsed only on approval.
type Appointment struct {
	ID              string
	ShopkeeperID    string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	CustomerAddress string
	RequestedDate   string
	RequestedTime   string
	Status          Status
	Paid            bool
	ApprovalToken   *string
	ApprovedAt      *time.Time
	CalendarEventID *string
	LastError       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasToken reports whether an approval link was issued and is still live.
func (a Appointment) HasToken() bool {
	return a.ApprovalToken != nil && *a.ApprovalToken != ""
}

func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
