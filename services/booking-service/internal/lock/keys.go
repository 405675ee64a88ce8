package lock

import "strings"

// RegistrationKey serializes shop sign-ups.
const RegistrationKey = "registration"

// CustomerKey guards the count-then-insert sequence of one customer's submissions.
func CustomerKey(email string) string {
	return "intake:" + strings.ToLower(strings.TrimSpace(email))
}

// AppointmentKey guards read-modify-write on a single appointment.
func AppointmentKey(id string) string {
	return "appointment:" + id
}
