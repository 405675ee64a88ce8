package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/email"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/model"
)

// PaymentOptions are the ways a customer over the free limit can pay.
type PaymentOptions struct {
	FreeLimit   int
	PaymentLink string
	CheckoutURL string
}

func lines(to, subject string, body ...string) email.Message {
	escaped := make([]string, len(body))
	for i, l := range body {
		escaped[i] = html.EscapeString(l)
	}
	return email.Message{
		To:      to,
		Subject: subject,
		Text:    strings.Join(body, "\n"),
		HTML:    strings.Join(escaped, "<br>"),
	}
}

func WelcomeMessage(sk model.Shopkeeper) email.Message {
	return lines(sk.Email, "Your booking QR and link for "+sk.ShopName,
		"Hi,",
		"",
		"Share this link and QR with customers to take appointments:",
		"Booking link: "+sk.BookingLink,
		"QR image: "+sk.QRLink,
		"",
		"Note: Approvals will start working after Admin verifies your shop.",
		"",
		"Thanks!",
	)
}

func UnverifiedAdminMessage(adminEmail string, appt model.Appointment) email.Message {
	return lines(adminEmail, "Shopkeeper not verified yet",
		fmt.Sprintf("Appointment %s for SK %s submitted but shopkeeper not verified.", appt.ID, appt.ShopkeeperID),
	)
}

func UnverifiedCustomerMessage(appt model.Appointment) email.Message {
	return lines(appt.CustomerEmail, "Booking received - pending shop verification",
		"We received your booking but the shop is not verified yet. You will be notified after verification.",
	)
}

func PaymentRequiredMessage(appt model.Appointment, sk model.Shopkeeper, opts PaymentOptions) email.Message {
	body := []string{
		fmt.Sprintf("You have used your %d free bookings this month.", opts.FreeLimit),
		"Please pay half the service charges to confirm your appointment.",
	}
	if sk.UPIID != "" {
		body = append(body, "", "Pay via UPI: "+sk.UPIID)
		if uri := UPIURI(sk.UPIID, sk.ShopName, appt.ID); uri != "" {
			body = append(body, "One-tap UPI link (mobile): "+uri)
		}
	}
	if opts.CheckoutURL != "" {
		body = append(body, "", "Pay by card: "+opts.CheckoutURL)
	}
	if opts.PaymentLink != "" {
		body = append(body, "", "Or pay using this link: "+opts.PaymentLink)
	}
	body = append(body,
		"",
		"After payment, reply to this email with your UTR/receipt.",
		"Appointment ID: "+appt.ID,
		"Shop: "+sk.ShopName,
	)
	return lines(appt.CustomerEmail, "Payment required to confirm your appointment", body...)
}

func ApprovalRequestMessage(appt model.Appointment, sk model.Shopkeeper, approveURL, rejectURL string) email.Message {
	greet := sk.OwnerName
	if greet == "" {
		greet = sk.ShopName
	}
	when := strings.TrimSpace(appt.RequestedDate + " " + appt.RequestedTime)
	return lines(sk.Email, fmt.Sprintf("New appointment request: %s on %s", appt.CustomerName, when),
		"Hi "+greet+",",
		"",
		fmt.Sprintf("New request from %s (%s)", appt.CustomerName, appt.CustomerEmail),
		"When: "+when,
		"",
		"Approve: "+approveURL,
		"Reject: "+rejectURL,
		"",
		"Appointment ID: "+appt.ID,
		"Thanks!",
	)
}

func ApprovedMessage(appt model.Appointment, sk model.Shopkeeper, start time.Time) email.Message {
	return lines(appt.CustomerEmail, "Your appointment is confirmed",
		"Hi "+appt.CustomerName+",",
		"",
		fmt.Sprintf("%s confirmed your appointment on %s.", sk.ShopName, start.Format("02/01/2006 15:04")),
		"A calendar invitation has been sent to this address.",
		"",
		"Appointment ID: "+appt.ID,
		"Thanks!",
	)
}

func RejectedMessage(appt model.Appointment, sk model.Shopkeeper) email.Message {
	return lines(appt.CustomerEmail, "Your appointment request was declined",
		"Hi "+appt.CustomerName+",",
		"",
		fmt.Sprintf("%s could not accept your request for %s %s.", sk.ShopName, appt.RequestedDate, appt.RequestedTime),
		"",
		"Appointment ID: "+appt.ID,
	)
}
