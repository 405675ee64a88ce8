package notify

import (
	"net/url"
	"strings"
)

const qrEndpoint = "https://quickchart.io/qr?size=300&format=png&text="

// EscapeComponent escapes s for use inside a query value, spaces as %20.
func EscapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// ActionURL builds an approve or reject link for the approval endpoint at base.
func ActionURL(base, action, appointmentID, token string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "action=" + action + "&id=" + EscapeComponent(appointmentID) + "&t=" + EscapeComponent(token)
}

// UPIURI is the one-tap payment deep link. The amount is left for the payer.
func UPIURI(upiID, shopName, appointmentID string) string {
	if upiID == "" {
		return ""
	}
	if shopName == "" {
		shopName = "Shop"
	}
	return "upi://pay?pa=" + EscapeComponent(upiID) +
		"&pn=" + EscapeComponent(shopName) +
		"&cu=INR" +
		"&tn=" + EscapeComponent("Appointment "+appointmentID)
}

// BookingLink fills the SHOPKEEPER_ID placeholder of the booking form template.
func BookingLink(template, shopkeeperID string) string {
	return strings.Replace(template, "SHOPKEEPER_ID", EscapeComponent(shopkeeperID), 1)
}

func QRLink(bookingLink string) string {
	return qrEndpoint + EscapeComponent(bookingLink)
}
