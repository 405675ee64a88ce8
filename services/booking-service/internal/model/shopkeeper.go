package model

import "time"

type Shopkeeper struct {
	ID              string
	ShopName        string
	OwnerName       string
	Email           string
	Phone           string
	Address         string
	MapLink         string
	BusinessDetails string
	MinCharge       string
	UPIID           string
	Telegram        string
	Verified        bool
	BookingLink     string
	QRLink          string
	OnboardedAt     *time.Time
	CreatedAt       time.Time
}

type Review struct {
	ID            int64
	ShopkeeperID  string
	Rating        int
	Text          string
	ReviewerEmail string
	CreatedAt     time.Time
}
