package events

import (
	"context"
	"fmt"

	"rentacar-escrow-backend/internal/logger"

	"gopkg.in/gomail.v2"
)

// EmailNotifier mails each event to a set of operations addresses. Delivery
// is best effort; SMTP failures are logged and swallowed.
type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
}

func NewEmailNotifier(host string, port int, username, password, from string, to []string) *EmailNotifier {
	return &EmailNotifier{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
	}
}

func (n *EmailNotifier) send(ctx context.Context, subject, body string) {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(n.host, n.port, n.username, n.password)
	if err := d.DialAndSend(m); err != nil {
		logger.ErrorContext(ctx, "failed to send event email", "subject", subject, "error", err)
	}
}

func (n *EmailNotifier) ContractInitialized(ctx context.Context, admin, token string) {
	n.send(ctx, "Escrow engine initialized",
		fmt.Sprintf("Administrator: %s\nPayment token: %s\n", admin, token))
}

func (n *EmailNotifier) CarAdded(ctx context.Context, owner string, pricePerDay int64) {
	n.send(ctx, "Car registered",
		fmt.Sprintf("Owner: %s\nPrice per day: %d\n", owner, pricePerDay))
}

func (n *EmailNotifier) CarRemoved(ctx context.Context, owner string) {
	n.send(ctx, "Car removed", fmt.Sprintf("Owner: %s\n", owner))
}

func (n *EmailNotifier) Rented(ctx context.Context, renter, owner string, totalDays int32, amount int64) {
	n.send(ctx, "Car rented",
		fmt.Sprintf("Renter: %s\nOwner: %s\nDays: %d\nAmount: %d\n", renter, owner, totalDays, amount))
}

func (n *EmailNotifier) OwnerPaidOut(ctx context.Context, owner string, amount int64) {
	n.send(ctx, "Owner payout",
		fmt.Sprintf("Owner: %s\nAmount: %d\n", owner, amount))
}
