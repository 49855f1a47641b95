package events

import (
	"context"

	"rentacar-escrow-backend/internal/logger"

	"github.com/google/uuid"
)

// LogNotifier writes every event to the structured log, which is the
// default audit trail for single-node deployments.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) emit(ctx context.Context, event Event) {
	event.ID = uuid.NewString()
	logger.InfoContext(ctx, "ledger event",
		"event_id", event.ID,
		"kind", event.Kind,
		"admin", event.Admin,
		"token", event.Token,
		"renter", event.Renter,
		"owner", event.Owner,
		"total_days_to_rent", event.Days,
		"amount", event.Amount,
	)
}

func (n *LogNotifier) ContractInitialized(ctx context.Context, admin, token string) {
	n.emit(ctx, Event{Kind: KindInitialized, Admin: admin, Token: token})
}

func (n *LogNotifier) CarAdded(ctx context.Context, owner string, pricePerDay int64) {
	n.emit(ctx, Event{Kind: KindCarAdded, Owner: owner, Amount: pricePerDay})
}

func (n *LogNotifier) CarRemoved(ctx context.Context, owner string) {
	n.emit(ctx, Event{Kind: KindCarRemoved, Owner: owner})
}

func (n *LogNotifier) Rented(ctx context.Context, renter, owner string, totalDays int32, amount int64) {
	n.emit(ctx, Event{Kind: KindRented, Renter: renter, Owner: owner, Days: totalDays, Amount: amount})
}

func (n *LogNotifier) OwnerPaidOut(ctx context.Context, owner string, amount int64) {
	n.emit(ctx, Event{Kind: KindOwnerPayout, Owner: owner, Amount: amount})
}
