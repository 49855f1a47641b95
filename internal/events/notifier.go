// Package events emits audit notifications for ledger operations. Emission
// is fire-and-forget: a sink failure is logged and never fails the
// operation that produced the event.
package events

import "context"

// Event is the envelope external indexers consume. ID is assigned per
// emission; the remaining fields depend on Kind.
type Event struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Admin  string `json:"admin,omitempty"`
	Token  string `json:"token,omitempty"`
	Renter string `json:"renter,omitempty"`
	Owner  string `json:"owner,omitempty"`
	Days   int32  `json:"total_days_to_rent,omitempty"`
	Amount int64  `json:"amount,omitempty"`
}

const (
	KindInitialized = "contract_initialized"
	KindCarAdded    = "car_added"
	KindCarRemoved  = "car_removed"
	KindRented      = "rented"
	KindOwnerPayout = "payout_owner"
)

type Notifier interface {
	ContractInitialized(ctx context.Context, admin, token string)
	CarAdded(ctx context.Context, owner string, pricePerDay int64)
	CarRemoved(ctx context.Context, owner string)
	Rented(ctx context.Context, renter, owner string, totalDays int32, amount int64)
	OwnerPaidOut(ctx context.Context, owner string, amount int64)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) ContractInitialized(context.Context, string, string)  {}
func (NopNotifier) CarAdded(context.Context, string, int64)              {}
func (NopNotifier) CarRemoved(context.Context, string)                   {}
func (NopNotifier) Rented(context.Context, string, string, int32, int64) {}
func (NopNotifier) OwnerPaidOut(context.Context, string, int64)          {}

// MultiNotifier fans an event out to every configured sink.
type MultiNotifier []Notifier

func (m MultiNotifier) ContractInitialized(ctx context.Context, admin, token string) {
	for _, n := range m {
		n.ContractInitialized(ctx, admin, token)
	}
}

func (m MultiNotifier) CarAdded(ctx context.Context, owner string, pricePerDay int64) {
	for _, n := range m {
		n.CarAdded(ctx, owner, pricePerDay)
	}
}

func (m MultiNotifier) CarRemoved(ctx context.Context, owner string) {
	for _, n := range m {
		n.CarRemoved(ctx, owner)
	}
}

func (m MultiNotifier) Rented(ctx context.Context, renter, owner string, totalDays int32, amount int64) {
	for _, n := range m {
		n.Rented(ctx, renter, owner, totalDays, amount)
	}
}

func (m MultiNotifier) OwnerPaidOut(ctx context.Context, owner string, amount int64) {
	for _, n := range m {
		n.OwnerPaidOut(ctx, owner, amount)
	}
}
