package domain

type CarStatus string

const (
	CarStatusAvailable CarStatus = "AVAILABLE"
	CarStatusRented    CarStatus = "RENTED"
)

// Car is the per-owner asset record. Each owner account registers at most
// one car. AvailableToWithdraw is the owner's claimable share of custody.
//
// There is no RENTED -> AVAILABLE transition: the engine has no
// return/check-in operation, so a successful rental parks the car in
// RENTED until the record is removed.
type Car struct {
	PricePerDay         int64     `json:"price_per_day"` // informational, not enforced against the rental amount
	Status              CarStatus `json:"status"`
	AvailableToWithdraw int64     `json:"available_to_withdraw"`
}
