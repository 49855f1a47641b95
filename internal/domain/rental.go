package domain

// Rental records a reservation, keyed by the (renter, owner) pair. A second
// reservation between the same two accounts overwrites the first. Amount is
// the base rental price agreed between the parties; it is not derived from
// PricePerDay and it excludes the administrator commission.
type Rental struct {
	TotalDaysToRent int32 `json:"total_days_to_rent"`
	Amount          int64 `json:"amount"`
}
