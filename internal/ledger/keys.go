package ledger

// Stable key layout for the six record families. Account IDs are opaque
// strings issued by the identity collaborator; they never contain '/'.
const (
	keyAdmin             = "admin"
	keyPaymentToken      = "token"
	keyCommissionRate    = "commission/rate"
	keyCommissionBalance = "commission/balance"
	keyCustodyTotal      = "custody/total"

	carKeyPrefix = "car/"
)

func carKey(owner string) string {
	return carKeyPrefix + owner
}

func rentalKey(renter, owner string) string {
	return "rental/" + renter + "/" + owner
}
