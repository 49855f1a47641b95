// Package treasury abstracts the fungible-asset transfer primitive. The
// engine only ever asks for one thing: move N units of the payment asset
// from one account to another, failing when the source balance is short.
package treasury

import (
	"context"
	"errors"
)

var (
	ErrInsufficientSpendable = errors.New("insufficient spendable balance")
	ErrInvalidTransferAmount = errors.New("transfer amount must be positive")
)

type Transferor interface {
	Transfer(ctx context.Context, asset, from, to string, amount int64) error
}
