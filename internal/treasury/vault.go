package treasury

import (
	"context"
	"sync"
)

// Vault is an in-memory Transferor keeping per-asset, per-account balances.
// It backs the dev server and the engine tests; a production deployment
// plugs in a real value-transfer backend instead.
type Vault struct {
	mu       sync.Mutex
	balances map[string]map[string]int64 // asset -> account -> balance
}

func NewVault() *Vault {
	return &Vault{balances: make(map[string]map[string]int64)}
}

// Mint credits an account out of thin air. Seeding only.
func (v *Vault) Mint(asset, account string, amount int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.accounts(asset)[account] += amount
}

func (v *Vault) Balance(asset, account string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.accounts(asset)[account]
}

func (v *Vault) Transfer(_ context.Context, asset, from, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidTransferAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	accounts := v.accounts(asset)
	if accounts[from] < amount {
		return ErrInsufficientSpendable
	}
	accounts[from] -= amount
	accounts[to] += amount
	return nil
}

func (v *Vault) accounts(asset string) map[string]int64 {
	accounts, ok := v.balances[asset]
	if !ok {
		accounts = make(map[string]int64)
		v.balances[asset] = accounts
	}
	return accounts
}
