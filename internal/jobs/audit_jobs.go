package jobs

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rentacar-escrow-backend/internal/domain"
	"rentacar-escrow-backend/internal/ledger"
	"rentacar-escrow-backend/internal/logger"
	"rentacar-escrow-backend/internal/utils"
)

var custodyAuditViolations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "escrow_custody_audit_violations_total",
	Help: "Number of custody audits that found a balance mismatch.",
})

// AuditCustody recomputes the sum of all owner balances plus the commission
// balance and compares it with the recorded custody total. The audit is
// read-only; a mismatch is logged and counted, never repaired automatically.
func (jr *JobRunner) AuditCustody() {
	jr.runWithRecovery("AuditCustody", func() {
		ctx := context.Background()
		store := ledger.NewStore(jr.store)

		hasAdmin, err := store.HasAdmin(ctx)
		if err != nil {
			logger.Error("Failed to read admin identity", "error", err)
			return
		}
		if !hasAdmin {
			logger.Info("Ledger not initialized, nothing to audit")
			return
		}

		owners, err := store.CarOwners(ctx)
		if err != nil {
			logger.Error("Failed to list car owners", "error", err)
			return
		}

		var ownerTotal int64
		for _, owner := range owners {
			car, err := store.Car(ctx, owner)
			if err != nil {
				// A car removed between the scan and this read is not a
				// violation, just a stale listing.
				if errors.Is(err, domain.ErrCarNotFound) {
					continue
				}
				logger.Error("Failed to read car", "owner", owner, "error", err)
				return
			}
			ownerTotal, err = utils.CheckedAdd(ownerTotal, car.AvailableToWithdraw)
			if err != nil {
				logger.Error("Owner balance sum overflowed", "owner", owner, "error", err)
				return
			}
		}

		commission, err := store.CommissionBalance(ctx)
		if err != nil {
			logger.Error("Failed to read commission balance", "error", err)
			return
		}

		expected, err := utils.CheckedAdd(ownerTotal, commission)
		if err != nil {
			logger.Error("Expected custody sum overflowed", "error", err)
			return
		}

		custody, err := store.CustodyTotal(ctx)
		if err != nil {
			logger.Error("Failed to read custody total", "error", err)
			return
		}

		if custody != expected {
			custodyAuditViolations.Inc()
			logger.Error("Custody audit mismatch",
				"custody_total", custody,
				"owner_balances", ownerTotal,
				"commission_balance", commission,
				"expected", expected)
			return
		}

		logger.Info("Custody audit passed",
			"custody_total", custody,
			"cars", len(owners),
			"commission_balance", commission)
	})
}
