// Package inventory holds short-lived stock claims against unpaid orders.
// Availability is always computed from the reservation table, never from a
// separately maintained counter, so a cache can never decide a write.
package inventory

import (
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/obafemi/settlecore/app/models"
	"github.com/obafemi/settlecore/app/repository"
	"github.com/obafemi/settlecore/internal/pkg/apperrors"
)

// DefaultTTL is how long stock is held for an unpaid order.
const DefaultTTL = 30 * time.Minute

const sweepBatchSize = 500

// Manager coordinates reservations, releases and the expiry sweep.
type Manager struct {
	opener repository.Opener
	ttl    time.Duration
}

// NewManager creates a reservation manager. ttl <= 0 selects DefaultTTL.
func NewManager(opener repository.Opener, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{opener: opener, ttl: ttl}
}

// TTL returns the configured reservation window.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Reserve claims stock for an order item inside the caller's transaction, so
// a reservation never exists without its owning order. The availability
// re-check against the locked variant row is what prevents overselling.
func Reserve(repos *repository.Repositories, orderID, variantID uint, quantity int, ttl time.Duration) error {
	if quantity < 1 {
		return apperrors.Validation("reservation quantity must be at least 1")
	}
	variant, err := repos.Reservation.GetVariantForUpdate(variantID)
	if err != nil {
		return err
	}
	if !variant.TrackInventory {
		return nil
	}

	now := time.Now()
	reserved, err := repos.Reservation.ActiveQuantityByVariant(variantID, now)
	if err != nil {
		return err
	}
	if variant.StockQuantity-reserved < quantity {
		return apperrors.InventoryExhausted("insufficient stock for variant")
	}

	return repos.Reservation.Create(&models.InventoryReservation{
		OrderID:       orderID,
		VariantID:     variantID,
		Quantity:      quantity,
		ReservedUntil: now.Add(ttl),
	})
}

// Available returns stock minus the sum of active, unexpired reservations.
// Expired-but-unswept reservations are excluded by the time predicate, so the
// figure is correct even before the sweeper runs. Slightly stale reads are
// acceptable here; order creation re-checks under a lock.
func Available(repos *repository.Repositories, variantID uint) (int, error) {
	variant, err := repos.Reservation.GetVariant(variantID)
	if err != nil {
		return 0, err
	}
	if !variant.TrackInventory {
		return variant.StockQuantity, nil
	}
	reserved, err := repos.Reservation.ActiveQuantityByVariant(variantID, time.Now())
	if err != nil {
		return 0, err
	}
	return variant.StockQuantity - reserved, nil
}

// Convert turns an order's active reservations into a completed sale:
// physical stock is decremented and the claims released. Runs inside the
// settlement transaction.
func Convert(repos *repository.Repositories, orderID uint) error {
	now := time.Now()
	active, err := repos.Reservation.ActiveByOrder(orderID, now)
	if err != nil {
		return err
	}
	for _, res := range active {
		if err := repos.Reservation.AdjustVariantStock(res.VariantID, -res.Quantity); err != nil {
			return err
		}
	}
	ids := make([]uint, 0, len(active))
	for _, res := range active {
		ids = append(ids, res.ID)
	}
	_, err = repos.Reservation.ReleaseByIDs(ids, now)
	return err
}

// Release frees all of an order's active reservations. Idempotent: releasing
// an already-released order is a no-op.
func (m *Manager) Release(orderID uint) error {
	uow, err := m.opener.Begin()
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if _, err := uow.Repos().Reservation.ReleaseByOrder(orderID, time.Now()); err != nil {
		return err
	}
	return uow.Commit()
}

// SweepExpired releases reservations whose deadline has passed, reclaiming
// stock from abandoned orders. Safe to run repeatedly; a second pass over the
// same rows releases nothing.
func (m *Manager) SweepExpired() (int64, error) {
	uow, err := m.opener.Begin()
	if err != nil {
		return 0, err
	}
	defer uow.Rollback()

	repos := uow.Repos()
	now := time.Now()
	expired, err := repos.Reservation.ListExpired(now, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, uow.Commit()
	}

	ids := make([]uint, 0, len(expired))
	for _, res := range expired {
		ids = append(ids, res.ID)
	}
	released, err := repos.Reservation.ReleaseByIDs(ids, now)
	if err != nil {
		return 0, err
	}
	if err := uow.Commit(); err != nil {
		return 0, err
	}
	if released > 0 {
		log.Infof("[Inventory] expiry sweep released %d reservations", released)
	}
	return released, nil
}
