// Package worker runs the periodic background tasks: the reservation expiry
// sweep and the daily reconciliation pass.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/obafemi/settlecore/internal/pkg/inventory"
	"github.com/obafemi/settlecore/internal/pkg/reconcile"
)

const (
	// DefaultSweepInterval is how often expired reservations are reclaimed.
	DefaultSweepInterval = time.Minute
	// DefaultReconcileInterval is how often the ledger is reconciled against
	// the gateway.
	DefaultReconcileInterval = 24 * time.Hour
)

// Manager schedules the background tasks. Constructor-injected so tests can
// drive the underlying work directly.
type Manager struct {
	inventory         *inventory.Manager
	reconciler        *reconcile.Engine
	sweepInterval     time.Duration
	reconcileInterval time.Duration

	sweepTicker     *time.Ticker
	reconcileTicker *time.Ticker
	stopCh          chan struct{}
	wg              sync.WaitGroup
	mu              sync.Mutex
	running         bool
}

// NewManager creates a worker manager. Zero intervals select the defaults;
// a nil reconciler disables the reconciliation task.
func NewManager(inv *inventory.Manager, reconciler *reconcile.Engine, sweepInterval, reconcileInterval time.Duration) *Manager {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if reconcileInterval <= 0 {
		reconcileInterval = DefaultReconcileInterval
	}
	return &Manager{
		inventory:         inv,
		reconciler:        reconciler,
		sweepInterval:     sweepInterval,
		reconcileInterval: reconcileInterval,
	}
}

// Start launches the background tasks. Safe to call more than once.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Worker] starting background tasks")

	m.sweepTicker = time.NewTicker(m.sweepInterval)
	m.wg.Add(1)
	go m.sweepWorker()

	if m.reconciler != nil {
		m.reconcileTicker = time.NewTicker(m.reconcileInterval)
		m.wg.Add(1)
		go m.reconcileWorker()
	}
}

// Stop shuts the background tasks down and waits for them to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	log.Info("[Worker] stopping background tasks")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}
	close(m.stopCh)
	m.wg.Wait()
	m.running = false
	log.Info("[Worker] stopped")
}

func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.sweepTicker.C:
			if _, err := m.inventory.SweepExpired(); err != nil {
				log.Errorf("[Worker] reservation sweep failed: %v", err)
			}
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) reconcileWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.reconcileTicker.C:
			to := time.Now()
			from := to.Add(-m.reconcileInterval)
			if _, err := m.reconciler.Run(context.Background(), from, to); err != nil {
				log.Errorf("[Worker] reconciliation run failed: %v", err)
			}
		case <-m.stopCh:
			return
		}
	}
}
