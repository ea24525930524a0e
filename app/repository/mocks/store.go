// Package mocks provides an in-memory implementation of the repository
// interfaces for service tests. The fake Opener snapshots the store on Begin
// and restores it on Rollback, mirroring transactional semantics closely
// enough to exercise commit-or-rollback behavior without a database.
package mocks

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/obafemi/settlecore/app/models"
	"github.com/obafemi/settlecore/app/repository"
)

// Store holds all in-memory tables. Fields are exported so tests can seed
// fixtures and assert on final state directly.
type Store struct {
	mu           sync.Mutex
	nextID       uint
	Orders       map[uint]models.Order
	Items        []models.OrderItem
	Payments     map[uint]models.Payment
	Refunds      []models.Refund
	Reservations map[uint]models.InventoryReservation
	Variants     map[uint]models.ProductVariant
	Webhooks     map[uint]models.WebhookEvent
	AuditEntries []models.AuditLogEntry
	Users        map[uint]models.User
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		nextID:       1,
		Orders:       map[uint]models.Order{},
		Payments:     map[uint]models.Payment{},
		Reservations: map[uint]models.InventoryReservation{},
		Variants:     map[uint]models.ProductVariant{},
		Webhooks:     map[uint]models.WebhookEvent{},
		Users:        map[uint]models.User{},
	}
}

func (s *Store) id() uint {
	id := s.nextID
	s.nextID++
	return id
}

// Seed helpers keep test fixtures terse.

func (s *Store) AddOrder(o models.Order) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == 0 {
		o.ID = s.id()
	}
	if o.OrderNumber == "" {
		o.OrderNumber = fmt.Sprintf("ORD-%04d", o.ID)
	}
	s.Orders[o.ID] = o
	return o.ID
}

func (s *Store) AddPayment(p models.Payment) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	s.Payments[p.ID] = p
	return p.ID
}

func (s *Store) AddVariant(v models.ProductVariant) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == 0 {
		v.ID = s.id()
	}
	s.Variants[v.ID] = v
	return v.ID
}

func (s *Store) AddReservation(r models.InventoryReservation) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
	}
	s.Reservations[r.ID] = r
	return r.ID
}

func (s *Store) AddUser(u models.User) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	s.Users[u.ID] = u
	return u.ID
}

// Repositories returns repository implementations over this store.
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Order:       &orderRepo{s},
		Payment:     &paymentRepo{s},
		Refund:      &refundRepo{s},
		Reservation: &reservationRepo{s},
		Webhook:     &webhookRepo{s},
		Audit:       &auditRepo{s},
		User:        &userRepo{s},
	}
}

// snapshot copies every table for rollback restoration.
func (s *Store) snapshot() *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := NewStore()
	cp.nextID = s.nextID
	for k, v := range s.Orders {
		cp.Orders[k] = v
	}
	cp.Items = append([]models.OrderItem(nil), s.Items...)
	for k, v := range s.Payments {
		cp.Payments[k] = v
	}
	cp.Refunds = append([]models.Refund(nil), s.Refunds...)
	for k, v := range s.Reservations {
		cp.Reservations[k] = v
	}
	for k, v := range s.Variants {
		cp.Variants[k] = v
	}
	for k, v := range s.Webhooks {
		cp.Webhooks[k] = v
	}
	cp.AuditEntries = append([]models.AuditLogEntry(nil), s.AuditEntries...)
	for k, v := range s.Users {
		cp.Users[k] = v
	}
	return cp
}

func (s *Store) restore(from *Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = from.nextID
	s.Orders = from.Orders
	s.Items = from.Items
	s.Payments = from.Payments
	s.Refunds = from.Refunds
	s.Reservations = from.Reservations
	s.Variants = from.Variants
	s.Webhooks = from.Webhooks
	s.AuditEntries = from.AuditEntries
	s.Users = from.Users
}

// Opener returns a repository.Opener over this store.
func (s *Store) Opener() repository.Opener {
	return &fakeOpener{store: s}
}

type fakeOpener struct {
	store *Store
}

func (o *fakeOpener) Begin() (repository.UnitOfWork, error) {
	return &fakeUnitOfWork{
		store:    o.store,
		snapshot: o.store.snapshot(),
	}, nil
}

type fakeUnitOfWork struct {
	store    *Store
	snapshot *Store
	done     bool
}

func (u *fakeUnitOfWork) Repos() *repository.Repositories {
	return u.store.Repositories()
}

func (u *fakeUnitOfWork) Commit() error {
	u.done = true
	return nil
}

func (u *fakeUnitOfWork) Rollback() {
	if u.done {
		return
	}
	u.done = true
	u.store.restore(u.snapshot)
}

// ---- repository implementations ----

type orderRepo struct{ s *Store }

func (r *orderRepo) Create(order *models.Order, items []models.OrderItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if order.ID == 0 {
		order.ID = r.s.id()
	}
	if order.OrderNumber == "" {
		order.OrderNumber = fmt.Sprintf("ORD-%04d", order.ID)
	}
	for i := range items {
		items[i].OrderID = order.ID
		if items[i].ID == 0 {
			items[i].ID = r.s.id()
		}
		r.s.Items = append(r.s.Items, items[i])
	}
	order.Items = items
	r.s.Orders[order.ID] = *order
	return nil
}

func (r *orderRepo) GetByID(id uint) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.Orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	for _, it := range r.s.Items {
		if it.OrderID == id {
			o.Items = append(o.Items, it)
		}
	}
	return &o, nil
}

func (r *orderRepo) GetByIDForUpdate(id uint) (*models.Order, error) {
	return r.GetByID(id)
}

func (r *orderRepo) GetByOrderNumber(orderNumber string) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.Orders {
		if o.OrderNumber == orderNumber {
			return &o, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *orderRepo) UpdateStatus(id uint, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.Orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	o.Status = status
	r.s.Orders[id] = o
	return nil
}

func (r *orderRepo) Save(order *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.Orders[order.ID] = *order
	return nil
}

type paymentRepo struct{ s *Store }

func (r *paymentRepo) Create(p *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.Payments {
		if existing.Gateway == p.Gateway && existing.Reference == p.Reference {
			return gorm.ErrDuplicatedKey
		}
	}
	if p.ID == 0 {
		p.ID = r.s.id()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	r.s.Payments[p.ID] = *p
	return nil
}

func (r *paymentRepo) GetByID(id uint) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.Payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r *paymentRepo) GetByReference(gateway, reference string) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.Payments {
		if p.Gateway == gateway && p.Reference == reference {
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *paymentRepo) GetByReferenceForUpdate(gateway, reference string) (*models.Payment, error) {
	return r.GetByReference(gateway, reference)
}

func (r *paymentRepo) MarkPaid(id uint, settledAt time.Time, gatewayResponseJSON string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.Payments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.Status = models.PaymentStatusPaid
	p.SettledAt = &settledAt
	p.GatewayResponseJSON = gatewayResponseJSON
	r.s.Payments[id] = p
	return nil
}

func (r *paymentRepo) MarkFailed(id uint, gatewayResponseJSON string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.Payments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.Status = models.PaymentStatusFailed
	p.GatewayResponseJSON = gatewayResponseJSON
	r.s.Payments[id] = p
	return nil
}

func (r *paymentRepo) ListByOrder(orderID uint) ([]models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Payment
	for _, p := range r.s.Payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *paymentRepo) ListCreatedBetween(from, to time.Time) ([]models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Payment
	for _, p := range r.s.Payments {
		if !p.CreatedAt.Before(from) && p.CreatedAt.Before(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *paymentRepo) HasPaidPayment(orderID uint) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.Payments {
		if p.OrderID == orderID && p.Status == models.PaymentStatusPaid {
			return true, nil
		}
	}
	return false, nil
}

func (r *paymentRepo) AveragePaidAmountSince(userID uint, since time.Time) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum := decimal.Zero
	count := 0
	for _, p := range r.s.Payments {
		o, ok := r.s.Orders[p.OrderID]
		if !ok || o.UserID != userID {
			continue
		}
		if p.Status == models.PaymentStatusPaid && !p.CreatedAt.Before(since) {
			sum = sum.Add(p.Amount)
			count++
		}
	}
	if count == 0 {
		return decimal.Zero, nil
	}
	return sum.Div(decimal.NewFromInt(int64(count))), nil
}

type refundRepo struct{ s *Store }

func (r *refundRepo) Create(refund *models.Refund) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if refund.ID == 0 {
		refund.ID = r.s.id()
	}
	r.s.Refunds = append(r.s.Refunds, *refund)
	return nil
}

func (r *refundRepo) SumByPayment(paymentID uint) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum := decimal.Zero
	for _, rf := range r.s.Refunds {
		if rf.PaymentID == paymentID {
			sum = sum.Add(rf.Amount)
		}
	}
	return sum, nil
}

func (r *refundRepo) UpdateStatusByGatewayRef(gatewayRefundRef, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, rf := range r.s.Refunds {
		if rf.GatewayRefundRef == gatewayRefundRef {
			r.s.Refunds[i].Status = status
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *refundRepo) ListByPayment(paymentID uint) ([]models.Refund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Refund
	for _, rf := range r.s.Refunds {
		if rf.PaymentID == paymentID {
			out = append(out, rf)
		}
	}
	return out, nil
}

type reservationRepo struct{ s *Store }

func (r *reservationRepo) Create(res *models.InventoryReservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if res.ID == 0 {
		res.ID = r.s.id()
	}
	r.s.Reservations[res.ID] = *res
	return nil
}

func (r *reservationRepo) ActiveByOrder(orderID uint, now time.Time) ([]models.InventoryReservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.InventoryReservation
	for _, res := range r.s.Reservations {
		if res.OrderID == orderID && res.ReleasedAt == nil && res.ReservedUntil.After(now) {
			out = append(out, res)
		}
	}
	return out, nil
}

func (r *reservationRepo) ReleaseByOrder(orderID uint, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, res := range r.s.Reservations {
		if res.OrderID == orderID && res.ReleasedAt == nil {
			t := now
			res.ReleasedAt = &t
			r.s.Reservations[id] = res
			n++
		}
	}
	return n, nil
}

func (r *reservationRepo) ListExpired(now time.Time, limit int) ([]models.InventoryReservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.InventoryReservation
	for _, res := range r.s.Reservations {
		if res.ReleasedAt == nil && !res.ReservedUntil.After(now) {
			out = append(out, res)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *reservationRepo) ReleaseByIDs(ids []uint, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		res, ok := r.s.Reservations[id]
		if !ok || res.ReleasedAt != nil {
			continue
		}
		t := now
		res.ReleasedAt = &t
		r.s.Reservations[id] = res
		n++
	}
	return n, nil
}

func (r *reservationRepo) ActiveQuantityByVariant(variantID uint, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	total := 0
	for _, res := range r.s.Reservations {
		if res.VariantID == variantID && res.ReleasedAt == nil && res.ReservedUntil.After(now) {
			total += res.Quantity
		}
	}
	return total, nil
}

func (r *reservationRepo) GetVariant(variantID uint) (*models.ProductVariant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.Variants[variantID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &v, nil
}

func (r *reservationRepo) GetVariantForUpdate(variantID uint) (*models.ProductVariant, error) {
	return r.GetVariant(variantID)
}

func (r *reservationRepo) AdjustVariantStock(variantID uint, delta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.Variants[variantID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	v.StockQuantity += delta
	r.s.Variants[variantID] = v
	return nil
}

type webhookRepo struct{ s *Store }

func (r *webhookRepo) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ev := range r.s.Webhooks {
		if ev.EventType == event.EventType &&
			ev.GatewayReference == event.GatewayReference &&
			ev.GatewayEventID == event.GatewayEventID {
			stored := ev
			return false, &stored, nil
		}
	}
	if event.ID == 0 {
		event.ID = r.s.id()
	}
	if event.Status == "" {
		event.Status = models.WebhookStatusProcessing
	}
	r.s.Webhooks[event.ID] = *event
	stored := *event
	return true, &stored, nil
}

func (r *webhookRepo) MarkProcessed(id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ev, ok := r.s.Webhooks[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	ev.Status = models.WebhookStatusProcessed
	ev.ProcessedAt = &now
	r.s.Webhooks[id] = ev
	return nil
}

func (r *webhookRepo) MarkFailed(id uint, processingError string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ev, ok := r.s.Webhooks[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	ev.Status = models.WebhookStatusFailed
	ev.ProcessingError = processingError
	ev.RetryCount++
	r.s.Webhooks[id] = ev
	return nil
}

type auditRepo struct{ s *Store }

func (r *auditRepo) Append(entry *models.AuditLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if entry.ID == 0 {
		entry.ID = r.s.id()
	}
	r.s.AuditEntries = append(r.s.AuditEntries, *entry)
	return nil
}

func (r *auditRepo) ListByEntity(entityType, entityID string) ([]models.AuditLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.AuditLogEntry
	for _, e := range r.s.AuditEntries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type userRepo struct{ s *Store }

func (r *userRepo) GetByID(id uint) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.Users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}
