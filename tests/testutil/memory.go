package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/cassa/backend/internal/domain/debt"
	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/tab"
	"github.com/google/uuid"
)

// OrderStore is an in-memory order.Repository with version checks.
type OrderStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order

	// BeforeSave runs once, under the store lock, before the next
	// SaveWithLock compares versions. Use it to simulate a concurrent writer.
	BeforeSave func(stored *order.Order)
	// SaveErr, when set, is returned by every SaveWithLock
	SaveErr error
	// Saves counts successful SaveWithLock calls
	Saves int
}

// NewOrderStore creates a store holding orders.
func NewOrderStore(orders ...*order.Order) *OrderStore {
	s := &OrderStore{orders: make(map[uuid.UUID]*order.Order)}
	for _, o := range orders {
		s.orders[o.ID] = CloneOrder(o)
	}
	return s
}

// FindByID implements order.Repository.
func (s *OrderStore) FindByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return CloneOrder(o), nil
}

// FindOpen implements order.Repository.
func (s *OrderStore) FindOpen(_ context.Context) ([]*order.Order, error) {
	return s.filter(func(o *order.Order) bool { return !o.IsClosed() }), nil
}

// FindOpenByTable implements order.Repository.
func (s *OrderStore) FindOpenByTable(_ context.Context, key string) ([]*order.Order, error) {
	code := order.ParseTableKey(key).Code
	if code == "" {
		return []*order.Order{}, nil
	}
	return s.filter(func(o *order.Order) bool {
		return !o.IsClosed() && order.ParseTableKey(o.TableRef).Code == code
	}), nil
}

func (s *OrderStore) filter(keep func(*order.Order) bool) []*order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*order.Order, 0)
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, CloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].Number < out[j].Number
	})
	return out
}

// Create implements order.Repository.
func (s *OrderStore) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return shared.NewValidationError("order %s already exists", o.ID)
	}
	s.orders[o.ID] = CloneOrder(o)
	return nil
}

// SaveWithLock implements order.Repository.
func (s *OrderStore) SaveWithLock(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	stored, ok := s.orders[o.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if hook := s.BeforeSave; hook != nil {
		s.BeforeSave = nil
		hook(stored)
	}
	if stored.Version != o.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	s.orders[o.ID] = CloneOrder(o)
	s.Saves++
	return nil
}

// Get returns the stored copy of an order, or nil.
func (s *OrderStore) Get(id uuid.UUID) *order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		return CloneOrder(o)
	}
	return nil
}

// CloneOrder deep-copies an order without its pending events.
func CloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Lines = make([]order.Line, len(o.Lines))
	for i, l := range o.Lines {
		l.Allocations = append([]order.Allocation(nil), l.Allocations...)
		c.Lines[i] = l
	}
	c.Deferrals = append([]order.Deferral(nil), o.Deferrals...)
	c.ClearDomainEvents()
	return &c
}

// PaymentStore is an in-memory payment.Repository with version checks.
type PaymentStore struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*payment.Payment
	seq      map[uuid.UUID]int
	next     int

	// CreateErr, when set, is returned by Create
	CreateErr error
}

// NewPaymentStore creates an empty store.
func NewPaymentStore() *PaymentStore {
	return &PaymentStore{
		payments: make(map[uuid.UUID]*payment.Payment),
		seq:      make(map[uuid.UUID]int),
	}
}

// FindByID implements payment.Repository.
func (s *PaymentStore) FindByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return clonePayment(p), nil
}

// FindByOrder implements payment.Repository, newest first.
func (s *PaymentStore) FindByOrder(_ context.Context, orderID uuid.UUID) ([]*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*payment.Payment, 0)
	for _, p := range s.payments {
		if p.OrderID == orderID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] > s.seq[out[j].ID] })
	return out, nil
}

// FindLatestForOrder implements payment.Repository.
func (s *PaymentStore) FindLatestForOrder(ctx context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	all, _ := s.FindByOrder(ctx, orderID)
	for _, p := range all {
		if p.Status != payment.StatusFailed {
			return p, nil
		}
	}
	return nil, shared.ErrNotFound
}

// Create implements payment.Repository.
func (s *PaymentStore) Create(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.next++
	s.seq[p.ID] = s.next
	s.payments[p.ID] = clonePayment(p)
	return nil
}

// SaveWithLock implements payment.Repository.
func (s *PaymentStore) SaveWithLock(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.payments[p.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != p.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	s.payments[p.ID] = clonePayment(p)
	return nil
}

// All returns every stored payment, oldest first.
func (s *PaymentStore) All() []*payment.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*payment.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })
	return out
}

func clonePayment(p *payment.Payment) *payment.Payment {
	c := *p
	c.Selections = append([]order.Selection(nil), p.Selections...)
	c.ClearDomainEvents()
	return &c
}

// DebtStore is an in-memory debt.Repository with version checks.
type DebtStore struct {
	mu    sync.Mutex
	debts map[uuid.UUID]*debt.Debt

	// Deleted lists ids removed through Delete
	Deleted []uuid.UUID
}

// NewDebtStore creates an empty store.
func NewDebtStore() *DebtStore {
	return &DebtStore{debts: make(map[uuid.UUID]*debt.Debt)}
}

// FindByID implements debt.Repository.
func (s *DebtStore) FindByID(_ context.Context, id uuid.UUID) (*debt.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.debts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneDebt(d), nil
}

// FindByCustomer implements debt.Repository.
func (s *DebtStore) FindByCustomer(_ context.Context, customerID uuid.UUID, includeSettled bool) ([]*debt.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*debt.Debt, 0)
	for _, d := range s.debts {
		if d.CustomerID != customerID {
			continue
		}
		if !includeSettled && d.State == debt.StateSettled {
			continue
		}
		out = append(out, cloneDebt(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Create implements debt.Repository.
func (s *DebtStore) Create(_ context.Context, d *debt.Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debts[d.ID] = cloneDebt(d)
	return nil
}

// SaveWithLock implements debt.Repository.
func (s *DebtStore) SaveWithLock(_ context.Context, d *debt.Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.debts[d.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != d.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	s.debts[d.ID] = cloneDebt(d)
	return nil
}

// Delete implements debt.Repository.
func (s *DebtStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.debts[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.debts, id)
	s.Deleted = append(s.Deleted, id)
	return nil
}

// Len returns the number of stored debts.
func (s *DebtStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.debts)
}

func cloneDebt(d *debt.Debt) *debt.Debt {
	c := *d
	c.Payments = append([]debt.DebtPayment(nil), d.Payments...)
	c.ClearDomainEvents()
	return &c
}

// TabStore is an in-memory tab.Repository. Movement sequence numbers are
// unique per account, like the unique index of the SQL schema.
type TabStore struct {
	mu       sync.Mutex
	accounts map[string]*tab.ScalarAccount

	// BeforeAppend runs once, under the store lock, before the next append.
	BeforeAppend func(stored *tab.ScalarAccount)
}

// NewTabStore creates an empty store.
func NewTabStore() *TabStore {
	return &TabStore{accounts: make(map[string]*tab.ScalarAccount)}
}

// FindByID implements tab.Repository.
func (s *TabStore) FindByID(_ context.Context, id string) (*tab.ScalarAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneAccount(a), nil
}

// FindAll implements tab.Repository.
func (s *TabStore) FindAll(_ context.Context) ([]*tab.ScalarAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*tab.ScalarAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, cloneAccount(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateAccount implements tab.Repository.
func (s *TabStore) CreateAccount(_ context.Context, a *tab.ScalarAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return shared.ErrConcurrencyConflict
	}
	c := cloneAccount(a)
	c.Movements = nil
	s.accounts[a.ID] = c
	return nil
}

// AppendMovement implements tab.Repository.
func (s *TabStore) AppendMovement(_ context.Context, m *tab.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[m.AccountID]
	if !ok {
		return shared.ErrNotFound
	}
	if hook := s.BeforeAppend; hook != nil {
		s.BeforeAppend = nil
		hook(a)
	}
	for _, existing := range a.Movements {
		if existing.Seq == m.Seq {
			return shared.ErrConcurrencyConflict
		}
	}
	a.Movements = append(a.Movements, *m)
	sort.Slice(a.Movements, func(i, j int) bool { return a.Movements[i].Seq < a.Movements[j].Seq })
	return nil
}

// FindMovementByPayment implements tab.Repository.
func (s *TabStore) FindMovementByPayment(_ context.Context, paymentID uuid.UUID) (*tab.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if m, ok := a.MovementForPayment(paymentID); ok {
			c := *m
			return &c, nil
		}
	}
	return nil, shared.ErrNotFound
}

func cloneAccount(a *tab.ScalarAccount) *tab.ScalarAccount {
	c := *a
	c.Movements = append([]tab.Movement(nil), a.Movements...)
	return &c
}
