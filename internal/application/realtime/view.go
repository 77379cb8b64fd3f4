package realtime

import (
	"sort"
	"sync"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// Bucket groups orders in the cashier view
type Bucket string

const (
	BucketAwaiting Bucket = "awaiting"
	BucketPartial  Bucket = "partial"
	BucketPaid     Bucket = "paid"
)

// BucketFor maps a payment status to its bucket
func BucketFor(s order.PaymentStatus) Bucket {
	switch s {
	case order.StatusPaid:
		return BucketPaid
	case order.StatusPartiallyPaid:
		return BucketPartial
	default:
		return BucketAwaiting
	}
}

// OrderView is the slice of an order the cashier view needs
type OrderView struct {
	ID        uuid.UUID
	Number    string
	TableKey  string
	Status    order.PaymentStatus
	Remaining valueobject.Money
}

// NewOrderView projects an order
func NewOrderView(o *order.Order) OrderView {
	return OrderView{
		ID:        o.ID,
		Number:    o.Number,
		TableKey:  o.TableKey().String(),
		Status:    o.PaymentStatus(),
		Remaining: o.Remaining(),
	}
}

// Snapshot is one fetch of server truth
type Snapshot struct {
	Orders []OrderView
	Groups []order.TableGroup
}

// LocalView is the cashier's bucketed order list. Replace swaps every bucket
// for the fetched truth; MarkPaidOptimistic is a hint that the next Replace
// overwrites.
type LocalView struct {
	mu         sync.RWMutex
	bucketOf   map[uuid.UUID]Bucket
	optimistic map[uuid.UUID]Bucket
}

// NewLocalView creates an empty view
func NewLocalView() *LocalView {
	return &LocalView{
		bucketOf:   make(map[uuid.UUID]Bucket),
		optimistic: make(map[uuid.UUID]Bucket),
	}
}

// Replace rebuilds every bucket from fetched orders and drops all hints
func (v *LocalView) Replace(orders []OrderView) {
	next := make(map[uuid.UUID]Bucket, len(orders))
	for _, o := range orders {
		next[o.ID] = BucketFor(o.Status)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bucketOf = next
	v.optimistic = make(map[uuid.UUID]Bucket)
}

// MarkPaidOptimistic moves an order to the paid bucket ahead of server
// confirmation. Returns false when the view does not know the order.
func (v *LocalView) MarkPaidOptimistic(id uuid.UUID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	prev, ok := v.bucketOf[id]
	if !ok {
		return false
	}
	if _, hinted := v.optimistic[id]; !hinted {
		v.optimistic[id] = prev
	}
	v.bucketOf[id] = BucketPaid
	return true
}

// IsOptimistic reports whether an order's bucket is an unconfirmed hint
func (v *LocalView) IsOptimistic(id uuid.UUID) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.optimistic[id]
	return ok
}

// BucketOf returns the bucket of an order
func (v *LocalView) BucketOf(id uuid.UUID) (Bucket, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	b, ok := v.bucketOf[id]
	return b, ok
}

// Orders lists the ids in a bucket, sorted
func (v *LocalView) Orders(b Bucket) []uuid.UUID {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ids := make([]uuid.UUID, 0)
	for id, bucket := range v.bucketOf {
		if bucket == b {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Counts returns the size of every bucket
func (v *LocalView) Counts() map[Bucket]int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	counts := map[Bucket]int{BucketAwaiting: 0, BucketPartial: 0, BucketPaid: 0}
	for _, b := range v.bucketOf {
		counts[b]++
	}
	return counts
}
