package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config tunes the reconciler windows
type Config struct {
	// SessionID prefixes every dedup key so sessions sharing a store do
	// not suppress each other's events. Empty generates one.
	SessionID         string
	DedupWindow       time.Duration
	DebounceInterval  time.Duration
	DebounceMaxWait   time.Duration
	SettleDelay       time.Duration
	NotificationKinds []string
}

// DefaultConfig returns the production windows
func DefaultConfig() Config {
	return Config{
		DedupWindow:       3 * time.Second,
		DebounceInterval:  300 * time.Millisecond,
		DebounceMaxWait:   2 * time.Second,
		SettleDelay:       time.Second,
		NotificationKinds: DefaultNotificationKinds,
	}
}

// Fetcher loads server truth. ordering.Service implements it.
type Fetcher interface {
	ListOpenOrders(ctx context.Context) ([]*order.Order, error)
}

// Outcome says what happened to an incoming event
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFiltered  Outcome = "filtered"
	OutcomeIgnored   Outcome = "ignored"
)

// Reconciler is the intake for push events of one cashier session. Accepted
// events trigger a debounced refresh; the transport's connection state
// drives a forced refresh after every reconnect.
type Reconciler struct {
	cfg     Config
	fetcher Fetcher
	dedup   shared.IdempotencyStore
	filter  NotificationFilter
	metrics *telemetry.POSMetrics
	logger  *zap.Logger
	notify  func(NotificationNew)

	cache     *Cache[Snapshot]
	view      *LocalView
	machine   *StateMachine
	debouncer *Debouncer

	baseCtx   context.Context
	refreshMu sync.Mutex

	refreshes  atomic.Int64
	accepted   atomic.Int64
	duplicates atomic.Int64
	filtered   atomic.Int64
	ignored    atomic.Int64
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithMetrics records realtime counters
func WithMetrics(m *telemetry.POSMetrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithNotificationSink receives every relevant notification
func WithNotificationSink(fn func(NotificationNew)) Option {
	return func(r *Reconciler) { r.notify = fn }
}

// WithBaseContext sets the context of debounced and reconnect refreshes
func WithBaseContext(ctx context.Context) Option {
	return func(r *Reconciler) { r.baseCtx = ctx }
}

// NewReconciler creates a Reconciler in the CONNECTING state
func NewReconciler(fetcher Fetcher, dedup shared.IdempotencyStore, cfg Config, logger *zap.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NotificationKinds == nil {
		cfg.NotificationKinds = DefaultNotificationKinds
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	r := &Reconciler{
		cfg:     cfg,
		fetcher: fetcher,
		dedup:   dedup,
		filter:  NewNotificationFilter(cfg.NotificationKinds),
		logger:  logger.Named("realtime").With(zap.String("session_id", cfg.SessionID)),
		cache:   NewCache[Snapshot](),
		view:    NewLocalView(),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.debouncer = NewDebouncer(cfg.DebounceInterval, cfg.DebounceMaxWait, r.debouncedRefresh)
	r.machine = NewStateMachine(cfg.SettleDelay, r.backgroundRefresh, r.logger)
	return r
}

// OnEvent decodes and handles a raw event. Unknown classes are dropped
// with OutcomeIgnored; malformed payloads return a validation error.
func (r *Reconciler) OnEvent(ctx context.Context, class string, payload []byte) (Outcome, error) {
	ev, err := Decode(class, payload)
	if errors.Is(err, ErrUnknownEventClass) {
		r.ignored.Add(1)
		r.logger.Debug("Dropping event of unknown class", zap.String("class", class))
		return OutcomeIgnored, nil
	}
	if err != nil {
		r.logger.Warn("Dropping malformed event", zap.String("class", class), zap.Error(err))
		return "", err
	}
	return r.Handle(ctx, ev)
}

// OnMessage handles a wire envelope as delivered by a push transport
func (r *Reconciler) OnMessage(ctx context.Context, data []byte) (Outcome, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.logger.Warn("Dropping malformed envelope", zap.Error(err))
		return "", shared.NewValidationError("malformed event envelope: %v", err)
	}
	return r.OnEvent(ctx, env.Type, env.Payload)
}

// OnOrderDelivered handles order:delivered
func (r *Reconciler) OnOrderDelivered(ctx context.Context, e OrderDelivered) (Outcome, error) {
	return r.Handle(ctx, e)
}

// OnOrderPaid handles order:paid
func (r *Reconciler) OnOrderPaid(ctx context.Context, e OrderPaid) (Outcome, error) {
	return r.Handle(ctx, e)
}

// OnOrderStatusChanged handles order:status-change
func (r *Reconciler) OnOrderStatusChanged(ctx context.Context, e OrderStatusChanged) (Outcome, error) {
	return r.Handle(ctx, e)
}

// OnDebtCreated handles debt:created
func (r *Reconciler) OnDebtCreated(ctx context.Context, e DebtCreated) (Outcome, error) {
	return r.Handle(ctx, e)
}

// OnDebtPaid handles debt:paid
func (r *Reconciler) OnDebtPaid(ctx context.Context, e DebtPaid) (Outcome, error) {
	return r.Handle(ctx, e)
}

// OnPaymentCancelled handles payment:cancelled
func (r *Reconciler) OnPaymentCancelled(ctx context.Context, e PaymentCancelled) (Outcome, error) {
	return r.Handle(ctx, e)
}

// OnPaymentPartiallyCancelled handles payment:partial-cancelled
func (r *Reconciler) OnPaymentPartiallyCancelled(ctx context.Context, e PaymentPartiallyCancelled) (Outcome, error) {
	return r.Handle(ctx, e)
}

// OnNotification handles notification:new
func (r *Reconciler) OnNotification(ctx context.Context, e NotificationNew) (Outcome, error) {
	return r.Handle(ctx, e)
}

// Handle filters, deduplicates and schedules a refresh for one event.
// A failing dedup store lets the event through: an extra refresh is
// harmless, a missed one is not.
func (r *Reconciler) Handle(ctx context.Context, ev Event) (Outcome, error) {
	class := string(ev.Class())
	r.metrics.RecordRealtimeEvent(ctx, class)

	n, isNotification := ev.(NotificationNew)
	if isNotification && !r.filter.Relevant(n) {
		r.filtered.Add(1)
		return OutcomeFiltered, nil
	}

	key := r.cfg.SessionID + ":" + class + ":" + ev.EntityID()
	fresh, err := r.dedup.MarkProcessed(ctx, key, r.cfg.DedupWindow)
	if err != nil {
		r.logger.Warn("Dedup store unavailable, accepting event", zap.String("key", key), zap.Error(err))
		fresh = true
	}
	if !fresh {
		r.duplicates.Add(1)
		r.metrics.RecordDuplicate(ctx, class)
		r.logger.Debug("Duplicate event suppressed", zap.String("key", key))
		return OutcomeDuplicate, nil
	}

	r.accepted.Add(1)
	if isNotification && r.notify != nil {
		r.notify(n)
	}
	r.debouncer.Trigger(class)
	return OutcomeAccepted, nil
}

// SessionID identifies the session in dedup keys
func (r *Reconciler) SessionID() string {
	return r.cfg.SessionID
}

// RequestRefresh schedules a debounced refresh
func (r *Reconciler) RequestRefresh(reason string) {
	r.debouncer.Trigger(reason)
}

// Refresh fetches server truth now and replaces the cache and the local
// view. On failure the cache is invalidated and the view is left as is.
func (r *Reconciler) Refresh(ctx context.Context, reason string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "realtime", "refresh")
	defer span.End()
	telemetry.SetAttributes(span, "reason", reason)

	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	if r.machine.BeginReconcile() {
		defer r.machine.EndReconcile()
	}

	var (
		orders []*order.Order
		err    error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("refresh", map[string]string{
		telemetry.ProfilingLabelReason: reason,
	}), func(ctx context.Context) {
		orders, err = r.fetcher.ListOpenOrders(ctx)
	})
	if err != nil {
		r.cache.Invalidate(reason)
		telemetry.RecordError(span, err)
		r.logger.Warn("Refresh failed", zap.String("reason", reason), zap.Error(err))
		return err
	}

	snap := Snapshot{
		Orders: make([]OrderView, 0, len(orders)),
		Groups: order.ComputeTableGroups(orders),
	}
	for _, o := range orders {
		snap.Orders = append(snap.Orders, NewOrderView(o))
	}
	version := r.cache.Set(snap)
	r.view.Replace(snap.Orders)
	r.refreshes.Add(1)
	r.metrics.RecordRefresh(ctx, reason)

	r.logger.Debug("Refreshed",
		zap.String("reason", reason),
		zap.Uint64("version", version),
		zap.Int("orders", len(snap.Orders)),
	)
	return nil
}

// TrackPayment applies an optimistic paid hint and runs pay. On success a
// debounced refresh confirms the hint; on failure an immediate refresh
// replaces it instead of undoing it.
func (r *Reconciler) TrackPayment(ctx context.Context, orderID uuid.UUID, pay func(ctx context.Context) error) error {
	r.view.MarkPaidOptimistic(orderID)
	err := pay(ctx)
	if err == nil {
		r.RequestRefresh("payment")
		return nil
	}
	r.logger.Info("Payment failed, refreshing local view",
		zap.String("order_id", orderID.String()),
		zap.Error(err),
	)
	if rerr := r.Refresh(ctx, "payment_failed"); rerr != nil {
		r.logger.Warn("Refresh after failed payment also failed", zap.Error(rerr))
	}
	return err
}

// OnConnected reports a (re)established transport connection
func (r *Reconciler) OnConnected(ctx context.Context) error {
	return r.machine.OnConnected(ctx)
}

// OnDisconnected reports a lost transport connection
func (r *Reconciler) OnDisconnected(err error) {
	r.cache.Invalidate("disconnected")
	r.machine.OnDisconnected(err)
}

// Close stops pending refreshes
func (r *Reconciler) Close() {
	r.debouncer.Stop()
	r.machine.Stop()
}

// View returns the local view
func (r *Reconciler) View() *LocalView {
	return r.view
}

// Snapshot returns the cached server truth
func (r *Reconciler) Snapshot() (Entry[Snapshot], bool) {
	return r.cache.Get()
}

// Status summarizes the session for monitoring
type Status struct {
	SessionID    string
	State        State
	CacheVersion uint64
	CacheValid   bool
	FetchedAt    time.Time
	Invalidated  string
	Refreshes    int64
	Accepted     int64
	Duplicates   int64
	Filtered     int64
	Ignored      int64
	Reconnects   int
	LastError    string
	Buckets      map[Bucket]int
}

// Status returns the current session status
func (r *Reconciler) Status() Status {
	entry, valid := r.cache.Get()
	s := Status{
		SessionID:    r.cfg.SessionID,
		State:        r.machine.State(),
		CacheVersion: entry.Version,
		CacheValid:   valid,
		FetchedAt:    entry.FetchedAt,
		Invalidated:  r.cache.InvalidatedBy(),
		Refreshes:    r.refreshes.Load(),
		Accepted:     r.accepted.Load(),
		Duplicates:   r.duplicates.Load(),
		Filtered:     r.filtered.Load(),
		Ignored:      r.ignored.Load(),
		Reconnects:   r.machine.Reconnects(),
		Buckets:      r.view.Counts(),
	}
	if err := r.machine.LastError(); err != nil {
		s.LastError = err.Error()
	}
	return s
}

func (r *Reconciler) debouncedRefresh(reasons []string) {
	r.backgroundRefresh(r.baseCtx, strings.Join(reasons, ","))
}

func (r *Reconciler) backgroundRefresh(ctx context.Context, reason string) {
	if err := r.Refresh(ctx, reason); err != nil {
		r.logger.Warn("Background refresh failed", zap.String("reason", reason), zap.Error(err))
	}
}
