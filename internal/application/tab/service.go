// Package tab runs the scalar account ledger: append-only running tabs and
// the pay-for-others flow that charges settled orders onto a tab.
package tab

import (
	"context"
	"errors"
	"strings"

	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/payment"
	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/cassa/backend/internal/domain/tab"
	"github.com/cassa/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service records movements and serves tab summaries
type Service struct {
	accounts tab.Repository
	payments payment.Repository
	orders   order.Repository
	payer    OrderPayer
	metrics  *telemetry.POSMetrics
	logger   *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithMetrics records movement counters
func WithMetrics(m *telemetry.POSMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithOrderPayer enables PayForOthers
func WithOrderPayer(orders order.Repository, payer OrderPayer) Option {
	return func(s *Service) {
		s.orders = orders
		s.payer = payer
	}
}

// NewService creates a new tab service
func NewService(accounts tab.Repository, payments payment.Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		accounts: accounts,
		payments: payments,
		logger:   logger.Named("tab"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordMovementRequest appends one movement to an account
type RecordMovementRequest struct {
	AccountID string
	// Owner is used when the movement opens the account
	Owner      tab.Owner
	Type       tab.MovementType
	Amount     valueobject.Money
	ReversesID *uuid.UUID
	PaymentID  *uuid.UUID
	Note       string
}

// RecordMovement appends a movement. The first movement of an unknown
// account opens it. A concurrent append on the same account fails with
// STALE_STATE; the caller re-reads the account before retrying.
func (s *Service) RecordMovement(ctx context.Context, req RecordMovementRequest) (*tab.Movement, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tab", "record_movement")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrAccountID, req.AccountID,
		"movement_type", string(req.Type),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	a, err := s.loadOrOpen(ctx, req.AccountID, req.Owner, req.Type)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	m, err := a.Record(req.Type, req.Amount, tab.MovementOptions{
		ReversesID: req.ReversesID,
		PaymentID:  req.PaymentID,
		Note:       strings.TrimSpace(req.Note),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.accounts.AppendMovement(ctx, m); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			err = shared.NewStaleStateError("account %s changed concurrently, refresh and retry", a.ID)
		} else {
			err = storageError("failed to append movement", err)
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Movement recorded",
		zap.String("account_id", a.ID),
		zap.Int("seq", m.Seq),
		zap.String("type", string(m.Type)),
		zap.String("amount", m.Amount.String()),
		zap.String("saldo", a.Saldo().String()),
	)
	s.metrics.RecordTabMovement(ctx, string(m.Type))
	return m, nil
}

func (s *Service) loadOrOpen(ctx context.Context, id string, owner tab.Owner, typ tab.MovementType) (*tab.ScalarAccount, error) {
	a, err := s.accounts.FindByID(ctx, strings.TrimSpace(id))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, storageError("failed to load account", err)
	}
	if typ != tab.MovementOrder {
		return nil, shared.NewValidationError("account %s has no movements, the first one must be ORDINE", id)
	}

	a, err = tab.NewScalarAccount(id, owner)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.CreateAccount(ctx, a); err != nil {
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, storageError("failed to open account", err)
		}
		// opened by another terminal in the meantime
		existing, ferr := s.accounts.FindByID(ctx, a.ID)
		if ferr != nil {
			return nil, storageError("failed to load account", ferr)
		}
		return existing, nil
	}
	s.logger.Info("Account opened",
		zap.String("account_id", a.ID),
		zap.String("owner_kind", string(a.Owner.Kind)),
		zap.String("owner_ref", a.Owner.Ref),
	)
	return a, nil
}

// GetAccount returns an account with all its movements, open or closed
func (s *Service) GetAccount(ctx context.Context, id string) (*tab.ScalarAccount, error) {
	a, err := s.accounts.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, storageError("failed to load account", err)
	}
	return a, nil
}

// GetTabSummary folds every movement of every open account. Nothing is
// cached between calls.
func (s *Service) GetTabSummary(ctx context.Context) (*tab.TabSummary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tab", "get_tab_summary")
	defer span.End()

	accounts, err := s.accounts.FindAll(ctx)
	if err != nil {
		err = storageError("failed to load accounts", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	summary := tab.Summarize(accounts)
	telemetry.SetAttributes(span, "open_accounts", summary.OpenAccounts)
	return &summary, nil
}

// RecordChargeForPayment charges a settled tab payment onto an account as an
// ORDINE movement. Calling it again for the same payment returns the
// existing movement.
func (s *Service) RecordChargeForPayment(ctx context.Context, accountID string, owner tab.Owner, paymentID uuid.UUID) (*tab.Movement, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tab", "record_charge")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrAccountID, accountID,
		telemetry.SpanAttrPaymentID, paymentID.String(),
	)

	existing, err := s.accounts.FindMovementByPayment(ctx, paymentID)
	switch {
	case err == nil:
		if existing.AccountID != strings.TrimSpace(accountID) {
			err = shared.NewValidationError("payment %s is already charged to account %s", paymentID, existing.AccountID)
			telemetry.RecordError(span, err)
			return nil, err
		}
		a, err := s.accounts.FindByID(ctx, existing.AccountID)
		if err != nil {
			err = storageError("failed to load account", err)
			telemetry.RecordError(span, err)
			return nil, err
		}
		if charges := a.ChargesForPayment(paymentID); len(charges) > 0 {
			return &charges[len(charges)-1], nil
		}
		// every earlier charge was reversed; a still settled payment is
		// charged again below
	case !errors.Is(err, shared.ErrNotFound):
		err = storageError("failed to look up charge", err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	p, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		err = storageError("failed to load payment", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if p.Method != payment.MethodTab {
		err = shared.NewValidationError("payment %s was made with %s, not %s", p.ID, p.Method, payment.MethodTab)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !p.Status.IsSettled() {
		err = shared.NewValidationError("payment %s is %s", p.ID, p.Status)
		telemetry.RecordError(span, err)
		return nil, err
	}

	return s.RecordMovement(ctx, RecordMovementRequest{
		AccountID: accountID,
		Owner:     owner,
		Type:      tab.MovementOrder,
		Amount:    p.Amount,
		PaymentID: &p.ID,
		Note:      "ordine " + p.OrderID.String(),
	})
}

func storageError(msg string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.NewPersistenceError(msg, err)
}
