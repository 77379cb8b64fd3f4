// Package receipt requests printed receipts from the venue's receipt
// service after a payment commits.
package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/infrastructure/config"
	"github.com/cassa/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of a failed response is kept in the error
const maxErrorBody = 512

// HTTPIssuer posts receipt requests to the receipt service
type HTTPIssuer struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type receiptRequest struct {
	OrderID     uuid.UUID `json:"order_id"`
	RequestedAt time.Time `json:"requested_at"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewHTTPIssuer creates an issuer for baseURL
func NewHTTPIssuer(baseURL string, timeout time.Duration, log *zap.Logger) *HTTPIssuer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPIssuer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.Named("receipt"),
	}
}

// IssueReceipt requests a receipt for the order. Failures are
// TransportErrors; the caller logs them and never retries.
func (i *HTTPIssuer) IssueReceipt(ctx context.Context, orderID uuid.UUID) error {
	body, err := json.Marshal(receiptRequest{OrderID: orderID, RequestedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("receipt: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL+"/receipts", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("receipt: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id := logger.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return shared.NewTransportError("receipt service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var errResp errorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Code != "" {
			return shared.NewTransportError("receipt request rejected",
				fmt.Errorf("HTTP %d: %s - %s", resp.StatusCode, errResp.Code, errResp.Message))
		}
		return shared.NewTransportError("receipt request rejected", fmt.Errorf("HTTP %d", resp.StatusCode))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	i.logger.Debug("Receipt requested", zap.String("order_id", orderID.String()))
	return nil
}

// NoopIssuer only logs; used when no receipt service is configured
type NoopIssuer struct {
	logger *zap.Logger
}

// NewNoopIssuer creates a NoopIssuer
func NewNoopIssuer(log *zap.Logger) *NoopIssuer {
	return &NoopIssuer{logger: log.Named("receipt")}
}

// IssueReceipt logs the request and succeeds
func (n *NoopIssuer) IssueReceipt(ctx context.Context, orderID uuid.UUID) error {
	n.logger.Debug("Receipt service disabled, skipping", zap.String("order_id", orderID.String()))
	return nil
}

// Issuer is the port implemented by both issuers
type Issuer interface {
	IssueReceipt(ctx context.Context, orderID uuid.UUID) error
}

// New picks the issuer for cfg
func New(cfg config.ReceiptConfig, log *zap.Logger) Issuer {
	if !cfg.Enabled || cfg.BaseURL == "" {
		return NewNoopIssuer(log)
	}
	return NewHTTPIssuer(cfg.BaseURL, cfg.Timeout, log)
}
