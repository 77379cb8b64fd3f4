package receipt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/infrastructure/config"
	"github.com/cassa/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPIssuer_IssueReceipt(t *testing.T) {
	orderID := uuid.New()
	var got receiptRequest
	var requestID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/receipts", r.URL.Path)
		requestID = r.Header.Get("X-Request-ID")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	issuer := NewHTTPIssuer(server.URL+"/", time.Second, zap.NewNop())
	ctx, _ := logger.WithRequestID(context.Background(), zap.NewNop(), "req-7")

	require.NoError(t, issuer.IssueReceipt(ctx, orderID))
	assert.Equal(t, orderID, got.OrderID)
	assert.Equal(t, "req-7", requestID)
}

func TestHTTPIssuer_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":"PRINTER_OFFLINE","message":"paper out"}`))
	}))
	defer server.Close()

	err := NewHTTPIssuer(server.URL, time.Second, zap.NewNop()).IssueReceipt(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, shared.IsCode(err, shared.CodeTransport))
	assert.Contains(t, err.Error(), "PRINTER_OFFLINE")
}

func TestHTTPIssuer_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := NewHTTPIssuer(url, 200*time.Millisecond, zap.NewNop()).IssueReceipt(context.Background(), uuid.New())
	assert.True(t, shared.IsCode(err, shared.CodeTransport))
}

func TestNew(t *testing.T) {
	assert.IsType(t, &NoopIssuer{}, New(config.ReceiptConfig{}, zap.NewNop()))
	assert.IsType(t, &NoopIssuer{}, New(config.ReceiptConfig{Enabled: true}, zap.NewNop()))
	assert.IsType(t, &HTTPIssuer{}, New(config.ReceiptConfig{Enabled: true, BaseURL: "http://printer.local"}, zap.NewNop()))

	assert.NoError(t, NewNoopIssuer(zap.NewNop()).IssueReceipt(context.Background(), uuid.New()))
}
