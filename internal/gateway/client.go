// Package gateway talks to the payment gateway's transaction status API.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/metrics"
)

var tracer = otel.Tracer("github.com/Kwazak/umnfestival2026-sub004/gateway")

// ErrTransactionNotFound means the gateway has no transaction for the order
// number, typically because the buyer never opened the payment page.
var ErrTransactionNotFound = errors.New("gateway: transaction not found")

// ErrUnavailable wraps transport failures and unexpected gateway responses.
var ErrUnavailable = errors.New("gateway: unavailable")

// Module provides the HTTP gateway client to Fx, exposed as a Client.
var Module = fx.Provide(
	fx.Annotate(NewHTTPClient, fx.As(new(Client))),
)

// Client fetches the authoritative status of a transaction.
type Client interface {
	GetStatus(ctx context.Context, orderNumber string) (*TransactionStatus, error)
}

// TransactionStatus is the subset of the gateway status payload the
// reconciler needs.
type TransactionStatus struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
}

// HTTPClient calls GET {base}/v2/{order}/status with server-key basic auth.
type HTTPClient struct {
	baseURL   string
	serverKey string
	http      *http.Client
	metrics   *metrics.PaymentMetrics
}

// NewHTTPClient builds a client honouring the configured timeout.
func NewHTTPClient(cfg config.Config, m *metrics.PaymentMetrics) *HTTPClient {
	return &HTTPClient{
		baseURL:   cfg.Gateway.BaseURL,
		serverKey: cfg.Gateway.ServerKey,
		http:      &http.Client{Timeout: cfg.Gateway.Timeout},
		metrics:   m,
	}
}

// GetStatus queries the gateway. It returns ErrTransactionNotFound for an
// unknown order and an error wrapping ErrUnavailable when the gateway could
// not be asked.
func (c *HTTPClient) GetStatus(ctx context.Context, orderNumber string) (*TransactionStatus, error) {
	ctx, span := tracer.Start(ctx, "Gateway.GetStatus", trace.WithAttributes(attribute.String("order.number", orderNumber)))
	defer span.End()

	start := time.Now()
	status, err := c.getStatus(ctx, orderNumber)
	if c.metrics != nil {
		c.metrics.GatewayDuration.Observe(time.Since(start).Seconds())
	}
	switch {
	case errors.Is(err, ErrTransactionNotFound):
		c.countError("not_found")
		span.SetStatus(codes.Error, "not found")
	case err != nil:
		c.countError("unreachable")
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway unavailable")
	default:
		span.SetAttributes(
			attribute.String("gateway.transaction_status", status.TransactionStatus),
			attribute.String("gateway.fraud_status", status.FraudStatus),
		)
	}
	return status, err
}

func (c *HTTPClient) getStatus(ctx context.Context, orderNumber string) (*TransactionStatus, error) {
	endpoint := fmt.Sprintf("%s/v2/%s/status", c.baseURL, url.PathEscape(orderNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.serverKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTransactionNotFound
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}

	var status TransactionStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	// The API answers 200 with the real outcome in status_code.
	switch status.StatusCode {
	case "404":
		return nil, ErrTransactionNotFound
	case "200", "201", "202", "407":
		return &status, nil
	default:
		return nil, fmt.Errorf("%w: status_code %s: %s", ErrUnavailable, status.StatusCode, status.StatusMessage)
	}
}

func (c *HTTPClient) countError(reason string) {
	if c.metrics != nil {
		c.metrics.GatewayErrorsTotal.WithLabelValues(reason).Inc()
	}
}
