// Package client holds the HTTP client the order orchestrator uses to
// talk to the product-service ledger endpoints. Wire errors are mapped
// back onto the shared error taxonomy so the orchestrator can reason
// about them with errors.Is/errors.As.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wahaj4311/microservices-demo/internal/shared/types"

	"github.com/google/uuid"
)

const defaultTimeout = 5 * time.Second

type LedgerHTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewLedgerHTTPClient(baseURL string) *LedgerHTTPClient {
	return &LedgerHTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type stockRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Reference string    `json:"reference,omitempty"`
}

// ReserveStock performs an atomic check-and-decrement at the ledger and
// returns the unit price captured at reservation time. The caller keeps
// reference stable across retries of the same line: if a timed-out call
// actually committed, the ledger recognizes the reference on the retry
// and returns the captured price instead of decrementing twice.
func (c *LedgerHTTPClient) ReserveStock(ctx context.Context, productID uuid.UUID, quantity int, reference string) (float64, error) {
	envelope, status, err := c.postStock(ctx, "/internal/stock/reserve", stockRequest{
		ProductID: productID,
		Quantity:  quantity,
		Reference: reference,
	})
	if err != nil {
		return 0, err
	}

	switch status {
	case http.StatusOK:
		var data struct {
			Price float64 `json:"price"`
		}
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return 0, fmt.Errorf("reservation response decode error: %v", err)
		}
		return data.Price, nil
	case http.StatusNotFound:
		return 0, &types.ProductNotFoundError{ProductID: productID}
	case http.StatusConflict:
		return 0, insufficientStockFromDetails(productID, quantity, envelope)
	default:
		return 0, fmt.Errorf("%w: reservation returned %d", types.ErrServiceUnavailable, status)
	}
}

// ReleaseStock returns previously reserved stock during compensation.
func (c *LedgerHTTPClient) ReleaseStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	_, status, err := c.postStock(ctx, "/internal/stock/release", stockRequest{
		ProductID: productID,
		Quantity:  quantity,
	})
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return &types.ProductNotFoundError{ProductID: productID}
	default:
		return fmt.Errorf("%w: release returned %d", types.ErrServiceUnavailable, status)
	}
}

func (c *LedgerHTTPClient) postStock(ctx context.Context, path string, payload stockRequest) (*apiEnvelope, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("request serialization error: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("request build error: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts land here too; the caller treats them exactly like
		// any other transport failure, never as success.
		return nil, 0, fmt.Errorf("%w: %v", types.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	envelope, err := decodeEnvelope(resp)
	if err != nil {
		return nil, 0, err
	}
	return envelope, resp.StatusCode, nil
}

func decodeEnvelope(resp *http.Response) (*apiEnvelope, error) {
	envelope := &apiEnvelope{}
	if err := json.NewDecoder(resp.Body).Decode(envelope); err != nil {
		return nil, fmt.Errorf("%w: response decode error: %v", types.ErrServiceUnavailable, err)
	}
	return envelope, nil
}

func insufficientStockFromDetails(productID uuid.UUID, requested int, envelope *apiEnvelope) error {
	stockErr := &types.InsufficientStockError{
		ProductID: productID,
		Requested: requested,
	}
	if envelope.Error != nil {
		if available, ok := envelope.Error.Details["available"].(float64); ok {
			stockErr.Available = int(available)
		}
	}
	return stockErr
}
