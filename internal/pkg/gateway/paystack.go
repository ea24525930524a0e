package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/obafemi/settlecore/internal/pkg/apperrors"
	"github.com/obafemi/settlecore/internal/pkg/env"
)

const (
	defaultBaseURL = "https://api.paystack.co"
	requestTimeout = 30 * time.Second
	exportPageSize = 100
)

// PaystackClient implements Gateway against the Paystack HTTP API.
type PaystackClient struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	httpClient    *http.Client
}

// NewPaystackClient creates a client with the bounded request timeout the
// settlement core requires; a slow gateway surfaces as a retryable error
// instead of hanging the caller.
func NewPaystackClient(baseURL, secretKey, webhookSecret string) *PaystackClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &PaystackClient{
		baseURL:       baseURL,
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: requestTimeout},
	}
}

// NewPaystackClientFromEnv reads credentials from the environment.
func NewPaystackClientFromEnv() *PaystackClient {
	return NewPaystackClient(
		env.GetEnv("PAYSTACK_BASE_URL", defaultBaseURL),
		env.GetEnv("PAYSTACK_SECRET_KEY", ""),
		env.GetEnv("PAYSTACK_WEBHOOK_SECRET", ""),
	)
}

// envelope is Paystack's standard response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type transactionData struct {
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Channel         string `json:"channel"`
	PaidAt          string `json:"paid_at"`
	GatewayResponse string `json:"gateway_response"`
}

func (d transactionData) toTransaction() Transaction {
	txn := Transaction{
		Reference:       d.Reference,
		Status:          d.Status,
		Amount:          FromMinorUnits(d.Amount),
		Currency:        d.Currency,
		Channel:         d.Channel,
		GatewayResponse: d.GatewayResponse,
	}
	if d.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, d.PaidAt); err == nil {
			txn.PaidAt = &t
		}
	}
	return txn
}

// InitializeTransaction opens a remote transaction and returns the
// authorization handle the client is redirected to.
func (c *PaystackClient) InitializeTransaction(ctx context.Context, in InitializeInput) (*InitializeResult, error) {
	body := map[string]interface{}{
		"email":     in.Email,
		"amount":    ToMinorUnits(in.Amount),
		"reference": in.Reference,
	}
	if in.CallbackURL != "" {
		body["callback_url"] = in.CallbackURL
	}
	if len(in.Metadata) > 0 {
		body["metadata"] = in.Metadata
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := c.call(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}
	return &InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

// VerifyTransaction fetches the gateway's authoritative status for a
// reference. A failed charge is a valid response, not an error.
func (c *PaystackClient) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	var data transactionData
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.call(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	txn := data.toTransaction()
	return &txn, nil
}

// Refund requests a remote refund for the given amount.
func (c *PaystackClient) Refund(ctx context.Context, reference string, amount decimal.Decimal, note string) (*RefundResult, error) {
	body := map[string]interface{}{
		"transaction":   reference,
		"amount":        ToMinorUnits(amount),
		"merchant_note": note,
	}

	var data struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	if err := c.call(ctx, http.MethodPost, "/refund", body, &data); err != nil {
		return nil, err
	}
	return &RefundResult{
		RefundID: strconv.FormatInt(data.ID, 10),
		Status:   data.Status,
	}, nil
}

// ExportTransactions pages through the gateway's transaction listing for the
// given range. Used by the reconciliation engine.
func (c *PaystackClient) ExportTransactions(ctx context.Context, from, to time.Time, status string) ([]Transaction, error) {
	var out []Transaction
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("from", from.Format(time.RFC3339))
		q.Set("to", to.Format(time.RFC3339))
		q.Set("perPage", strconv.Itoa(exportPageSize))
		q.Set("page", strconv.Itoa(page))
		if status != "" {
			q.Set("status", status)
		}

		var data []transactionData
		if err := c.call(ctx, http.MethodGet, "/transaction?"+q.Encode(), nil, &data); err != nil {
			return nil, err
		}
		for _, d := range data {
			out = append(out, d.toTransaction())
		}
		if len(data) < exportPageSize {
			return out, nil
		}
	}
}

// VerifyWebhookSignature checks the signature header against the shared
// webhook secret.
func (c *PaystackClient) VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool {
	return VerifyWebhookSignature(rawBody, signatureHeader, c.webhookSecret)
}

func (c *PaystackClient) call(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.ExternalService("gateway unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.ExternalService("reading gateway response failed", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return apperrors.ExternalService(fmt.Sprintf("gateway returned %d", resp.StatusCode))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return apperrors.ExternalService("malformed gateway response", err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Status {
		return apperrors.ExternalService(fmt.Sprintf("gateway rejected request: %s", env.Message))
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return apperrors.ExternalService("malformed gateway payload", err)
		}
	}
	return nil
}
