// Package bankapi asks a bank verification service whether an operation
// on a receipt really happened.
package bankapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/check-verifier/internal/classify"
)

// ErrInvalidRequest is returned before any call when the request cannot be sent.
var ErrInvalidRequest = errors.New("invalid bank verification request")

const (
	errNotConfigured = "Проверка в банке не настроена"
	errGeneric       = "Ошибка при проверке операции"
	errNotFound      = "Операция не найдена в системе банка"
	errUnauthorized  = "Ошибка авторизации при проверке в банке"
	errBadRequest    = "Неверные параметры запроса"
	errBankInternal  = "Внутренняя ошибка сервера банка"
)

// Operation identifies the transfer to look up.
type Operation struct {
	OperationID string   `json:"operationId"`
	Amount      *float64 `json:"amount,omitempty"`
	Timestamp   string   `json:"timestamp,omitempty"`
	Sender      string   `json:"sender,omitempty"`
	Recipient   string   `json:"recipient,omitempty"`
}

// APIResponse describes a failed call.
type APIResponse struct {
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Verification is the bank's answer for one operation.
type Verification struct {
	Verified       bool            `json:"verified"`
	OperationID    string          `json:"operationId,omitempty"`
	Timestamp      *string         `json:"timestamp"`
	Amount         *float64        `json:"amount"`
	Sender         *string         `json:"sender"`
	Recipient      *string         `json:"recipient"`
	BankReference  string          `json:"bankReference,omitempty"`
	AdditionalInfo json.RawMessage `json:"additionalInfo,omitempty"`
	Error          string          `json:"error,omitempty"`
	APIResponse    *APIResponse    `json:"apiResponse,omitempty"`
}

type verifyResponse struct {
	Verified       bool            `json:"verified"`
	Timestamp      *string         `json:"timestamp"`
	Amount         *float64        `json:"amount"`
	Sender         *string         `json:"sender"`
	Recipient      *string         `json:"recipient"`
	Reference      string          `json:"reference"`
	AdditionalInfo json.RawMessage `json:"additionalInfo"`
}

// Client calls POST {baseURL}/verify/{bank}
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a new Client. An empty baseURL leaves the client unconfigured.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the client has somewhere to send requests.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Verify looks up op at bank. Bank side failures come back as a
// non-verified Verification; only transport failures return an error.
func (c *Client) Verify(ctx context.Context, bank classify.Bank, op Operation) (*Verification, error) {
	if !bank.Valid() || bank == classify.BankUnknown {
		return nil, fmt.Errorf("%w: unsupported bank %q", ErrInvalidRequest, bank)
	}
	if op.OperationID == "" {
		return nil, fmt.Errorf("%w: operation id is required", ErrInvalidRequest)
	}
	if !c.Configured() {
		return &Verification{OperationID: op.OperationID, Error: errNotConfigured}, nil
	}

	jsonData, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/verify/%s", c.baseURL, bank)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling bank api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return failed(op.OperationID, resp.StatusCode, body), nil
	}

	var out verifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &Verification{
		Verified:       out.Verified,
		OperationID:    op.OperationID,
		Timestamp:      out.Timestamp,
		Amount:         out.Amount,
		Sender:         out.Sender,
		Recipient:      out.Recipient,
		BankReference:  out.Reference,
		AdditionalInfo: out.AdditionalInfo,
	}, nil
}

func failed(operationID string, status int, body []byte) *Verification {
	message := http.StatusText(status)
	var details json.RawMessage
	if json.Valid(body) {
		details = body
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
			message = payload.Message
		}
	}

	v := &Verification{
		OperationID: operationID,
		Error:       errGeneric,
		APIResponse: &APIResponse{
			Code:    strconv.Itoa(status),
			Message: message,
			Details: details,
		},
	}
	switch status {
	case http.StatusNotFound:
		v.Error = errNotFound
	case http.StatusUnauthorized:
		v.Error = errUnauthorized
	case http.StatusBadRequest:
		v.Error = errBadRequest
	case http.StatusInternalServerError:
		v.Error = errBankInternal
	}
	return v
}
