package monobank

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseURL = "https://api.monobank.ua"

	invoiceCreatePath = "/api/merchant/invoice/create"
	invoiceStatusPath = "/api/merchant/invoice/status"
	pubKeyPath        = "/api/merchant/pubkey"
	statementPath     = "/personal/statement"

	// maxStatementWindow is the longest range the personal statement endpoint accepts.
	maxStatementWindow = 31*24*time.Hour + time.Hour

	// DefaultKeyRefreshInterval is the minimum time between two forced public
	// key refetches.
	DefaultKeyRefreshInterval = time.Minute
)

// Config holds the credentials and endpoint of the monobank API.
type Config struct {
	BaseURL       string
	Token         string // merchant acquiring token (X-Token)
	PersonalToken string // personal API token used for statements
	Timeout       time.Duration
}

// KeyStore persists the merchant public key between processes.
type KeyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// Client talks to the monobank acquiring and personal APIs.
type Client struct {
	BaseURL       string
	Token         string
	PersonalToken string

	HTTPClient *http.Client

	keys   KeyStore
	keyTTL time.Duration
	keyMu  sync.RWMutex
	pubKey *ecdsa.PublicKey

	// forced refreshes are throttled and shared between concurrent callers
	keyFetch        singleflight.Group
	lastRefresh     time.Time
	refreshInterval time.Duration
	now             func() time.Time
}

// Invoice is the result of a successful invoice creation.
type Invoice struct {
	InvoiceID string `json:"invoiceId"`
	PageURL   string `json:"pageUrl"`
}

// InvoiceOptions carries the optional invoice fields.
type InvoiceOptions struct {
	Ccy            int
	Validity       time.Duration
	PaymentType    string // "debit" (default) or "hold"
	Destination    string
	Comment        string
	CustomerEmails []string
}

// InvoiceStatus is the provider view of an invoice.
type InvoiceStatus struct {
	InvoiceID     string    `json:"invoiceId"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failureReason,omitempty"`
	ErrCode       string    `json:"errCode,omitempty"`
	Amount        int64     `json:"amount"`
	Ccy           int       `json:"ccy"`
	FinalAmount   int64     `json:"finalAmount,omitempty"`
	CreatedDate   time.Time `json:"createdDate"`
	ModifiedDate  time.Time `json:"modifiedDate"`
	Reference     string    `json:"reference,omitempty"`
	Destination   string    `json:"destination,omitempty"`
}

// Transaction is a single statement entry of a personal account.
type Transaction struct {
	ID              string `json:"id"`
	Time            int64  `json:"time"`
	Description     string `json:"description"`
	MCC             int    `json:"mcc"`
	Hold            bool   `json:"hold"`
	Amount          int64  `json:"amount"`
	OperationAmount int64  `json:"operationAmount"`
	CurrencyCode    int    `json:"currencyCode"`
	CommissionRate  int64  `json:"commissionRate"`
	CashbackAmount  int64  `json:"cashbackAmount"`
	Balance         int64  `json:"balance"`
	Comment         string `json:"comment,omitempty"`
	InvoiceID       string `json:"invoiceId,omitempty"`
	CounterName     string `json:"counterName,omitempty"`
}

// NewClient creates a client for the given configuration. keys may be nil, in
// which case the public key is only cached in memory.
func NewClient(cfg Config, keys KeyStore) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		BaseURL:       baseURL,
		Token:         strings.TrimSpace(cfg.Token),
		PersonalToken: strings.TrimSpace(cfg.PersonalToken),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		keys:            keys,
		keyTTL:          24 * time.Hour,
		refreshInterval: DefaultKeyRefreshInterval,
		now:             time.Now,
	}
}

// CreatePayment creates an invoice and returns its id and hosted payment page.
// amount is in minor currency units. Provider failures are returned as
// *ProviderError; the caller decides whether to retry.
func (c *Client) CreatePayment(
	ctx context.Context,
	amount int64,
	description,
	reference,
	redirectURL,
	webhookURL string,
	opts *InvoiceOptions,
) (*Invoice, error) {
	if c.Token == "" {
		return nil, ErrNotConfigured
	}
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", amount)
	}
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return nil, errors.New("reference is required")
	}

	type merchantPaymInfo struct {
		Reference      string   `json:"reference"`
		Destination    string   `json:"destination,omitempty"`
		Comment        string   `json:"comment,omitempty"`
		CustomerEmails []string `json:"customerEmails,omitempty"`
	}
	type createRequest struct {
		Amount           int64            `json:"amount"`
		Ccy              int              `json:"ccy,omitempty"`
		MerchantPaymInfo merchantPaymInfo `json:"merchantPaymInfo"`
		RedirectURL      string           `json:"redirectUrl,omitempty"`
		WebHookURL       string           `json:"webHookUrl,omitempty"`
		Validity         int64            `json:"validity,omitempty"`
		PaymentType      string           `json:"paymentType,omitempty"`
	}

	body := createRequest{
		Amount: amount,
		Ccy:    CcyUAH,
		MerchantPaymInfo: merchantPaymInfo{
			Reference:   ref,
			Destination: strings.TrimSpace(description),
		},
		RedirectURL: strings.TrimSpace(redirectURL),
		WebHookURL:  strings.TrimSpace(webhookURL),
	}
	if opts != nil {
		if opts.Ccy != 0 {
			body.Ccy = opts.Ccy
		}
		if opts.Validity > 0 {
			body.Validity = int64(opts.Validity / time.Second)
		}
		body.PaymentType = opts.PaymentType
		if opts.Destination != "" {
			body.MerchantPaymInfo.Destination = opts.Destination
		}
		body.MerchantPaymInfo.Comment = opts.Comment
		body.MerchantPaymInfo.CustomerEmails = opts.CustomerEmails
	}

	var out Invoice
	if err := c.doJSON(ctx, http.MethodPost, invoiceCreatePath, c.Token, body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.InvoiceID) == "" {
		return nil, errors.New("monobank invoice response missing invoiceId")
	}
	return &out, nil
}

// InvoiceStatus fetches the current provider status of an invoice.
func (c *Client) InvoiceStatus(ctx context.Context, invoiceID string) (*InvoiceStatus, error) {
	if c.Token == "" {
		return nil, ErrNotConfigured
	}
	id := strings.TrimSpace(invoiceID)
	if id == "" {
		return nil, errors.New("invoice id is required")
	}

	path := invoiceStatusPath + "?" + url.Values{"invoiceId": {id}}.Encode()
	var out InvoiceStatus
	if err := c.doJSON(ctx, http.MethodGet, path, c.Token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStatement lists the transactions of a personal account between from and
// to. A zero to means "now".
func (c *Client) GetStatement(ctx context.Context, accountID string, from, to time.Time) ([]Transaction, error) {
	if c.PersonalToken == "" {
		return nil, ErrNotConfigured
	}
	account := strings.TrimSpace(accountID)
	if account == "" {
		account = "0"
	}
	if to.IsZero() {
		to = time.Now()
	}
	if !from.Before(to) || to.Sub(from) > maxStatementWindow {
		return nil, fmt.Errorf("%w: from=%s to=%s", ErrInvalidStatementRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	path := fmt.Sprintf("%s/%s/%d/%d", statementPath, url.PathEscape(account), from.Unix(), to.Unix())
	var out []Transaction
	if err := c.doJSON(ctx, http.MethodGet, path, c.PersonalToken, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Token", token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	endpoint := path
	if i := strings.IndexAny(endpoint, "?"); i >= 0 {
		endpoint = endpoint[:i]
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newProviderError(endpoint, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode monobank %s response: %w", endpoint, err)
	}
	return nil
}

func newProviderError(endpoint string, status int, body []byte) *ProviderError {
	var raw struct {
		ErrCode string `json:"errCode"`
		ErrText string `json:"errText"`
		// the personal API reports errors as errorDescription
		ErrorDescription string `json:"errorDescription"`
	}
	pe := &ProviderError{Endpoint: endpoint, StatusCode: status, Text: string(body)}
	if err := json.Unmarshal(body, &raw); err == nil {
		if raw.ErrCode != "" {
			pe.Code = raw.ErrCode
		}
		if raw.ErrText != "" {
			pe.Text = raw.ErrText
		} else if raw.ErrorDescription != "" {
			pe.Text = raw.ErrorDescription
		}
	}
	return pe
}
