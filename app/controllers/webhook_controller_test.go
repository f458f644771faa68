package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazka-books/kazka/docs"
	"github.com/kazka-books/kazka/internal/pkg/billing"
	"github.com/kazka-books/kazka/internal/pkg/monobank"
)

const successBody = `{"type":"InvoicePaymentStatusChanged","data":{"invoiceId":"inv_1","status":"success","amount":39900,"ccy":980,"createdDate":"2024-03-01T10:00:00Z","modifiedDate":"2024-03-01T10:05:00Z","reference":"ref-1"}}`

type fakeVerifier struct {
	valid bool
	calls int
}

func (f *fakeVerifier) ValidateWebhook(_ context.Context, _ []byte, signature string) bool {
	f.calls++
	return f.valid && signature != ""
}

type fakeProcessor struct {
	mu      sync.Mutex
	outcome *billing.Outcome
	err     error
	calls   []*monobank.InvoicePaymentStatusChanged
	signed  []bool
}

func (f *fakeProcessor) ProcessNotification(_ context.Context, n *monobank.InvoicePaymentStatusChanged, _ []byte, signatureValid bool) (*billing.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, n)
	f.signed = append(f.signed, signatureValid)
	if f.err != nil {
		return nil, f.err
	}
	if f.outcome != nil {
		return f.outcome, nil
	}
	return &billing.Outcome{InvoiceID: n.InvoiceID, Status: "completed"}, nil
}

func newWebhookApp(t *testing.T, processor *fakeProcessor, verifier *fakeVerifier, opts WebhookOptions) *fiber.App {
	t.Helper()
	parser, err := monobank.NewNotificationParser(docs.OpenAPISpec)
	require.NoError(t, err)

	wc := NewWebhookController(processor, parser, verifier, opts)
	app := fiber.New()
	app.Post("/api/payments/monobank/webhook", wc.HandleMonobankWebhook)
	app.Get("/api/payments/monobank/webhook", wc.HandleMonobankWebhookPing)
	return app
}

func postWebhook(t *testing.T, app *fiber.App, body, signature string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/payments/monobank/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Sign", signature)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp.Body)
}

func decodeBody(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func TestWebhook_Success(t *testing.T) {
	processor := &fakeProcessor{}
	app := newWebhookApp(t, processor, &fakeVerifier{valid: true}, WebhookOptions{})

	status, body := postWebhook(t, app, successBody, "sig")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	require.Len(t, processor.calls, 1)
	assert.Equal(t, "inv_1", processor.calls[0].InvoiceID)
	assert.Equal(t, "success", processor.calls[0].Status)
	assert.True(t, processor.signed[0])
}

func TestWebhook_InvalidSignature(t *testing.T) {
	processor := &fakeProcessor{}
	verifier := &fakeVerifier{valid: false}
	app := newWebhookApp(t, processor, verifier, WebhookOptions{})

	status, body := postWebhook(t, app, successBody, "bad")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])
	assert.Empty(t, processor.calls)
}

func TestWebhook_MissingSignature(t *testing.T) {
	processor := &fakeProcessor{}
	verifier := &fakeVerifier{valid: true}
	app := newWebhookApp(t, processor, verifier, WebhookOptions{})

	status, _ := postWebhook(t, app, successBody, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Zero(t, verifier.calls)
	assert.Empty(t, processor.calls)
}

func TestWebhook_SkipSignature(t *testing.T) {
	processor := &fakeProcessor{}
	verifier := &fakeVerifier{valid: false}
	app := newWebhookApp(t, processor, verifier, WebhookOptions{SkipSignature: true})

	status, _ := postWebhook(t, app, successBody, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Zero(t, verifier.calls)
	require.Len(t, processor.calls, 1)
	assert.False(t, processor.signed[0])
}

func TestWebhook_UnsupportedTypeIsIgnored(t *testing.T) {
	processor := &fakeProcessor{}
	app := newWebhookApp(t, processor, &fakeVerifier{valid: true}, WebhookOptions{})

	status, body := postWebhook(t, app, `{"type":"SomethingElse","data":{}}`, "sig")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["ignored"])
	assert.Empty(t, processor.calls)
}

func TestWebhook_MalformedPayload(t *testing.T) {
	cases := map[string]string{
		"not json":           `{"type":`,
		"missing invoice id": `{"type":"InvoicePaymentStatusChanged","data":{"status":"success"}}`,
		"blank invoice id":   `{"type":"InvoicePaymentStatusChanged","data":{"invoiceId":"","status":"success"}}`,
		"missing status":     `{"type":"InvoicePaymentStatusChanged","data":{"invoiceId":"inv_1"}}`,
		"missing data":       `{"type":"InvoicePaymentStatusChanged"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			processor := &fakeProcessor{}
			app := newWebhookApp(t, processor, &fakeVerifier{valid: true}, WebhookOptions{})

			status, body := postWebhook(t, app, payload, "sig")
			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
			assert.Empty(t, processor.calls)
		})
	}
}

func TestWebhook_ProcessingErrorReturns500(t *testing.T) {
	processor := &fakeProcessor{err: errors.Join(billing.ErrPaymentNotFound, errors.New("inv_1"))}
	app := newWebhookApp(t, processor, &fakeVerifier{valid: true}, WebhookOptions{})

	status, body := postWebhook(t, app, successBody, "sig")
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "payment not found")
}

func TestWebhook_DuplicateDelivery(t *testing.T) {
	processor := &fakeProcessor{outcome: &billing.Outcome{InvoiceID: "inv_1", Duplicate: true}}
	app := newWebhookApp(t, processor, &fakeVerifier{valid: true}, WebhookOptions{})

	status, body := postWebhook(t, app, successBody, "sig")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["duplicate"])
}

func TestWebhook_BodyLimit(t *testing.T) {
	processor := &fakeProcessor{}
	app := newWebhookApp(t, processor, &fakeVerifier{valid: true}, WebhookOptions{BodyLimit: 16})

	status, _ := postWebhook(t, app, successBody, "sig")
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, status)
	assert.Empty(t, processor.calls)
}

func TestWebhook_Ping(t *testing.T) {
	app := newWebhookApp(t, &fakeProcessor{}, &fakeVerifier{}, WebhookOptions{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/payments/monobank/webhook", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp.Body)
	assert.Equal(t, true, body["success"])
}

func TestWebhook_UnlistedStatusReachesProcessor(t *testing.T) {
	processor := &fakeProcessor{}
	app := newWebhookApp(t, processor, &fakeVerifier{valid: true}, WebhookOptions{})

	status, body := postWebhook(t, app, `{"type":"InvoicePaymentStatusChanged","data":{"invoiceId":"inv_1","status":"refunded"}}`, "sig")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	require.Len(t, processor.calls, 1)
	assert.Equal(t, "refunded", processor.calls[0].Status)
}
