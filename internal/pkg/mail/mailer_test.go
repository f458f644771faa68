package mail

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/kazka-books/kazka/app/models"
	"github.com/kazka-books/kazka/internal/pkg/config"
)

func capture(s *Sender) *[]*gomail.Message {
	var sent []*gomail.Message
	s.send = func(m *gomail.Message) error {
		sent = append(sent, m)
		return nil
	}
	return &sent
}

func raw(t *testing.T, m *gomail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestNotifySubscriptionRequest(t *testing.T) {
	s := NewSender(config.Mail{From: "shop@kazka.example"}, "owner@kazka.example")
	sent := capture(s)

	req := &models.SubscriptionRequest{ID: "req-1", Name: "Olena", Email: "olena@example.com", Phone: "0501234567", Plan: "maxi", PaymentMethod: "monobank"}
	pay := &models.Payment{InvoiceID: "inv_1", Amount: 50000, Currency: "UAH"}
	require.NoError(t, s.NotifySubscriptionRequest(context.Background(), req, pay))

	require.Len(t, *sent, 1)
	m := (*sent)[0]
	assert.Equal(t, []string{"owner@kazka.example"}, m.GetHeader("To"))
	body := raw(t, m)
	assert.Contains(t, body, "inv_1")
	assert.Contains(t, body, "olena@example.com")
}

func TestNotifySubscriptionRequest_NoAdminAddress(t *testing.T) {
	s := NewSender(config.Mail{From: "shop@kazka.example"}, "")
	sent := capture(s)
	require.NoError(t, s.NotifySubscriptionRequest(context.Background(), &models.SubscriptionRequest{}, nil))
	assert.Empty(t, *sent)
}

func TestNotifyAccountCreated(t *testing.T) {
	s := NewSender(config.Mail{From: "shop@kazka.example"}, "owner@kazka.example")
	sent := capture(s)

	user := &models.User{Email: "olena@example.com", Profile: &models.Profile{Name: "Olena"}}
	require.NoError(t, s.NotifyAccountCreated(context.Background(), user, "Tmp12345pass"))

	require.Len(t, *sent, 1)
	assert.Equal(t, []string{"olena@example.com"}, (*sent)[0].GetHeader("To"))
	assert.Contains(t, raw(t, (*sent)[0]), "Tmp12345pass")
}

func TestDeliver_Errors(t *testing.T) {
	s := NewSender(config.Mail{}, "owner@kazka.example")
	// not configured: logged and skipped
	require.NoError(t, s.NotifyAccountCreated(context.Background(), &models.User{Email: "a@b.c"}, "x"))

	s.send = func(*gomail.Message) error { return errors.New("connection refused") }
	assert.Error(t, s.NotifyAccountCreated(context.Background(), &models.User{Email: "a@b.c"}, "x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.NotifyAccountCreated(ctx, &models.User{Email: "a@b.c"}, "x"), context.Canceled)
}
