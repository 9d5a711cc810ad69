package mail

import (
	"context"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
)

type sentMail struct {
	addr string
	from string
	to   []string
	raw  string
}

func newTestMailer(t *testing.T, enabled bool) (*SMTPMailer, *[]sentMail) {
	t.Helper()
	cfg := config.Config{Mail: config.Mail{
		Enabled:  enabled,
		Host:     "smtp.test",
		Port:     2525,
		From:     "tickets@umnfestival.com",
		FromName: "UMN Festival",
	}}
	m, err := NewSMTPMailer(cfg, zap.NewNop())
	require.NoError(t, err)

	var sent []sentMail
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMail{addr: addr, from: from, to: to, raw: string(msg)})
		return nil
	}
	return m, &sent
}

func TestSendWithAttachments(t *testing.T) {
	m, sent := newTestMailer(t, true)

	dir := t.TempDir()
	ticketPath := filepath.Join(dir, "UMN-1-T1.png")
	require.NoError(t, os.WriteFile(ticketPath, []byte("png-bytes"), 0o600))

	err := m.Send(context.Background(), Message{
		To:       "raka@example.com",
		Template: TemplatePaymentSuccess,
		Data: OrderData{
			CustomerName: "Raka",
			OrderNumber:  "UMN-1",
			Amount:       "Rp150.000",
			Tickets:      []TicketLine{{Code: "UMN-1-T1", Category: "regular", HolderName: "Raka"}},
		},
		Attachments: []string{ticketPath},
	})
	require.NoError(t, err)
	require.Len(t, *sent, 1)

	got := (*sent)[0]
	assert.Equal(t, "smtp.test:2525", got.addr)
	assert.Equal(t, []string{"raka@example.com"}, got.to)
	assert.Contains(t, got.raw, "multipart/mixed")
	assert.Contains(t, got.raw, `filename="UMN-1-T1.png"`)
	assert.Contains(t, got.raw, "image/png")
	assert.True(t, strings.HasPrefix(got.raw, "From: "))
}

func TestSendValidation(t *testing.T) {
	m, sent := newTestMailer(t, true)
	ctx := context.Background()

	assert.Error(t, m.Send(ctx, Message{To: "not-an-email", Template: TemplatePaymentSuccess}))
	assert.Error(t, m.Send(ctx, Message{To: "a@example.com", Template: "newsletter"}))
	assert.Error(t, m.Send(ctx, Message{To: "a@example.com", Template: TemplatePaymentSuccess, Attachments: []string{"/nope.png"}}))
	assert.Empty(t, *sent)
}

func TestSendDisabledDropsMessage(t *testing.T) {
	m, sent := newTestMailer(t, false)
	err := m.Send(context.Background(), Message{To: "a@example.com", Template: TemplatePaymentFailed, Data: OrderData{Status: "expire"}})
	require.NoError(t, err)
	assert.Empty(t, *sent)
}
