// Package mail renders notification templates and delivers them over SMTP.
package mail

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
)

// Template names.
const (
	TemplatePaymentSuccess = "payment_success"
	TemplatePaymentFailed  = "payment_failed"
)

var subjects = map[string]string{
	TemplatePaymentSuccess: "Your UMN Festival tickets",
	TemplatePaymentFailed:  "Your UMN Festival payment was not completed",
}

//go:embed templates/*.html
var templateFS embed.FS

// Module provides the SMTP mailer to Fx.
var Module = fx.Provide(NewSMTPMailer)

// Message is a templated email with optional file attachments.
type Message struct {
	To          string
	Template    string
	Data        OrderData
	Attachments []string
}

// OrderData feeds the notification templates.
type OrderData struct {
	CustomerName string
	OrderNumber  string
	Status       string
	Amount       string
	Tickets      []TicketLine
}

// TicketLine is one ticket listed in an email.
type TicketLine struct {
	Code       string
	Category   string
	HolderName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	cfg       config.Mail
	templates *template.Template
	send      sendFunc
	logger    *zap.Logger
}

// NewSMTPMailer parses the embedded templates and prepares the relay settings.
func NewSMTPMailer(cfg config.Config, logger *zap.Logger) (*SMTPMailer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &SMTPMailer{
		cfg:       cfg.Mail,
		templates: tmpl,
		send:      smtp.SendMail,
		logger:    logger,
	}, nil
}

// Send renders msg and delivers it. When mail is disabled the message is
// rendered, logged and dropped.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	subject, ok := subjects[msg.Template]
	if !ok {
		return fmt.Errorf("unknown mail template %q", msg.Template)
	}

	var body bytes.Buffer
	if err := m.templates.ExecuteTemplate(&body, msg.Template+".html", msg.Data); err != nil {
		return fmt.Errorf("render %s: %w", msg.Template, err)
	}

	if !m.cfg.Enabled {
		m.logger.Info("mail disabled; message dropped",
			zap.String("template", msg.Template),
			zap.String("order.number", msg.Data.OrderNumber),
			zap.Int("attachments", len(msg.Attachments)),
		)
		return nil
	}

	raw, err := m.compose(msg.To, subject, body.Bytes(), msg.Attachments)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.From, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}

	m.logger.Info("mail sent",
		zap.String("template", msg.Template),
		zap.String("order.number", msg.Data.OrderNumber),
	)
	return nil
}

func (m *SMTPMailer) compose(to, subject string, html []byte, attachments []string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	from := (&mail.Address{Name: m.cfg.FromName, Address: m.cfg.From}).String()
	headers := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"Message-ID: <" + uuid.NewString() + "@" + senderDomain(m.cfg.From) + ">",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=" + writer.Boundary(),
	}
	buf.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n")

	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	if err := writeBase64(part, html); err != nil {
		return nil, err
	}

	for _, path := range attachments {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		name := filepath.Base(path)
		contentType := mime.TypeByExtension(filepath.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		part, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {contentType},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", name)},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, content); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBase64 wraps encoded output at 76 columns as RFC 2045 requires.
func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := w.Write([]byte(encoded[:76] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := w.Write([]byte(encoded + "\r\n"))
	return err
}

func senderDomain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
