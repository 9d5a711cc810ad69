// Package document renders per-ticket QR images that are attached to the
// confirmation email and scanned at the gate.
package document

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/skip2/go-qrcode"
	"go.uber.org/fx"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/entity"
)

// Module provides the QR document generator to Fx.
var Module = fx.Provide(NewQRGenerator)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// QRGenerator writes one PNG per ticket under OutputDir/<order number>/.
type QRGenerator struct {
	dir    string
	size   int
	secret []byte
}

// NewQRGenerator builds a generator from ticket settings.
func NewQRGenerator(cfg config.Config) *QRGenerator {
	secret := sha256.Sum256([]byte(cfg.Tickets.SigningSecret))
	return &QRGenerator{
		dir:    cfg.Tickets.OutputDir,
		size:   cfg.Tickets.QRSize,
		secret: secret[:],
	}
}

// Generate renders the tickets and returns the file paths in ticket order.
// Existing files are overwritten, so a retried fulfillment regenerates them.
func (g *QRGenerator) Generate(ctx context.Context, order *entity.Order, tickets []*entity.Ticket) ([]string, error) {
	dir := filepath.Join(g.dir, unsafeName.ReplaceAllString(order.Number, "_"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ticket dir: %w", err)
	}

	paths := make([]string, 0, len(tickets))
	for _, ticket := range tickets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, unsafeName.ReplaceAllString(ticket.Code, "_")+".png")
		if err := qrcode.WriteFile(g.Payload(ticket.Code), qrcode.Medium, g.size, path); err != nil {
			return nil, fmt.Errorf("render ticket %s: %w", ticket.Code, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Payload is the string encoded in the QR: the ticket code and a truncated
// HMAC so gate scanners can reject forged codes offline.
func (g *QRGenerator) Payload(code string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(code))
	return code + "." + hex.EncodeToString(mac.Sum(nil))[:16]
}
