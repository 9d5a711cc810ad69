package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidSignature is returned when a notification was not signed with
// the configured server key.
var ErrInvalidSignature = errors.New("gateway: invalid notification signature")

// Notification is the webhook body posted by the gateway. Only OrderID is
// trusted after verification; the status is always re-queried.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
}

// Sign computes SHA512(order_id + status_code + gross_amount + server_key) as hex.
func Sign(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// Verify checks the notification signature against serverKey.
func (n Notification) Verify(serverKey string) error {
	if n.OrderID == "" || n.SignatureKey == "" {
		return ErrInvalidSignature
	}
	expected := Sign(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(n.SignatureKey))) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
