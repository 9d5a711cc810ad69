// Package payment holds the canonical order payment status and the rules
// for mapping gateway reports onto it.
package payment

import "strings"

// Status is the canonical payment status persisted on an order.
type Status string

const (
	StatusPending           Status = "pending"
	StatusAuthorize         Status = "authorize"
	StatusCapture           Status = "capture"
	StatusSettlement        Status = "settlement"
	StatusDeny              Status = "deny"
	StatusCancel            Status = "cancel"
	StatusExpire            Status = "expire"
	StatusRefund            Status = "refund"
	StatusPartialRefund     Status = "partial_refund"
	StatusChargeback        Status = "chargeback"
	StatusPartialChargeback Status = "partial_chargeback"
	StatusFailure           Status = "failure"

	// Legacy values still present on historical rows. Map never returns them.
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// FraudDeny is the fraud verdict that overrides any transaction status.
const FraudDeny = "deny"

var gatewayStatuses = map[string]Status{
	"pending":            StatusPending,
	"authorize":          StatusAuthorize,
	"capture":            StatusCapture,
	"settlement":         StatusSettlement,
	"deny":               StatusDeny,
	"cancel":             StatusCancel,
	"expire":             StatusExpire,
	"refund":             StatusRefund,
	"partial_refund":     StatusPartialRefund,
	"chargeback":         StatusChargeback,
	"partial_chargeback": StatusPartialChargeback,
	"failure":            StatusFailure,
}

var successful = map[Status]struct{}{
	StatusCapture:    {},
	StatusSettlement: {},
	StatusPaid:       {},
}

var final = map[Status]struct{}{
	StatusSettlement:        {},
	StatusDeny:              {},
	StatusCancel:            {},
	StatusExpire:            {},
	StatusRefund:            {},
	StatusPartialRefund:     {},
	StatusChargeback:        {},
	StatusPartialChargeback: {},
	StatusFailure:           {},
	StatusCancelled:         {},
	StatusFailed:            {},
}

var failed = map[Status]struct{}{
	StatusDeny:    {},
	StatusCancel:  {},
	StatusExpire:  {},
	StatusFailure: {},
}

// Map converts a gateway (transaction status, fraud status) pair into the
// canonical status. A fraud deny wins over everything; unrecognised
// transaction statuses fall back to pending.
func Map(transactionStatus, fraudStatus string) Status {
	if strings.EqualFold(strings.TrimSpace(fraudStatus), FraudDeny) {
		return StatusDeny
	}
	status, ok := gatewayStatuses[strings.ToLower(strings.TrimSpace(transactionStatus))]
	if !ok {
		return StatusPending
	}
	return status
}

// IsSuccessful reports whether the order counts as paid.
func (s Status) IsSuccessful() bool {
	_, ok := successful[s]
	return ok
}

// IsFinal reports whether no further gateway-driven change is expected.
// Capture is successful but not final: it still moves to settlement.
func (s Status) IsFinal() bool {
	_, ok := final[s]
	return ok
}

// IsFailed reports membership in the set that triggers failure side effects.
func (s Status) IsFailed() bool {
	_, ok := failed[s]
	return ok
}

// Valid reports whether s is a known status, legacy values included.
func (s Status) Valid() bool {
	if _, ok := gatewayStatuses[string(s)]; ok {
		return true
	}
	switch s {
	case StatusPaid, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// FinalStatuses lists every final status, for use in query filters.
func FinalStatuses() []Status {
	out := make([]Status, 0, len(final))
	for s := range final {
		out = append(out, s)
	}
	return out
}

// SuccessfulStatuses lists every successful status, for use in query filters.
func SuccessfulStatuses() []Status {
	return []Status{StatusCapture, StatusSettlement, StatusPaid}
}
