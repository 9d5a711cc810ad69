package reconcile

import (
	"errors"

	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
)

// Source names the trigger that asked for a reconciliation.
type Source string

const (
	SourceWebhook   Source = "webhook"
	SourcePoller    Source = "poller"
	SourceAdmin     Source = "admin"
	SourceScheduler Source = "scheduler"
	SourceWorker    Source = "worker"
	SourceCLI       Source = "cli"
)

// Options tune a single-order reconciliation.
type Options struct {
	Source Source
	// Force re-queries the gateway for orders already in a final status.
	Force bool
	// OverrideLock reconciles a sync-locked order. Only the single-order
	// admin sync sets it.
	OverrideLock bool
}

// Outcome describes what a reconciliation did to the order.
type Outcome string

const (
	OutcomeUpdated       Outcome = "updated"
	OutcomeExpired       Outcome = "expired"
	OutcomeFulfilled     Outcome = "fulfilled"
	OutcomeUnchanged     Outcome = "unchanged"
	OutcomeNotFound      Outcome = "gateway_not_found"
	OutcomeSkippedLocked Outcome = "skipped_locked"
	OutcomeSkippedFinal  Outcome = "skipped_final"
	OutcomeFailed        Outcome = "failed"
)

// Skipped reports whether the order was left alone without asking the gateway.
func (o Outcome) Skipped() bool {
	return o == OutcomeSkippedLocked || o == OutcomeSkippedFinal
}

// Changed reports whether a new status was persisted.
func (o Outcome) Changed() bool {
	return o == OutcomeUpdated || o == OutcomeExpired
}

// Result is the per-order record of a reconciliation.
type Result struct {
	OrderNumber string             `json:"order_number"`
	Outcome     Outcome            `json:"outcome"`
	OldStatus   payment.Status     `json:"old_status"`
	NewStatus   payment.Status     `json:"new_status"`
	Transition  payment.Transition `json:"-"`
}

var (
	// ErrOrderNotFound means no local order carries the number.
	ErrOrderNotFound = errors.New("reconcile: order not found")
	// ErrGatewayUnavailable means the gateway could not be asked; nothing changed.
	ErrGatewayUnavailable = errors.New("reconcile: gateway unavailable")
	// ErrFulfillment means the order is paid but its success side effects
	// failed. The order stays unfulfilled until a later sync, a redelivered
	// webhook or a retry job completes them.
	ErrFulfillment = errors.New("reconcile: fulfillment failed")
)
