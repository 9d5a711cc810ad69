package dto

import "time"

// SyncResultResponse is the outcome of reconciling one order.
type SyncResultResponse struct {
	OrderNumber string `json:"order_number"`
	Outcome     string `json:"outcome"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
	Transition  string `json:"transition"`
	Forced      bool   `json:"forced"`
}

// SyncReportResponse summarises a batch reconciliation.
type SyncReportResponse struct {
	Selector   string   `json:"selector"`
	Total      int      `json:"total"`
	Updated    int      `json:"updated"`
	Fulfilled  int      `json:"fulfilled"`
	Unchanged  int      `json:"unchanged"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Failures   []string `json:"failures,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// QueuedJobResponse acknowledges a sync handed to the worker.
type QueuedJobResponse struct {
	Kind     string    `json:"kind"`
	Target   string    `json:"target"`
	QueuedAt time.Time `json:"queued_at"`
}

// CleanupResponse reports an abandoned-order sweep.
type CleanupResponse struct {
	ThresholdHours float64 `json:"threshold_hours"`
	Deleted        int     `json:"deleted"`
}

// LockRequest asks to lock an order against automatic syncs.
type LockRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// LockResponse is the lock state of an order.
type LockResponse struct {
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	Locked      bool   `json:"locked"`
	Reason      string `json:"reason,omitempty"`
}

// ReferralResponse is a referral code after a recompute.
type ReferralResponse struct {
	Code string `json:"code"`
	Uses int    `json:"uses"`
}

// NotificationAck is returned to the gateway after a webhook.
type NotificationAck struct {
	OrderNumber string `json:"order_number"`
	Outcome     string `json:"outcome"`
	Status      string `json:"status"`
}
