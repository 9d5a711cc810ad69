package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketStatus is the lifecycle state of an issued ticket.
type TicketStatus string

const (
	TicketPending   TicketStatus = "pending"
	TicketValid     TicketStatus = "valid"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
)

// Redeemable reports whether the ticket counts as sold.
func (s TicketStatus) Redeemable() bool {
	return s == TicketValid || s == TicketUsed
}

// Ticket is a single admission belonging to an order.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID          int64        `bun:",pk,autoincrement"`
	OrderID     int64        `bun:"order_id,notnull"`
	Code        string       `bun:"code,notnull,unique"`
	Category    string       `bun:"category,notnull"`
	HolderName  string       `bun:"holder_name,notnull"`
	Status      TicketStatus `bun:"status,notnull"`
	ActivatedAt time.Time    `bun:"activated_at,nullzero"`
	CreatedAt   time.Time    `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `bun:"updated_at,nullzero"`
}
