package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// SyncThrottle records the last time a throttled job was allowed to run.
type SyncThrottle struct {
	bun.BaseModel `bun:"table:sync_throttles"`

	Name      string    `bun:"name,pk"`
	LastRunAt time.Time `bun:"last_run_at,notnull"`
}
