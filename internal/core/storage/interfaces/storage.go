package interfaces

import (
	"context"
	"time"

	"github.com/dimensify/dimensify/internal/core/protocol"
)

// CommandRecord is a durably stored log entry.
type CommandRecord struct {
	Seq        int
	Origin     string
	Command    protocol.WorldCommand
	RecordedAt time.Time
}

// CommandStore persists the command log so a later run can rebuild the
// scene from it.
type CommandStore interface {
	// Append stores one record. Seq values are unique.
	Append(ctx context.Context, rec CommandRecord) error
	// Load returns every stored record in Seq order.
	Load(ctx context.Context) ([]CommandRecord, error)
	Statistics(ctx context.Context) (StorageStatistics, error)
	Close() error
}

type StorageStatistics struct {
	Records int
	LastSeq int
}
