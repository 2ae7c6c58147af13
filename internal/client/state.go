package client

import (
	"context"
	"fmt"

	"github.com/rahulkumargit1/Krypt/internal/store"
	"github.com/rahulkumargit1/Krypt/internal/transport"
)

// CallSnapshot is the externally visible call state.
type CallSnapshot struct {
	Phase  Phase
	Remote string
}

// Snapshot is the aggregated read model consumed by the UI layer. The UI
// polls; there is no push notification.
type Snapshot struct {
	SelfUUID         string
	Connection       transport.State
	Call             CallSnapshot
	Contacts         []store.Contact
	PendingTransfers int
}

// Snapshot assembles the current read model.
func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	contacts, err := c.records.Contacts(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list contacts: %w", err)
	}

	call, _ := c.callView.Load().(CallSnapshot)
	return Snapshot{
		SelfUUID:         c.id.UUID,
		Connection:       c.transport.State(),
		Call:             call,
		Contacts:         contacts,
		PendingTransfers: int(c.pendingCount.Load()),
	}, nil
}
