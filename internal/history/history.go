package history

import (
	"context"

	"github.com/stationai/npc-engine/pkg/npc"
)

// Store persists per-player conversation history.
type Store interface {
	// GetRecent returns up to max turns for a player, oldest first.
	GetRecent(ctx context.Context, playerID string, max int) ([]npc.Turn, error)

	// Append adds a completed turn to a player's history.
	Append(ctx context.Context, playerID string, turn npc.Turn) error

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
