package history

import (
	"context"
	"sync"

	"github.com/stationai/npc-engine/pkg/npc"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	GetRecentFunc func(ctx context.Context, playerID string, max int) ([]npc.Turn, error)
	AppendFunc    func(ctx context.Context, playerID string, turn npc.Turn) error
	PingFunc      func(ctx context.Context) error

	// Track calls for testing
	AppendCalls []npc.Turn

	turns map[string][]npc.Turn
	mu    sync.Mutex // protects all fields above
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new mock history store.
func NewMockStore() *MockStore {
	return &MockStore{
		AppendCalls: make([]npc.Turn, 0),
		turns:       make(map[string][]npc.Turn),
	}
}

// GetRecent returns up to max stored turns for a player, oldest first.
func (m *MockStore) GetRecent(ctx context.Context, playerID string, max int) ([]npc.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetRecentFunc != nil {
		return m.GetRecentFunc(ctx, playerID, max)
	}

	stored := m.turns[playerID]
	if max <= 0 || len(stored) == 0 {
		return nil, nil
	}
	if len(stored) > max {
		stored = stored[len(stored)-max:]
	}
	out := make([]npc.Turn, len(stored))
	copy(out, stored)
	return out, nil
}

// Append stores a turn and records the call.
func (m *MockStore) Append(ctx context.Context, playerID string, turn npc.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls = append(m.AppendCalls, turn)

	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, playerID, turn)
	}

	m.turns[playerID] = append(m.turns[playerID], turn)
	return nil
}

func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	fn := m.PingFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (m *MockStore) Close() error {
	return nil
}

// AppendCallCount reports the number of Append calls so far.
func (m *MockStore) AppendCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.AppendCalls)
}

// Seed preloads a player's history, oldest first.
func (m *MockStore) Seed(playerID string, turns []npc.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[playerID] = append([]npc.Turn{}, turns...)
}
