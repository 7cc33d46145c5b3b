package history

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/stationai/npc-engine/pkg/npc"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStore(mr.Addr(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return store
}

func testTurn(i int) npc.Turn {
	return npc.Turn{
		User:      fmt.Sprintf("question %d", i),
		Assistant: fmt.Sprintf("answer %d", i),
		Timestamp: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Second).Format(time.RFC3339),
		NPCID:     "station_guide",
	}
}

func TestRedisStore_AppendAndGetRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Append(ctx, "player-1", testTurn(i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	turns, err := store.GetRecent(ctx, "player-1", 10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("Expected 3 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.User != fmt.Sprintf("question %d", i) {
			t.Errorf("Expected oldest-first order, got %q at index %d", turn.User, i)
		}
	}
	if turns[0].NPCID != "station_guide" {
		t.Errorf("Expected NPC id to round-trip, got %q", turns[0].NPCID)
	}
}

func TestRedisStore_GetRecentWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.Append(ctx, "player-1", testTurn(i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	turns, err := store.GetRecent(ctx, "player-1", 2)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(turns))
	}
	if turns[0].User != "question 3" || turns[1].User != "question 4" {
		t.Errorf("Expected the two most recent turns, got %q and %q", turns[0].User, turns[1].User)
	}
}

func TestRedisStore_GetRecentEmpty(t *testing.T) {
	store := newTestStore(t)

	turns, err := store.GetRecent(context.Background(), "unknown-player", 10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("Expected no turns for unknown player, got %d", len(turns))
	}
}

func TestRedisStore_SkipsMalformedEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(mr.Addr(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if err := store.Append(ctx, "player-1", testTurn(0)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := mr.RPush(historyKey("player-1"), "not json"); err != nil {
		t.Fatalf("Failed to inject malformed entry: %v", err)
	}

	turns, err := store.GetRecent(ctx, "player-1", 10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(turns) != 1 {
		t.Errorf("Expected malformed entry to be skipped, got %d turns", len(turns))
	}
}

func TestRedisStore_TrimsToRetentionBound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < maxStoredTurns+10; i++ {
		if err := store.Append(ctx, "player-1", testTurn(i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	turns, err := store.GetRecent(ctx, "player-1", maxStoredTurns*2)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(turns) != maxStoredTurns {
		t.Errorf("Expected history trimmed to %d turns, got %d", maxStoredTurns, len(turns))
	}
	if turns[0].User != fmt.Sprintf("question %d", 10) {
		t.Errorf("Expected oldest retained turn to be question 10, got %q", turns[0].User)
	}
}

func TestRedisStore_Ping(t *testing.T) {
	store := newTestStore(t)

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
