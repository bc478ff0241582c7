package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var seedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const testFixture = `
edges:
  supply:
    - {src: X1-A1, dst: IRON}
    - {src: IRON, dst: FAB_MATS}
distances:
  - {from: X1-W1, to: X1-A1, cost: 5}
  - {from: X1-W1, to: X1-B2, cost: 12.5}
markets:
  - symbol: X1-A1
    system: X1
    goods:
      - {symbol: IRON, type: EXPORT, refreshed_at: 2026-03-01T11:00:00Z}
      - {symbol: FUEL, type: IMPORT, refreshed_at: 2026-03-01T11:30:00Z}
  - symbol: X1-B2
    system: X1
    location: X1-B2-DOCK
    goods:
      - {symbol: FUEL, type: EXCHANGE}
  - symbol: Y9-C3
    system: Y9
    goods: []
agents:
  - {symbol: PROBE-1, system: X1, location: X1-W1, available: true}
  - {symbol: PROBE-2, system: X1, location: X1-A1, available: false}
  - {symbol: PROBE-9, system: Y9, location: Y9-C3, available: true}
locks:
  - {agent: PROBE-2, controller: trader, priority: 5}
`

// seedTestStore creates a store loaded with testFixture.
func seedTestStore(t *testing.T) *Store {
	t.Helper()
	s := createTestStore(t)
	f, err := DecodeFixture(strings.NewReader(testFixture))
	if err != nil {
		t.Fatalf("DecodeFixture() failed: %v", err)
	}
	if err := s.Seed(context.Background(), f); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	return s
}

func stringsReader(s string) *strings.Reader {
	return strings.NewReader(s)
}
