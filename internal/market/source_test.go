package market

import (
	"context"
	"testing"

	"autotrader/internal/gateway"
)

func TestSnapshotFailsWithNoData(t *testing.T) {
	src := NewSource(gateway.NewManager(), nil)

	_, err := src.Snapshot(context.Background(), "BTCUSDT")
	if err == nil {
		t.Fatal("expected error with no cached tick and no adapters")
	}
}

func TestWatchRollsBackOnSubscribeFailure(t *testing.T) {
	src := NewSource(gateway.NewManager(), nil)

	if err := src.Watch(context.Background(), "missing-gateway", "BTCUSDT"); err == nil {
		t.Fatal("expected error for unknown gateway key")
	}
	// failed watch must not leave a registration behind
	if err := src.Unwatch("BTCUSDT"); err != nil {
		t.Fatalf("unwatch after failed watch: %v", err)
	}
}

func TestUnwatchUnknownSymbolIsNoop(t *testing.T) {
	src := NewSource(gateway.NewManager(), nil)
	if err := src.Unwatch("ETHUSDT"); err != nil {
		t.Fatalf("unwatch unknown symbol: %v", err)
	}
}
