package store

import (
	"testing"

	"github.com/shopspring/decimal"

	"arbbot/internal/types"
)

func TestSaveAndLoadSnapshot(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	snap := Snapshot{
		Positions: []types.Position{
			{Venue: types.VenuePolymarket, ContractID: "c1", NormalizedEventID: "EVT:1", Side: types.SideYes, Qty: decimal.NewFromInt(10), AvgPrice: decimal.NewFromFloat(0.45)},
		},
		Trades: []types.Trade{
			{TradeID: "t1", EventID: "EVT:1", Status: types.TradeFilled},
		},
	}

	if err := s.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	loaded, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(loaded.Positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(loaded.Positions))
	}
	if !loaded.Positions[0].Qty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("qty = %s, want 10", loaded.Positions[0].Qty)
	}
	if len(loaded.Trades) != 1 || loaded.Trades[0].TradeID != "t1" {
		t.Errorf("unexpected trades: %+v", loaded.Trades)
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(loaded.Positions) != 0 || len(loaded.Trades) != 0 {
		t.Errorf("expected empty snapshot for missing file, got %+v", loaded)
	}
}

func TestSaveSnapshotOverwrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	_ = s.SaveSnapshot(Snapshot{Trades: []types.Trade{{TradeID: "first"}}})
	_ = s.SaveSnapshot(Snapshot{Trades: []types.Trade{{TradeID: "second"}}})

	loaded, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(loaded.Trades) != 1 || loaded.Trades[0].TradeID != "second" {
		t.Errorf("expected latest snapshot to win, got %+v", loaded.Trades)
	}
}
