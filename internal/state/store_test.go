package state_test

import (
	"testing"

	"github.com/google/uuid"

	"PerpRisk/internal/account"
	"PerpRisk/internal/state"
)

func TestStore_Snapshots(t *testing.T) {
	s := state.NewStore()
	id := uuid.New()

	if _, ok := s.Snapshot(id); ok {
		t.Error("empty store should hold no snapshot")
	}

	s.PutSnapshot(&account.Snapshot{AccountID: id})
	got, ok := s.Snapshot(id)
	if !ok || got.AccountID != id {
		t.Fatalf("got %v, %v", got, ok)
	}

	// Replacement swaps the whole record.
	replacement := &account.Snapshot{AccountID: id, Positions: []*account.Position{account.EmptyPosition("BTC-PERP")}}
	s.PutSnapshot(replacement)
	got, _ = s.Snapshot(id)
	if len(got.Positions) != 1 {
		t.Errorf("got %d positions, want 1", len(got.Positions))
	}
}

func TestStore_AccountIDs(t *testing.T) {
	s := state.NewStore()
	a, b := uuid.New(), uuid.New()
	s.PutSnapshot(&account.Snapshot{AccountID: a})
	s.PutSnapshot(&account.Snapshot{AccountID: b})
	s.PutSnapshot(&account.Snapshot{AccountID: a}) // replace, not append

	ids := s.AccountIDs()
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}
	seen := map[uuid.UUID]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[a] || !seen[b] {
		t.Errorf("ids = %v, want both %v and %v", ids, a, b)
	}
}

func TestStore_TableCopiesAreIsolated(t *testing.T) {
	s := state.NewStore()
	s.PutMarket(&account.Market{MarketID: "BTC-PERP"})
	s.PutBank(&account.Bank{BankID: "USDC"})
	s.PutPriceFeed(&account.PriceFeed{FeedID: "BTC-FEED"})

	markets := s.Markets()
	delete(markets, "BTC-PERP")
	if len(s.Markets()) != 1 {
		t.Error("mutating the returned market map should not affect the store")
	}

	banks := s.Banks()
	banks["FAKE"] = &account.Bank{BankID: "FAKE"}
	if len(s.Banks()) != 1 {
		t.Error("mutating the returned bank map should not affect the store")
	}

	feeds := s.PriceFeeds()
	delete(feeds, "BTC-FEED")
	if len(s.PriceFeeds()) != 1 {
		t.Error("mutating the returned feed map should not affect the store")
	}
}
