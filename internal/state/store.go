package state

import (
	"sync"

	"github.com/google/uuid"

	"PerpRisk/internal/account"
)

// Store holds the latest account snapshots plus the market, bank, and
// price-feed records the ingestion shell has seen. Stored records are
// immutable by convention: ingestion always replaces whole records, so a
// reader holding references from one read set can evaluate risk without
// locking.
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*account.Snapshot
	markets  map[string]*account.Market
	banks    map[string]*account.Bank
	feeds    map[string]*account.PriceFeed
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]*account.Snapshot),
		markets:  make(map[string]*account.Market),
		banks:    make(map[string]*account.Bank),
		feeds:    make(map[string]*account.PriceFeed),
	}
}

// PutSnapshot replaces the stored snapshot for its account.
func (s *Store) PutSnapshot(snap *account.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[snap.AccountID] = snap
}

// PutMarket replaces the stored record for its market.
func (s *Store) PutMarket(m *account.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.MarketID] = m
}

// PutBank replaces the stored record for its bank.
func (s *Store) PutBank(b *account.Bank) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banks[b.BankID] = b
}

// PutPriceFeed replaces the stored record for its feed.
func (s *Store) PutPriceFeed(f *account.PriceFeed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[f.FeedID] = f
}

// Snapshot returns the latest snapshot for an account, if any.
func (s *Store) Snapshot(id uuid.UUID) (*account.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.accounts[id]
	return snap, ok
}

// AccountIDs returns the ids of every account with a stored snapshot.
func (s *Store) AccountIDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	return ids
}

// Markets returns a shallow copy of the market table. The records themselves
// are shared and immutable.
func (s *Store) Markets() map[string]*account.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*account.Market, len(s.markets))
	for k, v := range s.markets {
		out[k] = v
	}
	return out
}

// Banks returns a shallow copy of the bank table.
func (s *Store) Banks() map[string]*account.Bank {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*account.Bank, len(s.banks))
	for k, v := range s.banks {
		out[k] = v
	}
	return out
}

// PriceFeeds returns a shallow copy of the feed table.
func (s *Store) PriceFeeds() map[string]*account.PriceFeed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*account.PriceFeed, len(s.feeds))
	for k, v := range s.feeds {
		out[k] = v
	}
	return out
}
