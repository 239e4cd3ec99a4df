package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"PerpRisk/internal/account"
)

// Record is one parsed upstream record, ready for the store.
type Record interface {
	RecordType() string
}

type AccountSnapshotRecord struct{ Snapshot *account.Snapshot }
type MarketRecord struct{ Market *account.Market }
type BankRecord struct{ Bank *account.Bank }
type PriceRecord struct{ Feed *account.PriceFeed }

func (AccountSnapshotRecord) RecordType() string { return "AccountSnapshot" }
func (MarketRecord) RecordType() string          { return "MarketUpdate" }
func (BankRecord) RecordType() string            { return "BankUpdate" }
func (PriceRecord) RecordType() string           { return "PriceUpdate" }

// ParseRawRecord converts a RawRecord into a typed Record. The ingestion
// shell validates and parses before anything reaches the store.
func ParseRawRecord(raw RawRecord) (Record, error) {
	switch raw.RecordType {
	case "AccountSnapshot":
		return parseAccountSnapshot(raw.Data)
	case "MarketUpdate":
		return parseMarket(raw.Data)
	case "BankUpdate":
		return parseBank(raw.Data)
	case "PriceUpdate":
		return parsePrice(raw.Data)
	default:
		return nil, fmt.Errorf("unknown record type: %s", raw.RecordType)
	}
}

// --- JSON wire formats ---
// Scaled integers travel as decimal strings to survive values past int64.
// Field names use snake_case to match upstream producers.

type positionJSON struct {
	MarketID                  string `json:"market_id"`
	BaseAssetAmount           string `json:"base_asset_amount"`
	QuoteAssetAmount          string `json:"quote_asset_amount"`
	QuoteEntryAmount          string `json:"quote_entry_amount"`
	LastCumulativeFundingRate string `json:"last_cumulative_funding_rate"`
	OpenOrders                int64  `json:"open_orders"`
	UnsettledPnL              string `json:"unsettled_pnl"`
}

type balanceJSON struct {
	BankID string `json:"bank_id"`
	Amount string `json:"amount"`
	Kind   string `json:"kind"` // "deposit" or "borrow"
}

type accountSnapshotJSON struct {
	AccountID string         `json:"account_id"`
	Positions []positionJSON `json:"positions"`
	Balances  []balanceJSON  `json:"balances"`
}

func parseAccountSnapshot(data []byte) (AccountSnapshotRecord, error) {
	var j accountSnapshotJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return AccountSnapshotRecord{}, fmt.Errorf("parse AccountSnapshot: %w", err)
	}

	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return AccountSnapshotRecord{}, fmt.Errorf("parse account_id: %w", err)
	}

	snap := &account.Snapshot{AccountID: accountID}

	for i, pj := range j.Positions {
		p := &account.Position{MarketID: pj.MarketID, OpenOrders: pj.OpenOrders}
		if p.BaseAssetAmount, err = parseScaled(pj.BaseAssetAmount); err != nil {
			return AccountSnapshotRecord{}, fmt.Errorf("position %d base_asset_amount: %w", i, err)
		}
		if p.QuoteAssetAmount, err = parseScaled(pj.QuoteAssetAmount); err != nil {
			return AccountSnapshotRecord{}, fmt.Errorf("position %d quote_asset_amount: %w", i, err)
		}
		if p.QuoteEntryAmount, err = parseScaled(pj.QuoteEntryAmount); err != nil {
			return AccountSnapshotRecord{}, fmt.Errorf("position %d quote_entry_amount: %w", i, err)
		}
		if p.LastCumulativeFundingRate, err = parseScaled(pj.LastCumulativeFundingRate); err != nil {
			return AccountSnapshotRecord{}, fmt.Errorf("position %d last_cumulative_funding_rate: %w", i, err)
		}
		if p.UnsettledPnL, err = parseScaled(pj.UnsettledPnL); err != nil {
			return AccountSnapshotRecord{}, fmt.Errorf("position %d unsettled_pnl: %w", i, err)
		}
		snap.Positions = append(snap.Positions, p)
	}

	for i, bj := range j.Balances {
		b := &account.Balance{BankID: bj.BankID}
		if b.Amount, err = parseScaled(bj.Amount); err != nil {
			return AccountSnapshotRecord{}, fmt.Errorf("balance %d amount: %w", i, err)
		}
		switch bj.Kind {
		case "borrow":
			b.Kind = account.BalanceKindBorrow
		case "deposit", "":
			b.Kind = account.BalanceKindDeposit
		default:
			return AccountSnapshotRecord{}, fmt.Errorf("balance %d: unknown kind %q", i, bj.Kind)
		}
		snap.Balances = append(snap.Balances, b)
	}

	return AccountSnapshotRecord{Snapshot: snap}, nil
}

type ammJSON struct {
	BaseAssetReserve  string `json:"base_asset_reserve"`
	QuoteAssetReserve string `json:"quote_asset_reserve"`
	PegMultiplier     string `json:"peg_multiplier"`
}

type marketJSON struct {
	MarketID                   string  `json:"market_id"`
	MarginRatioInitial         int64   `json:"margin_ratio_initial"`
	MarginRatioPartial         int64   `json:"margin_ratio_partial"`
	MarginRatioMaintenance     int64   `json:"margin_ratio_maintenance"`
	CumulativeFundingRateLong  string  `json:"cumulative_funding_rate_long"`
	CumulativeFundingRateShort string  `json:"cumulative_funding_rate_short"`
	PriceFeedID                string  `json:"price_feed_id"`
	Isolated                   bool    `json:"isolated"`
	CollateralBankID           string  `json:"collateral_bank_id"`
	Amm                        ammJSON `json:"amm"`
}

func parseMarket(data []byte) (MarketRecord, error) {
	var j marketJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return MarketRecord{}, fmt.Errorf("parse MarketUpdate: %w", err)
	}
	if j.MarketID == "" {
		return MarketRecord{}, fmt.Errorf("parse MarketUpdate: missing market_id")
	}

	m := &account.Market{
		MarketID:               j.MarketID,
		MarginRatioInitial:     j.MarginRatioInitial,
		MarginRatioPartial:     j.MarginRatioPartial,
		MarginRatioMaintenance: j.MarginRatioMaintenance,
		PriceFeedID:            j.PriceFeedID,
		Isolated:               j.Isolated,
		CollateralBankID:       j.CollateralBankID,
	}

	var err error
	if m.CumulativeFundingRateLong, err = parseScaled(j.CumulativeFundingRateLong); err != nil {
		return MarketRecord{}, fmt.Errorf("cumulative_funding_rate_long: %w", err)
	}
	if m.CumulativeFundingRateShort, err = parseScaled(j.CumulativeFundingRateShort); err != nil {
		return MarketRecord{}, fmt.Errorf("cumulative_funding_rate_short: %w", err)
	}
	if m.Amm.BaseAssetReserve, err = parseScaled(j.Amm.BaseAssetReserve); err != nil {
		return MarketRecord{}, fmt.Errorf("amm base_asset_reserve: %w", err)
	}
	if m.Amm.QuoteAssetReserve, err = parseScaled(j.Amm.QuoteAssetReserve); err != nil {
		return MarketRecord{}, fmt.Errorf("amm quote_asset_reserve: %w", err)
	}
	if m.Amm.PegMultiplier, err = parseScaled(j.Amm.PegMultiplier); err != nil {
		return MarketRecord{}, fmt.Errorf("amm peg_multiplier: %w", err)
	}

	return MarketRecord{Market: m}, nil
}

type bankJSON struct {
	BankID                    string `json:"bank_id"`
	InitialAssetWeight        int64  `json:"initial_asset_weight"`
	MaintenanceAssetWeight    int64  `json:"maintenance_asset_weight"`
	InitialLiabilityWeight    int64  `json:"initial_liability_weight"`
	CumulativeDepositInterest string `json:"cumulative_deposit_interest"`
	Decimals                  uint8  `json:"decimals"`
	PriceFeedID               string `json:"price_feed_id"`
}

func parseBank(data []byte) (BankRecord, error) {
	var j bankJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return BankRecord{}, fmt.Errorf("parse BankUpdate: %w", err)
	}
	if j.BankID == "" {
		return BankRecord{}, fmt.Errorf("parse BankUpdate: missing bank_id")
	}

	b := &account.Bank{
		BankID:                 j.BankID,
		InitialAssetWeight:     j.InitialAssetWeight,
		MaintenanceAssetWeight: j.MaintenanceAssetWeight,
		InitialLiabilityWeight: j.InitialLiabilityWeight,
		Decimals:               j.Decimals,
		PriceFeedID:            j.PriceFeedID,
	}

	var err error
	if b.CumulativeDepositInterest, err = parseScaled(j.CumulativeDepositInterest); err != nil {
		return BankRecord{}, fmt.Errorf("cumulative_deposit_interest: %w", err)
	}

	return BankRecord{Bank: b}, nil
}

type priceJSON struct {
	FeedID     string `json:"feed_id"`
	Price      string `json:"price"`
	Confidence string `json:"confidence"`
	Slot       uint64 `json:"slot"`
}

func parsePrice(data []byte) (PriceRecord, error) {
	var j priceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return PriceRecord{}, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	if j.FeedID == "" {
		return PriceRecord{}, fmt.Errorf("parse PriceUpdate: missing feed_id")
	}

	f := &account.PriceFeed{FeedID: j.FeedID, Slot: j.Slot}

	var err error
	if f.Price, err = parseScaled(j.Price); err != nil {
		return PriceRecord{}, fmt.Errorf("price: %w", err)
	}
	if f.Confidence, err = parseScaled(j.Confidence); err != nil {
		return PriceRecord{}, fmt.Errorf("confidence: %w", err)
	}

	return PriceRecord{Feed: f}, nil
}

// parseScaled parses a decimal-string scaled integer. Empty means zero.
func parseScaled(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid scaled integer %q", s)
	}
	return v, nil
}
