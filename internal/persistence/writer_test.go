package persistence_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PerpRisk/internal/persistence"
	"PerpRisk/internal/testutil"
)

func setupWriter(t *testing.T) (*persistence.RiskHistoryWriter, *sql.DB) {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	migrator := persistence.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := migrator.Up(context.Background()); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return persistence.NewRiskHistoryWriter(db), db
}

func riskRow(accountID string, evaluatedAt time.Time) persistence.RiskRow {
	return persistence.RiskRow{
		AccountID:                    accountID,
		EvaluatedAt:                  evaluatedAt,
		TotalCollateral:              "6000000",
		InitialMarginRequirement:     "500000",
		PartialMarginRequirement:     "312500",
		MaintenanceMarginRequirement: "250000",
		FreeCollateral:               "5500000",
		MarginRatio:                  "12000",
		Leverage:                     "8333",
		TotalPositionValue:           "5000000",
		Liquidatable:                 false,
	}
}

func TestWriteBatch_RoundTrip(t *testing.T) {
	w, db := setupWriter(t)
	ctx := context.Background()

	accountID := uuid.NewString()
	evaluatedAt := time.Now().UTC().Truncate(time.Microsecond)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	rows := []persistence.RiskRow{
		riskRow(accountID, evaluatedAt.Add(-time.Minute)),
		riskRow(accountID, evaluatedAt),
	}
	if err := w.WriteBatch(ctx, tx, rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := w.LatestRisk(ctx, accountID)
	if err != nil {
		t.Fatalf("LatestRisk: %v", err)
	}
	if !got.EvaluatedAt.Equal(evaluatedAt) {
		t.Errorf("evaluated_at = %v, want %v", got.EvaluatedAt, evaluatedAt)
	}
	if got.TotalCollateral != "6000000" || got.MarginRatio != "12000" {
		t.Errorf("got %+v", got)
	}
	if got.Liquidatable {
		t.Error("liquidatable should round-trip false")
	}
}

func TestWriteBatch_ConflictIsIdempotent(t *testing.T) {
	w, db := setupWriter(t)
	ctx := context.Background()

	accountID := uuid.NewString()
	evaluatedAt := time.Now().UTC().Truncate(time.Microsecond)
	row := riskRow(accountID, evaluatedAt)

	for i := 0; i < 2; i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := w.WriteBatch(ctx, tx, []persistence.RiskRow{row}); err != nil {
			t.Fatalf("WriteBatch attempt %d: %v", i, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit attempt %d: %v", i, err)
		}
	}

	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM risk_history.account_risk WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("got %d rows, want 1", count)
	}
}

func TestWriteBatch_EmptyIsNoop(t *testing.T) {
	w, _ := setupWriter(t)
	if err := w.WriteBatch(context.Background(), nil, nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}
