package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// RiskHistoryWriter writes evaluated account risk rows to Postgres using
// multi-row INSERT. Scaled integers are stored as NUMERIC and bound as
// decimal strings so values past int64 survive the round trip.
type RiskHistoryWriter struct {
	db *sql.DB
}

// RiskRow represents a row in risk_history.account_risk.
type RiskRow struct {
	AccountID                    string
	EvaluatedAt                  time.Time
	TotalCollateral              string
	InitialMarginRequirement     string
	PartialMarginRequirement     string
	MaintenanceMarginRequirement string
	FreeCollateral               string
	MarginRatio                  string
	Leverage                     string
	TotalPositionValue           string
	Liquidatable                 bool
}

func NewRiskHistoryWriter(db *sql.DB) *RiskHistoryWriter {
	return &RiskHistoryWriter{db: db}
}

// WriteBatch writes a batch of risk rows in a single multi-row INSERT.
// Re-evaluations of the same account at the same instant are idempotent.
func (w *RiskHistoryWriter) WriteBatch(ctx context.Context, tx *sql.Tx, rows []RiskRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO risk_history.account_risk
		(account_id, evaluated_at, total_collateral, initial_margin_requirement,
		 partial_margin_requirement, maintenance_margin_requirement, free_collateral,
		 margin_ratio, leverage, total_position_value, liquidatable)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*11)

	for i, r := range rows {
		base := i * 11
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11,
		))
		args = append(args,
			r.AccountID, r.EvaluatedAt, r.TotalCollateral, r.InitialMarginRequirement,
			r.PartialMarginRequirement, r.MaintenanceMarginRequirement, r.FreeCollateral,
			r.MarginRatio, r.Leverage, r.TotalPositionValue, r.Liquidatable,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (account_id, evaluated_at) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LatestRisk fetches the most recent persisted row for an account.
func (w *RiskHistoryWriter) LatestRisk(ctx context.Context, accountID string) (*RiskRow, error) {
	row := w.db.QueryRowContext(ctx, `
		SELECT account_id, evaluated_at, total_collateral, initial_margin_requirement,
		       partial_margin_requirement, maintenance_margin_requirement, free_collateral,
		       margin_ratio, leverage, total_position_value, liquidatable
		FROM risk_history.account_risk
		WHERE account_id = $1
		ORDER BY evaluated_at DESC
		LIMIT 1`, accountID)

	var r RiskRow
	err := row.Scan(&r.AccountID, &r.EvaluatedAt, &r.TotalCollateral, &r.InitialMarginRequirement,
		&r.PartialMarginRequirement, &r.MaintenanceMarginRequirement, &r.FreeCollateral,
		&r.MarginRatio, &r.Leverage, &r.TotalPositionValue, &r.Liquidatable)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
