package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// AlertPublisher publishes liquidation alerts to NATS for downstream
// consumers (liquidation bots, risk dashboards). Alerts are published
// after each evaluation pass, not on a confirmed-persistence boundary:
// they are advisory and the query API remains the source of truth.
// Subjects follow the pattern: risk.alerts.liquidatable.{account_id}
type AlertPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan LiquidationAlert
	logger    zerolog.Logger
}

// LiquidationAlert is emitted when an account's total collateral drops
// below its partial margin requirement.
type LiquidationAlert struct {
	AccountID         string    `json:"account_id"`
	TotalCollateral   string    `json:"total_collateral"`
	MarginRequirement string    `json:"margin_requirement"`
	MarginRatio       string    `json:"margin_ratio"`
	Timestamp         time.Time `json:"timestamp"`
}

func NewAlertPublisher(js jetstream.JetStream, inputChan <-chan LiquidationAlert, logger zerolog.Logger) *AlertPublisher {
	return &AlertPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    logger.With().Str("component", "alert_publisher").Logger(),
	}
}

// Run starts the alert publisher loop.
func (ap *AlertPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case alert, ok := <-ap.inputChan:
			if !ok {
				return nil
			}

			if err := ap.publish(ctx, alert); err != nil {
				// Non-fatal: the next evaluation pass re-emits while the
				// account remains liquidatable.
				ap.logger.Warn().Err(err).Str("account_id", alert.AccountID).Msg("alert publish failed")
			}
		}
	}
}

func (ap *AlertPublisher) publish(ctx context.Context, alert LiquidationAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	subject := fmt.Sprintf("risk.alerts.liquidatable.%s", alert.AccountID)
	_, err = ap.js.Publish(ctx, subject, data)
	return err
}

// EnsureAlertStream creates the outbound alerts stream.
func EnsureAlertStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "RISK_ALERTS",
		Subjects:  []string{"risk.alerts.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create alert stream: %w", err)
	}
	logger.Info().Str("stream", "RISK_ALERTS").Msg("ensured alert stream")
	return nil
}
