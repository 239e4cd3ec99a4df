package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"PerpRisk/internal/observability"
)

// HistoryWorker drains the persist channel and batch-writes risk rows to
// Postgres. It runs independently from the evaluation loop; the channel
// uses blocking sends, so a stalled worker backpressures evaluation
// rather than dropping history.
type HistoryWorker struct {
	writer       *RiskHistoryWriter
	db           *sql.DB
	inputChan    <-chan RiskRow
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewHistoryWorker(
	db *sql.DB,
	inputChan <-chan RiskRow,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *HistoryWorker {
	return &HistoryWorker{
		writer:       NewRiskHistoryWriter(db),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       logger.With().Str("component", "history_worker").Logger(),
	}
}

// Run starts the worker loop. It batches incoming rows and flushes either
// when the batch is full or the flush timeout expires. Blocks until ctx
// is cancelled.
func (hw *HistoryWorker) Run(ctx context.Context) error {
	batch := make([]RiskRow, 0, hw.batchSize)

	timer := time.NewTimer(hw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: flush remaining
			if len(batch) > 0 {
				if err := hw.flush(context.Background(), batch); err != nil {
					hw.logger.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case row, ok := <-hw.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := hw.flush(context.Background(), batch); err != nil {
						hw.logger.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			batch = append(batch, row)

			if len(batch) >= hw.batchSize {
				if err := hw.flushWithRetry(ctx, batch); err != nil {
					hw.logger.Error().Err(err).Msg("batch flush failed after retries")
				}
				batch = batch[:0]
				timer.Reset(hw.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := hw.flushWithRetry(ctx, batch); err != nil {
					hw.logger.Error().Err(err).Msg("timeout flush failed after retries")
				}
				batch = batch[:0]
			}
			timer.Reset(hw.flushTimeout)
		}
	}
}

// flushWithRetry attempts to flush with exponential backoff. The worker
// never drops rows: it retries until the write succeeds or the context
// is cancelled, in which case it makes one final attempt with a
// background context.
func (hw *HistoryWorker) flushWithRetry(ctx context.Context, rows []RiskRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			hw.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("rows", len(rows)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if finalErr := hw.flush(context.Background(), rows); finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := hw.flush(ctx, rows)
		if err == nil {
			if attempt > 0 {
				hw.logger.Info().Int("retries", attempt).Msg("persistence flush succeeded after retries")
			}
			return nil
		}

		if hw.metrics != nil {
			hw.metrics.PersistRetry.Inc()
		}
	}
}

func (hw *HistoryWorker) flush(ctx context.Context, rows []RiskRow) error {
	start := time.Now()

	tx, err := hw.db.BeginTx(ctx, nil)
	if err != nil {
		if hw.metrics != nil {
			hw.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := hw.writer.WriteBatch(ctx, tx, rows); err != nil {
		if hw.metrics != nil {
			hw.metrics.PersistErrors.WithLabelValues("write_rows").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if hw.metrics != nil {
			hw.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if hw.metrics != nil {
		hw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		hw.metrics.PersistBatchSize.Observe(float64(len(rows)))
		hw.metrics.PersistRowsWritten.Add(float64(len(rows)))
	}

	return nil
}

// Writer returns the underlying writer for query-side reads.
func (hw *HistoryWorker) Writer() *RiskHistoryWriter {
	return hw.writer
}
