package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tokoku/pos-core/internal/inventory"
	jobmetrics "github.com/tokoku/pos-core/internal/jobs"
)

// LedgerVerifier reports stock rows that disagree with their ledger.
type LedgerVerifier interface {
	VerifyLedger(ctx context.Context) ([]inventory.Discrepancy, error)
}

// LedgerVerifyJob checks the audit invariant of the stock ledger: every
// quantity equals its increases minus its decreases.
type LedgerVerifyJob struct {
	Verifier LedgerVerifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewLedgerVerifyJob initialises the ledger verification handler.
func NewLedgerVerifyJob(verifier LedgerVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerVerifyJob {
	return &LedgerVerifyJob{
		Verifier: verifier,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one verification run. Discrepancies are reported, not
// treated as a job failure.
func (j *LedgerVerifyJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Verifier == nil {
		return errors.New("ledger verify: handler not configured")
	}
	var payload LedgerVerifyPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := j.clock()
	tracker := j.Metrics.Track(TaskLedgerVerify)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("requested_by", payload.RequestedBy))
	logger.Info("starting ledger verification")

	discrepancies, err := j.Verifier.VerifyLedger(ctx)
	if err != nil {
		logger.Error("ledger verification failed", slog.Any("error", err))
		return err
	}

	perBranch := make(map[int64]int)
	for _, d := range discrepancies {
		perBranch[d.BranchID]++
		logger.Warn("stock ledger discrepancy",
			slog.Int64("stock_id", d.StockID),
			slog.Int64("product_id", d.ProductID),
			slog.Int64("branch_id", d.BranchID),
			slog.Int64("quantity", d.Quantity),
			slog.Int64("ledger_quantity", d.LedgerQuantity),
		)
	}
	j.Metrics.ResetLedgerDiscrepancies()
	for branchID, count := range perBranch {
		j.Metrics.SetLedgerDiscrepancies(branchID, count)
	}

	logger.Info("completed ledger verification",
		slog.Int("discrepancies", len(discrepancies)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *LedgerVerifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
