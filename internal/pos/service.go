package pos

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/tokoku/pos-core/internal/shared"
)

const idempotencyScope = "transactions"

// RepositoryPort abstracts transaction persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	ListLines(ctx context.Context, transactionID int64) ([]Line, error)
	ListByShift(ctx context.Context, shiftID int64, includeDeleted bool) ([]Transaction, error)
}

// MetricsPort receives counters for committed and aborted postings.
type MetricsPort interface {
	ObserveTransaction(status, method string)
	ObserveTransactionAbort(reason string)
	ObserveAdjustment(direction string, quantity int64)
}

// Service is the entry point for posting and reading transactions.
type Service struct {
	repo      RepositoryPort
	processor *Processor
	guard     *shared.IdempotencyGuard
	audit     shared.AuditRecorder
	metrics   MetricsPort
	logger    *slog.Logger
}

// Options configures optional collaborators of Service.
type Options struct {
	Policy  DiscountPolicy
	Guard   *shared.IdempotencyGuard
	Audit   shared.AuditRecorder
	Metrics MetricsPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		processor: NewProcessor(opts.Policy),
		guard:     opts.Guard,
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// Create posts a sale or refund atomically. With an idempotency key, a
// repeated submission returns the transaction created the first time.
func (s *Service) Create(ctx context.Context, input CreateInput) (Transaction, error) {
	claim, err := s.guard.Claim(ctx, idempotencyScope, input.IdempotencyKey)
	if err != nil {
		s.abort(input, err)
		return Transaction{}, err
	}
	if claim.ExistingID != 0 {
		return s.GetWithLines(ctx, claim.ExistingID)
	}

	var created Transaction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		created, err = s.processor.Process(ctx, tx, input)
		return err
	})
	if err != nil {
		if relErr := s.guard.Release(ctx, claim); relErr != nil {
			s.logger.Warn("idempotency release failed", slog.Any("error", relErr))
		}
		s.abort(input, err)
		return Transaction{}, err
	}
	if err := s.guard.Complete(ctx, claim, created.ID); err != nil {
		s.logger.Warn("idempotency complete failed", slog.Int64("transaction_id", created.ID), slog.Any("error", err))
	}

	if s.metrics != nil {
		s.metrics.ObserveTransaction(string(created.PaymentStatus), string(created.PaymentMethod))
		direction := "decrease"
		if created.PaymentStatus.IsRefund() {
			direction = "increase"
		}
		for _, l := range created.Lines {
			s.metrics.ObserveAdjustment(direction, l.Quantity)
		}
	}
	s.logger.Info("transaction posted",
		slog.Int64("transaction_id", created.ID),
		slog.Int64("shift_id", created.ShiftID),
		slog.String("status", string(created.PaymentStatus)),
		slog.String("method", string(created.PaymentMethod)),
		slog.String("total", created.AmountDue.StringFixed(shared.MoneyPlaces)),
	)
	return created, nil
}

// Get returns the transaction header without lines.
func (s *Service) Get(ctx context.Context, id int64) (Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// GetWithLines returns the transaction header and its lines.
func (s *Service) GetWithLines(ctx context.Context, id int64) (Transaction, error) {
	t, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if t.Lines, err = s.repo.ListLines(ctx, id); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// ListByShift lists headers posted against a shift. Deleted transactions
// are omitted unless includeDeleted is set.
func (s *Service) ListByShift(ctx context.Context, shiftID int64, includeDeleted bool) ([]Transaction, error) {
	return s.repo.ListByShift(ctx, shiftID, includeDeleted)
}

// Delete soft-deletes a transaction.
func (s *Service) Delete(ctx context.Context, id, actorID int64) (Transaction, error) {
	var deleted Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		deleted, err = s.processor.Delete(ctx, tx, id, actorID)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "transaction.delete",
			Entity:   "transaction",
			EntityID: strconv.FormatInt(id, 10),
		}); err != nil {
			s.logger.Warn("audit record failed", slog.Int64("transaction_id", id), slog.Any("error", err))
		}
	}
	return deleted, nil
}

func (s *Service) abort(input CreateInput, err error) {
	kind := shared.Kind(err)
	if s.metrics != nil {
		s.metrics.ObserveTransactionAbort(kind)
	}
	level := slog.LevelWarn
	if kind == "internal" && !errors.Is(err, context.Canceled) {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "transaction aborted",
		slog.Int64("shift_id", input.ShiftID),
		slog.Int64("branch_id", input.BranchID),
		slog.String("kind", kind),
		slog.Any("error", err),
	)
}
