package inventory

import (
	"context"
	"log/slog"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Ledger) error) error
	ListStock(ctx context.Context, filter StockFilter) ([]StockLevel, error)
	ListAdjustments(ctx context.Context, stockID int64, limit int) ([]Adjustment, error)
	VerifyLedger(ctx context.Context) ([]Discrepancy, error)
}

// MetricsPort counts committed ledger entries.
type MetricsPort interface {
	ObserveAdjustment(direction string, quantity int64)
}

// Service coordinates the stock administration flows: initialisation,
// manual adjustment and physical counts.
type Service struct {
	repo       RepositoryPort
	reconciler *Reconciler
	metrics    MetricsPort
	logger     *slog.Logger
}

// NewService builds Service. metrics may be nil.
func NewService(repo RepositoryPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, reconciler: NewReconciler(), metrics: metrics, logger: logger}
}

// Initialize creates the stock row for a product at a branch.
func (s *Service) Initialize(ctx context.Context, input InitializeInput) (StockLevel, error) {
	var stock StockLevel
	err := s.repo.WithTx(ctx, func(ctx context.Context, l Ledger) error {
		var err error
		stock, err = s.reconciler.Initialize(ctx, l, input)
		return err
	})
	if err != nil {
		return StockLevel{}, err
	}
	if stock.Quantity > 0 {
		s.observe(DirectionIncrease, stock.Quantity)
	}
	s.logger.Info("stock initialised",
		slog.Int64("stock_id", stock.ID),
		slog.Int64("product_id", stock.ProductID),
		slog.Int64("branch_id", stock.BranchID),
		slog.Int64("quantity", stock.Quantity),
	)
	return stock, nil
}

// Adjust applies a manual increase or decrease.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (StockLevel, Adjustment, error) {
	var (
		stock StockLevel
		adj   Adjustment
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, l Ledger) error {
		var err error
		stock, adj, err = s.reconciler.Adjust(ctx, l, input)
		return err
	})
	if err != nil {
		return StockLevel{}, Adjustment{}, err
	}
	s.observe(adj.Direction, adj.Quantity)
	return stock, adj, nil
}

// Count records a physical count. The returned adjustment is nil when the
// count matched the ledger.
func (s *Service) Count(ctx context.Context, input CountInput) (StockLevel, *Adjustment, error) {
	var (
		stock StockLevel
		adj   *Adjustment
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, l Ledger) error {
		var err error
		stock, adj, err = s.reconciler.Count(ctx, l, input)
		return err
	})
	if err != nil {
		return StockLevel{}, nil, err
	}
	if adj != nil {
		s.observe(adj.Direction, adj.Quantity)
	}
	return stock, adj, nil
}

// CurrentQuantity returns the quantity on hand for product at branch.
func (s *Service) CurrentQuantity(ctx context.Context, productID, branchID int64) (int64, error) {
	var qty int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, l Ledger) error {
		var err error
		qty, err = CurrentQuantity(ctx, l, productID, branchID)
		return err
	})
	return qty, err
}

// ListStock lists stock rows matching filter.
func (s *Service) ListStock(ctx context.Context, filter StockFilter) ([]StockLevel, error) {
	return s.repo.ListStock(ctx, filter)
}

// ListAdjustments returns the newest ledger entries of a stock row.
func (s *Service) ListAdjustments(ctx context.Context, stockID int64, limit int) ([]Adjustment, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	return s.repo.ListAdjustments(ctx, stockID, limit)
}

// VerifyLedger reports stock rows whose quantity differs from the sum of
// their adjustments.
func (s *Service) VerifyLedger(ctx context.Context) ([]Discrepancy, error) {
	return s.repo.VerifyLedger(ctx)
}

func (s *Service) observe(direction Direction, quantity int64) {
	if s.metrics != nil {
		s.metrics.ObserveAdjustment(string(direction), quantity)
	}
}
