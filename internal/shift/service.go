package shift

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/tokoku/pos-core/internal/shared"
)

// RepositoryPort abstracts shift persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
	GetShift(ctx context.Context, id int64) (Shift, error)
	ListShifts(ctx context.Context, openOnly bool) ([]Shift, error)
	ListCashEntries(ctx context.Context, shiftID int64) ([]CashEntry, error)
}

// Service exposes shift lifecycle and drawer operations.
type Service struct {
	repo     RepositoryPort
	register *Register
	audit    shared.AuditRecorder
	logger   *slog.Logger
}

// NewService builds Service. audit may be nil.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, register: NewRegister(), audit: audit, logger: logger}
}

// OpenShift starts a shift for a cashier.
func (s *Service) OpenShift(ctx context.Context, input OpenInput) (Shift, error) {
	var opened Shift
	err := s.repo.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		opened, err = s.register.Open(ctx, st, input)
		return err
	})
	if err != nil {
		return Shift{}, err
	}
	s.record(ctx, input.ActorID, "shift.open", opened.ID, map[string]any{
		"cashier_id":      opened.CashierID,
		"opening_balance": opened.OpeningBalance.StringFixed(shared.MoneyPlaces),
	})
	s.logger.Info("shift opened", slog.Int64("shift_id", opened.ID), slog.Int64("cashier_id", opened.CashierID))
	return opened, nil
}

// CloseShift finalises a shift with the counted drawer balance.
func (s *Service) CloseShift(ctx context.Context, input CloseInput) (Shift, error) {
	var closed Shift
	err := s.repo.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		closed, err = s.register.Close(ctx, st, input)
		return err
	})
	if err != nil {
		return Shift{}, err
	}
	variance, _ := Variance(closed)
	s.record(ctx, input.ActorID, "shift.close", closed.ID, map[string]any{
		"expected_balance": closed.ExpectedBalance.StringFixed(shared.MoneyPlaces),
		"closing_balance":  closed.ClosingBalance.StringFixed(shared.MoneyPlaces),
		"variance":         variance.StringFixed(shared.MoneyPlaces),
	})
	s.logger.Info("shift closed",
		slog.Int64("shift_id", closed.ID),
		slog.String("variance", variance.StringFixed(shared.MoneyPlaces)),
	)
	return closed, nil
}

// RecordCashEntry applies a manual pay-in or pay-out to an open shift.
func (s *Service) RecordCashEntry(ctx context.Context, input CashEntryInput) (CashEntry, error) {
	var entry CashEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		entry, _, err = s.register.RecordCashEntry(ctx, st, input)
		return err
	})
	return entry, err
}

// GetShift returns a shift by id.
func (s *Service) GetShift(ctx context.Context, id int64) (Shift, error) {
	return s.repo.GetShift(ctx, id)
}

// ListShifts lists shifts, newest first.
func (s *Service) ListShifts(ctx context.Context, openOnly bool) ([]Shift, error) {
	return s.repo.ListShifts(ctx, openOnly)
}

// ComputeVariance returns expected minus counted for a closed shift.
func (s *Service) ComputeVariance(ctx context.Context, id int64) (decimal.Decimal, error) {
	shift, err := s.repo.GetShift(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return Variance(shift)
}

// Summary reports the shift with its manual pay-in and pay-out totals.
func (s *Service) Summary(ctx context.Context, id int64) (Summary, error) {
	shift, err := s.repo.GetShift(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	entries, err := s.repo.ListCashEntries(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Shift: shift, PaidIn: decimal.Zero, PaidOut: decimal.Zero, EntryCount: len(entries)}
	for _, e := range entries {
		if e.Direction == CashOut {
			sum.PaidOut = sum.PaidOut.Add(e.Amount)
		} else {
			sum.PaidIn = sum.PaidIn.Add(e.Amount)
		}
	}
	if v, err := Variance(shift); err == nil {
		sum.Variance = &v
	}
	return sum, nil
}

// ListCashEntries returns the manual drawer entries of a shift.
func (s *Service) ListCashEntries(ctx context.Context, shiftID int64) ([]CashEntry, error) {
	if _, err := s.repo.GetShift(ctx, shiftID); err != nil {
		return nil, err
	}
	return s.repo.ListCashEntries(ctx, shiftID)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "shift",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
