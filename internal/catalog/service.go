package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/tokoku/pos-core/internal/shared"
)

var maxPercent = decimal.NewFromInt(100)

// Reader resolves products and discounts, within or outside a unit of work.
type Reader interface {
	ProductsByID(ctx context.Context, ids []int64) (map[int64]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetDiscount(ctx context.Context, id int64) (Discount, error)
}

// RepositoryPort abstracts catalog persistence.
type RepositoryPort interface {
	Reader
	InsertProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	ListProducts(ctx context.Context, includeDeleted bool) ([]Product, error)
	InsertDiscount(ctx context.Context, d Discount) (Discount, error)
	UpdateDiscount(ctx context.Context, d Discount) (Discount, error)
	ListDiscounts(ctx context.Context, includeDeleted bool) ([]Discount, error)
}

// Service manages the product and discount catalog.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service. audit may be nil.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CreateProduct registers a product.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	input.Name = normalizeName(input.Name)
	if err := shared.ValidateStruct(input); err != nil {
		return Product{}, err
	}
	status := input.Status
	if status == "" {
		status = StatusActive
	}
	now := s.now()
	return s.repo.InsertProduct(ctx, Product{
		Name:      input.Name,
		Price:     shared.RoundMoney(input.Price),
		Status:    status,
		CreatedBy: input.ActorID,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// UpdateProduct edits name, price and status. Existing transaction lines keep
// the price they were sold at.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input ProductInput) (Product, error) {
	input.Name = normalizeName(input.Name)
	if err := shared.ValidateStruct(input); err != nil {
		return Product{}, err
	}
	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if current.Status == StatusDeleted {
		return Product{}, shared.InvalidState("product %d is deleted", id)
	}
	current.Name = input.Name
	current.Price = shared.RoundMoney(input.Price)
	if input.Status != "" {
		current.Status = input.Status
	}
	current.UpdatedAt = s.now()
	updated, err := s.repo.UpdateProduct(ctx, current)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, input.ActorID, "product.update", id, map[string]any{"price": updated.Price.String(), "status": updated.Status})
	return updated, nil
}

// DeleteProduct soft-deletes a product; it stays resolvable for history.
func (s *Service) DeleteProduct(ctx context.Context, id, actorID int64) error {
	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusDeleted {
		return shared.InvalidState("product %d already deleted", id)
	}
	current.Status = StatusDeleted
	current.UpdatedAt = s.now()
	if _, err := s.repo.UpdateProduct(ctx, current); err != nil {
		return err
	}
	s.record(ctx, actorID, "product.delete", id, nil)
	return nil
}

// GetProduct returns a product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts lists products, excluding deleted ones unless asked.
func (s *Service) ListProducts(ctx context.Context, includeDeleted bool) ([]Product, error) {
	return s.repo.ListProducts(ctx, includeDeleted)
}

// CreateDiscount validates and stores a discount. Nothing is persisted when
// the amount is out of bounds for its kind.
func (s *Service) CreateDiscount(ctx context.Context, input DiscountInput) (Discount, error) {
	input.Name = normalizeName(input.Name)
	if err := validateDiscount(input); err != nil {
		return Discount{}, err
	}
	status := input.Status
	if status == "" {
		status = StatusActive
	}
	now := s.now()
	created, err := s.repo.InsertDiscount(ctx, Discount{
		Name:        input.Name,
		Description: strings.TrimSpace(input.Description),
		Kind:        input.Kind,
		Amount:      shared.RoundMoney(input.Amount),
		Status:      status,
		CreatedBy:   input.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Discount{}, err
	}
	s.record(ctx, input.ActorID, "discount.create", created.ID, map[string]any{"kind": created.Kind, "amount": created.Amount.String()})
	return created, nil
}

// UpdateDiscount edits a discount. Transactions already posted keep their
// snapshot of the old terms.
func (s *Service) UpdateDiscount(ctx context.Context, id int64, input DiscountInput) (Discount, error) {
	input.Name = normalizeName(input.Name)
	if err := validateDiscount(input); err != nil {
		return Discount{}, err
	}
	current, err := s.repo.GetDiscount(ctx, id)
	if err != nil {
		return Discount{}, err
	}
	if current.Status == StatusDeleted {
		return Discount{}, shared.InvalidState("discount %d is deleted", id)
	}
	current.Name = input.Name
	current.Description = strings.TrimSpace(input.Description)
	current.Kind = input.Kind
	current.Amount = shared.RoundMoney(input.Amount)
	if input.Status != "" {
		current.Status = input.Status
	}
	current.UpdatedAt = s.now()
	updated, err := s.repo.UpdateDiscount(ctx, current)
	if err != nil {
		return Discount{}, err
	}
	s.record(ctx, input.ActorID, "discount.update", id, map[string]any{"kind": updated.Kind, "amount": updated.Amount.String()})
	return updated, nil
}

// DeleteDiscount soft-deletes a discount.
func (s *Service) DeleteDiscount(ctx context.Context, id, actorID int64) error {
	current, err := s.repo.GetDiscount(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusDeleted {
		return shared.InvalidState("discount %d already deleted", id)
	}
	current.Status = StatusDeleted
	current.UpdatedAt = s.now()
	if _, err := s.repo.UpdateDiscount(ctx, current); err != nil {
		return err
	}
	s.record(ctx, actorID, "discount.delete", id, nil)
	return nil
}

// GetDiscount returns a discount by id.
func (s *Service) GetDiscount(ctx context.Context, id int64) (Discount, error) {
	return s.repo.GetDiscount(ctx, id)
}

// ListDiscounts lists discounts, excluding deleted ones unless asked.
func (s *Service) ListDiscounts(ctx context.Context, includeDeleted bool) ([]Discount, error) {
	return s.repo.ListDiscounts(ctx, includeDeleted)
}

func validateDiscount(input DiscountInput) error {
	verr := &shared.ValidationError{}
	if err := shared.ValidateStruct(input); err != nil {
		var fieldErr *shared.ValidationError
		if !errors.As(err, &fieldErr) {
			return err
		}
		verr = fieldErr
	}
	switch {
	case input.Amount.IsNegative():
		verr.Add("amount", "must not be negative")
	case input.Kind == DiscountPercent && input.Amount.GreaterThan(maxPercent):
		verr.Add("amount", "must be at most 100 for a percent discount")
	}
	return verr.Err()
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entity := strings.SplitN(action, ".", 2)[0]
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("catalog audit", slog.String("action", action), slog.Any("error", err))
	}
}

// normalizeName applies NFC normalisation and collapses whitespace so visually
// identical names compare equal.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}
