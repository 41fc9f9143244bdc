package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service coordinates inventory operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Reconcile checks the demands against current stock without mutating it.
// Demands for the same sku are summed before the comparison, so an
// invoice listing a sku on several lines is judged on its combined
// quantity. Unknown skus and shortfalls are reported separately; the
// caller routes on the verdict.
func (s *Service) Reconcile(ctx context.Context, userID uuid.UUID, demands []Demand) (Verdict, error) {
	if userID == uuid.Nil {
		return Verdict{}, errors.New("inventory: user required")
	}
	totals := make(map[string]int64, len(demands))
	skus := make([]string, 0, len(demands))
	for _, d := range demands {
		if d.Quantity <= 0 {
			return Verdict{}, fmt.Errorf("%w: sku %s", ErrInvalidQuantity, d.SKU)
		}
		if _, seen := totals[d.SKU]; !seen {
			skus = append(skus, d.SKU)
		}
		totals[d.SKU] += d.Quantity
	}

	found, err := s.repo.GetBySKUs(ctx, userID, skus)
	if err != nil {
		return Verdict{}, fmt.Errorf("inventory: load items: %w", err)
	}

	var verdict Verdict
	for _, sku := range skus {
		item, ok := found[sku]
		if !ok {
			verdict.UnknownSKUs = append(verdict.UnknownSKUs, sku)
			continue
		}
		if item.Quantity < totals[sku] {
			verdict.Shortfalls = append(verdict.Shortfalls, Shortfall{
				SKU:       sku,
				Requested: totals[sku],
				Available: item.Quantity,
			})
		}
	}
	return verdict, nil
}

// ApplyDecrements subtracts the demanded quantities in one transaction.
// Every line must pass the stock guard or the whole transaction rolls
// back and ErrInsufficientStock names the failing skus.
func (s *Service) ApplyDecrements(ctx context.Context, userID uuid.UUID, demands []Demand) error {
	if len(demands) == 0 {
		return nil
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var failed []string
		for _, d := range demands {
			if d.Quantity <= 0 {
				return fmt.Errorf("%w: sku %s", ErrInvalidQuantity, d.SKU)
			}
			ok, err := tx.DecrementStock(ctx, userID, d.SKU, d.Quantity)
			if err != nil {
				return fmt.Errorf("inventory: decrement %s: %w", d.SKU, err)
			}
			if !ok {
				failed = append(failed, d.SKU)
			}
		}
		if len(failed) > 0 {
			sort.Strings(failed)
			return fmt.Errorf("%w: %s", ErrInsufficientStock, strings.Join(failed, ", "))
		}
		return nil
	})
}

// RestoreStock adds the demanded quantities back. Used to compensate a
// decrement when a later step in the same operation fails.
func (s *Service) RestoreStock(ctx context.Context, userID uuid.UUID, demands []Demand) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, d := range demands {
			if err := tx.IncrementStock(ctx, userID, d.SKU, d.Quantity); err != nil {
				return fmt.Errorf("inventory: restore %s: %w", d.SKU, err)
			}
		}
		return nil
	})
}

// RecordShortages stores reporting snapshots for each shortfall in the verdict.
// Failures are logged and swallowed; snapshots are informational.
func (s *Service) RecordShortages(ctx context.Context, userID uuid.UUID, verdict Verdict) {
	now := time.Now().UTC()
	for _, sf := range verdict.Shortfalls {
		shortage := ShortageFor(sf.Requested, sf.Available, now)
		if err := s.repo.SaveShortage(ctx, userID, sf.SKU, shortage); err != nil {
			if s.logger != nil {
				s.logger.Warn("record shortage", slog.String("sku", sf.SKU), slog.Any("error", err))
			}
		}
	}
}

// SupplierEmails returns the supplier contact for each given sku, where known.
func (s *Service) SupplierEmails(ctx context.Context, userID uuid.UUID, skus []string) (map[string]string, error) {
	items, err := s.repo.GetBySKUs(ctx, userID, skus)
	if err != nil {
		return nil, err
	}
	emails := make(map[string]string, len(items))
	for sku, item := range items {
		if item.SupplierEmail != "" {
			emails[sku] = item.SupplierEmail
		}
	}
	return emails, nil
}

// List returns items for the user.
func (s *Service) List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Item, int, error) {
	return s.repo.List(ctx, userID, filter)
}

// Get returns one item by sku.
func (s *Service) Get(ctx context.Context, userID uuid.UUID, sku string) (Item, error) {
	return s.repo.Get(ctx, userID, sku)
}

// Create validates and stores a new item.
func (s *Service) Create(ctx context.Context, item Item) (Item, error) {
	if item.SKU == "" || item.Name == "" {
		return Item{}, errors.New("inventory: sku and name required")
	}
	if item.Quantity < 0 {
		return Item{}, ErrInvalidQuantity
	}
	if item.UnitPrice < 0 {
		return Item{}, errors.New("inventory: unit price must be >= 0")
	}
	return s.repo.Create(ctx, item)
}

// Update replaces mutable fields of an item.
func (s *Service) Update(ctx context.Context, item Item) error {
	if item.Quantity < 0 {
		return ErrInvalidQuantity
	}
	if item.UnitPrice < 0 {
		return errors.New("inventory: unit price must be >= 0")
	}
	return s.repo.Update(ctx, item)
}

// Delete removes an item.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID, sku string) error {
	return s.repo.Delete(ctx, userID, sku)
}

// ListShortages returns items carrying a shortage snapshot.
func (s *Service) ListShortages(ctx context.Context, userID uuid.UUID) ([]Item, error) {
	return s.repo.ListShortages(ctx, userID)
}
