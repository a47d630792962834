package ledger

import (
	"errors"
	"fmt"

	"pharmaledger/backend/internal/domain"
)

var (
	ErrInvalidMovement   = errors.New("invalid stock movement")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Apply computes the stock after applying a movement of the given type and
// quantity to current. IN and RETURN add, OUT subtracts and ADJUSTMENT sets
// the absolute value. The returned delta is the signed effect.
func Apply(current int, kind domain.MovementType, quantity int) (next int, delta int, err error) {
	switch kind {
	case domain.MovementIn, domain.MovementReturn:
		if quantity < 1 {
			return current, 0, fmt.Errorf("%w: %s quantity must be positive", ErrInvalidMovement, kind)
		}
		return current + quantity, quantity, nil
	case domain.MovementOut:
		if quantity < 1 {
			return current, 0, fmt.Errorf("%w: OUT quantity must be positive", ErrInvalidMovement)
		}
		if err := AssertSufficient(current, quantity); err != nil {
			return current, 0, err
		}
		return current - quantity, -quantity, nil
	case domain.MovementAdjustment:
		if quantity < 0 {
			return current, 0, fmt.Errorf("%w: adjusted stock cannot be negative", ErrInvalidMovement)
		}
		return quantity, quantity - current, nil
	default:
		return current, 0, fmt.Errorf("%w: unknown type %q", ErrInvalidMovement, kind)
	}
}

func AssertSufficient(stock int, requested int) error {
	if requested > stock {
		return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, requested, stock)
	}
	return nil
}

// Replay folds movements in creation order starting from zero stock.
func Replay(movements []domain.StockMovement) (int, error) {
	stock := 0
	for _, m := range movements {
		next, _, err := Apply(stock, m.Type, m.Quantity)
		if err != nil {
			return stock, fmt.Errorf("replay movement %s: %w", m.ID, err)
		}
		stock = next
	}
	return stock, nil
}

// SumDeltas is the signed sum of recorded movement effects.
func SumDeltas(movements []domain.StockMovement) int {
	total := 0
	for _, m := range movements {
		total += m.Delta
	}
	return total
}

func Reconcile(product domain.Product, movements []domain.StockMovement) domain.ReconciliationReport {
	report := domain.ReconciliationReport{
		ProductID: product.ID,
		Stock:     product.Stock,
		Movements: len(movements),
	}
	replayed, err := Replay(movements)
	if err != nil {
		replayed = SumDeltas(movements)
	}
	report.ReplayedStock = replayed
	report.Drift = product.Stock - replayed
	report.Consistent = err == nil && report.Drift == 0
	return report
}
