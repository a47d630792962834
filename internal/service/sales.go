package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/notify"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/xid"
)

const receiptProbeAttempts = 8

// CreateSale prices the cart, then persists sale, items, stock movements,
// customer loyalty and receipt as one unit. A receipt number collision
// rolls the unit back and retries with a fresh number.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	if problems := validateSaleRequest(req); len(problems) > 0 {
		return domain.Sale{}, &ValidationError{Fields: problems}
	}

	taxScope, err := s.branchScope(ctx, scope, strings.TrimSpace(req.BranchID))
	if err != nil {
		return domain.Sale{}, err
	}
	rate, err := s.taxRate(ctx, taxScope)
	if err != nil {
		return domain.Sale{}, err
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	subtotal := decimal.Zero
	for _, line := range req.Items {
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		items = append(items, domain.SaleItem{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: lineTotal,
		})
	}
	tax := subtotal.Mul(rate).Div(hundred).Round(2)
	if req.Discount.GreaterThan(subtotal.Add(tax)) {
		return domain.Sale{}, invalid("discount cannot exceed subtotal plus tax")
	}

	sale := domain.Sale{
		BranchID:      strings.TrimSpace(req.BranchID),
		CustomerID:    strings.TrimSpace(req.CustomerID),
		CashierID:     actorID(ctx),
		Subtotal:      subtotal,
		TaxRate:       rate,
		Tax:           tax,
		Discount:      req.Discount,
		Total:         subtotal.Add(tax).Sub(req.Discount),
		PaymentMethod: req.PaymentMethod,
		Notes:         strings.TrimSpace(req.Notes),
		Items:         items,
	}

	var created *domain.Sale
	for attempt := 1; ; attempt++ {
		number, err := s.nextReceiptNumber(ctx, attempt > 1)
		if err != nil {
			return domain.Sale{}, err
		}
		sale.Receipt = &domain.Receipt{ReceiptNumber: number}

		created, err = s.repo.CreateSale(ctx, scope, sale)
		if errors.Is(err, store.ErrReceiptConflict) && attempt < s.opts.SaleAttempts {
			log.Printf("[service] WARN: receipt %s collided, retrying sale (attempt %d)", number, attempt)
			continue
		}
		if err != nil {
			return domain.Sale{}, err
		}
		break
	}

	s.publish(ctx, notify.KindSaleCreated, created.OwnerID, created.ID, map[string]any{
		"receipt_number": created.Receipt.ReceiptNumber,
		"total":          created.Total,
		"items":          len(created.Items),
	})
	return *created, nil
}

func validateSaleRequest(req domain.SaleRequest) []string {
	problems := make([]string, 0, 4)
	if strings.TrimSpace(req.BranchID) == "" {
		problems = append(problems, "branch_id is required")
	}
	if !req.PaymentMethod.Valid() {
		problems = append(problems, fmt.Sprintf("payment_method %q is not supported", req.PaymentMethod))
	}
	if len(req.Items) == 0 {
		problems = append(problems, "items must not be empty")
	}
	for i, line := range req.Items {
		if strings.TrimSpace(line.ProductID) == "" {
			problems = append(problems, fmt.Sprintf("items[%d].product_id is required", i))
		}
		if line.Quantity < 1 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be at least 1", i))
		}
		if !line.UnitPrice.IsPositive() {
			problems = append(problems, fmt.Sprintf("items[%d].unit_price must be positive", i))
		}
	}
	if req.Discount.IsNegative() {
		problems = append(problems, "discount cannot be negative")
	}
	return problems
}

// nextReceiptNumber probes for an unused RCP-YYYYMMDD-NNN number. The suffix
// widens to six digits once three digit candidates keep colliding.
func (s *Service) nextReceiptNumber(ctx context.Context, widen bool) (string, error) {
	digits := 3
	for i := 0; i < receiptProbeAttempts; i++ {
		if widen || i >= receiptProbeAttempts/2 {
			digits = 6
		}
		number := xid.ReceiptNumber(s.now(), digits)
		exists, err := s.repo.ReceiptNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", fmt.Errorf("could not allocate a receipt number after %d attempts", receiptProbeAttempts)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.GetSale(ctx, scope, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, scope, limit)
}
