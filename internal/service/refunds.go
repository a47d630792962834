package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/notify"
	"pharmaledger/backend/internal/store"
)

// CreateRefund returns refunded items to stock. Each product can be refunded
// up to the quantity sold on the original sale.
func (s *Service) CreateRefund(ctx context.Context, req domain.RefundRequest) (domain.Refund, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.Refund{}, err
	}

	problems := make([]string, 0, 4)
	if strings.TrimSpace(req.SaleID) == "" {
		problems = append(problems, "sale_id is required")
	}
	if len(req.Items) == 0 {
		problems = append(problems, "items must not be empty")
	}
	items := make([]domain.RefundItem, 0, len(req.Items))
	amount := decimal.Zero
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
		item := domain.RefundItem{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Reason:    strings.TrimSpace(line.Reason),
		}
		amount = amount.Add(item.Amount())
		items = append(items, item)
	}
	if len(problems) > 0 {
		return domain.Refund{}, &ValidationError{Fields: problems}
	}

	refund := domain.Refund{
		SaleID:       strings.TrimSpace(req.SaleID),
		Reason:       defaultString(req.Reason, "Customer return"),
		RefundedBy:   actorID(ctx),
		RefundAmount: amount,
		Items:        items,
	}
	created, err := s.repo.CreateRefund(ctx, scope, refund, store.RefundOptions{ReverseLoyalty: s.opts.ReverseLoyalty})
	if err != nil {
		return domain.Refund{}, err
	}

	s.publish(ctx, notify.KindRefundCreated, created.OwnerID, created.ID, map[string]any{
		"sale_id":       created.SaleID,
		"refund_amount": created.RefundAmount,
		"items":         len(created.Items),
	})
	return *created, nil
}

func (s *Service) ListRefunds(ctx context.Context, saleID string) ([]domain.Refund, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRefunds(ctx, scope, strings.TrimSpace(saleID))
}
