package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/ledger"
	"pharmaledger/backend/internal/notify"
	"pharmaledger/backend/internal/tenant"
	"pharmaledger/backend/internal/xid"
)

const barcodeAttempts = 10

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, scope, filter)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, scope, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.BranchID = strings.TrimSpace(req.BranchID)
	req.Barcode = strings.TrimSpace(req.Barcode)

	problems := make([]string, 0, 4)
	if req.Name == "" {
		problems = append(problems, "name is required")
	}
	if req.BranchID == "" {
		problems = append(problems, "branch_id is required")
	}
	if !req.SellingPrice.IsPositive() {
		problems = append(problems, "selling_price must be positive")
	}
	if req.CostPrice.IsNegative() {
		problems = append(problems, "cost_price cannot be negative")
	}
	if req.InitialStock < 0 || req.MinStock < 0 || req.MaxStock < 0 {
		problems = append(problems, "stock levels cannot be negative")
	}
	if len(problems) > 0 {
		return domain.Product{}, &ValidationError{Fields: problems}
	}

	if req.Barcode == "" {
		req.Barcode, err = s.uniqueBarcode(ctx, scope)
		if err != nil {
			return domain.Product{}, err
		}
	}

	product := domain.Product{
		BranchID:     req.BranchID,
		CategoryID:   strings.TrimSpace(req.CategoryID),
		SupplierID:   strings.TrimSpace(req.SupplierID),
		Name:         req.Name,
		Description:  strings.TrimSpace(req.Description),
		Barcode:      req.Barcode,
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		MinStock:     req.MinStock,
		MaxStock:     req.MaxStock,
		UnitType:     defaultString(req.UnitType, "units"),
	}
	var initial *domain.StockMovement
	if req.InitialStock > 0 {
		initial = &domain.StockMovement{
			Type:      domain.MovementIn,
			Quantity:  req.InitialStock,
			Reason:    "Initial stock",
			CreatedBy: actorID(ctx),
		}
	}

	created, err := s.repo.CreateProduct(ctx, scope, product, initial)
	if err != nil {
		return domain.Product{}, err
	}
	s.publish(ctx, notify.KindProductCreated, created.OwnerID, created.ID, created)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	existing, err := s.repo.GetProduct(ctx, scope, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.CategoryID != nil {
		updated.CategoryID = strings.TrimSpace(*req.CategoryID)
	}
	if req.SupplierID != nil {
		updated.SupplierID = strings.TrimSpace(*req.SupplierID)
	}
	if req.CostPrice != nil {
		updated.CostPrice = *req.CostPrice
	}
	if req.SellingPrice != nil {
		updated.SellingPrice = *req.SellingPrice
	}
	if req.MinStock != nil {
		updated.MinStock = *req.MinStock
	}
	if req.MaxStock != nil {
		updated.MaxStock = *req.MaxStock
	}
	if req.UnitType != nil {
		updated.UnitType = strings.TrimSpace(*req.UnitType)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	problems := make([]string, 0, 3)
	if updated.Name == "" {
		problems = append(problems, "name is required")
	}
	if !updated.SellingPrice.IsPositive() {
		problems = append(problems, "selling_price must be positive")
	}
	if updated.CostPrice.IsNegative() {
		problems = append(problems, "cost_price cannot be negative")
	}
	if updated.MinStock < 0 || updated.MaxStock < 0 {
		problems = append(problems, "stock levels cannot be negative")
	}
	if len(problems) > 0 {
		return domain.Product{}, &ValidationError{Fields: problems}
	}

	saved, err := s.repo.UpdateProduct(ctx, scope, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.publish(ctx, notify.KindProductUpdated, saved.OwnerID, saved.ID, saved)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	scope, err := s.scope(ctx)
	if err != nil {
		return err
	}
	existing, err := s.repo.GetProduct(ctx, scope, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, scope, existing.ID); err != nil {
		return err
	}
	s.publish(ctx, notify.KindProductDeleted, existing.OwnerID, existing.ID, nil)
	return nil
}

// ApplyMovement records a manual stock movement against one product.
func (s *Service) ApplyMovement(ctx context.Context, productID string, req domain.StockMovementRequest) (domain.StockMovement, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.StockMovement{}, err
	}
	if !req.Type.Valid() {
		return domain.StockMovement{}, invalid(fmt.Sprintf("type %q is not a stock movement type", req.Type))
	}

	movement, product, err := s.repo.ApplyMovement(ctx, scope, domain.StockMovement{
		ProductID: strings.TrimSpace(productID),
		Type:      req.Type,
		Quantity:  req.Quantity,
		Reason:    defaultString(req.Reason, "Manual "+strings.ToLower(string(req.Type))),
		CreatedBy: actorID(ctx),
	})
	if err != nil {
		return domain.StockMovement{}, err
	}
	s.publish(ctx, notify.KindStockAdjusted, product.OwnerID, product.ID, map[string]any{
		"type":  movement.Type,
		"delta": movement.Delta,
		"stock": product.Stock,
	})
	return *movement, nil
}

func (s *Service) ListMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, scope, strings.TrimSpace(productID), limit)
}

// Reconcile replays the product's movements and compares the result with
// its current stock.
func (s *Service) Reconcile(ctx context.Context, productID string) (domain.ReconciliationReport, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.ReconciliationReport{}, err
	}
	product, err := s.repo.GetProduct(ctx, scope, strings.TrimSpace(productID))
	if err != nil {
		return domain.ReconciliationReport{}, err
	}
	movements, err := s.repo.ListMovements(ctx, scope, product.ID, 0)
	if err != nil {
		return domain.ReconciliationReport{}, err
	}
	return ledger.Reconcile(*product, movements), nil
}

func (s *Service) uniqueBarcode(ctx context.Context, scope tenant.Scope) (string, error) {
	for i := 0; i < barcodeAttempts; i++ {
		candidate := xid.Barcode()
		exists, err := s.repo.BarcodeExists(ctx, scope, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", errors.New("could not generate a unique barcode")
}
