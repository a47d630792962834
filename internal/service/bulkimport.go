package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/notify"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/tenant"
)

const (
	importDefaultPrice       = 100
	importDefaultMinStock    = 10
	importDefaultUnit        = "tablets"
	importDefaultDescription = "Imported product"
	importDefaultBranch      = "Main Branch"
	importDefaultCategory    = "Uncategorized"
	importCreateReason       = "Bulk Import"
	importMergeReason        = "Bulk Import - Stock Update"
	// importDefaultSupplier is the supplier_id value that selects the
	// tenant's default supplier explicitly.
	importDefaultSupplier = "default"
)

var importCostRatio = decimal.RequireFromString("0.7")

// ImportProducts reconciles external product rows into the catalog. Every
// row runs in its own failure boundary; the batch itself never fails once
// the caller is authorized.
func (s *Service) ImportProducts(ctx context.Context, rows []domain.ImportRow) (domain.ImportResult, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.ImportResult{}, err
	}

	// An unrestricted caller has no tenant of its own to import into.
	if scope.Unrestricted() {
		problems := make([]string, 0)
		for i, row := range rows {
			if strings.TrimSpace(row.BranchID) == "" {
				problems = append(problems, fmt.Sprintf("rows[%d].branch_id is required", i+1))
			}
		}
		if len(problems) > 0 {
			return domain.ImportResult{}, &ValidationError{Fields: problems}
		}
	}

	result := domain.ImportResult{
		Total:     len(rows),
		Rows:      make([]domain.ImportRowResult, 0, len(rows)),
		StartedAt: s.now(),
	}
	for i, row := range rows {
		outcome := s.importRow(ctx, scope, i+1, row)
		if outcome.Outcome == domain.ImportFailed {
			result.Failed++
			if strings.Contains(outcome.Error, "already exists") {
				result.Skipped++
			}
		} else {
			result.Successful++
		}
		result.Rows = append(result.Rows, outcome)
	}
	result.FinishedAt = s.now()

	if owner, err := scope.Owner(); err == nil {
		s.publish(ctx, notify.KindImportCompleted, owner, "", map[string]any{
			"total":      result.Total,
			"successful": result.Successful,
			"failed":     result.Failed,
		})
	}
	log.Printf("[import] %s: %d rows, %d ok, %d failed (%d skipped)", scope, result.Total, result.Successful, result.Failed, result.Skipped)
	return result, nil
}

func (s *Service) importRow(ctx context.Context, scope tenant.Scope, index int, row domain.ImportRow) (res domain.ImportRowResult) {
	name := strings.TrimSpace(row.Name)
	if name == "" {
		name = fmt.Sprintf("Imported Product %d", index)
	}
	res = domain.ImportRowResult{Row: index, Name: name}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[import] WARN: row %d aborted: %v", index, r)
			res.Outcome = domain.ImportFailed
			res.ProductID = ""
			res.Error = fmt.Sprint(r)
		}
	}()

	fail := func(err error) domain.ImportRowResult {
		res.Outcome = domain.ImportFailed
		res.Error = err.Error()
		return res
	}

	product, quantity := importDefaults(name, row)

	// Dependencies are resolved in the tenant that owns the target branch.
	product.BranchID = strings.TrimSpace(row.BranchID)
	if product.BranchID == "" {
		branch, err := s.repo.EnsureDefaultBranch(ctx, scope, importDefaultBranch)
		if err != nil {
			return fail(fmt.Errorf("branch: %w", err))
		}
		product.BranchID = branch.ID
	} else {
		tenantScope, err := s.branchScope(ctx, scope, product.BranchID)
		if err != nil {
			return fail(fmt.Errorf("branch: %w", err))
		}
		scope = tenantScope
	}

	category, err := s.resolveImportCategory(ctx, scope, row)
	if err != nil {
		return fail(fmt.Errorf("category: %w", err))
	}
	product.CategoryID = category.ID

	supplier, err := s.resolveImportSupplier(ctx, scope, row)
	if err != nil {
		return fail(fmt.Errorf("supplier: %w", err))
	}
	product.SupplierID = supplier.ID

	if product.Barcode != "" {
		taken, err := s.repo.BarcodeExists(ctx, scope, product.Barcode)
		if err != nil {
			return fail(err)
		}
		if taken {
			product.Barcode = ""
		}
	}
	if product.Barcode == "" {
		if product.Barcode, err = s.uniqueBarcode(ctx, scope); err != nil {
			return fail(err)
		}
	}

	outcome, err := s.repo.ImportProduct(ctx, scope, store.ProductImport{
		Product:      product,
		Quantity:     quantity,
		CreatedBy:    actorID(ctx),
		CreateReason: importCreateReason,
		MergeReason:  importMergeReason,
	})
	if err != nil {
		return fail(err)
	}

	res.ProductID = outcome.Product.ID
	res.Outcome = domain.ImportCreated
	if outcome.Merged {
		res.Outcome = domain.ImportMerged
	}
	return res
}

// importDefaults fills every missing or unparsable field of a row.
func importDefaults(name string, row domain.ImportRow) (domain.Product, int) {
	price, err := decimal.NewFromString(strings.TrimSpace(row.Price))
	if err != nil || !price.IsPositive() {
		price = decimal.NewFromInt(importDefaultPrice)
	}
	cost, err := decimal.NewFromString(strings.TrimSpace(row.CostPrice))
	if err != nil || cost.IsNegative() {
		cost = price.Mul(importCostRatio).Round(2)
	}

	product := domain.Product{
		Name:         name,
		Description:  defaultString(row.Description, importDefaultDescription),
		Barcode:      strings.TrimSpace(row.Barcode),
		CostPrice:    cost,
		SellingPrice: price,
		MinStock:     parseNonNegative(row.MinStock, importDefaultMinStock),
		UnitType:     defaultString(row.UnitType, importDefaultUnit),
	}
	product.MaxStock = parseNonNegative(row.MaxStock, product.MinStock*10)
	return product, parseNonNegative(row.Stock, 0)
}

func parseNonNegative(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func (s *Service) resolveImportCategory(ctx context.Context, scope tenant.Scope, row domain.ImportRow) (*domain.Category, error) {
	if id := strings.TrimSpace(row.CategoryID); id != "" {
		category, err := s.repo.GetCategory(ctx, scope, id)
		if err == nil {
			return category, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return s.repo.EnsureCategory(ctx, scope, defaultString(row.CategoryName, importDefaultCategory))
}

func (s *Service) resolveImportSupplier(ctx context.Context, scope tenant.Scope, row domain.ImportRow) (*domain.Supplier, error) {
	if id := strings.TrimSpace(row.SupplierID); id != "" && !strings.EqualFold(id, importDefaultSupplier) {
		supplier, err := s.repo.GetSupplier(ctx, scope, id)
		if err == nil {
			return supplier, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return s.repo.EnsureDefaultSupplier(ctx, scope)
}
