package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/ledger"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/tenant"
)

func newIntegrationStore(t *testing.T) (*Store, tenant.Scope, string) {
	t.Helper()
	databaseURL := os.Getenv("PHARMALEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PHARMALEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	rootID := fmt.Sprintf("usr-it-%d", time.Now().UnixNano())
	if _, err := s.CreateUser(ctx, domain.User{
		ID:           rootID,
		Email:        rootID + "@pharmaledger.test",
		Name:         "Integration Tenant",
		PasswordHash: "not-a-real-hash",
		Role:         domain.RoleAdmin,
		OwnerID:      rootID,
		Active:       true,
	}); err != nil {
		t.Fatalf("create tenant root: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.DeleteTenant(ctx, rootID)
		_ = s.Close()
	})
	return s, tenant.ForTenant(rootID), rootID
}

func TestSaleRefundAndCascadeAgainstPostgres(t *testing.T) {
	s, scope, rootID := newIntegrationStore(t)
	ctx := context.Background()

	branch, err := s.EnsureDefaultBranch(ctx, scope, "Main Branch")
	if err != nil {
		t.Fatalf("ensure branch: %v", err)
	}
	product, err := s.CreateProduct(ctx, scope, domain.Product{
		BranchID:     branch.ID,
		Name:         "Paracetamol 500mg",
		Barcode:      "IT-" + rootID,
		SellingPrice: decimal.NewFromInt(50),
		CostPrice:    decimal.NewFromInt(35),
		UnitType:     "tablets",
	}, &domain.StockMovement{Type: domain.MovementIn, Quantity: 5, Reason: "Initial stock", CreatedBy: rootID})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.Stock != 5 {
		t.Fatalf("expected stock 5, got %d", product.Stock)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateSale(ctx, scope, domain.Sale{
				BranchID:      branch.ID,
				CashierID:     rootID,
				Subtotal:      decimal.NewFromInt(50),
				TaxRate:       decimal.Zero,
				Tax:           decimal.Zero,
				Discount:      decimal.Zero,
				Total:         decimal.NewFromInt(50),
				PaymentMethod: domain.PaymentCash,
				Items:         []domain.SaleItem{{ProductID: product.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(50), LineTotal: decimal.NewFromInt(50)}},
				Receipt:       &domain.Receipt{ReceiptNumber: fmt.Sprintf("RCP-IT-%s-%d", rootID, i)},
			})
			if err != nil && !errors.Is(err, store.ErrInsufficientStock) {
				t.Errorf("unexpected sale error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if accepted != 5 {
		t.Fatalf("expected 5 accepted sales, got %d", accepted)
	}

	sales, err := s.ListSales(ctx, scope, 0)
	if err != nil || len(sales) != 5 {
		t.Fatalf("expected 5 sales, got %d err=%v", len(sales), err)
	}
	if _, err := s.CreateRefund(ctx, scope, domain.Refund{
		SaleID:       sales[0].ID,
		Reason:       "damaged",
		RefundedBy:   rootID,
		RefundAmount: decimal.NewFromInt(50),
		Items:        []domain.RefundItem{{ProductID: product.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(50)}},
	}, store.RefundOptions{ReverseLoyalty: true}); err != nil {
		t.Fatalf("create refund: %v", err)
	}

	current, err := s.GetProduct(ctx, scope, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	movements, err := s.ListMovements(ctx, scope, product.ID, 0)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if report := ledger.Reconcile(*current, movements); !report.Consistent || current.Stock != 1 {
		t.Fatalf("expected consistent ledger at stock 1, got %+v", report)
	}

	report, err := s.DeleteTenant(ctx, rootID)
	if err != nil {
		t.Fatalf("delete tenant: %v", err)
	}
	if report.Total() == 0 {
		t.Fatalf("expected rows to be deleted")
	}
	if _, err := s.GetUserByID(ctx, rootID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("tenant root must be gone, got %v", err)
	}
}

func TestSaleItemsKeepCartOrder(t *testing.T) {
	s, scope, rootID := newIntegrationStore(t)
	ctx := context.Background()

	branch, err := s.EnsureDefaultBranch(ctx, scope, "Main Branch")
	if err != nil {
		t.Fatalf("ensure branch: %v", err)
	}
	// Ids are chosen so product order differs from cart order.
	ids := []string{"prd-it-z-" + rootID, "prd-it-a-" + rootID, "prd-it-m-" + rootID}
	for i, id := range ids {
		if _, err := s.CreateProduct(ctx, scope, domain.Product{
			ID:           id,
			BranchID:     branch.ID,
			Name:         fmt.Sprintf("Cart Item %d", i),
			Barcode:      fmt.Sprintf("IT-CART-%d-%s", i, rootID),
			SellingPrice: decimal.NewFromInt(10),
			UnitType:     "tablets",
		}, &domain.StockMovement{Type: domain.MovementIn, Quantity: 3, Reason: "Initial stock", CreatedBy: rootID}); err != nil {
			t.Fatalf("create product %s: %v", id, err)
		}
	}

	items := make([]domain.SaleItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, domain.SaleItem{ProductID: id, Quantity: 1, UnitPrice: decimal.NewFromInt(10), LineTotal: decimal.NewFromInt(10)})
	}
	sale, err := s.CreateSale(ctx, scope, domain.Sale{
		BranchID:      branch.ID,
		CashierID:     rootID,
		Subtotal:      decimal.NewFromInt(30),
		TaxRate:       decimal.Zero,
		Tax:           decimal.Zero,
		Discount:      decimal.Zero,
		Total:         decimal.NewFromInt(30),
		PaymentMethod: domain.PaymentCash,
		Items:         items,
		Receipt:       &domain.Receipt{ReceiptNumber: "RCP-IT-CART-" + rootID},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	for i, item := range sale.Items {
		if item.ProductID != ids[i] {
			t.Fatalf("item %d: expected %s, got %s", i, ids[i], item.ProductID)
		}
	}
}

func TestConcurrentImportsOfSameNameMerge(t *testing.T) {
	s, scope, rootID := newIntegrationStore(t)
	ctx := context.Background()

	branch, err := s.EnsureDefaultBranch(ctx, scope, "Main Branch")
	if err != nil {
		t.Fatalf("ensure branch: %v", err)
	}

	const workers = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	created, merged := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := s.ImportProduct(ctx, scope, store.ProductImport{
				Product: domain.Product{
					BranchID:     branch.ID,
					Name:         "Cetirizine 10mg",
					Barcode:      fmt.Sprintf("IT-IMP-%d-%s", i, rootID),
					SellingPrice: decimal.NewFromInt(12),
					CostPrice:    decimal.NewFromInt(8),
					UnitType:     "tablets",
				},
				Quantity:     2,
				CreatedBy:    rootID,
				CreateReason: "Bulk Import",
				MergeReason:  "Bulk Import - Stock Update",
			})
			if err != nil {
				t.Errorf("import %d: %v", i, err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if outcome.Merged {
				merged++
			} else {
				created++
			}
		}(i)
	}
	wg.Wait()

	if created != 1 || merged != workers-1 {
		t.Fatalf("expected 1 created and %d merged, got %d/%d", workers-1, created, merged)
	}
	products, err := s.ListProducts(ctx, scope, domain.ProductFilter{})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	for _, product := range products {
		if product.Name == "Cetirizine 10mg" && product.Stock != 2*workers {
			t.Fatalf("expected merged stock %d, got %d", 2*workers, product.Stock)
		}
	}
}
