package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmaledger/backend/internal/cache"
	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/notify"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/store/memory"
	"pharmaledger/backend/internal/tenant"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]string, 0, len(p.events))
	for _, event := range p.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func newTestService() (*Service, *memory.Store, *recordingPublisher) {
	repo := memory.NewSeeded()
	publisher := &recordingPublisher{}
	svc := New(repo, cache.NewMemorySettingsCache(), publisher, Options{
		DefaultTaxPercent: decimal.NewFromInt(17),
		ReverseLoyalty:    true,
		SettingsTTL:       time.Minute,
	})
	return svc, repo, publisher
}

func adminCtx() context.Context {
	return tenant.WithPrincipal(context.Background(), domain.Principal{ID: "usr-admin", Role: domain.RoleAdmin, OwnerID: "usr-admin"})
}

func cashierCtx() context.Context {
	return tenant.WithPrincipal(context.Background(), domain.Principal{ID: "usr-cashier", Role: domain.RoleCashier, OwnerID: "usr-admin"})
}

func superCtx() context.Context {
	return tenant.WithPrincipal(context.Background(), domain.Principal{ID: "usr-super", Role: domain.RoleSuperAdmin})
}

func setTax(t *testing.T, svc *Service, percent int64) {
	t.Helper()
	tax := decimal.NewFromInt(percent)
	if _, err := svc.UpdateSettings(adminCtx(), domain.SettingsUpdateRequest{DefaultTax: &tax}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
}

func assertLedgerConsistent(t *testing.T, svc *Service) {
	t.Helper()
	products, err := svc.ListProducts(adminCtx(), domain.ProductFilter{})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	for _, product := range products {
		report, err := svc.Reconcile(adminCtx(), product.ID)
		if err != nil {
			t.Fatalf("reconcile %s: %v", product.ID, err)
		}
		if !report.Consistent {
			t.Fatalf("ledger drift for %s: %+v", product.Name, report)
		}
	}
}

func TestCreateSaleRoundTrip(t *testing.T) {
	svc, _, publisher := newTestService()
	setTax(t, svc, 10)

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		BranchID:      "brn-main",
		PaymentMethod: domain.PaymentCash,
		Items: []domain.SaleItemRequest{
			{ProductID: "prd-paracetamol", Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
			{ProductID: "prd-ibuprofen", Quantity: 1, UnitPrice: decimal.NewFromInt(30)},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if !sale.Subtotal.Equal(decimal.NewFromInt(130)) || !sale.Tax.Equal(decimal.NewFromInt(13)) || !sale.Total.Equal(decimal.NewFromInt(143)) {
		t.Fatalf("unexpected totals subtotal=%s tax=%s total=%s", sale.Subtotal, sale.Tax, sale.Total)
	}
	if sale.CashierID != "usr-cashier" || sale.OwnerID != "usr-admin" {
		t.Fatalf("sale must be stamped with cashier and tenant, got %+v", sale)
	}
	if sale.Receipt == nil || !regexp.MustCompile(`^RCP-\d{8}-\d{3,6}$`).MatchString(sale.Receipt.ReceiptNumber) {
		t.Fatalf("unexpected receipt %+v", sale.Receipt)
	}
	if sale.Branch == nil || sale.Branch.ID != "brn-main" {
		t.Fatalf("expected hydrated branch, got %+v", sale.Branch)
	}

	paracetamol, _ := svc.GetProduct(adminCtx(), "prd-paracetamol")
	ibuprofen, _ := svc.GetProduct(adminCtx(), "prd-ibuprofen")
	if paracetamol.Stock != 98 || ibuprofen.Stock != 39 {
		t.Fatalf("unexpected stock after sale: %d / %d", paracetamol.Stock, ibuprofen.Stock)
	}

	kinds := publisher.kinds()
	if len(kinds) == 0 || kinds[len(kinds)-1] != notify.KindSaleCreated {
		t.Fatalf("expected sale.created event, got %v", kinds)
	}
	assertLedgerConsistent(t, svc)
}

func TestCreateSaleUsesDefaultTaxWhenUnset(t *testing.T) {
	svc, _, _ := newTestService()

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		BranchID:      "brn-main",
		PaymentMethod: domain.PaymentCard,
		Items:         []domain.SaleItemRequest{{ProductID: "prd-vitamin-c", Quantity: 1, UnitPrice: decimal.NewFromInt(100)}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if !sale.TaxRate.Equal(decimal.NewFromInt(17)) || !sale.Tax.Equal(decimal.NewFromInt(17)) {
		t.Fatalf("expected 17%% default tax, got rate=%s tax=%s", sale.TaxRate, sale.Tax)
	}
}

func TestCreateSaleOversellPersistsNothing(t *testing.T) {
	svc, _, publisher := newTestService()

	before, _ := svc.ListMovements(adminCtx(), "prd-paracetamol", 0)
	_, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		BranchID:      "brn-main",
		PaymentMethod: domain.PaymentCash,
		Items: []domain.SaleItemRequest{
			{ProductID: "prd-paracetamol", Quantity: 3, UnitPrice: decimal.NewFromInt(50)},
			{ProductID: "prd-ors", Quantity: 6, UnitPrice: decimal.NewFromInt(15)},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	sales, _ := svc.ListSales(adminCtx(), 0)
	after, _ := svc.ListMovements(adminCtx(), "prd-paracetamol", 0)
	if len(sales) != 0 || len(after) != len(before) {
		t.Fatalf("failed sale left rows behind: sales=%d movements %d->%d", len(sales), len(before), len(after))
	}
	for _, kind := range publisher.kinds() {
		if kind == notify.KindSaleCreated {
			t.Fatalf("failed sale must not notify")
		}
	}
}

func TestCreateSaleUnknownProduct(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		BranchID:      "brn-main",
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleItemRequest{{ProductID: "prd-missing", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentSalesDoNotOversell(t *testing.T) {
	svc, _, _ := newTestService()
	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		BranchID:     "brn-main",
		Name:         "Salbutamol Inhaler",
		SellingPrice: decimal.NewFromInt(90),
		CostPrice:    decimal.NewFromInt(60),
		InitialStock: 5,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateSale(cashierCtx(), domain.SaleRequest{
				BranchID:      "brn-main",
				PaymentMethod: domain.PaymentCash,
				Items:         []domain.SaleItemRequest{{ProductID: product.ID, Quantity: 5, UnitPrice: decimal.NewFromInt(90)}},
			})
		}(i)
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Fatalf("expected one success and one rejection, got %d/%d", succeeded, rejected)
	}
	current, _ := svc.GetProduct(adminCtx(), product.ID)
	if current.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", current.Stock)
	}
}

func TestCreateSaleValidation(t *testing.T) {
	svc, _, _ := newTestService()

	cases := []domain.SaleRequest{
		{BranchID: "brn-main", PaymentMethod: domain.PaymentCash},
		{BranchID: "brn-main", PaymentMethod: "CHEQUE", Items: []domain.SaleItemRequest{{ProductID: "prd-ors", Quantity: 1, UnitPrice: decimal.NewFromInt(15)}}},
		{BranchID: "brn-main", PaymentMethod: domain.PaymentCash, Items: []domain.SaleItemRequest{{ProductID: "prd-ors", Quantity: 0, UnitPrice: decimal.NewFromInt(15)}}},
		{BranchID: "brn-main", PaymentMethod: domain.PaymentCash, Discount: decimal.NewFromInt(1000), Items: []domain.SaleItemRequest{{ProductID: "prd-ors", Quantity: 1, UnitPrice: decimal.NewFromInt(15)}}},
	}
	for i, req := range cases {
		_, err := svc.CreateSale(cashierCtx(), req)
		var verr *ValidationError
		if !errors.As(err, &verr) || !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
		if len(verr.Fields) == 0 {
			t.Fatalf("case %d: expected field messages", i)
		}
	}
}

func TestOperationsWithoutPrincipalAreUnauthorized(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.ListProducts(context.Background(), domain.ProductFilter{}); !errors.Is(err, tenant.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := svc.CreateSale(context.Background(), domain.SaleRequest{}); !errors.Is(err, tenant.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestRefundReturnsStockAndReversesLoyalty(t *testing.T) {
	svc, _, publisher := newTestService()
	setTax(t, svc, 0)

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		BranchID:      "brn-main",
		CustomerID:    "cus-regular",
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleItemRequest{{ProductID: "prd-amoxicillin", Quantity: 3, UnitPrice: decimal.NewFromInt(120)}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	customer, _ := svc.GetCustomer(adminCtx(), "cus-regular")
	if customer.LoyaltyPoints != 3 || !customer.TotalPurchases.Equal(decimal.NewFromInt(360)) || customer.LastVisit == nil {
		t.Fatalf("unexpected customer after sale %+v", customer)
	}

	refund, err := svc.CreateRefund(adminCtx(), domain.RefundRequest{
		SaleID: sale.ID,
		Reason: "adverse reaction",
		Items:  []domain.RefundItemRequest{{ProductID: "prd-amoxicillin", Quantity: 2, UnitPrice: decimal.NewFromInt(120)}},
	})
	if err != nil {
		t.Fatalf("create refund: %v", err)
	}
	if !refund.RefundAmount.Equal(decimal.NewFromInt(240)) || len(refund.Items) != 1 {
		t.Fatalf("unexpected refund %+v", refund)
	}

	movements, _ := svc.ListMovements(adminCtx(), "prd-amoxicillin", 0)
	last := movements[len(movements)-1]
	if last.Type != domain.MovementReturn || last.Quantity != 2 || last.ReferenceID != refund.ID || last.Reason != "Refund: adverse reaction" {
		t.Fatalf("unexpected refund movement %+v", last)
	}
	product, _ := svc.GetProduct(adminCtx(), "prd-amoxicillin")
	if product.Stock != 24 {
		t.Fatalf("expected stock 24, got %d", product.Stock)
	}
	updated, _ := svc.GetSale(adminCtx(), sale.ID)
	if updated.Status != domain.SaleStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", updated.Status)
	}
	customer, _ = svc.GetCustomer(adminCtx(), "cus-regular")
	if customer.LoyaltyPoints != 1 || !customer.TotalPurchases.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected loyalty reversal, got %+v", customer)
	}

	if _, err := svc.CreateRefund(adminCtx(), domain.RefundRequest{
		SaleID: sale.ID,
		Items:  []domain.RefundItemRequest{{ProductID: "prd-amoxicillin", Quantity: 2, UnitPrice: decimal.NewFromInt(120)}},
	}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected refund beyond sold quantity to be rejected, got %v", err)
	}
	refunds, _ := svc.ListRefunds(adminCtx(), sale.ID)
	if len(refunds) != 1 {
		t.Fatalf("expected one refund, got %d", len(refunds))
	}

	kinds := publisher.kinds()
	if kinds[len(kinds)-1] != notify.KindRefundCreated {
		t.Fatalf("expected refund.created event, got %v", kinds)
	}
	assertLedgerConsistent(t, svc)
}

func TestRefundUnknownSale(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateRefund(adminCtx(), domain.RefundRequest{
		SaleID: "sale-missing",
		Items:  []domain.RefundItemRequest{{ProductID: "prd-ors", Quantity: 1, UnitPrice: decimal.NewFromInt(15)}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestImportMergesSameNameInBranch(t *testing.T) {
	svc, _, _ := newTestService()
	rows := []domain.ImportRow{{Name: "Cetirizine 10mg", Stock: "5"}}

	first, err := svc.ImportProducts(adminCtx(), rows)
	if err != nil || first.Successful != 1 || first.Rows[0].Outcome != domain.ImportCreated {
		t.Fatalf("unexpected first import %+v err=%v", first, err)
	}
	second, err := svc.ImportProducts(adminCtx(), []domain.ImportRow{{Name: "Cetirizine 10mg", Stock: "7", Price: "45"}})
	if err != nil || second.Successful != 1 || second.Rows[0].Outcome != domain.ImportMerged {
		t.Fatalf("unexpected second import %+v err=%v", second, err)
	}
	if second.Rows[0].ProductID != first.Rows[0].ProductID {
		t.Fatalf("merge must target the same product")
	}

	product, _ := svc.GetProduct(adminCtx(), first.Rows[0].ProductID)
	if product.Stock != 12 || !product.SellingPrice.Equal(decimal.NewFromInt(45)) {
		t.Fatalf("expected merged stock 12 at price 45, got %+v", product)
	}
	if product.BranchID != "brn-main" || product.SupplierID != "sup-default" || product.UnitType != "tablets" || product.MinStock != 10 {
		t.Fatalf("import defaults not applied: %+v", product)
	}
	if len(product.Barcode) != 16 {
		t.Fatalf("expected generated barcode, got %q", product.Barcode)
	}

	matches, _ := svc.ListProducts(adminCtx(), domain.ProductFilter{})
	count := 0
	for _, p := range matches {
		if p.Name == "Cetirizine 10mg" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one product row, got %d", count)
	}
	assertLedgerConsistent(t, svc)
}

func TestImportAppliesDefaults(t *testing.T) {
	svc, _, _ := newTestService()
	result, err := svc.ImportProducts(adminCtx(), []domain.ImportRow{{CategoryName: "Antihistamines", Price: "not-a-number"}})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	product, err := svc.GetProduct(adminCtx(), result.Rows[0].ProductID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Name != "Imported Product 1" || !product.SellingPrice.Equal(decimal.NewFromInt(100)) || !product.CostPrice.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("unexpected defaults %+v", product)
	}
	if product.Stock != 0 || product.Description != "Imported product" {
		t.Fatalf("unexpected defaults %+v", product)
	}
	categories, _ := svc.ListCategories(adminCtx())
	found := false
	for _, category := range categories {
		if category.ID == product.CategoryID && category.Name == "Antihistamines" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected category to be created by name")
	}
}

func TestImportRowFailureDoesNotAbortBatch(t *testing.T) {
	svc, _, _ := newTestService()
	result, err := svc.ImportProducts(adminCtx(), []domain.ImportRow{
		{Name: "Orphan", BranchID: "brn-missing", Stock: "3"},
		{Name: "Loratadine 10mg", Stock: "4"},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Total != 2 || result.Failed != 1 || result.Successful != 1 {
		t.Fatalf("unexpected counts %+v", result)
	}
	if result.Rows[0].Outcome != domain.ImportFailed || result.Rows[0].Error == "" {
		t.Fatalf("expected first row failure, got %+v", result.Rows[0])
	}
}

func TestImportRegeneratesTakenBarcode(t *testing.T) {
	svc, _, _ := newTestService()
	paracetamol, _ := svc.GetProduct(adminCtx(), "prd-paracetamol")
	result, err := svc.ImportProducts(adminCtx(), []domain.ImportRow{{Name: "Naproxen 250mg", Barcode: paracetamol.Barcode}})
	if err != nil || result.Successful != 1 {
		t.Fatalf("unexpected import %+v err=%v", result, err)
	}
	product, _ := svc.GetProduct(adminCtx(), result.Rows[0].ProductID)
	if product.Barcode == paracetamol.Barcode {
		t.Fatalf("expected a fresh barcode")
	}
}

func TestManualMovementsAndReconciliation(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.ApplyMovement(adminCtx(), "prd-ors", domain.StockMovementRequest{Type: domain.MovementIn, Quantity: 20}); err != nil {
		t.Fatalf("stock in: %v", err)
	}
	if _, err := svc.ApplyMovement(adminCtx(), "prd-ors", domain.StockMovementRequest{Type: domain.MovementAdjustment, Quantity: 12, Reason: "cycle count"}); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if _, err := svc.ApplyMovement(adminCtx(), "prd-ors", domain.StockMovementRequest{Type: domain.MovementOut, Quantity: 13}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if _, err := svc.ApplyMovement(adminCtx(), "prd-ors", domain.StockMovementRequest{Type: "TRANSFER", Quantity: 1}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	report, err := svc.Reconcile(adminCtx(), "prd-ors")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.Consistent || report.Stock != 12 || report.Movements != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestLowStockFilter(t *testing.T) {
	svc, _, _ := newTestService()
	low, err := svc.ListProducts(adminCtx(), domain.ProductFilter{LowStock: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(low) != 1 || low[0].ID != "prd-ors" {
		t.Fatalf("expected only ORS to be low, got %+v", low)
	}
}

func TestDeleteProductReferencedBySaleIsRefused(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		BranchID:      "brn-main",
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleItemRequest{{ProductID: "prd-ibuprofen", Quantity: 1, UnitPrice: decimal.NewFromInt(30)}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if err := svc.DeleteProduct(adminCtx(), "prd-ibuprofen"); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := svc.DeleteProduct(adminCtx(), "prd-vitamin-c"); err != nil {
		t.Fatalf("delete unreferenced product: %v", err)
	}
	if _, err := svc.GetProduct(adminCtx(), "prd-vitamin-c"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected product gone, got %v", err)
	}
}

func TestSettingsAreCachedPerTenant(t *testing.T) {
	svc, _, _ := newTestService()
	settings, err := svc.GetSettings(adminCtx())
	if err != nil || !settings.DefaultTax.Equal(decimal.NewFromInt(17)) {
		t.Fatalf("expected default 17, got %+v err=%v", settings, err)
	}
	setTax(t, svc, 11)
	settings, _ = svc.GetSettings(cashierCtx())
	if !settings.DefaultTax.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("expected staff to see tenant tax 11, got %s", settings.DefaultTax)
	}

	bad := decimal.NewFromInt(101)
	if _, err := svc.UpdateSettings(adminCtx(), domain.SettingsUpdateRequest{DefaultTax: &bad}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTenantsAreIsolated(t *testing.T) {
	svc, repo, _ := newTestService()
	if _, err := repo.CreateUser(context.Background(), domain.User{ID: "usr-other", Email: "other@pharmaledger.local", PasswordHash: "x", Role: domain.RoleAdmin, OwnerID: "usr-other"}); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	otherCtx := tenant.WithPrincipal(context.Background(), domain.Principal{ID: "usr-other", Role: domain.RoleAdmin, OwnerID: "usr-other"})

	products, err := svc.ListProducts(otherCtx, domain.ProductFilter{})
	if err != nil || len(products) != 0 {
		t.Fatalf("expected no visible products, got %d err=%v", len(products), err)
	}
	if _, err := svc.CreateSale(otherCtx, domain.SaleRequest{
		BranchID:      "brn-main",
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleItemRequest{{ProductID: "prd-ors", Quantity: 1, UnitPrice: decimal.NewFromInt(15)}},
	}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for foreign branch, got %v", err)
	}

	branch, err := svc.CreateBranch(otherCtx, domain.BranchCreateRequest{Name: "Other Pharmacy"})
	if err != nil || branch.OwnerID != "usr-other" {
		t.Fatalf("expected branch stamped with caller tenant, got %+v err=%v", branch, err)
	}
}

func TestDeleteTenantCascade(t *testing.T) {
	svc, _, publisher := newTestService()
	sale, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		BranchID:      "brn-main",
		CustomerID:    "cus-regular",
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleItemRequest{{ProductID: "prd-ibuprofen", Quantity: 2, UnitPrice: decimal.NewFromInt(30)}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := svc.CreateRefund(adminCtx(), domain.RefundRequest{SaleID: sale.ID, Items: []domain.RefundItemRequest{{ProductID: "prd-ibuprofen", Quantity: 1, UnitPrice: decimal.NewFromInt(30)}}}); err != nil {
		t.Fatalf("create refund: %v", err)
	}

	if _, err := svc.DeleteTenant(adminCtx(), "usr-admin"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for tenant admin, got %v", err)
	}

	report, err := svc.DeleteTenant(superCtx(), "usr-admin")
	if err != nil {
		t.Fatalf("delete tenant: %v", err)
	}
	rows := map[string]int64{}
	for _, entry := range report.Deleted {
		rows[entry.Table] = entry.Rows
	}
	if rows["sales"] != 1 || rows["refunds"] != 1 || rows["receipts"] != 1 || rows["products"] != 5 || rows["users"] != 2 {
		t.Fatalf("unexpected deletion counts %+v", rows)
	}
	if report.Deleted[0].Table != "refund_items" || report.Deleted[len(report.Deleted)-1].Table != "users" {
		t.Fatalf("unexpected deletion order %+v", report.Deleted)
	}

	remaining, err := svc.ListProducts(superCtx(), domain.ProductFilter{})
	if err != nil || len(remaining) != 0 {
		t.Fatalf("expected no products left, got %d err=%v", len(remaining), err)
	}
	if _, err := svc.DeleteTenant(superCtx(), "usr-admin"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}

	kinds := publisher.kinds()
	if kinds[len(kinds)-1] != notify.KindTenantDeleted {
		t.Fatalf("expected tenant.deleted event, got %v", kinds)
	}
}

func TestSuperAdminSaleUsesBranchTenantTax(t *testing.T) {
	svc, _, _ := newTestService()
	setTax(t, svc, 10)

	sale, err := svc.CreateSale(superCtx(), domain.SaleRequest{
		BranchID:      "brn-main",
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleItemRequest{{ProductID: "prd-paracetamol", Quantity: 1, UnitPrice: decimal.NewFromInt(100)}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.OwnerID != "usr-admin" || sale.CashierID != "usr-super" {
		t.Fatalf("expected sale in branch tenant by super admin, got owner=%s cashier=%s", sale.OwnerID, sale.CashierID)
	}
	if !sale.TaxRate.Equal(decimal.NewFromInt(10)) || !sale.Total.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("expected tenant tax 10%%, got rate=%s total=%s", sale.TaxRate, sale.Total)
	}

	if _, err := svc.CreateSale(superCtx(), domain.SaleRequest{
		BranchID:      "brn-missing",
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleItemRequest{{ProductID: "prd-paracetamol", Quantity: 1, UnitPrice: decimal.NewFromInt(100)}},
	}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown branch to be not found, got %v", err)
	}
}

func TestSuperAdminImportResolvesInBranchTenant(t *testing.T) {
	svc, _, _ := newTestService()

	result, err := svc.ImportProducts(superCtx(), []domain.ImportRow{
		{Name: "Diclofenac 50mg", BranchID: "brn-main", CategoryName: "Analgesics", Stock: "6"},
		{Name: "Paracetamol 500mg", BranchID: "brn-main", Stock: "2"},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Successful != 2 || result.Failed != 0 {
		t.Fatalf("unexpected counts %+v", result)
	}
	if result.Rows[1].Outcome != domain.ImportMerged {
		t.Fatalf("expected merge into tenant product, got %+v", result.Rows[1])
	}

	created, err := svc.GetProduct(adminCtx(), result.Rows[0].ProductID)
	if err != nil {
		t.Fatalf("tenant must see imported product: %v", err)
	}
	if created.OwnerID != "usr-admin" || created.CategoryID != "cat-analgesic" || created.Stock != 6 {
		t.Fatalf("unexpected imported product %+v", created)
	}
	suppliers, _ := svc.ListSuppliers(adminCtx())
	found := false
	for _, supplier := range suppliers {
		if supplier.ID == created.SupplierID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected default supplier to belong to the tenant")
	}

	categories, _ := svc.ListCategories(superCtx())
	for _, category := range categories {
		if category.OwnerID == "usr-super" {
			t.Fatalf("super admin must not own catalog rows, got %+v", category)
		}
	}
	suppliers, _ = svc.ListSuppliers(superCtx())
	for _, supplier := range suppliers {
		if supplier.OwnerID == "usr-super" {
			t.Fatalf("super admin must not own catalog rows, got %+v", supplier)
		}
	}
	assertLedgerConsistent(t, svc)
}

func TestSuperAdminImportRequiresBranch(t *testing.T) {
	svc, _, _ := newTestService()
	before, _ := svc.ListBranches(superCtx())

	_, err := svc.ImportProducts(superCtx(), []domain.ImportRow{
		{Name: "Cetirizine 10mg", BranchID: "brn-main"},
		{Name: "Loratadine 10mg"},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) != 1 {
		t.Fatalf("expected validation error for the row without branch, got %v", err)
	}

	after, _ := svc.ListBranches(superCtx())
	if len(after) != len(before) {
		t.Fatalf("expected no branch to be created, %d -> %d", len(before), len(after))
	}
	products, _ := svc.ListProducts(adminCtx(), domain.ProductFilter{})
	for _, product := range products {
		if product.Name == "Cetirizine 10mg" {
			t.Fatalf("expected rejected batch to write nothing")
		}
	}
}

func TestSuperAdminCreatesProductInBranchTenant(t *testing.T) {
	svc, _, _ := newTestService()

	product, err := svc.CreateProduct(superCtx(), domain.ProductCreateRequest{
		BranchID:     "brn-main",
		CategoryID:   "cat-analgesic",
		Name:         "Mefenamic Acid 500mg",
		SellingPrice: decimal.NewFromInt(25),
		CostPrice:    decimal.NewFromInt(15),
		InitialStock: 8,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.OwnerID != "usr-admin" || product.Stock != 8 {
		t.Fatalf("unexpected product %+v", product)
	}
	if _, err := svc.GetProduct(adminCtx(), product.ID); err != nil {
		t.Fatalf("tenant must see product created by super admin: %v", err)
	}
	assertLedgerConsistent(t, svc)
}
