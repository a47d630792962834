package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/tenant"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicate         = errors.New("already exists")
	// ErrReceiptConflict is returned when a receipt number is taken; the
	// whole sale was rolled back and may be retried with a new number.
	ErrReceiptConflict = errors.New("receipt number already exists")
)

// ProductImport is the write half of one bulk import row. The repository
// merges into an existing product with the same name in the same branch and
// tenant, or creates the product.
type ProductImport struct {
	Product      domain.Product
	Quantity     int
	CreatedBy    string
	CreateReason string
	MergeReason  string
}

type ImportOutcome struct {
	Product *domain.Product
	Merged  bool
}

// RefundOptions tune side effects of CreateRefund.
type RefundOptions struct {
	ReverseLoyalty bool
}

type Repository interface {
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, scope tenant.Scope) ([]domain.User, error)

	CreateBranch(ctx context.Context, scope tenant.Scope, branch domain.Branch) (*domain.Branch, error)
	GetBranch(ctx context.Context, scope tenant.Scope, id string) (*domain.Branch, error)
	ListBranches(ctx context.Context, scope tenant.Scope) ([]domain.Branch, error)
	EnsureDefaultBranch(ctx context.Context, scope tenant.Scope, name string) (*domain.Branch, error)

	CreateCategory(ctx context.Context, scope tenant.Scope, category domain.Category) (*domain.Category, error)
	GetCategory(ctx context.Context, scope tenant.Scope, id string) (*domain.Category, error)
	ListCategories(ctx context.Context, scope tenant.Scope) ([]domain.Category, error)
	EnsureCategory(ctx context.Context, scope tenant.Scope, name string) (*domain.Category, error)

	CreateSupplier(ctx context.Context, scope tenant.Scope, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, scope tenant.Scope, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context, scope tenant.Scope) ([]domain.Supplier, error)
	EnsureDefaultSupplier(ctx context.Context, scope tenant.Scope) (*domain.Supplier, error)

	CreateCustomer(ctx context.Context, scope tenant.Scope, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, scope tenant.Scope, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, scope tenant.Scope) ([]domain.Customer, error)

	CreateProduct(ctx context.Context, scope tenant.Scope, product domain.Product, initial *domain.StockMovement) (*domain.Product, error)
	GetProduct(ctx context.Context, scope tenant.Scope, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, scope tenant.Scope, filter domain.ProductFilter) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, scope tenant.Scope, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, scope tenant.Scope, id string) error
	BarcodeExists(ctx context.Context, scope tenant.Scope, barcode string) (bool, error)
	ImportProduct(ctx context.Context, scope tenant.Scope, row ProductImport) (*ImportOutcome, error)

	ApplyMovement(ctx context.Context, scope tenant.Scope, movement domain.StockMovement) (*domain.StockMovement, *domain.Product, error)
	ListMovements(ctx context.Context, scope tenant.Scope, productID string, limit int) ([]domain.StockMovement, error)

	GetSettings(ctx context.Context, scope tenant.Scope) (*domain.Settings, error)
	UpsertSettings(ctx context.Context, scope tenant.Scope, settings domain.Settings) (*domain.Settings, error)

	CreateSale(ctx context.Context, scope tenant.Scope, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, scope tenant.Scope, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, scope tenant.Scope, limit int) ([]domain.Sale, error)
	ReceiptNumberExists(ctx context.Context, number string) (bool, error)

	CreateRefund(ctx context.Context, scope tenant.Scope, refund domain.Refund, opts RefundOptions) (*domain.Refund, error)
	ListRefunds(ctx context.Context, scope tenant.Scope, saleID string) ([]domain.Refund, error)

	DeleteTenant(ctx context.Context, tenantID string) (*domain.TenantDeletionReport, error)
}

// LoyaltyPoints awards one point per full 100 of amount; never negative.
func LoyaltyPoints(amount decimal.Decimal) int64 {
	if !amount.IsPositive() {
		return 0
	}
	return amount.Div(decimal.NewFromInt(100)).Floor().IntPart()
}

// TenantTables lists tenant data in cascade deletion order.
var TenantTables = []string{
	"refund_items",
	"refunds",
	"sale_items",
	"receipts",
	"sales",
	"stock_movements",
	"customers",
	"products",
	"suppliers",
	"categories",
	"branches",
	"settings",
	"users",
}
