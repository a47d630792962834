package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleManager    = "MANAGER"
	RolePharmacist = "PHARMACIST"
	RoleCashier    = "CASHIER"
)

type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementReturn     MovementType = "RETURN"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementReturn:
		return true
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "CASH"
	PaymentCard         PaymentMethod = "CARD"
	PaymentMobile       PaymentMethod = "MOBILE"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobile, PaymentBankTransfer:
		return true
	default:
		return false
	}
}

const (
	SaleStatusCompleted = "COMPLETED"
	SaleStatusRefunded  = "REFUNDED"

	PaymentStatusPaid = "PAID"

	RefundStatusProcessed = "PROCESSED"
)

const (
	ReferenceSale   = "SALE"
	ReferenceRefund = "REFUND"
)

const DefaultSupplierName = "Default Supplier"

// Principal is the authenticated caller as seen by the tenant scope resolver.
type Principal struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	OwnerID string `json:"owner_id,omitempty"`
}

type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	OwnerID      string    `json:"owner_id" db:"owner_id"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

func (u User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role, OwnerID: u.OwnerID}
}

// IsTenantRoot reports whether the user owns its own tenant.
func (u User) IsTenantRoot() bool {
	return u.Role == RoleAdmin && u.OwnerID == u.ID
}

type Branch struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address" db:"address"`
	Phone     string    `json:"phone" db:"phone"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Category struct {
	ID          string    `json:"id" db:"id"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Supplier struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Name      string    `json:"name" db:"name"`
	Contact   string    `json:"contact" db:"contact"`
	Phone     string    `json:"phone" db:"phone"`
	IsDefault bool      `json:"is_default" db:"is_default"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Customer struct {
	ID             string          `json:"id" db:"id"`
	OwnerID        string          `json:"owner_id" db:"owner_id"`
	Name           string          `json:"name" db:"name"`
	Phone          string          `json:"phone" db:"phone"`
	Email          string          `json:"email" db:"email"`
	LoyaltyPoints  int64           `json:"loyalty_points" db:"loyalty_points"`
	TotalPurchases decimal.Decimal `json:"total_purchases" db:"total_purchases"`
	LastVisit      *time.Time      `json:"last_visit,omitempty" db:"last_visit"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

type Product struct {
	ID           string          `json:"id" db:"id"`
	OwnerID      string          `json:"owner_id" db:"owner_id"`
	BranchID     string          `json:"branch_id" db:"branch_id"`
	CategoryID   string          `json:"category_id" db:"category_id"`
	SupplierID   string          `json:"supplier_id" db:"supplier_id"`
	Name         string          `json:"name" db:"name"`
	Description  string          `json:"description" db:"description"`
	Barcode      string          `json:"barcode" db:"barcode"`
	CostPrice    decimal.Decimal `json:"cost_price" db:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price" db:"selling_price"`
	Stock        int             `json:"stock" db:"stock"`
	MinStock     int             `json:"min_stock" db:"min_stock"`
	MaxStock     int             `json:"max_stock" db:"max_stock"`
	UnitType     string          `json:"unit_type" db:"unit_type"`
	Active       bool            `json:"active" db:"active"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

func (p Product) LowStock() bool {
	return p.Stock <= p.MinStock
}

// StockMovement is append-only. Delta is the signed effect on stock and
// BalanceAfter the stock right after the movement was applied.
type StockMovement struct {
	ID            string       `json:"id" db:"id"`
	OwnerID       string       `json:"owner_id" db:"owner_id"`
	ProductID     string       `json:"product_id" db:"product_id"`
	Type          MovementType `json:"type" db:"type"`
	Quantity      int          `json:"quantity" db:"quantity"`
	Delta         int          `json:"delta" db:"delta"`
	BalanceAfter  int          `json:"balance_after" db:"balance_after"`
	Reason        string       `json:"reason" db:"reason"`
	ReferenceType string       `json:"reference_type,omitempty" db:"reference_type"`
	ReferenceID   string       `json:"reference_id,omitempty" db:"reference_id"`
	CreatedBy     string       `json:"created_by" db:"created_by"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

type Sale struct {
	ID            string          `json:"id" db:"id"`
	OwnerID       string          `json:"owner_id" db:"owner_id"`
	BranchID      string          `json:"branch_id" db:"branch_id"`
	CustomerID    string          `json:"customer_id,omitempty" db:"customer_id"`
	CashierID     string          `json:"cashier_id" db:"cashier_id"`
	Subtotal      decimal.Decimal `json:"subtotal" db:"subtotal"`
	TaxRate       decimal.Decimal `json:"tax_rate" db:"tax_rate"`
	Tax           decimal.Decimal `json:"tax" db:"tax"`
	Discount      decimal.Decimal `json:"discount" db:"discount"`
	Total         decimal.Decimal `json:"total" db:"total"`
	PaymentMethod PaymentMethod   `json:"payment_method" db:"payment_method"`
	PaymentStatus string          `json:"payment_status" db:"payment_status"`
	Status        string          `json:"status" db:"status"`
	Notes         string          `json:"notes,omitempty" db:"notes"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`

	Items    []SaleItem `json:"items"`
	Receipt  *Receipt   `json:"receipt,omitempty"`
	Customer *Customer  `json:"customer,omitempty"`
	Branch   *Branch    `json:"branch,omitempty"`
}

type SaleItem struct {
	ID        string          `json:"id" db:"id"`
	SaleID    string          `json:"sale_id" db:"sale_id"`
	ProductID string          `json:"product_id" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total" db:"line_total"`
}

type Receipt struct {
	ID            string    `json:"id" db:"id"`
	SaleID        string    `json:"sale_id" db:"sale_id"`
	ReceiptNumber string    `json:"receipt_number" db:"receipt_number"`
	GeneratedAt   time.Time `json:"generated_at" db:"generated_at"`
}

type Refund struct {
	ID           string          `json:"id" db:"id"`
	OwnerID      string          `json:"owner_id" db:"owner_id"`
	SaleID       string          `json:"sale_id" db:"sale_id"`
	Reason       string          `json:"reason" db:"reason"`
	RefundedBy   string          `json:"refunded_by" db:"refunded_by"`
	RefundAmount decimal.Decimal `json:"refund_amount" db:"refund_amount"`
	Status       string          `json:"status" db:"status"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`

	Items []RefundItem `json:"items"`
}

type RefundItem struct {
	ID        string          `json:"id" db:"id"`
	RefundID  string          `json:"refund_id" db:"refund_id"`
	ProductID string          `json:"product_id" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	Reason    string          `json:"reason" db:"reason"`
}

func (i RefundItem) Amount() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Settings struct {
	OwnerID    string          `json:"owner_id" db:"owner_id"`
	DefaultTax decimal.Decimal `json:"default_tax" db:"default_tax"`
	Currency   string          `json:"currency" db:"currency"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// TenantDeletionReport counts removed rows per table, in deletion order.
type TenantDeletionReport struct {
	TenantID string           `json:"tenant_id"`
	Deleted  []DeletedEntries `json:"deleted"`
}

type DeletedEntries struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

func (r TenantDeletionReport) Total() int64 {
	var total int64
	for _, entry := range r.Deleted {
		total += entry.Rows
	}
	return total
}

type ReconciliationReport struct {
	ProductID     string `json:"product_id"`
	Stock         int    `json:"stock"`
	ReplayedStock int    `json:"replayed_stock"`
	Movements     int    `json:"movements"`
	Drift         int    `json:"drift"`
	Consistent    bool   `json:"consistent"`
}
