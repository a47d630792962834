package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	UserID      string `json:"user_id"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type BranchCreateRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type CategoryCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Phone   string `json:"phone"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type ProductCreateRequest struct {
	BranchID     string          `json:"branch_id"`
	CategoryID   string          `json:"category_id"`
	SupplierID   string          `json:"supplier_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Barcode      string          `json:"barcode"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	InitialStock int             `json:"initial_stock"`
	MinStock     int             `json:"min_stock"`
	MaxStock     int             `json:"max_stock"`
	UnitType     string          `json:"unit_type"`
}

type ProductUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	Description  *string          `json:"description,omitempty"`
	CategoryID   *string          `json:"category_id,omitempty"`
	SupplierID   *string          `json:"supplier_id,omitempty"`
	CostPrice    *decimal.Decimal `json:"cost_price,omitempty"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
	MinStock     *int             `json:"min_stock,omitempty"`
	MaxStock     *int             `json:"max_stock,omitempty"`
	UnitType     *string          `json:"unit_type,omitempty"`
	Active       *bool            `json:"active,omitempty"`
}

type ProductFilter struct {
	BranchID string
	LowStock bool
	Limit    int
}

type StockMovementRequest struct {
	Type     MovementType `json:"type"`
	Quantity int          `json:"quantity"`
	Reason   string       `json:"reason"`
}

type SaleItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type SaleRequest struct {
	BranchID      string            `json:"branch_id"`
	CustomerID    string            `json:"customer_id,omitempty"`
	Items         []SaleItemRequest `json:"items"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	Discount      decimal.Decimal   `json:"discount"`
	Notes         string            `json:"notes,omitempty"`
}

type RefundItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Reason    string          `json:"reason"`
}

type RefundRequest struct {
	SaleID     string              `json:"sale_id"`
	Reason     string              `json:"reason"`
	Items      []RefundItemRequest `json:"items"`
	ManagerPIN string              `json:"manager_pin,omitempty"`
}

type SettingsUpdateRequest struct {
	DefaultTax *decimal.Decimal `json:"default_tax,omitempty"`
	Currency   *string          `json:"currency,omitempty"`
}

// ImportRow is one externally supplied product row. Every field may be
// missing; zero values are replaced by import defaults.
type ImportRow struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Barcode      string `json:"barcode,omitempty"`
	CategoryID   string `json:"category_id,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
	SupplierID   string `json:"supplier_id,omitempty"`
	BranchID     string `json:"branch_id,omitempty"`
	Price        string `json:"price,omitempty"`
	CostPrice    string `json:"cost_price,omitempty"`
	Stock        string `json:"stock,omitempty"`
	MinStock     string `json:"min_stock,omitempty"`
	MaxStock     string `json:"max_stock,omitempty"`
	UnitType     string `json:"unit_type,omitempty"`
}

type ImportRequest struct {
	Rows []ImportRow `json:"rows"`
}

const (
	ImportCreated = "created"
	ImportMerged  = "merged"
	ImportFailed  = "failed"
)

type ImportRowResult struct {
	Row       int    `json:"row"`
	Name      string `json:"name"`
	Outcome   string `json:"outcome"`
	ProductID string `json:"product_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type ImportResult struct {
	Total      int               `json:"total"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Skipped    int               `json:"skipped"`
	Rows       []ImportRowResult `json:"rows"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}
