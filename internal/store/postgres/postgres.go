package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/ledger"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/tenant"
	"pharmaledger/backend/internal/xid"
)

// productNameIndex enforces one product name per branch.
const productNameIndex = "uq_products_branch_name"

var errProductNameTaken = errors.New("product name taken in branch")

type Store struct {
	db *sqlx.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const (
	userColumns     = `id, email, name, password_hash, role, owner_id, active, created_at`
	branchColumns   = `id, owner_id, name, address, phone, active, created_at`
	categoryColumns = `id, owner_id, name, description, created_at`
	supplierColumns = `id, owner_id, name, contact, phone, is_default, created_at`
	customerColumns = `id, owner_id, name, phone, email, loyalty_points, total_purchases, last_visit, created_at`
	productColumns  = `id, owner_id, branch_id, COALESCE(category_id, '') AS category_id, COALESCE(supplier_id, '') AS supplier_id,
		name, description, barcode, cost_price, selling_price, stock, min_stock, max_stock, unit_type, active, created_at, updated_at`
	movementColumns = `id, owner_id, product_id, type, quantity, delta, balance_after, reason, reference_type, reference_id, created_by, created_at`
	saleColumns     = `id, owner_id, branch_id, COALESCE(customer_id, '') AS customer_id, cashier_id, subtotal, tax_rate, tax, discount, total,
		payment_method, payment_status, status, notes, created_at`
	refundColumns = `id, owner_id, sale_id, reason, refunded_by, refund_amount, status, created_at`
)

// scoped appends the scope predicate on column to args.
func scoped(scope tenant.Scope, column string, args ...any) (string, []any) {
	pred, extra := scope.Predicate(column, len(args)+1)
	return pred, append(args, extra...)
}

func notFound(kind string, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" || user.Role == "" {
		return nil, store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, owner_id, active, created_at)
		VALUES (:id, :email, :name, :password_hash, :role, :owner_id, :active, :created_at)
	`, user)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email %s", store.ErrDuplicate, user.Email)
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context, scope tenant.Scope) ([]domain.User, error) {
	pred, args := scoped(scope, "owner_id")
	if !scope.Unrestricted() && scope.TenantID() != "" {
		args = append(args, scope.TenantID())
		pred = fmt.Sprintf("(%s OR id = $%d)", pred, len(args))
	}
	users := make([]domain.User, 0, 16)
	err := s.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE `+pred+` ORDER BY created_at, email`, args...)
	return users, err
}

func (s *Store) CreateBranch(ctx context.Context, scope tenant.Scope, branch domain.Branch) (*domain.Branch, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}
	return s.insertBranch(ctx, s.db, owner, branch)
}

func (s *Store) insertBranch(ctx context.Context, q sqlx.ExtContext, owner string, branch domain.Branch) (*domain.Branch, error) {
	branch.OwnerID = owner
	if branch.ID == "" {
		branch.ID = xid.New("brn")
	}
	branch.Active = true
	branch.CreatedAt = time.Now().UTC()

	_, err := sqlx.NamedExecContext(ctx, q, `
		INSERT INTO branches (id, owner_id, name, address, phone, active, created_at)
		VALUES (:id, :owner_id, :name, :address, :phone, :active, :created_at)
	`, branch)
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

func (s *Store) GetBranch(ctx context.Context, scope tenant.Scope, id string) (*domain.Branch, error) {
	pred, args := scoped(scope, "owner_id", id)
	var branch domain.Branch
	if err := s.db.GetContext(ctx, &branch, `SELECT `+branchColumns+` FROM branches WHERE id = $1 AND `+pred, args...); err != nil {
		return nil, notFound("branch", id, err)
	}
	return &branch, nil
}

func (s *Store) ListBranches(ctx context.Context, scope tenant.Scope) ([]domain.Branch, error) {
	pred, args := scoped(scope, "owner_id")
	branches := make([]domain.Branch, 0, 8)
	err := s.db.SelectContext(ctx, &branches, `SELECT `+branchColumns+` FROM branches WHERE `+pred+` ORDER BY created_at, name`, args...)
	return branches, err
}

func (s *Store) EnsureDefaultBranch(ctx context.Context, scope tenant.Scope, name string) (*domain.Branch, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}

	var branch domain.Branch
	err = s.db.GetContext(ctx, &branch, `
		SELECT `+branchColumns+` FROM branches
		WHERE owner_id = $1 AND active = true
		ORDER BY created_at, id
		LIMIT 1
	`, owner)
	if err == nil {
		return &branch, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return s.insertBranch(ctx, s.db, owner, domain.Branch{Name: name})
}

func (s *Store) CreateCategory(ctx context.Context, scope tenant.Scope, category domain.Category) (*domain.Category, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}
	category.OwnerID = owner
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	category.CreatedAt = time.Now().UTC()

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO categories (id, owner_id, name, description, created_at)
		VALUES (:id, :owner_id, :name, :description, :created_at)
	`, category)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: category %s", store.ErrDuplicate, category.Name)
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) GetCategory(ctx context.Context, scope tenant.Scope, id string) (*domain.Category, error) {
	pred, args := scoped(scope, "owner_id", id)
	var category domain.Category
	if err := s.db.GetContext(ctx, &category, `SELECT `+categoryColumns+` FROM categories WHERE id = $1 AND `+pred, args...); err != nil {
		return nil, notFound("category", id, err)
	}
	return &category, nil
}

func (s *Store) ListCategories(ctx context.Context, scope tenant.Scope) ([]domain.Category, error) {
	pred, args := scoped(scope, "owner_id")
	categories := make([]domain.Category, 0, 16)
	err := s.db.SelectContext(ctx, &categories, `SELECT `+categoryColumns+` FROM categories WHERE `+pred+` ORDER BY name`, args...)
	return categories, err
}

func (s *Store) EnsureCategory(ctx context.Context, scope tenant.Scope, name string) (*domain.Category, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, store.ErrInvalidInput
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, owner_id, name, description, created_at)
		VALUES ($1, $2, $3, '', now())
		ON CONFLICT (owner_id, lower(name)) DO NOTHING
	`, xid.New("cat"), owner, name); err != nil {
		return nil, err
	}

	var category domain.Category
	if err := s.db.GetContext(ctx, &category, `
		SELECT `+categoryColumns+` FROM categories WHERE owner_id = $1 AND lower(name) = lower($2)
	`, owner, name); err != nil {
		return nil, notFound("category", name, err)
	}
	return &category, nil
}

func (s *Store) CreateSupplier(ctx context.Context, scope tenant.Scope, supplier domain.Supplier) (*domain.Supplier, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}
	supplier.OwnerID = owner
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	supplier.CreatedAt = time.Now().UTC()

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO suppliers (id, owner_id, name, contact, phone, is_default, created_at)
		VALUES (:id, :owner_id, :name, :contact, :phone, :is_default, :created_at)
	`, supplier)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: supplier %s", store.ErrDuplicate, supplier.Name)
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) GetSupplier(ctx context.Context, scope tenant.Scope, id string) (*domain.Supplier, error) {
	pred, args := scoped(scope, "owner_id", id)
	var supplier domain.Supplier
	if err := s.db.GetContext(ctx, &supplier, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1 AND `+pred, args...); err != nil {
		return nil, notFound("supplier", id, err)
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context, scope tenant.Scope) ([]domain.Supplier, error) {
	pred, args := scoped(scope, "owner_id")
	suppliers := make([]domain.Supplier, 0, 8)
	err := s.db.SelectContext(ctx, &suppliers, `SELECT `+supplierColumns+` FROM suppliers WHERE `+pred+` ORDER BY name`, args...)
	return suppliers, err
}

func (s *Store) EnsureDefaultSupplier(ctx context.Context, scope tenant.Scope) (*domain.Supplier, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, owner_id, name, contact, phone, is_default, created_at)
		VALUES ($1, $2, $3, '', '', true, now())
		ON CONFLICT (owner_id) WHERE is_default DO NOTHING
	`, xid.New("sup"), owner, domain.DefaultSupplierName); err != nil {
		return nil, err
	}

	var supplier domain.Supplier
	if err := s.db.GetContext(ctx, &supplier, `
		SELECT `+supplierColumns+` FROM suppliers WHERE owner_id = $1 AND is_default
	`, owner); err != nil {
		return nil, notFound("supplier", "default", err)
	}
	return &supplier, nil
}

func (s *Store) CreateCustomer(ctx context.Context, scope tenant.Scope, customer domain.Customer) (*domain.Customer, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}
	customer.OwnerID = owner
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	customer.CreatedAt = time.Now().UTC()
	customer.LoyaltyPoints = 0
	customer.LastVisit = nil

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO customers (id, owner_id, name, phone, email, loyalty_points, total_purchases, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, $6)
	`, customer.ID, customer.OwnerID, customer.Name, customer.Phone, customer.Email, customer.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s.GetCustomer(ctx, scope, customer.ID)
}

func (s *Store) GetCustomer(ctx context.Context, scope tenant.Scope, id string) (*domain.Customer, error) {
	pred, args := scoped(scope, "owner_id", id)
	var customer domain.Customer
	if err := s.db.GetContext(ctx, &customer, `SELECT `+customerColumns+` FROM customers WHERE id = $1 AND `+pred, args...); err != nil {
		return nil, notFound("customer", id, err)
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, scope tenant.Scope) ([]domain.Customer, error) {
	pred, args := scoped(scope, "owner_id")
	customers := make([]domain.Customer, 0, 32)
	err := s.db.SelectContext(ctx, &customers, `SELECT `+customerColumns+` FROM customers WHERE `+pred+` ORDER BY name`, args...)
	return customers, err
}

// branchOwner resolves the tenant of a branch visible in scope. Rows written
// against the branch are stamped with this owner.
func branchOwner(ctx context.Context, q sqlx.QueryerContext, scope tenant.Scope, branchID string) (string, error) {
	pred, args := scoped(scope, "owner_id", branchID)
	var owner string
	if err := sqlx.GetContext(ctx, q, &owner, `SELECT owner_id FROM branches WHERE id = $1 AND `+pred, args...); err != nil {
		return "", notFound("branch", branchID, err)
	}
	return owner, nil
}

func checkProductRefs(ctx context.Context, q sqlx.QueryerContext, owner string, product domain.Product) error {
	if product.CategoryID != "" {
		var found bool
		if err := sqlx.GetContext(ctx, q, &found, `SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1 AND owner_id = $2)`, product.CategoryID, owner); err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("category %s: %w", product.CategoryID, store.ErrNotFound)
		}
	}
	if product.SupplierID != "" {
		var found bool
		if err := sqlx.GetContext(ctx, q, &found, `SELECT EXISTS(SELECT 1 FROM suppliers WHERE id = $1 AND owner_id = $2)`, product.SupplierID, owner); err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("supplier %s: %w", product.SupplierID, store.ErrNotFound)
		}
	}
	return nil
}

func insertProduct(ctx context.Context, tx *sqlx.Tx, owner string, product domain.Product) (domain.Product, error) {
	now := time.Now().UTC()
	product.OwnerID = owner
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	product.Stock = 0
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := tx.ExecContext(ctx, `
		INSERT INTO products (
			id, owner_id, branch_id, category_id, supplier_id, name, description, barcode,
			cost_price, selling_price, stock, min_stock, max_stock, unit_type, active, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,$11,$12,$13,true,$14,$14)
	`, product.ID, owner, product.BranchID, nullIfEmpty(product.CategoryID), nullIfEmpty(product.SupplierID),
		product.Name, product.Description, product.Barcode, product.CostPrice, product.SellingPrice,
		product.MinStock, product.MaxStock, product.UnitType, now)
	if err != nil {
		if isUniqueViolationOn(err, productNameIndex) {
			return domain.Product{}, fmt.Errorf("%w: product %q in branch: %w", store.ErrDuplicate, product.Name, errProductNameTaken)
		}
		if isUniqueViolation(err) {
			return domain.Product{}, fmt.Errorf("%w: product %q or barcode %s", store.ErrDuplicate, product.Name, product.Barcode)
		}
		return domain.Product{}, err
	}
	return product, nil
}

func (s *Store) CreateProduct(ctx context.Context, scope tenant.Scope, product domain.Product, initial *domain.StockMovement) (*domain.Product, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	owner, err := branchOwner(ctx, tx, scope, product.BranchID)
	if err != nil {
		return nil, err
	}
	if err := checkProductRefs(ctx, tx, owner, product); err != nil {
		return nil, err
	}
	created, err := insertProduct(ctx, tx, owner, product)
	if err != nil {
		return nil, err
	}
	if initial != nil && initial.Quantity > 0 {
		movement := *initial
		movement.ProductID = created.ID
		if _, err := applyMovementTx(ctx, tx, owner, movement); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, scope, created.ID)
}

func (s *Store) GetProduct(ctx context.Context, scope tenant.Scope, id string) (*domain.Product, error) {
	pred, args := scoped(scope, "owner_id", id)
	var product domain.Product
	if err := s.db.GetContext(ctx, &product, `SELECT `+productColumns+` FROM products WHERE id = $1 AND `+pred, args...); err != nil {
		return nil, notFound("product", id, err)
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, scope tenant.Scope, filter domain.ProductFilter) ([]domain.Product, error) {
	pred, args := scoped(scope, "owner_id")
	query := `SELECT ` + productColumns + ` FROM products WHERE ` + pred
	if filter.BranchID != "" {
		args = append(args, filter.BranchID)
		query += fmt.Sprintf(" AND branch_id = $%d", len(args))
	}
	if filter.LowStock {
		query += " AND stock <= min_stock"
	}
	query += " ORDER BY name, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	products := make([]domain.Product, 0, 128)
	err := s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

func (s *Store) UpdateProduct(ctx context.Context, scope tenant.Scope, product domain.Product) (*domain.Product, error) {
	existing, err := s.GetProduct(ctx, scope, product.ID)
	if err != nil {
		return nil, err
	}
	if err := checkProductRefs(ctx, s.db, existing.OwnerID, product); err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, category_id = $4, supplier_id = $5, cost_price = $6, selling_price = $7,
			min_stock = $8, max_stock = $9, unit_type = $10, active = $11, updated_at = now()
		WHERE id = $1 AND owner_id = $12
	`, product.ID, product.Name, product.Description, nullIfEmpty(product.CategoryID), nullIfEmpty(product.SupplierID),
		product.CostPrice, product.SellingPrice, product.MinStock, product.MaxStock, product.UnitType, product.Active, existing.OwnerID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product %q in branch", store.ErrDuplicate, product.Name)
		}
		return nil, err
	}
	return s.GetProduct(ctx, scope, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, scope tenant.Scope, id string) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	pred, args := scoped(scope, "owner_id", id)
	var owner string
	if err := tx.GetContext(ctx, &owner, `SELECT owner_id FROM products WHERE id = $1 AND `+pred+` FOR UPDATE`, args...); err != nil {
		return notFound("product", id, err)
	}
	var referenced bool
	if err := tx.GetContext(ctx, &referenced, `SELECT EXISTS(SELECT 1 FROM sale_items WHERE product_id = $1)`, id); err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("%w: product %s is referenced by sales", store.ErrDuplicate, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1 AND owner_id = $2`, id, owner); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) BarcodeExists(ctx context.Context, scope tenant.Scope, barcode string) (bool, error) {
	if !scope.Valid() {
		return false, tenant.ErrUnauthorized
	}
	pred, args := scoped(scope, "owner_id", barcode)
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM products WHERE barcode = $1 AND `+pred+`)`, args...)
	return exists, err
}

func (s *Store) ImportProduct(ctx context.Context, scope tenant.Scope, row store.ProductImport) (*store.ImportOutcome, error) {
	if row.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	outcome, err := s.importProductTx(ctx, scope, row)
	if errors.Is(err, errProductNameTaken) {
		// A concurrent import inserted the same name first; merge into it.
		return s.importProductTx(ctx, scope, row)
	}
	return outcome, err
}

func (s *Store) importProductTx(ctx context.Context, scope tenant.Scope, row store.ProductImport) (*store.ImportOutcome, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	owner, err := branchOwner(ctx, tx, scope, row.Product.BranchID)
	if err != nil {
		return nil, err
	}
	if err := checkProductRefs(ctx, tx, owner, row.Product); err != nil {
		return nil, err
	}

	var existing domain.Product
	err = tx.GetContext(ctx, &existing, `
		SELECT `+productColumns+` FROM products
		WHERE owner_id = $1 AND branch_id = $2 AND lower(name) = lower($3)
		FOR UPDATE
	`, owner, row.Product.BranchID, strings.TrimSpace(row.Product.Name))
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET cost_price = $2, selling_price = $3, description = $4, unit_type = $5,
				category_id = COALESCE($6, category_id), supplier_id = COALESCE($7, supplier_id), updated_at = now()
			WHERE id = $1
		`, existing.ID, row.Product.CostPrice, row.Product.SellingPrice, row.Product.Description, row.Product.UnitType,
			nullIfEmpty(row.Product.CategoryID), nullIfEmpty(row.Product.SupplierID))
		if err != nil {
			return nil, err
		}
		if row.Quantity > 0 {
			if _, err := applyMovementTx(ctx, tx, owner, domain.StockMovement{
				ProductID: existing.ID,
				Type:      domain.MovementIn,
				Quantity:  row.Quantity,
				Reason:    row.MergeReason,
				CreatedBy: row.CreatedBy,
			}); err != nil {
				return nil, err
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		merged, err := s.GetProduct(ctx, scope, existing.ID)
		if err != nil {
			return nil, err
		}
		return &store.ImportOutcome{Product: merged, Merged: true}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	created, err := insertProduct(ctx, tx, owner, row.Product)
	if err != nil {
		return nil, err
	}
	if row.Quantity > 0 {
		if _, err := applyMovementTx(ctx, tx, owner, domain.StockMovement{
			ProductID: created.ID,
			Type:      domain.MovementIn,
			Quantity:  row.Quantity,
			Reason:    row.CreateReason,
			CreatedBy: row.CreatedBy,
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	product, err := s.GetProduct(ctx, scope, created.ID)
	if err != nil {
		return nil, err
	}
	return &store.ImportOutcome{Product: product}, nil
}

func (s *Store) ApplyMovement(ctx context.Context, scope tenant.Scope, movement domain.StockMovement) (*domain.StockMovement, *domain.Product, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	pred, args := scoped(scope, "owner_id", movement.ProductID)
	var owner string
	if err := tx.GetContext(ctx, &owner, `SELECT owner_id FROM products WHERE id = $1 AND `+pred, args...); err != nil {
		return nil, nil, notFound("product", movement.ProductID, err)
	}
	applied, err := applyMovementTx(ctx, tx, owner, movement)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	product, err := s.GetProduct(ctx, scope, movement.ProductID)
	if err != nil {
		return nil, nil, err
	}
	return applied, product, nil
}

// applyMovementTx locks the product row, applies the movement through the
// ledger rules and appends the movement record.
func applyMovementTx(ctx context.Context, tx *sqlx.Tx, owner string, movement domain.StockMovement) (*domain.StockMovement, error) {
	var current struct {
		Name  string `db:"name"`
		Stock int    `db:"stock"`
	}
	if err := tx.GetContext(ctx, &current, `
		SELECT name, stock FROM products WHERE id = $1 AND owner_id = $2 FOR UPDATE
	`, movement.ProductID, owner); err != nil {
		return nil, notFound("product", movement.ProductID, err)
	}

	next, delta, err := ledger.Apply(current.Stock, movement.Type, movement.Quantity)
	if err != nil {
		return nil, translateLedgerError(current.Name, current.Stock, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = $1, updated_at = now() WHERE id = $2`, next, movement.ProductID); err != nil {
		return nil, err
	}

	movement.OwnerID = owner
	movement.Delta = delta
	movement.BalanceAfter = next
	if err := insertMovement(ctx, tx, &movement); err != nil {
		return nil, err
	}
	return &movement, nil
}

func insertMovement(ctx context.Context, tx *sqlx.Tx, movement *domain.StockMovement) error {
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	movement.CreatedAt = time.Now().UTC()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (
			id, owner_id, product_id, type, quantity, delta, balance_after,
			reason, reference_type, reference_id, created_by, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, movement.ID, movement.OwnerID, movement.ProductID, string(movement.Type), movement.Quantity, movement.Delta,
		movement.BalanceAfter, movement.Reason, movement.ReferenceType, movement.ReferenceID, movement.CreatedBy, movement.CreatedAt)
	return err
}

func (s *Store) ListMovements(ctx context.Context, scope tenant.Scope, productID string, limit int) ([]domain.StockMovement, error) {
	if _, err := s.GetProduct(ctx, scope, productID); err != nil {
		return nil, err
	}

	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE product_id = $1 ORDER BY seq`
	args := []any{productID}
	if limit > 0 {
		query = `SELECT ` + movementColumns + ` FROM (
			SELECT seq, ` + movementColumns + ` FROM stock_movements WHERE product_id = $1 ORDER BY seq DESC LIMIT $2
		) recent ORDER BY seq`
		args = append(args, limit)
	}

	movements := make([]domain.StockMovement, 0, 32)
	err := s.db.SelectContext(ctx, &movements, query, args...)
	return movements, err
}

func (s *Store) GetSettings(ctx context.Context, scope tenant.Scope) (*domain.Settings, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}
	var settings domain.Settings
	if err := s.db.GetContext(ctx, &settings, `SELECT owner_id, default_tax, currency, updated_at FROM settings WHERE owner_id = $1`, owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &settings, nil
}

func (s *Store) UpsertSettings(ctx context.Context, scope tenant.Scope, settings domain.Settings) (*domain.Settings, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}
	settings.OwnerID = owner
	settings.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (owner_id, default_tax, currency, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id)
		DO UPDATE SET default_tax = EXCLUDED.default_tax, currency = EXCLUDED.currency, updated_at = EXCLUDED.updated_at
	`, settings.OwnerID, settings.DefaultTax, settings.Currency, settings.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *Store) CreateSale(ctx context.Context, scope tenant.Scope, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 || sale.Receipt == nil {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	owner, err := branchOwner(ctx, tx, scope, sale.BranchID)
	if err != nil {
		return nil, err
	}
	if sale.CustomerID != "" {
		var found bool
		if err := tx.GetContext(ctx, &found, `SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1 AND owner_id = $2)`, sale.CustomerID, owner); err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("customer %s: %w", sale.CustomerID, store.ErrNotFound)
		}
	}

	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	sale.OwnerID = owner
	sale.CreatedAt = now
	sale.Status = domain.SaleStatusCompleted
	sale.PaymentStatus = domain.PaymentStatusPaid

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, owner_id, branch_id, customer_id, cashier_id, subtotal, tax_rate, tax, discount, total,
			payment_method, payment_status, status, notes, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, sale.ID, owner, sale.BranchID, nullIfEmpty(sale.CustomerID), sale.CashierID, sale.Subtotal, sale.TaxRate, sale.Tax,
		sale.Discount, sale.Total, string(sale.PaymentMethod), sale.PaymentStatus, sale.Status, sale.Notes, now)
	if err != nil {
		return nil, err
	}

	// Lines are decremented in product order so concurrent sales lock rows
	// in the same sequence.
	// position keeps the cart order for reads.
	type line struct {
		item     domain.SaleItem
		position int
	}
	lines := make([]line, 0, len(sale.Items))
	for i, item := range sale.Items {
		lines = append(lines, line{item: item, position: i})
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].item.ProductID < lines[j].item.ProductID })
	for i := range lines {
		item := &lines[i].item
		if item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		var balance int
		err := tx.GetContext(ctx, &balance, `
			UPDATE products
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND owner_id = $3 AND stock >= $1
			RETURNING stock
		`, item.Quantity, item.ProductID, owner)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, explainFailedDecrement(ctx, tx, owner, item.ProductID, item.Quantity)
		}
		if err != nil {
			return nil, err
		}

		if err := insertMovement(ctx, tx, &domain.StockMovement{
			OwnerID:       owner,
			ProductID:     item.ProductID,
			Type:          domain.MovementOut,
			Quantity:      item.Quantity,
			Delta:         -item.Quantity,
			BalanceAfter:  balance,
			Reason:        "Sale",
			ReferenceType: domain.ReferenceSale,
			ReferenceID:   sale.ID,
			CreatedBy:     sale.CashierID,
		}); err != nil {
			return nil, err
		}

		if item.ID == "" {
			item.ID = xid.New("sitm")
		}
		item.SaleID = sale.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, quantity, unit_price, line_total, position)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.ID, sale.ID, item.ProductID, item.Quantity, item.UnitPrice, item.LineTotal, lines[i].position); err != nil {
			return nil, err
		}
	}

	if sale.CustomerID != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE customers
			SET total_purchases = total_purchases + $1, loyalty_points = loyalty_points + $2, last_visit = $3
			WHERE id = $4
		`, sale.Total, store.LoyaltyPoints(sale.Total), now, sale.CustomerID); err != nil {
			return nil, err
		}
	}

	receiptID := sale.Receipt.ID
	if receiptID == "" {
		receiptID = xid.New("rcpt")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO receipts (id, sale_id, receipt_number, generated_at)
		VALUES ($1,$2,$3,$4)
	`, receiptID, sale.ID, sale.Receipt.ReceiptNumber, now); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrReceiptConflict
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, scope, sale.ID)
}

// explainFailedDecrement tells a missing product apart from short stock once
// the conditional decrement matched no row.
func explainFailedDecrement(ctx context.Context, tx *sqlx.Tx, owner string, productID string, requested int) error {
	var current struct {
		Name  string `db:"name"`
		Stock int    `db:"stock"`
	}
	err := tx.GetContext(ctx, &current, `SELECT name, stock FROM products WHERE id = $1 AND owner_id = $2`, productID, owner)
	if err != nil {
		return notFound("product", productID, err)
	}
	return translateLedgerError(current.Name, current.Stock, ledger.AssertSufficient(current.Stock, requested))
}

func (s *Store) GetSale(ctx context.Context, scope tenant.Scope, id string) (*domain.Sale, error) {
	pred, args := scoped(scope, "owner_id", id)
	var sale domain.Sale
	if err := s.db.GetContext(ctx, &sale, `SELECT `+saleColumns+` FROM sales WHERE id = $1 AND `+pred, args...); err != nil {
		return nil, notFound("sale", id, err)
	}
	hydrated, err := s.hydrateSales(ctx, []domain.Sale{sale})
	if err != nil {
		return nil, err
	}
	return &hydrated[0], nil
}

func (s *Store) ListSales(ctx context.Context, scope tenant.Scope, limit int) ([]domain.Sale, error) {
	pred, args := scoped(scope, "owner_id")
	query := `SELECT ` + saleColumns + ` FROM sales WHERE ` + pred + ` ORDER BY created_at DESC, id`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	sales := make([]domain.Sale, 0, 32)
	if err := s.db.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, err
	}
	return s.hydrateSales(ctx, sales)
}

func (s *Store) hydrateSales(ctx context.Context, sales []domain.Sale) ([]domain.Sale, error) {
	if len(sales) == 0 {
		return sales, nil
	}
	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}

	query, args, err := sqlx.In(`SELECT id, sale_id, product_id, quantity, unit_price, line_total FROM sale_items WHERE sale_id IN (?) ORDER BY sale_id, position, id`, ids)
	if err != nil {
		return nil, err
	}
	var items []domain.SaleItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	itemsBySale := make(map[string][]domain.SaleItem, len(sales))
	for _, item := range items {
		itemsBySale[item.SaleID] = append(itemsBySale[item.SaleID], item)
	}

	query, args, err = sqlx.In(`SELECT id, sale_id, receipt_number, generated_at FROM receipts WHERE sale_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var receipts []domain.Receipt
	if err := s.db.SelectContext(ctx, &receipts, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	receiptBySale := make(map[string]domain.Receipt, len(receipts))
	for _, receipt := range receipts {
		receiptBySale[receipt.SaleID] = receipt
	}

	for i := range sales {
		sales[i].Items = itemsBySale[sales[i].ID]
		if sales[i].Items == nil {
			sales[i].Items = []domain.SaleItem{}
		}
		if receipt, ok := receiptBySale[sales[i].ID]; ok {
			sales[i].Receipt = &receipt
		}
	}

	// Branch and customer are only attached for single sale lookups.
	if len(sales) == 1 {
		scope := tenant.ForTenant(sales[0].OwnerID)
		if branch, err := s.GetBranch(ctx, scope, sales[0].BranchID); err == nil {
			sales[0].Branch = branch
		}
		if sales[0].CustomerID != "" {
			if customer, err := s.GetCustomer(ctx, scope, sales[0].CustomerID); err == nil {
				sales[0].Customer = customer
			}
		}
	}
	return sales, nil
}

func (s *Store) ReceiptNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM receipts WHERE receipt_number = $1)`, number)
	return exists, err
}

type productQuantity struct {
	ProductID string `db:"product_id"`
	Quantity  int    `db:"quantity"`
}

func (s *Store) CreateRefund(ctx context.Context, scope tenant.Scope, refund domain.Refund, opts store.RefundOptions) (*domain.Refund, error) {
	if len(refund.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	pred, args := scoped(scope, "owner_id", refund.SaleID)
	var sale struct {
		OwnerID    string `db:"owner_id"`
		CustomerID string `db:"customer_id"`
	}
	if err := tx.GetContext(ctx, &sale, `
		SELECT owner_id, COALESCE(customer_id, '') AS customer_id FROM sales WHERE id = $1 AND `+pred+` FOR UPDATE
	`, args...); err != nil {
		return nil, notFound("sale", refund.SaleID, err)
	}

	var soldRows []productQuantity
	if err := tx.SelectContext(ctx, &soldRows, `
		SELECT product_id, SUM(quantity) AS quantity FROM sale_items WHERE sale_id = $1 GROUP BY product_id
	`, refund.SaleID); err != nil {
		return nil, err
	}
	var refundedRows []productQuantity
	if err := tx.SelectContext(ctx, &refundedRows, `
		SELECT ri.product_id, SUM(ri.quantity) AS quantity
		FROM refund_items ri
		JOIN refunds r ON r.id = ri.refund_id
		WHERE r.sale_id = $1
		GROUP BY ri.product_id
	`, refund.SaleID); err != nil {
		return nil, err
	}
	sold := make(map[string]int, len(soldRows))
	for _, row := range soldRows {
		sold[row.ProductID] = row.Quantity
	}
	refunded := make(map[string]int, len(refundedRows))
	for _, row := range refundedRows {
		refunded[row.ProductID] = row.Quantity
	}

	for _, item := range refund.Items {
		var found bool
		if err := tx.GetContext(ctx, &found, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1 AND owner_id = $2)`, item.ProductID, sale.OwnerID); err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		if item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		refunded[item.ProductID] += item.Quantity
		if refunded[item.ProductID] > sold[item.ProductID] {
			return nil, fmt.Errorf("%w: refund quantity for %s exceeds sold quantity %d", store.ErrInvalidInput, item.ProductID, sold[item.ProductID])
		}
	}

	now := time.Now().UTC()
	if refund.ID == "" {
		refund.ID = xid.New("rfd")
	}
	refund.OwnerID = sale.OwnerID
	refund.Status = domain.RefundStatusProcessed
	refund.CreatedAt = now

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO refunds (id, owner_id, sale_id, reason, refunded_by, refund_amount, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, refund.ID, refund.OwnerID, refund.SaleID, refund.Reason, refund.RefundedBy, refund.RefundAmount, refund.Status, now); err != nil {
		return nil, err
	}

	for i := range refund.Items {
		item := &refund.Items[i]
		if item.ID == "" {
			item.ID = xid.New("ritm")
		}
		item.RefundID = refund.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO refund_items (id, refund_id, product_id, quantity, unit_price, reason)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, item.ID, refund.ID, item.ProductID, item.Quantity, item.UnitPrice, item.Reason); err != nil {
			return nil, err
		}
		reason := item.Reason
		if strings.TrimSpace(reason) == "" {
			reason = refund.Reason
		}
		if _, err := applyMovementTx(ctx, tx, sale.OwnerID, domain.StockMovement{
			ProductID:     item.ProductID,
			Type:          domain.MovementReturn,
			Quantity:      item.Quantity,
			Reason:        "Refund: " + reason,
			ReferenceType: domain.ReferenceRefund,
			ReferenceID:   refund.ID,
			CreatedBy:     refund.RefundedBy,
		}); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sales SET status = $1 WHERE id = $2`, domain.SaleStatusRefunded, refund.SaleID); err != nil {
		return nil, err
	}
	if opts.ReverseLoyalty && sale.CustomerID != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE customers
			SET total_purchases = GREATEST(total_purchases - $1, 0), loyalty_points = GREATEST(loyalty_points - $2, 0)
			WHERE id = $3
		`, refund.RefundAmount, store.LoyaltyPoints(refund.RefundAmount), sale.CustomerID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (s *Store) ListRefunds(ctx context.Context, scope tenant.Scope, saleID string) ([]domain.Refund, error) {
	if _, err := s.GetSale(ctx, scope, saleID); err != nil {
		return nil, err
	}

	refunds := make([]domain.Refund, 0, 4)
	if err := s.db.SelectContext(ctx, &refunds, `SELECT `+refundColumns+` FROM refunds WHERE sale_id = $1 ORDER BY created_at, id`, saleID); err != nil {
		return nil, err
	}
	for i := range refunds {
		items := make([]domain.RefundItem, 0, 4)
		if err := s.db.SelectContext(ctx, &items, `
			SELECT id, refund_id, product_id, quantity, unit_price, reason FROM refund_items WHERE refund_id = $1 ORDER BY id
		`, refunds[i].ID); err != nil {
			return nil, err
		}
		refunds[i].Items = items
	}
	return refunds, nil
}

// tenantDeletes holds one statement per table in store.TenantTables; $1 is
// the tenant root id.
var tenantDeletes = map[string]string{
	"refund_items": `DELETE FROM refund_items
		WHERE refund_id IN (SELECT id FROM refunds WHERE owner_id = $1 OR sale_id IN (SELECT id FROM sales WHERE owner_id = $1))
		OR product_id IN (SELECT id FROM products WHERE owner_id = $1)`,
	"refunds":         `DELETE FROM refunds WHERE owner_id = $1 OR sale_id IN (SELECT id FROM sales WHERE owner_id = $1)`,
	"sale_items":      `DELETE FROM sale_items WHERE sale_id IN (SELECT id FROM sales WHERE owner_id = $1) OR product_id IN (SELECT id FROM products WHERE owner_id = $1)`,
	"receipts":        `DELETE FROM receipts WHERE sale_id IN (SELECT id FROM sales WHERE owner_id = $1)`,
	"sales":           `DELETE FROM sales WHERE owner_id = $1`,
	"stock_movements": `DELETE FROM stock_movements WHERE owner_id = $1 OR product_id IN (SELECT id FROM products WHERE owner_id = $1)`,
	"customers":       `DELETE FROM customers WHERE owner_id = $1`,
	"products":        `DELETE FROM products WHERE owner_id = $1`,
	"suppliers":       `DELETE FROM suppliers WHERE owner_id = $1`,
	"categories":      `DELETE FROM categories WHERE owner_id = $1`,
	"branches":        `DELETE FROM branches WHERE owner_id = $1`,
	"settings":        `DELETE FROM settings WHERE owner_id = $1`,
	"users":           `DELETE FROM users WHERE owner_id = $1 OR id = $1`,
}

func (s *Store) DeleteTenant(ctx context.Context, tenantID string) (*domain.TenantDeletionReport, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var root domain.User
	if err := tx.GetContext(ctx, &root, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, tenantID); err != nil {
		return nil, notFound("tenant", tenantID, err)
	}
	if !root.IsTenantRoot() {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, store.ErrNotFound)
	}

	report := &domain.TenantDeletionReport{TenantID: tenantID}
	for _, table := range store.TenantTables {
		res, err := tx.ExecContext(ctx, tenantDeletes[table], tenantID)
		if err != nil {
			return nil, fmt.Errorf("delete %s: %w", table, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		report.Deleted = append(report.Deleted, domain.DeletedEntries{Table: table, Rows: affected})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return report, nil
}

func translateLedgerError(name string, stock int, err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientStock):
		return fmt.Errorf("%w: %s has %d in stock", store.ErrInsufficientStock, name, stock)
	case errors.Is(err, ledger.ErrInvalidMovement):
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	default:
		return err
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isUniqueViolationOn(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
