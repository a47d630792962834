package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/ledger"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/tenant"
	"pharmaledger/backend/internal/xid"
)

// Store keeps every table in maps guarded by one mutex, so each repository
// call is a single atomic unit.
type Store struct {
	mu             sync.RWMutex
	users          map[string]domain.User
	userIDsByEmail map[string]string
	branches       map[string]domain.Branch
	categories     map[string]domain.Category
	suppliers      map[string]domain.Supplier
	customers      map[string]domain.Customer
	products       map[string]domain.Product
	movements      []domain.StockMovement
	settings       map[string]domain.Settings
	sales          map[string]domain.Sale
	receiptsBySale map[string]domain.Receipt
	receiptNumbers map[string]string
	refunds        map[string]domain.Refund
	seq            int64
}

func New() *Store {
	return &Store{
		users:          make(map[string]domain.User),
		userIDsByEmail: make(map[string]string),
		branches:       make(map[string]domain.Branch),
		categories:     make(map[string]domain.Category),
		suppliers:      make(map[string]domain.Supplier),
		customers:      make(map[string]domain.Customer),
		products:       make(map[string]domain.Product),
		settings:       make(map[string]domain.Settings),
		sales:          make(map[string]domain.Sale),
		receiptsBySale: make(map[string]domain.Receipt),
		receiptNumbers: make(map[string]string),
		refunds:        make(map[string]domain.Refund),
	}
}

// seedUsers builds the dev/demo principals. Passwords come from
// SEED_SUPERADMIN_PASSWORD, SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD;
// hardcoded dev defaults are used with a warning when unset.
func seedUsers() []domain.User {
	superPwd := envOr("SEED_SUPERADMIN_PASSWORD", "super123")
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := make([]domain.User, 0, 3)
	for _, u := range []struct {
		id       string
		email    string
		name     string
		password string
		role     string
		owner    string
	}{
		{"usr-super", "superadmin@pharmaledger.local", "Platform Admin", superPwd, domain.RoleSuperAdmin, ""},
		{"usr-admin", "admin@pharmaledger.local", "Apotek Sehat Owner", adminPwd, domain.RoleAdmin, "usr-admin"},
		{"usr-cashier", "cashier@pharmaledger.local", "Front Counter", cashierPwd, domain.RoleCashier, "usr-admin"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		users = append(users, domain.User{
			ID:           u.id,
			Email:        u.email,
			Name:         u.name,
			PasswordHash: string(hash),
			Role:         u.role,
			OwnerID:      u.owner,
			Active:       true,
			CreatedAt:    now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with one tenant ("usr-admin"), its staff, a
// branch, catalog dependencies and stocked products.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	const owner = "usr-admin"

	for _, u := range seedUsers() {
		s.users[u.ID] = u
		s.userIDsByEmail[u.Email] = u.ID
	}

	s.branches["brn-main"] = domain.Branch{ID: "brn-main", OwnerID: owner, Name: "Apotek Sehat Pusat", Address: "Jl. Merdeka 1", Active: true, CreatedAt: now}
	s.categories["cat-analgesic"] = domain.Category{ID: "cat-analgesic", OwnerID: owner, Name: "Analgesics", CreatedAt: now}
	s.categories["cat-antibiotic"] = domain.Category{ID: "cat-antibiotic", OwnerID: owner, Name: "Antibiotics", CreatedAt: now}
	s.categories["cat-supplement"] = domain.Category{ID: "cat-supplement", OwnerID: owner, Name: "Supplements", CreatedAt: now}
	s.suppliers["sup-default"] = domain.Supplier{ID: "sup-default", OwnerID: owner, Name: domain.DefaultSupplierName, IsDefault: true, CreatedAt: now}
	s.customers["cus-regular"] = domain.Customer{ID: "cus-regular", OwnerID: owner, Name: "Siti Rahma", Phone: "0812000111", TotalPurchases: decimal.Zero, CreatedAt: now}

	products := []struct {
		id       string
		name     string
		category string
		price    string
		stock    int
		minStock int
		unit     string
	}{
		{"prd-paracetamol", "Paracetamol 500mg", "cat-analgesic", "50", 100, 20, "tablets"},
		{"prd-ibuprofen", "Ibuprofen 400mg", "cat-analgesic", "30", 40, 10, "tablets"},
		{"prd-amoxicillin", "Amoxicillin 500mg", "cat-antibiotic", "120", 25, 10, "capsules"},
		{"prd-vitamin-c", "Vitamin C 1000mg", "cat-supplement", "80", 60, 15, "tablets"},
		{"prd-ors", "Oral Rehydration Salts", "cat-supplement", "15", 5, 10, "sachets"},
	}
	for i, p := range products {
		price := decimal.RequireFromString(p.price)
		product := domain.Product{
			ID:           p.id,
			OwnerID:      owner,
			BranchID:     "brn-main",
			CategoryID:   p.category,
			SupplierID:   "sup-default",
			Name:         p.name,
			Barcode:      fmt.Sprintf("899100000%04d", i+1),
			CostPrice:    price.Mul(decimal.RequireFromString("0.7")),
			SellingPrice: price,
			MinStock:     p.minStock,
			MaxStock:     p.stock * 3,
			UnitType:     p.unit,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.products[product.ID] = product
		if _, err := s.applyMovementLocked(domain.StockMovement{
			ProductID: product.ID,
			Type:      domain.MovementIn,
			Quantity:  p.stock,
			Reason:    "Initial stock",
			CreatedBy: owner,
		}); err != nil {
			log.Fatalf("[memory-store] failed to seed stock for %s: %v", product.ID, err)
		}
	}

	return s
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" || user.Role == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.userIDsByEmail[user.Email]; exists {
		return nil, fmt.Errorf("%w: email %s", store.ErrDuplicate, user.Email)
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = user
	s.userIDsByEmail[user.Email] = user.ID
	created := user
	return &created, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userIDsByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.users[id]
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context, scope tenant.Scope) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		if scope.Allows(user.OwnerID) || (user.ID == scope.TenantID() && user.ID != "") {
			result = append(result, user)
		}
	}
	slices.SortFunc(result, func(a, b domain.User) int {
		return cmpOr(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Email, b.Email))
	})
	return result, nil
}

func (s *Store) CreateBranch(_ context.Context, scope tenant.Scope, branch domain.Branch) (*domain.Branch, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createBranchLocked(owner, branch), nil
}

func (s *Store) createBranchLocked(owner string, branch domain.Branch) *domain.Branch {
	branch.OwnerID = owner
	if branch.ID == "" {
		branch.ID = xid.New("brn")
	}
	branch.CreatedAt = s.stamp()
	branch.Active = true
	s.branches[branch.ID] = branch
	return &branch
}

func (s *Store) GetBranch(_ context.Context, scope tenant.Scope, id string) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, ok := s.branches[id]
	if !ok || !scope.Allows(branch.OwnerID) {
		return nil, fmt.Errorf("branch %s: %w", id, store.ErrNotFound)
	}
	return &branch, nil
}

func (s *Store) ListBranches(_ context.Context, scope tenant.Scope) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return collect(s.branches, func(b domain.Branch) bool { return scope.Allows(b.OwnerID) }, func(a, b domain.Branch) int {
		return cmpOr(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Name, b.Name))
	}), nil
}

func (s *Store) EnsureDefaultBranch(_ context.Context, scope tenant.Scope, name string) (*domain.Branch, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := collect(s.branches, func(b domain.Branch) bool { return b.OwnerID == owner && b.Active }, func(a, b domain.Branch) int {
		return cmpOr(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	if len(candidates) > 0 {
		return &candidates[0], nil
	}
	return s.createBranchLocked(owner, domain.Branch{Name: name}), nil
}

func (s *Store) CreateCategory(_ context.Context, scope tenant.Scope, category domain.Category) (*domain.Category, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.findCategoryLocked(owner, category.Name); exists {
		return nil, fmt.Errorf("%w: category %s", store.ErrDuplicate, category.Name)
	}
	return s.createCategoryLocked(owner, category), nil
}

func (s *Store) createCategoryLocked(owner string, category domain.Category) *domain.Category {
	category.OwnerID = owner
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	category.CreatedAt = s.stamp()
	s.categories[category.ID] = category
	return &category
}

func (s *Store) findCategoryLocked(owner string, name string) (domain.Category, bool) {
	for _, category := range s.categories {
		if category.OwnerID == owner && strings.EqualFold(category.Name, strings.TrimSpace(name)) {
			return category, true
		}
	}
	return domain.Category{}, false
}

func (s *Store) GetCategory(_ context.Context, scope tenant.Scope, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.categories[id]
	if !ok || !scope.Allows(category.OwnerID) {
		return nil, fmt.Errorf("category %s: %w", id, store.ErrNotFound)
	}
	return &category, nil
}

func (s *Store) ListCategories(_ context.Context, scope tenant.Scope) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return collect(s.categories, func(c domain.Category) bool { return scope.Allows(c.OwnerID) }, func(a, b domain.Category) int {
		return cmp.Compare(a.Name, b.Name)
	}), nil
}

func (s *Store) EnsureCategory(_ context.Context, scope tenant.Scope, name string) (*domain.Category, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.findCategoryLocked(owner, name); ok {
		return &existing, nil
	}
	return s.createCategoryLocked(owner, domain.Category{Name: name}), nil
}

func (s *Store) CreateSupplier(_ context.Context, scope tenant.Scope, supplier domain.Supplier) (*domain.Supplier, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.suppliers {
		if existing.OwnerID == owner && strings.EqualFold(existing.Name, supplier.Name) {
			return nil, fmt.Errorf("%w: supplier %s", store.ErrDuplicate, supplier.Name)
		}
	}
	return s.createSupplierLocked(owner, supplier), nil
}

func (s *Store) createSupplierLocked(owner string, supplier domain.Supplier) *domain.Supplier {
	supplier.OwnerID = owner
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	supplier.CreatedAt = s.stamp()
	s.suppliers[supplier.ID] = supplier
	return &supplier
}

func (s *Store) GetSupplier(_ context.Context, scope tenant.Scope, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, ok := s.suppliers[id]
	if !ok || !scope.Allows(supplier.OwnerID) {
		return nil, fmt.Errorf("supplier %s: %w", id, store.ErrNotFound)
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(_ context.Context, scope tenant.Scope) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return collect(s.suppliers, func(sp domain.Supplier) bool { return scope.Allows(sp.OwnerID) }, func(a, b domain.Supplier) int {
		return cmp.Compare(a.Name, b.Name)
	}), nil
}

func (s *Store) EnsureDefaultSupplier(_ context.Context, scope tenant.Scope) (*domain.Supplier, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, supplier := range s.suppliers {
		if supplier.OwnerID == owner && supplier.IsDefault {
			return &supplier, nil
		}
	}
	return s.createSupplierLocked(owner, domain.Supplier{Name: domain.DefaultSupplierName, IsDefault: true}), nil
}

func (s *Store) CreateCustomer(_ context.Context, scope tenant.Scope, customer domain.Customer) (*domain.Customer, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer.OwnerID = owner
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	customer.LoyaltyPoints = 0
	customer.TotalPurchases = decimal.Zero
	customer.LastVisit = nil
	customer.CreatedAt = s.stamp()
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) GetCustomer(_ context.Context, scope tenant.Scope, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok || !scope.Allows(customer.OwnerID) {
		return nil, fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, scope tenant.Scope) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return collect(s.customers, func(c domain.Customer) bool { return scope.Allows(c.OwnerID) }, func(a, b domain.Customer) int {
		return cmp.Compare(a.Name, b.Name)
	}), nil
}

func (s *Store) CreateProduct(_ context.Context, scope tenant.Scope, product domain.Product, initial *domain.StockMovement) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	branch, ok := s.branches[product.BranchID]
	if !ok || !scope.Allows(branch.OwnerID) {
		return nil, fmt.Errorf("branch %s: %w", product.BranchID, store.ErrNotFound)
	}
	if err := s.checkProductRefsLocked(branch.OwnerID, product); err != nil {
		return nil, err
	}
	if _, exists := s.findProductByNameLocked(branch.OwnerID, branch.ID, product.Name); exists {
		return nil, fmt.Errorf("%w: product %q in branch", store.ErrDuplicate, product.Name)
	}
	if s.barcodeTakenLocked(branch.OwnerID, product.Barcode, "") {
		return nil, fmt.Errorf("%w: barcode %s", store.ErrDuplicate, product.Barcode)
	}

	created := s.insertProductLocked(branch.OwnerID, product)
	if initial != nil && initial.Quantity > 0 {
		movement := *initial
		movement.ProductID = created.ID
		if _, err := s.applyMovementLocked(movement); err != nil {
			delete(s.products, created.ID)
			return nil, err
		}
	}
	result := s.products[created.ID]
	return &result, nil
}

func (s *Store) insertProductLocked(owner string, product domain.Product) domain.Product {
	now := s.stamp()
	product.OwnerID = owner
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	product.Stock = 0
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	return product
}

func (s *Store) checkProductRefsLocked(owner string, product domain.Product) error {
	if product.CategoryID != "" {
		category, ok := s.categories[product.CategoryID]
		if !ok || category.OwnerID != owner {
			return fmt.Errorf("category %s: %w", product.CategoryID, store.ErrNotFound)
		}
	}
	if product.SupplierID != "" {
		supplier, ok := s.suppliers[product.SupplierID]
		if !ok || supplier.OwnerID != owner {
			return fmt.Errorf("supplier %s: %w", product.SupplierID, store.ErrNotFound)
		}
	}
	return nil
}

func (s *Store) findProductByNameLocked(owner string, branchID string, name string) (domain.Product, bool) {
	name = strings.TrimSpace(name)
	for _, product := range s.products {
		if product.OwnerID == owner && product.BranchID == branchID && strings.EqualFold(product.Name, name) {
			return product, true
		}
	}
	return domain.Product{}, false
}

func (s *Store) barcodeTakenLocked(owner string, barcode string, exceptID string) bool {
	if barcode == "" {
		return false
	}
	for _, product := range s.products {
		if product.OwnerID == owner && product.Barcode == barcode && product.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Store) GetProduct(_ context.Context, scope tenant.Scope, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok || !scope.Allows(product.OwnerID) {
		return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context, scope tenant.Scope, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := collect(s.products, func(p domain.Product) bool {
		if !scope.Allows(p.OwnerID) {
			return false
		}
		if filter.BranchID != "" && p.BranchID != filter.BranchID {
			return false
		}
		return !filter.LowStock || p.LowStock()
	}, func(a, b domain.Product) int {
		return cmpOr(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, scope tenant.Scope, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok || !scope.Allows(existing.OwnerID) {
		return nil, fmt.Errorf("product %s: %w", product.ID, store.ErrNotFound)
	}
	if err := s.checkProductRefsLocked(existing.OwnerID, product); err != nil {
		return nil, err
	}
	if other, exists := s.findProductByNameLocked(existing.OwnerID, existing.BranchID, product.Name); exists && other.ID != existing.ID {
		return nil, fmt.Errorf("%w: product %q in branch", store.ErrDuplicate, product.Name)
	}

	existing.Name = product.Name
	existing.Description = product.Description
	existing.CategoryID = product.CategoryID
	existing.SupplierID = product.SupplierID
	existing.CostPrice = product.CostPrice
	existing.SellingPrice = product.SellingPrice
	existing.MinStock = product.MinStock
	existing.MaxStock = product.MaxStock
	existing.UnitType = product.UnitType
	existing.Active = product.Active
	existing.UpdatedAt = s.stamp()
	s.products[existing.ID] = existing
	return &existing, nil
}

func (s *Store) DeleteProduct(_ context.Context, scope tenant.Scope, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok || !scope.Allows(product.OwnerID) {
		return fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	for _, sale := range s.sales {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return fmt.Errorf("%w: product %s is referenced by sale %s", store.ErrDuplicate, id, sale.ID)
			}
		}
	}

	s.movements = slices.DeleteFunc(s.movements, func(m domain.StockMovement) bool { return m.ProductID == id })
	delete(s.products, id)
	return nil
}

func (s *Store) BarcodeExists(_ context.Context, scope tenant.Scope, barcode string) (bool, error) {
	owner, err := scope.Owner()
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if scope.Unrestricted() {
		for _, product := range s.products {
			if product.Barcode == barcode {
				return true, nil
			}
		}
		return false, nil
	}
	return s.barcodeTakenLocked(owner, barcode, ""), nil
}

func (s *Store) ImportProduct(_ context.Context, scope tenant.Scope, row store.ProductImport) (*store.ImportOutcome, error) {
	if row.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	branch, ok := s.branches[row.Product.BranchID]
	if !ok || !scope.Allows(branch.OwnerID) {
		return nil, fmt.Errorf("branch %s: %w", row.Product.BranchID, store.ErrNotFound)
	}
	if err := s.checkProductRefsLocked(branch.OwnerID, row.Product); err != nil {
		return nil, err
	}

	if existing, found := s.findProductByNameLocked(branch.OwnerID, branch.ID, row.Product.Name); found {
		existing.CostPrice = row.Product.CostPrice
		existing.SellingPrice = row.Product.SellingPrice
		existing.Description = row.Product.Description
		existing.UnitType = row.Product.UnitType
		if row.Product.CategoryID != "" {
			existing.CategoryID = row.Product.CategoryID
		}
		if row.Product.SupplierID != "" {
			existing.SupplierID = row.Product.SupplierID
		}
		existing.UpdatedAt = s.stamp()
		s.products[existing.ID] = existing

		if row.Quantity > 0 {
			if _, err := s.applyMovementLocked(domain.StockMovement{
				ProductID: existing.ID,
				Type:      domain.MovementIn,
				Quantity:  row.Quantity,
				Reason:    row.MergeReason,
				CreatedBy: row.CreatedBy,
			}); err != nil {
				return nil, err
			}
		}
		merged := s.products[existing.ID]
		return &store.ImportOutcome{Product: &merged, Merged: true}, nil
	}

	if s.barcodeTakenLocked(branch.OwnerID, row.Product.Barcode, "") {
		return nil, fmt.Errorf("%w: barcode %s", store.ErrDuplicate, row.Product.Barcode)
	}
	created := s.insertProductLocked(branch.OwnerID, row.Product)
	if row.Quantity > 0 {
		if _, err := s.applyMovementLocked(domain.StockMovement{
			ProductID: created.ID,
			Type:      domain.MovementIn,
			Quantity:  row.Quantity,
			Reason:    row.CreateReason,
			CreatedBy: row.CreatedBy,
		}); err != nil {
			delete(s.products, created.ID)
			return nil, err
		}
	}
	result := s.products[created.ID]
	return &store.ImportOutcome{Product: &result}, nil
}

func (s *Store) ApplyMovement(_ context.Context, scope tenant.Scope, movement domain.StockMovement) (*domain.StockMovement, *domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[movement.ProductID]
	if !ok || !scope.Allows(product.OwnerID) {
		return nil, nil, fmt.Errorf("product %s: %w", movement.ProductID, store.ErrNotFound)
	}
	applied, err := s.applyMovementLocked(movement)
	if err != nil {
		return nil, nil, err
	}
	updated := s.products[product.ID]
	return &applied, &updated, nil
}

// applyMovementLocked appends the movement and updates the product stock.
// Callers must hold s.mu and have checked scope.
func (s *Store) applyMovementLocked(movement domain.StockMovement) (domain.StockMovement, error) {
	product, ok := s.products[movement.ProductID]
	if !ok {
		return domain.StockMovement{}, fmt.Errorf("product %s: %w", movement.ProductID, store.ErrNotFound)
	}

	next, delta, err := ledger.Apply(product.Stock, movement.Type, movement.Quantity)
	if err != nil {
		return domain.StockMovement{}, translateLedgerError(product, err)
	}

	now := s.stamp()
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	movement.OwnerID = product.OwnerID
	movement.Delta = delta
	movement.BalanceAfter = next
	movement.CreatedAt = now

	product.Stock = next
	product.UpdatedAt = now
	s.products[product.ID] = product
	s.movements = append(s.movements, movement)
	return movement, nil
}

func (s *Store) ListMovements(_ context.Context, scope tenant.Scope, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[productID]
	if !ok || !scope.Allows(product.OwnerID) {
		return nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}

	result := make([]domain.StockMovement, 0, 16)
	for _, movement := range s.movements {
		if movement.ProductID == productID {
			result = append(result, movement)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (s *Store) GetSettings(_ context.Context, scope tenant.Scope) (*domain.Settings, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, ok := s.settings[owner]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &settings, nil
}

func (s *Store) UpsertSettings(_ context.Context, scope tenant.Scope, settings domain.Settings) (*domain.Settings, error) {
	owner, err := scope.Owner()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settings.OwnerID = owner
	settings.UpdatedAt = s.stamp()
	s.settings[owner] = settings
	return &settings, nil
}

func (s *Store) CreateSale(_ context.Context, scope tenant.Scope, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 || sale.Receipt == nil {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	branch, ok := s.branches[sale.BranchID]
	if !ok || !scope.Allows(branch.OwnerID) {
		return nil, fmt.Errorf("branch %s: %w", sale.BranchID, store.ErrNotFound)
	}
	owner := branch.OwnerID

	var customer domain.Customer
	if sale.CustomerID != "" {
		customer, ok = s.customers[sale.CustomerID]
		if !ok || customer.OwnerID != owner {
			return nil, fmt.Errorf("customer %s: %w", sale.CustomerID, store.ErrNotFound)
		}
	}
	if _, taken := s.receiptNumbers[sale.Receipt.ReceiptNumber]; taken {
		return nil, store.ErrReceiptConflict
	}

	// Every line is checked against the running stock before anything is
	// written, so a failing line leaves no trace.
	pending := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		product, ok := s.products[item.ProductID]
		if !ok || product.OwnerID != owner {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		if item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		pending[item.ProductID] += item.Quantity
		if err := ledger.AssertSufficient(product.Stock, pending[item.ProductID]); err != nil {
			return nil, translateLedgerError(product, err)
		}
	}

	now := s.stamp()
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	sale.OwnerID = owner
	sale.CreatedAt = now
	sale.Status = domain.SaleStatusCompleted
	sale.PaymentStatus = domain.PaymentStatusPaid

	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if _, err := s.applyMovementLocked(domain.StockMovement{
			ProductID:     item.ProductID,
			Type:          domain.MovementOut,
			Quantity:      item.Quantity,
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
		items = append(items, item)
	}
	sale.Items = items

	if sale.CustomerID != "" {
		customer.TotalPurchases = customer.TotalPurchases.Add(sale.Total)
		customer.LoyaltyPoints += store.LoyaltyPoints(sale.Total)
		visit := now
		customer.LastVisit = &visit
		s.customers[customer.ID] = customer
	}

	receipt := *sale.Receipt
	if receipt.ID == "" {
		receipt.ID = xid.New("rcpt")
	}
	receipt.SaleID = sale.ID
	receipt.GeneratedAt = now
	s.receiptsBySale[sale.ID] = receipt
	s.receiptNumbers[receipt.ReceiptNumber] = sale.ID

	sale.Receipt = nil
	sale.Customer = nil
	sale.Branch = nil
	s.sales[sale.ID] = cloneSale(sale)

	hydrated := s.hydrateSaleLocked(s.sales[sale.ID])
	return &hydrated, nil
}

func (s *Store) hydrateSaleLocked(sale domain.Sale) domain.Sale {
	out := cloneSale(sale)
	if receipt, ok := s.receiptsBySale[sale.ID]; ok {
		out.Receipt = &receipt
	}
	if sale.CustomerID != "" {
		if customer, ok := s.customers[sale.CustomerID]; ok {
			out.Customer = &customer
		}
	}
	if branch, ok := s.branches[sale.BranchID]; ok {
		out.Branch = &branch
	}
	return out
}

func (s *Store) GetSale(_ context.Context, scope tenant.Scope, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok || !scope.Allows(sale.OwnerID) {
		return nil, fmt.Errorf("sale %s: %w", id, store.ErrNotFound)
	}
	hydrated := s.hydrateSaleLocked(sale)
	return &hydrated, nil
}

func (s *Store) ListSales(_ context.Context, scope tenant.Scope, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if scope.Allows(sale.OwnerID) {
			result = append(result, s.hydrateSaleLocked(sale))
		}
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		return cmpOr(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ReceiptNumberExists(_ context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.receiptNumbers[number]
	return exists, nil
}

func (s *Store) CreateRefund(_ context.Context, scope tenant.Scope, refund domain.Refund, opts store.RefundOptions) (*domain.Refund, error) {
	if len(refund.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[refund.SaleID]
	if !ok || !scope.Allows(sale.OwnerID) {
		return nil, fmt.Errorf("sale %s: %w", refund.SaleID, store.ErrNotFound)
	}

	sold := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		sold[item.ProductID] += item.Quantity
	}
	refunded := make(map[string]int, len(sold))
	for _, previous := range s.refunds {
		if previous.SaleID != sale.ID {
			continue
		}
		for _, item := range previous.Items {
			refunded[item.ProductID] += item.Quantity
		}
	}

	for _, item := range refund.Items {
		product, ok := s.products[item.ProductID]
		if !ok || product.OwnerID != sale.OwnerID {
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

	now := s.stamp()
	if refund.ID == "" {
		refund.ID = xid.New("rfd")
	}
	refund.OwnerID = sale.OwnerID
	refund.Status = domain.RefundStatusProcessed
	refund.CreatedAt = now

	items := make([]domain.RefundItem, 0, len(refund.Items))
	for _, item := range refund.Items {
		if item.ID == "" {
			item.ID = xid.New("ritm")
		}
		item.RefundID = refund.ID
		if _, err := s.applyMovementLocked(domain.StockMovement{
			ProductID:     item.ProductID,
			Type:          domain.MovementReturn,
			Quantity:      item.Quantity,
			Reason:        "Refund: " + refundReason(item, refund),
			ReferenceType: domain.ReferenceRefund,
			ReferenceID:   refund.ID,
			CreatedBy:     refund.RefundedBy,
		}); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	refund.Items = items

	sale.Status = domain.SaleStatusRefunded
	s.sales[sale.ID] = sale

	if opts.ReverseLoyalty && sale.CustomerID != "" {
		if customer, ok := s.customers[sale.CustomerID]; ok {
			customer.TotalPurchases = decimal.Max(decimal.Zero, customer.TotalPurchases.Sub(refund.RefundAmount))
			customer.LoyaltyPoints = max(0, customer.LoyaltyPoints-store.LoyaltyPoints(refund.RefundAmount))
			s.customers[customer.ID] = customer
		}
	}

	s.refunds[refund.ID] = cloneRefund(refund)
	created := cloneRefund(refund)
	return &created, nil
}

func (s *Store) ListRefunds(_ context.Context, scope tenant.Scope, saleID string) ([]domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[saleID]
	if !ok || !scope.Allows(sale.OwnerID) {
		return nil, fmt.Errorf("sale %s: %w", saleID, store.ErrNotFound)
	}
	result := collect(s.refunds, func(r domain.Refund) bool { return r.SaleID == saleID }, func(a, b domain.Refund) int {
		return cmpOr(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	for i := range result {
		result[i] = cloneRefund(result[i])
	}
	return result, nil
}

func (s *Store) DeleteTenant(_ context.Context, tenantID string) (*domain.TenantDeletionReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, ok := s.users[tenantID]
	if !ok || !root.IsTenantRoot() {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, store.ErrNotFound)
	}

	ownedProduct := func(id string) bool {
		product, ok := s.products[id]
		return ok && product.OwnerID == tenantID
	}
	ownedSale := func(id string) bool {
		sale, ok := s.sales[id]
		return ok && sale.OwnerID == tenantID
	}

	counts := make(map[string]int64, len(store.TenantTables))
	for id, refund := range s.refunds {
		if refund.OwnerID != tenantID && !ownedSale(refund.SaleID) {
			kept := refund.Items[:0]
			for _, item := range refund.Items {
				if ownedProduct(item.ProductID) {
					counts["refund_items"]++
					continue
				}
				kept = append(kept, item)
			}
			refund.Items = kept
			s.refunds[id] = refund
			continue
		}
		counts["refund_items"] += int64(len(refund.Items))
		counts["refunds"]++
		delete(s.refunds, id)
	}
	for id, sale := range s.sales {
		if sale.OwnerID != tenantID {
			kept := sale.Items[:0]
			for _, item := range sale.Items {
				if ownedProduct(item.ProductID) {
					counts["sale_items"]++
					continue
				}
				kept = append(kept, item)
			}
			sale.Items = kept
			s.sales[id] = sale
			continue
		}
		counts["sale_items"] += int64(len(sale.Items))
		if receipt, ok := s.receiptsBySale[id]; ok {
			delete(s.receiptNumbers, receipt.ReceiptNumber)
			delete(s.receiptsBySale, id)
			counts["receipts"]++
		}
		counts["sales"]++
		delete(s.sales, id)
	}

	before := len(s.movements)
	s.movements = slices.DeleteFunc(s.movements, func(m domain.StockMovement) bool {
		return m.OwnerID == tenantID || ownedProduct(m.ProductID)
	})
	counts["stock_movements"] = int64(before - len(s.movements))

	counts["customers"] = deleteOwned(s.customers, tenantID, func(c domain.Customer) string { return c.OwnerID })
	counts["products"] = deleteOwned(s.products, tenantID, func(p domain.Product) string { return p.OwnerID })
	counts["suppliers"] = deleteOwned(s.suppliers, tenantID, func(sp domain.Supplier) string { return sp.OwnerID })
	counts["categories"] = deleteOwned(s.categories, tenantID, func(c domain.Category) string { return c.OwnerID })
	counts["branches"] = deleteOwned(s.branches, tenantID, func(b domain.Branch) string { return b.OwnerID })
	if _, ok := s.settings[tenantID]; ok {
		delete(s.settings, tenantID)
		counts["settings"] = 1
	}
	for id, user := range s.users {
		if user.OwnerID == tenantID || id == tenantID {
			delete(s.userIDsByEmail, user.Email)
			delete(s.users, id)
			counts["users"]++
		}
	}

	report := &domain.TenantDeletionReport{TenantID: tenantID}
	for _, table := range store.TenantTables {
		report.Deleted = append(report.Deleted, domain.DeletedEntries{Table: table, Rows: counts[table]})
	}
	return report, nil
}

// stamp returns a strictly increasing timestamp so creation order survives
// sorting even when the clock does not advance between writes.
func (s *Store) stamp() time.Time {
	s.seq++
	return time.Now().UTC().Add(time.Duration(s.seq) * time.Nanosecond)
}

func translateLedgerError(product domain.Product, err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientStock):
		return fmt.Errorf("%w: %s has %d in stock", store.ErrInsufficientStock, product.Name, product.Stock)
	case errors.Is(err, ledger.ErrInvalidMovement):
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	default:
		return err
	}
}

func refundReason(item domain.RefundItem, refund domain.Refund) string {
	if strings.TrimSpace(item.Reason) != "" {
		return item.Reason
	}
	return refund.Reason
}

func collect[T any](rows map[string]T, keep func(T) bool, compare func(a, b T) int) []T {
	result := make([]T, 0, len(rows))
	for _, row := range rows {
		if keep(row) {
			result = append(result, row)
		}
	}
	slices.SortFunc(result, compare)
	return result
}

func deleteOwned[T any](rows map[string]T, owner string, ownerOf func(T) string) int64 {
	var deleted int64
	for id, row := range rows {
		if ownerOf(row) == owner {
			delete(rows, id)
			deleted++
		}
	}
	return deleted
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = append([]domain.SaleItem(nil), src.Items...)
	return dst
}

func cloneRefund(src domain.Refund) domain.Refund {
	dst := src
	dst.Items = append([]domain.RefundItem(nil), src.Items...)
	return dst
}
