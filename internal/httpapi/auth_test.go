package httpapi

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/service"
	"pharmaledger/backend/internal/store/memory"
	"pharmaledger/backend/internal/tenant"
)

func principalCtx(id, role, owner string) context.Context {
	return tenant.WithPrincipal(context.Background(), domain.Principal{ID: id, Role: role, OwnerID: owner})
}

func TestLoginIssuesTokenCarryingTenant(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", memory.NewSeeded())

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Email: "Cashier@PharmaLedger.local", Password: "cashier123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	principal, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if principal.ID != "usr-cashier" || principal.Role != domain.RoleCashier || principal.OwnerID != "usr-admin" {
		t.Fatalf("unexpected principal %+v", principal)
	}

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Email: "cashier@pharmaledger.local", Password: "wrong"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := auth.Login(context.Background(), domain.LoginRequest{Email: "nobody@pharmaledger.local", Password: "cashier123"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	repo := memory.NewSeeded()
	issuer := NewAuthManager("secret-one-secret-one-secret-one", time.Hour, "123456", repo)
	verifier := NewAuthManager("secret-two-secret-two-secret-two", time.Hour, "123456", repo)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Email: "admin@pharmaledger.local", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestCreateStaffStoresPasswordHashUnderRoot(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)

	user, err := auth.CreateStaff(principalCtx("usr-admin", domain.RoleAdmin, "usr-admin"), domain.UserCreateRequest{
		Email:    "Pharmacist@PharmaLedger.local",
		Name:     "Night Shift",
		Password: "pharma-secret",
		Role:     "pharmacist",
	})
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}
	if user.OwnerID != "usr-admin" || user.Role != domain.RolePharmacist || user.Email != "pharmacist@pharmaledger.local" {
		t.Fatalf("unexpected staff %+v", user)
	}

	stored, err := repo.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !isPasswordHash(stored.PasswordHash) || stored.PasswordHash == "pharma-secret" {
		t.Fatalf("expected bcrypt hash, got %q", stored.PasswordHash)
	}
	if _, err := auth.Login(context.Background(), domain.LoginRequest{Email: user.Email, Password: "pharma-secret"}); err != nil {
		t.Fatalf("login as new staff: %v", err)
	}
}

func TestCreateStaffRules(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", memory.NewSeeded())

	_, err := auth.CreateStaff(principalCtx("usr-cashier", domain.RoleCashier, "usr-admin"), domain.UserCreateRequest{Email: "x@pharmaledger.local", Password: "long-enough"})
	if !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("expected staff creation by non-root to be forbidden, got %v", err)
	}

	_, err = auth.CreateStaff(principalCtx("usr-admin", domain.RoleAdmin, "usr-admin"), domain.UserCreateRequest{Email: "x@pharmaledger.local", Password: "long-enough", Role: domain.RoleSuperAdmin})
	var verr *service.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for privileged role, got %v", err)
	}

	_, err = auth.CreateStaff(principalCtx("usr-admin", domain.RoleAdmin, "usr-admin"), domain.UserCreateRequest{Email: "admin@pharmaledger.local", Password: "long-enough"})
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected duplicate email, got %v", err)
	}
}

func TestCreateTenantIsSuperOnly(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", memory.NewSeeded())
	req := domain.UserCreateRequest{Email: "owner@apotek-baru.local", Name: "Apotek Baru", Password: "owner-secret"}

	if _, err := auth.CreateTenant(principalCtx("usr-admin", domain.RoleAdmin, "usr-admin"), req); !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	root, err := auth.CreateTenant(principalCtx("usr-super", domain.RoleSuperAdmin, ""), req)
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if !root.IsTenantRoot() {
		t.Fatalf("expected a tenant root, got %+v", root)
	}
}

func TestResolveRejectsRemovedAccount(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Email: "cashier@pharmaledger.local", Password: "cashier123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := repo.DeleteTenant(context.Background(), "usr-admin"); err != nil {
		t.Fatalf("delete tenant: %v", err)
	}
	if _, err := auth.Resolve(context.Background(), resp.AccessToken); !errors.Is(err, tenant.ErrUnauthorized) {
		t.Fatalf("expected unauthorized after tenant deletion, got %v", err)
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, "481920", memory.New())

	if auth.managerPIN == "481920" || !isPasswordHash(auth.managerPIN) {
		t.Fatalf("expected manager pin to be stored as bcrypt hash")
	}
	if !auth.ValidateManagerPIN("481920") {
		t.Fatalf("expected manager pin to validate")
	}
	if auth.ValidateManagerPIN("000000") || auth.ValidateManagerPIN("") {
		t.Fatalf("expected wrong pins to fail")
	}
}
