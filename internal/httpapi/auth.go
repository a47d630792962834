package httpapi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/service"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/tenant"
	"pharmaledger/backend/internal/xid"
)

var errInvalidCredentials = errors.New("invalid credentials")

var staffRoles = []string{domain.RoleManager, domain.RolePharmacist, domain.RoleCashier}

type AuthManager struct {
	secret     []byte
	tokenTTL   time.Duration
	managerPIN string
	users      UserStore
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, scope tenant.Scope) ([]domain.User, error)
}

type ledgerClaims struct {
	jwtlib.RegisteredClaims
	Role  string `json:"role"`
	Owner string `json:"owner,omitempty"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, managerPIN string, users UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	managerPIN = strings.TrimSpace(managerPIN)
	if managerPIN == "" {
		managerPIN = "disabled"
	}
	hashedPIN, err := hashPassword(managerPIN)
	if err == nil {
		managerPIN = hashedPIN
	}

	return &AuthManager{
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		managerPIN: managerPIN,
		users:      users,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	user, err := a.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(user.PasswordHash, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !user.Active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(user.Principal(), expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		UserID:      user.ID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Principal, error) {
	claims := &ledgerClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Principal{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Principal{}, errors.New("invalid token subject")
	}
	return domain.Principal{ID: sub, Role: claims.Role, OwnerID: claims.Owner}, nil
}

// Resolve re-reads the token subject so deleted or deactivated accounts stop
// authenticating before their tokens expire.
func (a *AuthManager) Resolve(ctx context.Context, tokenStr string) (domain.Principal, error) {
	principal, err := a.ParseToken(tokenStr)
	if err != nil {
		return domain.Principal{}, err
	}
	user, err := a.users.GetUserByID(ctx, principal.ID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Principal{}, tenant.ErrUnauthorized
	}
	if err != nil {
		return domain.Principal{}, err
	}
	if !user.Active {
		return domain.Principal{}, errors.New("account is inactive")
	}
	return user.Principal(), nil
}

func (a *AuthManager) sign(principal domain.Principal, expiresAt time.Time) (string, error) {
	claims := ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   principal.ID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "pharmaledger",
		},
		Role:  principal.Role,
		Owner: principal.OwnerID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	input := strings.TrimSpace(pin)
	if input == "" || !isPasswordHash(a.managerPIN) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.managerPIN), []byte(input)) == nil
}

// CreateTenant registers a new tenant root. Only the super tenant may call it.
func (a *AuthManager) CreateTenant(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	principal, _ := tenant.PrincipalFromContext(ctx)
	if principal.Role != domain.RoleSuperAdmin {
		return domain.User{}, service.ErrForbidden
	}
	id := xid.New("usr")
	return a.createUser(ctx, req, domain.RoleAdmin, id, id)
}

// CreateStaff adds a staff account to the caller's tenant. The caller must be
// the tenant root.
func (a *AuthManager) CreateStaff(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	principal, _ := tenant.PrincipalFromContext(ctx)
	root := domain.User{ID: principal.ID, Role: principal.Role, OwnerID: principal.OwnerID}
	if !root.IsTenantRoot() {
		return domain.User{}, service.ErrForbidden
	}
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleCashier
	}
	if !slices.Contains(staffRoles, role) {
		return domain.User{}, &service.ValidationError{Fields: []string{fmt.Sprintf("role must be one of %s", strings.Join(staffRoles, ", "))}}
	}
	return a.createUser(ctx, req, role, xid.New("usr"), root.ID)
}

func (a *AuthManager) createUser(ctx context.Context, req domain.UserCreateRequest, role string, id string, owner string) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	problems := make([]string, 0, 2)
	if email == "" || !strings.Contains(email, "@") || strings.ContainsAny(email, " \t\r\n") {
		problems = append(problems, "email must be a valid address")
	}
	if strings.TrimSpace(req.Password) == "" || len(req.Password) < 8 {
		problems = append(problems, "password must be at least 8 characters")
	}
	if len(problems) > 0 {
		return domain.User{}, &service.ValidationError{Fields: problems}
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password")
	}
	created, err := a.users.CreateUser(ctx, domain.User{
		ID:           id,
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: passwordHash,
		Role:         role,
		OwnerID:      owner,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.User{}, err
	}
	return *created, nil
}

func (a *AuthManager) ListUsers(ctx context.Context) ([]domain.User, error) {
	scope, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return a.users.ListUsers(ctx, scope)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
