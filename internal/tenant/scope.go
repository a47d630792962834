package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pharmaledger/backend/internal/domain"
)

var ErrUnauthorized = errors.New("unauthorized: no tenant scope")

type principalContextKey struct{}

func WithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return principal, ok
}

// Scope restricts reads and writes to one tenant. The zero value matches no
// rows.
type Scope struct {
	tenantID    string
	principalID string
	all         bool
}

// Resolve derives the scope of a principal. A nil or anonymous principal
// fails closed with ErrUnauthorized.
func Resolve(principal *domain.Principal) (Scope, error) {
	if principal == nil || strings.TrimSpace(principal.ID) == "" {
		return Scope{}, ErrUnauthorized
	}

	id := principal.ID
	owner := strings.TrimSpace(principal.OwnerID)
	switch {
	case principal.Role == domain.RoleSuperAdmin:
		return Scope{principalID: id, all: true}, nil
	case owner == id:
		return Scope{tenantID: id, principalID: id}, nil
	case owner != "":
		return Scope{tenantID: owner, principalID: id}, nil
	default:
		return Scope{tenantID: id, principalID: id}, nil
	}
}

func FromContext(ctx context.Context) (Scope, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return Scope{}, ErrUnauthorized
	}
	return Resolve(&principal)
}

// ForTenant is the scope used by administrative jobs acting on one tenant.
func ForTenant(tenantID string) Scope {
	if strings.TrimSpace(tenantID) == "" {
		return Scope{}
	}
	return Scope{tenantID: tenantID, principalID: tenantID}
}

func (s Scope) Unrestricted() bool {
	return s.all
}

func (s Scope) Valid() bool {
	return s.all || s.tenantID != ""
}

func (s Scope) TenantID() string {
	return s.tenantID
}

func (s Scope) PrincipalID() string {
	return s.principalID
}

// Allows reports whether a row owned by ownerID is visible in this scope.
func (s Scope) Allows(ownerID string) bool {
	if s.all {
		return true
	}
	return s.tenantID != "" && ownerID == s.tenantID
}

// Owner is the owner reference stamped on rows created in this scope.
// Super-tenant creations are owned by the super-tenant principal itself.
func (s Scope) Owner() (string, error) {
	if s.tenantID != "" {
		return s.tenantID, nil
	}
	if s.all && s.principalID != "" {
		return s.principalID, nil
	}
	return "", ErrUnauthorized
}

// Predicate renders the SQL condition for column with the given positional
// placeholder index. The unrestricted scope renders "TRUE" and the zero
// scope renders "FALSE".
func (s Scope) Predicate(column string, placeholder int) (string, []any) {
	if s.all {
		return "TRUE", nil
	}
	if s.tenantID == "" {
		return "FALSE", nil
	}
	return fmt.Sprintf("%s = $%d", column, placeholder), []any{s.tenantID}
}

func (s Scope) String() string {
	switch {
	case s.all:
		return "scope(all)"
	case s.tenantID == "":
		return "scope(none)"
	default:
		return "scope(" + s.tenantID + ")"
	}
}
