package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pharmaledger/backend/internal/cache"
	"pharmaledger/backend/internal/notify"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/tenant"
)

var ErrForbidden = errors.New("forbidden")

// ValidationError lists field level problems found before any write.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

func (e *ValidationError) Unwrap() error {
	return store.ErrInvalidInput
}

func invalid(fields ...string) error {
	return &ValidationError{Fields: fields}
}

type Options struct {
	DefaultTaxPercent decimal.Decimal
	ReverseLoyalty    bool
	SettingsTTL       time.Duration
	// SaleAttempts bounds retries of a sale whose receipt number collided.
	SaleAttempts int
}

type Service struct {
	repo      store.Repository
	settings  cache.SettingsCache
	publisher notify.Publisher
	opts      Options
	now       func() time.Time
}

func New(repo store.Repository, settingsCache cache.SettingsCache, publisher notify.Publisher, opts Options) *Service {
	if settingsCache == nil {
		settingsCache = cache.NoopSettingsCache{}
	}
	if publisher == nil {
		publisher = notify.Noop{}
	}
	if opts.DefaultTaxPercent.IsZero() {
		opts.DefaultTaxPercent = decimal.NewFromInt(17)
	}
	if opts.SettingsTTL <= 0 {
		opts.SettingsTTL = time.Minute
	}
	if opts.SaleAttempts < 1 {
		opts.SaleAttempts = 3
	}

	return &Service{
		repo:      repo,
		settings:  settingsCache,
		publisher: publisher,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) scope(ctx context.Context) (tenant.Scope, error) {
	return tenant.FromContext(ctx)
}

// branchScope narrows an unrestricted scope to the tenant owning branchID.
// Tenant scopes are returned unchanged.
func (s *Service) branchScope(ctx context.Context, scope tenant.Scope, branchID string) (tenant.Scope, error) {
	if !scope.Unrestricted() {
		return scope, nil
	}
	branch, err := s.repo.GetBranch(ctx, scope, branchID)
	if err != nil {
		return tenant.Scope{}, err
	}
	return tenant.ForTenant(branch.OwnerID), nil
}

func actorID(ctx context.Context) string {
	principal, _ := tenant.PrincipalFromContext(ctx)
	return principal.ID
}

func (s *Service) publish(ctx context.Context, kind string, tenantID string, entityID string, payload any) {
	s.publisher.Publish(ctx, notify.Event{
		Kind:     kind,
		TenantID: tenantID,
		EntityID: entityID,
		Payload:  payload,
		At:       s.now(),
	})
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
