package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/tenant"
)

var hundred = decimal.NewFromInt(100)

// GetSettings returns the tenant settings, falling back to the configured
// defaults when the tenant never saved any.
func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	return s.effectiveSettings(ctx, scope)
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.Settings, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	current, err := s.effectiveSettings(ctx, scope)
	if err != nil {
		return domain.Settings{}, err
	}

	if req.DefaultTax != nil {
		if req.DefaultTax.IsNegative() || req.DefaultTax.GreaterThan(hundred) {
			return domain.Settings{}, invalid("default_tax must be between 0 and 100")
		}
		current.DefaultTax = *req.DefaultTax
	}
	if req.Currency != nil {
		current.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}

	saved, err := s.repo.UpsertSettings(ctx, scope, current)
	if err != nil {
		return domain.Settings{}, err
	}
	if err := s.settings.Delete(ctx, saved.OwnerID); err != nil {
		log.Printf("[service] WARN: failed to invalidate settings cache tenant=%s: %v", saved.OwnerID, err)
	}
	return *saved, nil
}

func (s *Service) effectiveSettings(ctx context.Context, scope tenant.Scope) (domain.Settings, error) {
	owner, err := scope.Owner()
	if err != nil {
		return domain.Settings{}, err
	}

	if cached, ok, err := s.settings.Get(ctx, owner); err != nil {
		log.Printf("[service] WARN: settings cache read failed tenant=%s: %v", owner, err)
	} else if ok {
		return *cached, nil
	}

	stored, err := s.repo.GetSettings(ctx, scope)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.Settings{OwnerID: owner, DefaultTax: s.opts.DefaultTaxPercent}, nil
	case err != nil:
		return domain.Settings{}, err
	}

	if err := s.settings.Set(ctx, owner, stored, s.opts.SettingsTTL); err != nil {
		log.Printf("[service] WARN: settings cache write failed tenant=%s: %v", owner, err)
	}
	return *stored, nil
}

// taxRate is the tenant's default tax as a percentage.
func (s *Service) taxRate(ctx context.Context, scope tenant.Scope) (decimal.Decimal, error) {
	settings, err := s.effectiveSettings(ctx, scope)
	if err != nil {
		return decimal.Zero, err
	}
	return settings.DefaultTax, nil
}
