package service

import (
	"context"
	"log"
	"strings"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/notify"
)

// DeleteTenant removes a tenant root with all of its staff and data. Only
// the super tenant may call it.
func (s *Service) DeleteTenant(ctx context.Context, tenantID string) (domain.TenantDeletionReport, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.TenantDeletionReport{}, err
	}
	if !scope.Unrestricted() {
		return domain.TenantDeletionReport{}, ErrForbidden
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.TenantDeletionReport{}, invalid("tenant id is required")
	}
	if tenantID == scope.PrincipalID() {
		return domain.TenantDeletionReport{}, invalid("cannot delete the calling account")
	}

	report, err := s.repo.DeleteTenant(ctx, tenantID)
	if err != nil {
		return domain.TenantDeletionReport{}, err
	}
	if err := s.settings.Delete(ctx, tenantID); err != nil {
		log.Printf("[service] WARN: failed to drop settings cache tenant=%s: %v", tenantID, err)
	}
	log.Printf("[service] tenant %s deleted by %s: %d rows", tenantID, scope.PrincipalID(), report.Total())
	s.publish(ctx, notify.KindTenantDeleted, tenantID, tenantID, report)
	return *report, nil
}
