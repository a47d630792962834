package service

import (
	"context"
	"strings"

	"pharmaledger/backend/internal/domain"
)

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchCreateRequest) (domain.Branch, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.Branch{}, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return domain.Branch{}, invalid("name is required")
	}
	created, err := s.repo.CreateBranch(ctx, scope, domain.Branch{
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
		Phone:   strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.Branch{}, err
	}
	return *created, nil
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBranches(ctx, scope)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.Category{}, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return domain.Category{}, invalid("name is required")
	}
	created, err := s.repo.CreateCategory(ctx, scope, domain.Category{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return domain.Category{}, err
	}
	return *created, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx, scope)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.Supplier{}, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return domain.Supplier{}, invalid("name is required")
	}
	created, err := s.repo.CreateSupplier(ctx, scope, domain.Supplier{
		Name:    strings.TrimSpace(req.Name),
		Contact: strings.TrimSpace(req.Contact),
		Phone:   strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSuppliers(ctx, scope)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return domain.Customer{}, invalid("name is required")
	}
	created, err := s.repo.CreateCustomer(ctx, scope, domain.Customer{
		Name:  strings.TrimSpace(req.Name),
		Phone: strings.TrimSpace(req.Phone),
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	customer, err := s.repo.GetCustomer(ctx, scope, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	scope, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx, scope)
}
