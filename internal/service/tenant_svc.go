package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/tgo/captain/knowdesk/internal/model"
	"github.com/tgo/captain/knowdesk/internal/repository"
)

type TenantService struct {
	tenants   TenantStore
	documents DocumentStore
}

func NewTenantService(tenants TenantStore, documents DocumentStore) *TenantService {
	return &TenantService{tenants: tenants, documents: documents}
}

type CreateTenantRequest struct {
	Name           string   `json:"name" binding:"required"`
	AllowedDomains []string `json:"allowed_domains" binding:"required"`
	SeedURLs       []string `json:"seed_urls"`
}

func (s *TenantService) Create(ctx context.Context, req *CreateTenantRequest) (*model.Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	domains, err := NormalizeDomains(req.AllowedDomains)
	if err != nil {
		return nil, err
	}
	seeds, err := normalizeSeeds(req.SeedURLs, domains)
	if err != nil {
		return nil, err
	}

	tenant := &model.Tenant{
		Name:           name,
		AllowedDomains: domains,
		SeedURLs:       seeds,
		IsActive:       true,
	}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

func (s *TenantService) Get(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	tenant, err := s.tenants.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTenantNotFound
	}
	return tenant, err
}

func (s *TenantService) List(ctx context.Context, limit, offset int) ([]model.Tenant, int64, error) {
	return s.tenants.List(ctx, limit, offset)
}

// UpdateDomains replaces the allow-list. Seed URLs that fall outside the new
// list are dropped.
func (s *TenantService) UpdateDomains(ctx context.Context, id uuid.UUID, domains []string) (*model.Tenant, error) {
	normalized, err := NormalizeDomains(domains)
	if err != nil {
		return nil, err
	}
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	tenant.AllowedDomains = normalized
	kept := make(model.StringArray, 0, len(tenant.SeedURLs))
	for _, seed := range tenant.SeedURLs {
		if URLAllowed(seed, normalized) {
			kept = append(kept, seed)
		}
	}
	tenant.SeedURLs = kept

	if err := s.tenants.Update(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

// Delete removes the tenant's documents and chunks, then the tenant.
func (s *TenantService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.documents.DeleteByTenant(ctx, id); err != nil {
		return fmt.Errorf("delete tenant documents: %w", err)
	}
	err := s.tenants.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrTenantNotFound
	}
	return err
}

func (s *TenantService) ListDocuments(ctx context.Context, id uuid.UUID, limit, offset int) ([]model.Document, int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.documents.ListByTenant(ctx, id, limit, offset)
}

// NormalizeDomains lowercases each entry, strips scheme, path, port and a
// trailing dot, and removes duplicates. An empty result is rejected.
func NormalizeDomains(domains []string) (model.StringArray, error) {
	out := make(model.StringArray, 0, len(domains))
	seen := make(map[string]bool)
	for _, raw := range domains {
		d, err := NormalizeDomain(raw)
		if err != nil {
			return nil, err
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one allowed domain is required", ErrInvalidRequest)
	}
	return out, nil
}

func NormalizeDomain(raw string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if host, _, err := net.SplitHostPort(d); err == nil {
		d = host
	}
	d = strings.TrimPrefix(d, "*.")
	d = strings.TrimSuffix(d, ".")
	if d == "" || strings.ContainsAny(d, " \t@") || strings.HasPrefix(d, ".") {
		return "", fmt.Errorf("%w: invalid domain %q", ErrInvalidRequest, raw)
	}
	return d, nil
}

func normalizeSeeds(seeds []string, domains []string) (model.StringArray, error) {
	out := make(model.StringArray, 0, len(seeds))
	for _, seed := range seeds {
		u, err := normalizeStartURL(seed)
		if err != nil {
			return nil, err
		}
		if !URLAllowed(u, domains) {
			return nil, fmt.Errorf("%w: seed url %q is outside the allowed domains", ErrInvalidRequest, seed)
		}
		out = append(out, u)
	}
	return out, nil
}
