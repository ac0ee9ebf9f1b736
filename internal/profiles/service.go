package profiles

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/deliverydesk-backend/pkg/db/models"
	"github.com/angelmondragon/deliverydesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
)

type repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	FindProfilesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error)
	FindVendorsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Vendor, error)
}

// Service resolves caller roles and summaries for order enrichment.
type Service interface {
	Role(ctx context.Context, userID uuid.UUID) (enums.UserRole, error)
	Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	Summaries(ctx context.Context, customerIDs, vendorIDs []uuid.UUID) (*Summaries, error)
}

// CustomerSummary is the customer slice embedded in admin order listings.
type CustomerSummary struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
	Phone    *string   `json:"phone,omitempty"`
}

// VendorSummary is the vendor slice embedded in admin order listings.
type VendorSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone *string   `json:"phone,omitempty"`
}

// Summaries holds looked-up customers and vendors keyed by id.
type Summaries struct {
	Customers map[uuid.UUID]CustomerSummary
	Vendors   map[uuid.UUID]VendorSummary
}

type service struct {
	repo repository
}

// NewService builds the profile lookup service.
func NewService(repo repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("profiles repository required")
	}
	return &service{repo: repo}, nil
}

// Role returns the caller's role. A missing profile is forbidden rather than
// not found so the admin guard never leaks which ids exist.
func (s *service) Role(ctx context.Context, userID uuid.UUID) (enums.UserRole, error) {
	profile, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load caller profile")
	}
	if profile == nil {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "profile not found for caller")
	}
	return profile.Role, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	profile, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
	}
	if profile == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}
	return profile, nil
}

func (s *service) Summaries(ctx context.Context, customerIDs, vendorIDs []uuid.UUID) (*Summaries, error) {
	customers, err := s.repo.FindProfilesByIDs(ctx, dedupe(customerIDs))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load customers")
	}
	vendors, err := s.repo.FindVendorsByIDs(ctx, dedupe(vendorIDs))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load vendors")
	}

	out := &Summaries{
		Customers: make(map[uuid.UUID]CustomerSummary, len(customers)),
		Vendors:   make(map[uuid.UUID]VendorSummary, len(vendors)),
	}
	for id, p := range customers {
		out.Customers[id] = CustomerSummary{ID: p.ID, FullName: p.FullName, Email: p.Email, Phone: p.Phone}
	}
	for id, v := range vendors {
		out.Vendors[id] = VendorSummary{ID: v.ID, Name: v.Name, Phone: v.Phone}
	}
	return out, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
