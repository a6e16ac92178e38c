package services

import (
	"context"
	"errors"
	"fmt"

	"concierge-whatsapp/internal/metrics"
	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/internal/store"

	"github.com/rs/zerolog/log"
)

// Resolution tiers, in the order they are tried.
const (
	TierInboundNumber = "inbound_number"
	TierPhoneRouting  = "phone_routing"
	TierOldestTenant  = "oldest_tenant"
	TierNone          = "none"
)

// RoutingStore is what the resolver reads and writes.
type RoutingStore interface {
	TenantByInboundNumber(ctx context.Context, number string) (models.TenantWithCredentials, error)
	GetTenant(ctx context.Context, id int64) (models.TenantWithCredentials, error)
	OldestTenant(ctx context.Context) (models.TenantWithCredentials, error)
	GetPhoneRouting(ctx context.Context, phone string) (models.PhoneRouting, error)
	SetPhoneRouting(ctx context.Context, phone string, tenantID int64) error
}

// TenantResolver decides which tenant owns an inbound message.
type TenantResolver struct {
	store  RoutingStore
	strict bool
}

// NewTenantResolver creates a resolver. In strict mode the oldest-tenant catch-all is disabled.
func NewTenantResolver(s RoutingStore, strict bool) *TenantResolver {
	return &TenantResolver{store: s, strict: strict}
}

// Resolve tries the tenant owning the To number, then the routing entry of From, then the
// oldest tenant. Inputs must already be canonical. The matching tier is returned for logging.
func (r *TenantResolver) Resolve(ctx context.Context, to, from string) (models.TenantWithCredentials, string, error) {
	if to != "" {
		t, err := r.store.TenantByInboundNumber(ctx, to)
		if err == nil {
			return r.matched(t, TierInboundNumber)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return models.TenantWithCredentials{}, "", fmt.Errorf("resolve by inbound number: %w", err)
		}
	}

	if from != "" {
		route, err := r.store.GetPhoneRouting(ctx, from)
		switch {
		case err == nil:
			t, err := r.store.GetTenant(ctx, route.TenantID)
			if err == nil {
				return r.matched(t, TierPhoneRouting)
			}
			if !errors.Is(err, store.ErrNotFound) {
				return models.TenantWithCredentials{}, "", fmt.Errorf("resolve routed tenant: %w", err)
			}
		case !errors.Is(err, store.ErrNotFound):
			return models.TenantWithCredentials{}, "", fmt.Errorf("resolve by phone routing: %w", err)
		}
	}

	if r.strict {
		metrics.TenantResolutions.WithLabelValues(TierNone).Inc()
		return models.TenantWithCredentials{}, TierNone, ErrNoRoute
	}

	t, err := r.store.OldestTenant(ctx)
	if errors.Is(err, store.ErrNotFound) {
		metrics.TenantResolutions.WithLabelValues(TierNone).Inc()
		return models.TenantWithCredentials{}, TierNone, ErrNoTenant
	}
	if err != nil {
		return models.TenantWithCredentials{}, "", fmt.Errorf("resolve oldest tenant: %w", err)
	}
	return r.matched(t, TierOldestTenant)
}

func (r *TenantResolver) matched(t models.TenantWithCredentials, tier string) (models.TenantWithCredentials, string, error) {
	metrics.TenantResolutions.WithLabelValues(tier).Inc()
	return t, tier, nil
}

// EnsureRouting records that phone belongs to tenantID. It writes only when the entry is
// missing or points at another tenant.
func (r *TenantResolver) EnsureRouting(ctx context.Context, phone string, tenantID int64) error {
	route, err := r.store.GetPhoneRouting(ctx, phone)
	if err == nil && route.TenantID == tenantID {
		return nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("read phone routing: %w", err)
	}
	if err := r.store.SetPhoneRouting(ctx, phone, tenantID); err != nil {
		return fmt.Errorf("write phone routing: %w", err)
	}
	log.Info().Str("phone", phone).Int64("tenantID", tenantID).Msg("Phone routing assigned")
	return nil
}
