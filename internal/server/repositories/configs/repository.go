// Package configs stores typed per-tenant configuration documents as JSONB.
// Documents are validated on the way in and on the way out.
package configs

import (
	"context"

	"github.com/dmitrijs2005/timeledger/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, tenantID string, kind models.ConfigKind) (*models.StoredConfig, error)
	// Put inserts or replaces the tenant's document of value.Kind().
	Put(ctx context.Context, tenantID string, value models.ConfigValue) (*models.StoredConfig, error)
	// PutIfAbsent stores value only when the tenant has no document of
	// that kind yet.
	PutIfAbsent(ctx context.Context, tenantID string, value models.ConfigValue) error
}
