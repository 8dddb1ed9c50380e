package ports

import (
	"context"
	"storm-truck-count/internal/domain"
)

// Contract for the remote hosted-data service that stores the target record.
type FeatureService interface {
	// Establish an authenticated session used by all later calls.
	SignIn(ctx context.Context) error
	// Look up a catalog item by its identifier.
	GetItem(ctx context.Context, itemID string) (domain.Item, error)
	// Search the catalog for items matching title, owner and type.
	SearchItems(ctx context.Context, title, owner, itemType string) ([]domain.Item, error)
	// Return the layers and tables contained in an item's service.
	ItemLayers(ctx context.Context, item domain.Item) (domain.LayerSet, error)
	// Return all records currently stored in a layer.
	QueryFeatures(ctx context.Context, layer domain.LayerRef) (domain.FeatureSet, error)
	// Submit modified records and return one result per record.
	UpdateFeatures(ctx context.Context, layer domain.LayerRef, features []domain.Feature) ([]domain.EditResult, error)
}
