package ports

import (
	"context"
	"storm-truck-count/internal/domain"
)

// Port: a boundary for reading the current truck count from a data source.
type TruckCountSource interface {
	// Return the single scalar produced by the configured count query.
	FetchTruckCount(ctx context.Context) (domain.TruckCount, error)
}
