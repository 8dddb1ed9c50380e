package services

import (
	"context"
	"fmt"
	"storm-truck-count/internal/domain"
	"storm-truck-count/internal/ports"
)

// Sign in and resolve the single record the run overwrites.
//
// By id, the item's first layer is used (its first table when it has no layers).
// By search, exactly one catalog match is required and its first table is used
// (its first layer when it has no tables). The chosen layer must hold exactly
// one record. Ambiguity is never resolved; the run aborts instead.
func LocateRecord(
	ctx context.Context,
	svc ports.FeatureService,
	target domain.TargetSpec,
) (*domain.TargetRecord, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("locate record: %w: %w", domain.ErrConfig, err)
	}

	if err := svc.SignIn(ctx); err != nil {
		return nil, fmt.Errorf("locate record: sign in: %w", err)
	}

	var (
		item  domain.Item
		layer domain.LayerRef
		err   error
	)

	switch target.Strategy {
	case domain.StrategyByID:
		item, err = svc.GetItem(ctx, target.ItemID)
		if err != nil {
			return nil, fmt.Errorf("locate record: %w", err)
		}

		layer, err = firstLayer(ctx, svc, item, domain.KindLayer)
		if err != nil {
			return nil, fmt.Errorf("locate record: %w", err)
		}

	case domain.StrategyBySearch:
		item, err = searchOne(ctx, svc, target)
		if err != nil {
			return nil, fmt.Errorf("locate record: %w", err)
		}

		layer, err = firstLayer(ctx, svc, item, domain.KindTable)
		if err != nil {
			return nil, fmt.Errorf("locate record: %w", err)
		}
	}

	set, err := svc.QueryFeatures(ctx, layer)
	if err != nil {
		return nil, fmt.Errorf("locate record: %w", err)
	}

	if len(set.Features) != 1 {
		return nil, fmt.Errorf(
			"locate record: %w: expected exactly 1 record in %s %q, got %d",
			domain.ErrShape, layer.Kind, layer.Name, len(set.Features),
		)
	}

	return &domain.TargetRecord{
		Item:          item,
		Layer:         layer,
		ObjectIDField: set.ObjectIDField,
		Feature:       set.Features[0],
	}, nil
}

func searchOne(ctx context.Context, svc ports.FeatureService, target domain.TargetSpec) (domain.Item, error) {
	items, err := svc.SearchItems(ctx, target.Title, target.Owner, target.ItemType)
	if err != nil {
		return domain.Item{}, err
	}

	switch len(items) {
	case 0:
		return domain.Item{}, fmt.Errorf(
			"%w: no item titled %q owned by %q of type %q",
			domain.ErrNotFound, target.Title, target.Owner, target.ItemType,
		)
	case 1:
		return items[0], nil
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return domain.Item{}, fmt.Errorf(
		"%w: %d items titled %q owned by %q of type %q: %v",
		domain.ErrAmbiguous, len(items), target.Title, target.Owner, target.ItemType, ids,
	)
}

// firstLayer picks the first layer of the preferred kind, falling back to the other kind.
func firstLayer(
	ctx context.Context,
	svc ports.FeatureService,
	item domain.Item,
	prefer domain.LayerKind,
) (domain.LayerRef, error) {
	set, err := svc.ItemLayers(ctx, item)
	if err != nil {
		return domain.LayerRef{}, err
	}

	first, second := set.Layers, set.Tables
	if prefer == domain.KindTable {
		first, second = set.Tables, set.Layers
	}

	if len(first) > 0 {
		return first[0], nil
	}
	if len(second) > 0 {
		return second[0], nil
	}

	return domain.LayerRef{}, fmt.Errorf("%w: item %q has no layers or tables", domain.ErrShape, item.ID)
}
