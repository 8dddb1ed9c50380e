package services

import (
	"context"
	"errors"
	"fmt"
	"storm-truck-count/internal/domain"
	"storm-truck-count/internal/ports"
	"strings"
)

// Overwrite one attribute of the located record with the truck count.
//
// Only the object id and the designated field are submitted. Any fault,
// including a result that is not a single success, is an ErrUpdate. It is
// never retried.
func UpdateRecord(
	ctx context.Context,
	svc ports.FeatureService,
	rec *domain.TargetRecord,
	field string,
	count domain.TruckCount,
) (domain.EditResult, error) {
	if rec == nil {
		return domain.EditResult{}, errors.New("update record: record is nil")
	}
	if strings.TrimSpace(field) == "" {
		return domain.EditResult{}, errors.New("update record: field must be non-empty")
	}

	oid, err := rec.Feature.ObjectID(rec.ObjectIDField)
	if err != nil {
		return domain.EditResult{}, fmt.Errorf("update record: %w: %w", domain.ErrShape, err)
	}

	if _, ok := rec.Feature.Attributes[field]; !ok {
		return domain.EditResult{}, fmt.Errorf(
			"update record: %w: %s layer %q has no field %q", domain.ErrShape, rec.Layer.Kind, rec.Layer.Name, field,
		)
	}

	edit := domain.Feature{
		Attributes: map[string]any{
			rec.ObjectIDField: oid,
			field:             count.Int64(),
		},
	}

	results, err := svc.UpdateFeatures(ctx, rec.Layer, []domain.Feature{edit})
	if err != nil {
		return domain.EditResult{}, fmt.Errorf("update record: %w: %w", domain.ErrUpdate, err)
	}

	if len(results) != 1 {
		return domain.EditResult{}, fmt.Errorf(
			"update record: %w: expected 1 edit result, got %d", domain.ErrUpdate, len(results),
		)
	}

	ack := results[0]
	if !ack.Success {
		return ack, fmt.Errorf("update record: %w: object %d rejected: %s", domain.ErrUpdate, oid, ack.Error)
	}

	rec.Feature.Attributes[field] = count.Int64()

	return ack, nil
}
