package services

import (
	"context"
	"fmt"
	"storm-truck-count/internal/domain"
	"storm-truck-count/internal/platform/obs"
	"storm-truck-count/internal/ports"

	"go.uber.org/zap"
)

type SyncTruckCountRequest struct {
	Target    domain.TargetSpec
	FieldName string
}

type SyncTruckCountResult struct {
	Count  domain.TruckCount
	Record *domain.TargetRecord
	Ack    domain.EditResult
}

// SyncTruckCount runs the job once: fetch the count, locate the record,
// write the count into it, report. Each stage fails fast; nothing remote is
// touched before the count is known and nothing is written before the record
// is resolved.
func SyncTruckCount(
	ctx context.Context,
	req SyncTruckCountRequest,
	source ports.TruckCountSource,
	svc ports.FeatureService,
	reporter *obs.Reporter,
) (_ *SyncTruckCountResult, err error) {
	defer obs.Time(ctx, "sync.SyncTruckCount")(&err)

	count, err := source.FetchTruckCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync truck count: %w", err)
	}
	reporter.Phase("database query", zap.Int64("truck_count", count.Int64()))

	rec, err := LocateRecord(ctx, svc, req.Target)
	if err != nil {
		return nil, fmt.Errorf("sync truck count: %w", err)
	}
	reporter.Phase("record lookup",
		zap.String("item_id", rec.Item.ID),
		zap.String("layer", rec.Layer.URL()),
	)

	ack, err := UpdateRecord(ctx, svc, rec, req.FieldName, count)
	if err != nil {
		return nil, fmt.Errorf("sync truck count: %w", err)
	}
	reporter.Phase("record update")

	reporter.Finish(ack, count.Int64())

	return &SyncTruckCountResult{Count: count, Record: rec, Ack: ack}, nil
}
