package obs

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Reporter prints progress and outcome lines for the job scheduler's logs.
// A nil *Reporter is valid and reports nothing.
type Reporter struct {
	logger *zap.Logger
	start  time.Time
	now    func() time.Time
}

func NewReporter(logger *zap.Logger, start time.Time) *Reporter {
	return &Reporter{logger: logger, start: start, now: time.Now}
}

// Elapsed returns the time since the run started.
func (r *Reporter) Elapsed() time.Duration {
	if r == nil {
		return 0
	}
	return r.now().Sub(r.start)
}

// Phase emits a progress line with the elapsed time since run start.
func (r *Reporter) Phase(name string, fields ...zap.Field) {
	if r == nil {
		return
	}
	fields = append(fields, zap.String("phase", name), zap.Duration("elapsed", r.Elapsed()))
	r.logger.Info(fmt.Sprintf("%s complete", name), fields...)
}

// Finish emits the update acknowledgment, the count written and total run time.
func (r *Reporter) Finish(ack fmt.Stringer, count int64) {
	if r == nil {
		return
	}
	r.logger.Info("Truck Count Updated in AGOL", zap.Stringer("result", ack))
	r.logger.Info("Truck Count Value", zap.Int64("truck_count", count))
	r.logger.Info("Process run time", zap.Duration("run_time", r.Elapsed()))
}

// Fail emits the terminating error with its kind.
func (r *Reporter) Fail(kind string, err error) {
	if r == nil {
		return
	}
	r.logger.Error("run aborted",
		zap.String("kind", kind),
		zap.Error(err),
		zap.Duration("run_time", r.Elapsed()),
	)
}
