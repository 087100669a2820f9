package logging

import (
	"runtime"
	"time"

	"go.uber.org/zap"
)

// StageTimer reports each pipeline stage's wall-clock duration and heap
// footprint to a zap logger. One StageTimer spans a single run.
type StageTimer struct {
	log      *zap.Logger
	start    time.Time
	memStats runtime.MemStats
}

// NewStageTimer returns a StageTimer that logs through log.
func NewStageTimer(log *zap.Logger) *StageTimer {
	return &StageTimer{log: log}
}

// Begin marks the start of a named stage.
func (t *StageTimer) Begin(stage string) {
	t.start = time.Now()
	t.log.Info("stage started", zap.String("stage", stage))
}

// End logs the elapsed duration and current heap usage since the matching
// Begin call.
func (t *StageTimer) End(stage string) {
	elapsed := time.Since(t.start)
	runtime.ReadMemStats(&t.memStats)
	heapMB := float64(t.memStats.Alloc) / 1024 / 1024
	t.log.Info("stage completed",
		zap.String("stage", stage),
		zap.Duration("elapsed", elapsed),
		zap.Float64("heap_mb", heapMB),
	)
}

// Stage runs fn, logging its Begin/End boundary, and returns whatever
// error fn returns.
func (t *StageTimer) Stage(name string, fn func() error) error {
	t.Begin(name)
	err := fn()
	t.End(name)
	return err
}
