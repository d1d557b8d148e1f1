package flow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/radixinsight/analytics/internal/domain"
	"github.com/radixinsight/analytics/internal/logger"
	"github.com/radixinsight/analytics/internal/store"
)

// reapBatchSize caps how many idle flows a single sweep closes.
const reapBatchSize = 100

// reapTimeout bounds one sweep.
const reapTimeout = 30 * time.Second

// Reaper closes flows whose last activity is older than the idle TTL.
// Sweeps are idempotent: a flow closed by a racing writer is skipped.
type Reaper struct {
	tracker  *Tracker
	interval time.Duration
	log      logger.Logger
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewReaper creates an idle-flow reaper sweeping at the given interval.
func NewReaper(tracker *Tracker, interval time.Duration, log logger.Logger) *Reaper {
	return &Reaper{
		tracker:  tracker,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.loop()
}

// Stop terminates the sweep loop and waits for an in-flight sweep.
func (r *Reaper) Stop() {
	close(r.done)
	r.wg.Wait()
}

// loop sweeps on a ticker until stopped.
func (r *Reaper) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.done:
			return
		}
	}
}

// Sweep closes all currently idle flows. Exported so tests and operators
// can trigger a sweep directly.
func (r *Reaper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), reapTimeout)
	defer cancel()

	cutoff := r.tracker.now().UTC().Add(-r.tracker.ttl)

	idle, err := r.tracker.flows.FindIdleActive(ctx, cutoff, reapBatchSize)
	if err != nil {
		r.log.Error("Idle flow scan failed", logger.Error(err))
		return
	}

	closed := 0
	for _, flow := range idle {
		if r.reapOne(ctx, flow) {
			closed++
		}
	}

	if closed > 0 {
		r.log.Info("Reaped idle flows", logger.Int("count", closed))
	}
}

// reapOne closes one idle flow with a synthetic timeout marker. The flow is
// closed at its last activity instant, not at sweep time.
func (r *Reaper) reapOne(ctx context.Context, flow *domain.Flow) bool {
	token := flow.LastUpdated
	endTime := flow.LastUpdated

	closeFlow(flow, "", endTime, map[string]any{"timeout": true})
	flow.LastUpdated = r.tracker.now().UTC()

	err := r.tracker.flows.UpdateByID(ctx, flow, token)
	if errors.Is(err, store.ErrStaleUpdate) {
		// A racing add_event or end_flow won; the next sweep re-evaluates.
		return false
	}
	if err != nil {
		r.log.Error("Idle flow close failed",
			logger.String("flow_id", flow.FlowID),
			logger.Error(err),
		)
		return false
	}

	r.tracker.unindexActive(ctx, flow)
	return true
}
