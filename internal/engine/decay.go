package engine

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/lazypower/sigil/internal/metrics"
	"github.com/lazypower/sigil/internal/storage"
)

// Decay defaults. The half-life governs how fast an untouched record's
// importance falls; the threshold is the eviction cutoff on the 0-1 scale.
const (
	DefaultSweepInterval  = 60 * time.Second
	DefaultDecayThreshold = 0.05
	DefaultHalfLife       = 24 * time.Hour
)

// Decay periodically rescores every record's importance and evicts
// low-importance, non-pinned records. One cancelable loop, stoppable for
// graceful shutdown; a tick arriving mid-sweep is suppressed so sweeps
// never overlap.
type Decay struct {
	driver    storage.Driver
	guard     *Guard
	met       *metrics.Metrics
	interval  time.Duration
	threshold float64
	halfLife  time.Duration

	stopCh chan struct{}
	doneCh chan struct{}

	// now is swappable for tests that simulate elapsed time.
	now func() time.Time
}

// NewDecay creates a decay manager. Zero interval, threshold, or halfLife
// fall back to the defaults.
func NewDecay(driver storage.Driver, guard *Guard, met *metrics.Metrics, interval time.Duration, threshold float64, halfLife time.Duration) *Decay {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if threshold <= 0 {
		threshold = DefaultDecayThreshold
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return &Decay{
		driver:    driver,
		guard:     guard,
		met:       met,
		interval:  interval,
		threshold: threshold,
		halfLife:  halfLife,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Start launches the sweep loop. Call Stop to shut it down.
func (d *Decay) Start() {
	go func() {
		defer close(d.doneCh)

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), d.interval)
				if _, err := d.SweepNow(ctx); err != nil {
					log.Printf("decay: sweep error: %v", err)
				}
				cancel()
				// Drop a tick that arrived mid-sweep so sweeps
				// never run back to back.
				select {
				case <-ticker.C:
				default:
				}
			case <-d.stopCh:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for any in-flight sweep to finish.
func (d *Decay) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

// SweepNow runs a single sweep: rescore every non-pinned, non-revoked
// record, then evict those below threshold. Returns the eviction count.
// A single record's scoring error is logged and skipped; a delete failure
// is logged and retried naturally on the next sweep.
func (d *Decay) SweepNow(ctx context.Context) (int, error) {
	var evict []string
	visited := 0

	cursor := ""
	for {
		recs, next, err := d.driver.List(ctx, cursor, 200)
		if err != nil {
			return 0, err
		}
		for i := range recs {
			rec := &recs[i]
			visited++
			if rec.Pinned || rec.Revoked {
				continue
			}

			score := d.Score(rec)
			if score < rec.Importance {
				rec.Importance = score
				err := d.guard.RunExclusive(ctx, func() error {
					return d.driver.Put(ctx, rec)
				})
				if err != nil {
					log.Printf("decay: rescore %s: %v", rec.ID, err)
					continue
				}
			}
			if rec.Importance < d.threshold {
				evict = append(evict, rec.ID)
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}

	evicted := 0
	for _, id := range evict {
		err := d.guard.RunExclusive(ctx, func() error {
			return d.driver.Delete(ctx, id)
		})
		if err != nil {
			log.Printf("decay: evict %s: %v", id, err)
			continue
		}
		evicted++
	}

	if d.met != nil {
		d.met.SweepsTotal.Inc()
		d.met.SweepVisitedTotal.Add(float64(visited))
		d.met.SweepEvictedTotal.Add(float64(evicted))
	}
	if evicted > 0 {
		log.Printf("decay: visited %d, evicted %d", visited, evicted)
	}
	return evicted, nil
}

// Score computes a record's importance in [0,1]: exponential half-life on
// time since last access, boosted by log-scaled access frequency. Monotonic
// by construction — a more recent or more frequent access never lowers the
// result — and deterministic given the same inputs.
func (d *Decay) Score(rec *storage.Record) float64 {
	ref := rec.CreatedAt
	if rec.LastAccessedAt > ref {
		ref = rec.LastAccessedAt
	}
	elapsed := float64(d.now().UnixMilli() - ref)
	if elapsed < 0 {
		elapsed = 0
	}

	recency := math.Pow(0.5, elapsed/float64(d.halfLife.Milliseconds()))
	boost := 1 + math.Log1p(float64(rec.AccessCount))/4

	score := recency * boost
	if score > 1 {
		score = 1
	}
	return score
}
