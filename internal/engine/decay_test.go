package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lazypower/sigil/internal/metrics"
	"github.com/lazypower/sigil/internal/storage"
)

// advance moves the decay manager's clock forward for simulated time.
func advance(d *Decay, by time.Duration) {
	base := time.Now()
	d.now = func() time.Time { return base.Add(by) }
}

func TestScoreMonotonicity(t *testing.T) {
	eng, _ := testEngine(t)
	d := eng.Decay()

	now := time.Now().UnixMilli()
	older := &storage.Record{CreatedAt: now - 3600_000, LastAccessedAt: now - 3600_000}
	newer := &storage.Record{CreatedAt: now - 3600_000, LastAccessedAt: now - 60_000}
	if d.Score(newer) < d.Score(older) {
		t.Error("more recent access lowered the score")
	}

	quiet := &storage.Record{CreatedAt: now - 3600_000, LastAccessedAt: now - 3600_000, AccessCount: 0}
	busy := &storage.Record{CreatedAt: now - 3600_000, LastAccessedAt: now - 3600_000, AccessCount: 50}
	if d.Score(busy) < d.Score(quiet) {
		t.Error("more frequent access lowered the score")
	}

	fresh := &storage.Record{CreatedAt: now, LastAccessedAt: now, AccessCount: 100}
	if s := d.Score(fresh); s > 1 {
		t.Errorf("score = %f, want clamped to 1", s)
	}
}

func TestScoreDeterministic(t *testing.T) {
	eng, _ := testEngine(t)
	d := eng.Decay()
	advance(d, 0)

	rec := &storage.Record{CreatedAt: 1000, LastAccessedAt: 2000, AccessCount: 5}
	if d.Score(rec) != d.Score(rec) {
		t.Error("score not deterministic")
	}
}

func TestSweepEvictsBelowThreshold(t *testing.T) {
	eng, driver := testEngine(t)
	ctx := context.Background()

	rec, err := eng.Encode(ctx, json.RawMessage(`{"hello":"world"}`), EncodeOpts{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Ten half-lives without access takes importance well under 0.05.
	d := eng.Decay()
	advance(d, 10*DefaultHalfLife)

	evicted, err := d.SweepNow(ctx)
	if err != nil {
		t.Fatalf("SweepNow: %v", err)
	}
	if evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
	if _, err := eng.Decode(ctx, rec.ID, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("decode after eviction err = %v, want ErrNotFound", err)
	}
	if _, err := driver.Get(ctx, rec.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Error("record physically present after eviction")
	}
}

func TestPinnedSurvivesSweeps(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	pinned, err := eng.Encode(ctx, json.RawMessage(`{"keep":"me"}`), EncodeOpts{Pin: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	d := eng.Decay()
	advance(d, 100*DefaultHalfLife)

	for i := 0; i < 100; i++ {
		if _, err := d.SweepNow(ctx); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
	}

	got, err := eng.Decode(ctx, pinned.ID, false)
	if err != nil {
		t.Fatalf("pinned record gone after 100 sweeps: %v", err)
	}
	valid, err := eng.Verify(ctx, pinned.ID, json.RawMessage(`{"keep":"me"}`))
	if err != nil || !valid {
		t.Errorf("verify = %v, %v, want true, nil", valid, err)
	}
	if got.Importance > 1 {
		t.Errorf("importance = %f out of range", got.Importance)
	}
}

func TestSweepSkipsRevoked(t *testing.T) {
	eng, driver := testEngine(t)
	ctx := context.Background()

	rec, _ := eng.Encode(ctx, json.RawMessage(`{"a":1}`), EncodeOpts{})
	if err := eng.Revoke(ctx, rec.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	d := eng.Decay()
	advance(d, 100*DefaultHalfLife)
	if _, err := d.SweepNow(ctx); err != nil {
		t.Fatalf("SweepNow: %v", err)
	}

	// Tombstones are compaction's job, not decay's.
	if _, err := driver.Get(ctx, rec.ID); err != nil {
		t.Errorf("revoked record removed by sweep: %v", err)
	}
}

func TestSweepLowersImportanceGradually(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	rec, _ := eng.Encode(ctx, json.RawMessage(`{"a":1}`), EncodeOpts{})

	// One half-life: importance ~0.5, above threshold, still present.
	d := eng.Decay()
	advance(d, DefaultHalfLife)
	if _, err := d.SweepNow(ctx); err != nil {
		t.Fatalf("SweepNow: %v", err)
	}

	got, err := eng.Decode(ctx, rec.ID, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Importance > 0.6 || got.Importance < 0.4 {
		t.Errorf("importance = %f, want ~0.5 after one half-life", got.Importance)
	}
}

func TestSweepNeverRaisesImportance(t *testing.T) {
	eng, driver := testEngine(t)
	ctx := context.Background()

	rec, _ := eng.Encode(ctx, json.RawMessage(`{"a":1}`), EncodeOpts{})

	// Force the stored importance below what the score would compute.
	stored, _ := driver.Get(ctx, rec.ID)
	stored.Importance = 0.3
	// Re-sign is unnecessary: importance is outside the signed tuple.
	driver.Put(ctx, stored)

	d := eng.Decay()
	advance(d, time.Minute)
	if _, err := d.SweepNow(ctx); err != nil {
		t.Fatalf("SweepNow: %v", err)
	}

	got, _ := driver.Get(ctx, rec.ID)
	if got.Importance > 0.3 {
		t.Errorf("importance rose to %f during sweep", got.Importance)
	}
}

func TestDecayStartStop(t *testing.T) {
	driver := storage.NewMemory()
	defer driver.Close()
	d := NewDecay(driver, NewGuard(), metrics.New(), 10*time.Millisecond, 0.05, DefaultHalfLife)

	d.Start()
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
