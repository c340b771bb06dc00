package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestForBatch(t *testing.T) {
	cfg := DefaultConfig()

	batch, groups := 4, 8
	results := make([][]bool, batch)
	for b := range results {
		results[b] = make([]bool, groups)
	}

	ForBatch(batch, groups, func(b, g int) {
		results[b][g] = true
	}, cfg)

	for b := 0; b < batch; b++ {
		for g := 0; g < groups; g++ {
			if !results[b][g] {
				t.Errorf("Missing result at [%d][%d]", b, g)
			}
		}
	}
}

func TestForBatch_ZeroInner(t *testing.T) {
	called := false
	ForBatch(4, 0, func(_, _ int) { called = true }, DefaultConfig())
	if called {
		t.Error("Expected no calls for empty inner range")
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

func TestWithWorkers(t *testing.T) {
	cfg := DefaultConfig().WithWorkers(1)
	if cfg.Enabled {
		t.Error("Expected single worker to disable parallelism")
	}

	cfg = Config{}.WithWorkers(4)
	if !cfg.Enabled || cfg.NumWorkers != 4 {
		t.Errorf("Expected 4 enabled workers, got %+v", cfg)
	}

	base := DefaultConfig()
	if got := base.WithWorkers(0); got != base {
		t.Errorf("Expected zero workers to keep config, got %+v", got)
	}
}

func TestFor_CoversEveryIndexOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 1}
	hits := make([]int32, 17)

	For(len(hits), func(i int) {
		atomic.AddInt32(&hits[i], 1)
	}, cfg)

	for i, h := range hits {
		if h != 1 {
			t.Errorf("index %d visited %d times", i, h)
		}
	}
}
