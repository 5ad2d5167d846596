package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/somnia-auditor/internal/model"
)

// TestBatchProcessorNew tests defaults and options.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	bp := NewBatchProcessor(func() *Pipeline { return New() })
	if bp.concurrency != DefaultConcurrency {
		t.Errorf("expected default concurrency %d, got %d", DefaultConcurrency, bp.concurrency)
	}

	bp = NewBatchProcessor(func() *Pipeline { return New() }, WithConcurrency(4), WithConcurrency(0))
	if bp.concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", bp.concurrency)
	}
}

// TestBatchProcessorProcessBatch tests ordering and concurrency limits.
func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("keeps input order with concurrency", func(t *testing.T) {
		t.Parallel()

		files := []string{"a.sol", "b.sol", "c.sol", "d.sol", "e.sol"}
		factory := func() *Pipeline {
			p := New()
			p.AddStep(&mockStep{name: "tag", doFunc: func(_ context.Context, r *model.FileResult) error {
				// Later files finish first.
				time.Sleep(time.Duration('e'-r.Path[0]) * time.Millisecond)
				r.Slither = model.NewToolResult(model.ToolSlither)
				return nil
			}})
			return p
		}

		results, err := NewBatchProcessor(factory, WithConcurrency(3)).ProcessBatch(t.Context(), files)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, r := range results {
			if r == nil || r.Path != files[i] {
				t.Fatalf("result %d: expected %s, got %+v", i, files[i], r)
			}
			if r.Slither == nil {
				t.Errorf("result %d: expected step output", i)
			}
		}
	})

	t.Run("never exceeds the concurrency limit", func(t *testing.T) {
		t.Parallel()

		var running, peak atomic.Int32
		factory := func() *Pipeline {
			p := New()
			p.AddStep(&mockStep{name: "busy", doFunc: func(context.Context, *model.FileResult) error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			}})
			return p
		}

		files := make([]string, 12)
		for i := range files {
			files[i] = fmt.Sprintf("f%d.sol", i)
		}
		if _, err := NewBatchProcessor(factory, WithConcurrency(2)).ProcessBatch(t.Context(), files); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("expected at most 2 concurrent files, saw %d", peak.Load())
		}
	})

	t.Run("step errors do not fail the batch", func(t *testing.T) {
		t.Parallel()

		factory := func() *Pipeline {
			p := New()
			p.AddStep(&mockStep{name: "fail", doFunc: func(context.Context, *model.FileResult) error {
				return fmt.Errorf("broken")
			}})
			return p
		}

		results, err := NewBatchProcessor(factory).ProcessBatch(t.Context(), []string{"a.sol", "b.sol"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, r := range results {
			if r.Error != "broken" {
				t.Errorf("expected recorded error, got %q", r.Error)
			}
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := NewBatchProcessor(func() *Pipeline { return New() }).ProcessBatch(ctx, []string{"a.sol"})
		if err == nil {
			t.Error("expected cancellation error")
		}
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()

		results, err := NewBatchProcessor(func() *Pipeline { return New() }).ProcessBatch(t.Context(), nil)
		if err != nil || len(results) != 0 {
			t.Errorf("expected empty result, got %v %v", results, err)
		}
	})
}

// TestBatchProcessorProcessBatchWithCallback tests streaming results.
func TestBatchProcessorProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	files := []string{"a.sol", "b.sol", "c.sol"}
	var (
		mu   sync.Mutex
		seen = map[int]string{}
	)

	bp := NewBatchProcessor(func() *Pipeline { return New() }, WithConcurrency(2))
	err := bp.ProcessBatchWithCallback(t.Context(), files, func(r *model.FileResult, i int) {
		mu.Lock()
		defer mu.Unlock()
		seen[i] = r.Path
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != len(files) {
		t.Fatalf("expected %d callbacks, got %d", len(files), len(seen))
	}
	for i, f := range files {
		if seen[i] != f {
			t.Errorf("index %d: expected %s, got %s", i, f, seen[i])
		}
	}
}
