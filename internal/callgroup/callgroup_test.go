package callgroup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeduplication(t *testing.T) {
	var g Group[string, int]
	var calls atomic.Int32
	started := make(chan struct{})

	fn := func() (int, error) {
		calls.Add(1)
		close(started)
		time.Sleep(50 * time.Millisecond)
		return 7, nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]Result[int], n)

	// First caller starts the work.
	wg.Go(func() {
		results[0] = <-g.DoChan("a.fa", fn)
	})

	// Wait for fn to start, then pile on.
	<-started
	for i := 1; i < n; i++ {
		wg.Go(func() {
			results[i] = <-g.DoChan("a.fa", fn)
		})
	}

	wg.Wait()

	for i, res := range results {
		if res.Err != nil {
			t.Errorf("caller %d got error: %v", i, res.Err)
		}
		if res.Val != 7 {
			t.Errorf("caller %d got %d, want 7", i, res.Val)
		}
		if i > 0 && !res.Shared {
			t.Errorf("caller %d should have joined the in-flight call", i)
		}
	}
	if results[0].Shared {
		t.Error("first caller should own the call")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fn called %d times, want 1", got)
	}
}

func TestIndependentKeys(t *testing.T) {
	var g Group[string, int]
	var calls atomic.Int32

	fn := func() (int, error) {
		calls.Add(1)
		return 0, nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a.fa", "b.fa", "c.fa"} {
		wg.Go(func() {
			<-g.DoChan(key, fn)
		})
	}

	wg.Wait()

	if got := calls.Load(); got != 3 {
		t.Errorf("fn called %d times, want 3", got)
	}
}

func TestErrorPropagates(t *testing.T) {
	var g Group[string, int]
	sentinel := errors.New("scan failed")

	_, _, err := g.Do(context.Background(), "a.fa", func() (int, error) {
		return 0, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
}

func TestKeyForgottenAfterCompletion(t *testing.T) {
	var g Group[string, int]
	var calls atomic.Int32

	fn := func() (int, error) {
		return int(calls.Add(1)), nil
	}

	first, _, err := g.Do(context.Background(), "a.fa", fn)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := g.Do(context.Background(), "a.fa", fn)
	if err != nil {
		t.Fatal(err)
	}
	if first != 1 || second != 2 {
		t.Errorf("got %d then %d, want 1 then 2", first, second)
	}
}

func TestDoContextCancelled(t *testing.T) {
	var g Group[string, int]
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := g.Do(ctx, "slow.fa", func() (int, error) {
		<-release
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
