package executor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLane_RunsInOrder(t *testing.T) {
	e := New(Config{Workers: 2}, zap.NewNop())
	defer e.Stop()

	lane := e.Lane("inapp")
	var mu sync.Mutex
	var got []int

	for i := 0; i < 100; i++ {
		i := i
		lane.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	e.Wait()

	if len(got) != 100 {
		t.Fatalf("expected 100 tasks, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestLane_NeverOverlaps(t *testing.T) {
	e := New(Config{}, zap.NewNop())
	defer e.Stop()

	lane := e.Lane("inapp")
	var active, maxActive int32

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				lane.Post(func() {
					n := atomic.AddInt32(&active, 1)
					for {
						m := atomic.LoadInt32(&maxActive)
						if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
							break
						}
					}
					time.Sleep(50 * time.Microsecond)
					atomic.AddInt32(&active, -1)
				})
			}
		}()
	}
	wg.Wait()
	e.Wait()

	if maxActive != 1 {
		t.Fatalf("expected at most one task at a time, saw %d", maxActive)
	}
}

func TestLane_SameNameSameLane(t *testing.T) {
	e := New(Config{}, zap.NewNop())
	defer e.Stop()

	if e.Lane("a") != e.Lane("a") {
		t.Error("expected the same lane for the same name")
	}
	if e.Main() != e.Lane(MainLane) {
		t.Error("expected Main to be the main lane")
	}
	if e.Lane("a").Name() != "a" {
		t.Errorf("unexpected lane name %q", e.Lane("a").Name())
	}
}

func TestWait_CoversNestedPosts(t *testing.T) {
	e := New(Config{Workers: 1, QueueSize: 1}, zap.NewNop())
	defer e.Stop()

	var done int32
	e.Go(func() {
		e.Lane("inapp").Post(func() {
			e.Main().Post(func() {
				e.Go(func() {
					atomic.StoreInt32(&done, 1)
				})
			})
		})
	})
	e.Wait()

	if atomic.LoadInt32(&done) != 1 {
		t.Fatal("Wait returned before nested work finished")
	}
}

func TestPanicsAreRecovered(t *testing.T) {
	e := New(Config{}, zap.NewNop())
	defer e.Stop()

	var after int32
	lane := e.Lane("inapp")
	lane.Post(func() { panic("listener exploded") })
	lane.Post(func() { atomic.StoreInt32(&after, 1) })
	e.Go(func() { panic("pool task exploded") })
	e.Wait()

	if atomic.LoadInt32(&after) != 1 {
		t.Fatal("lane stopped after a panicking task")
	}
}

func TestStop_RejectsNewWork(t *testing.T) {
	e := New(Config{}, zap.NewNop())

	var ran int32
	e.Go(func() { atomic.AddInt32(&ran, 1) })
	e.Stop()

	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("posted work was not drained by Stop")
	}
	if e.Go(func() {}) {
		t.Error("Go accepted work after Stop")
	}
	if e.Main().Post(func() {}) {
		t.Error("Post accepted work after Stop")
	}
	e.Stop()
}
