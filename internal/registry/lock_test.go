package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/planningpoker/internal/errors"
	"github.com/Iron-Ham/planningpoker/internal/poker"
)

func TestTeamLock_Timeout(t *testing.T) {
	lock := newTeamLock(poker.NewTeam("Alpha"), 50*time.Millisecond)
	ctx := context.Background()

	if err := lock.Lock(ctx); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	start := time.Now()
	err := lock.Lock(ctx)
	if errors.KindOf(err) != errors.KindTimeout {
		t.Fatalf("second Lock() error = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Lock() gave up after %v, before the timeout", elapsed)
	}

	lock.Unlock()
	if err := lock.Lock(ctx); err != nil {
		t.Errorf("Lock() after Unlock() error = %v", err)
	}
}

func TestTeamLock_ContextCanceled(t *testing.T) {
	lock := newTeamLock(poker.NewTeam("Alpha"), time.Minute)
	_ = lock.Lock(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := lock.Lock(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Lock() error = %v, want context.Canceled", err)
	}
}

func TestTeamLock_DoReleasesOnError(t *testing.T) {
	lock := newTeamLock(poker.NewTeam("Alpha"), 50*time.Millisecond)
	ctx := context.Background()
	boom := errors.New("boom")

	if err := lock.Do(ctx, func(*poker.Team) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Do() error = %v, want boom", err)
	}
	func() {
		defer func() { _ = recover() }()
		_ = lock.Do(ctx, func(*poker.Team) error { panic("fn panic") })
	}()
	if err := lock.Lock(ctx); err != nil {
		t.Errorf("lock still held after Do() returned: %v", err)
	}
}

func TestTeamLock_MutualExclusion(t *testing.T) {
	lock := newTeamLock(poker.NewTeam("Alpha"), 5*time.Second)
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			_ = lock.Do(ctx, func(*poker.Team) error {
				counter++
				return nil
			})
		})
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	unlockA := k.Lock("a")
	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()

	unlockB := k.Lock("b")
	unlockB()

	select {
	case <-acquired:
		t.Fatal("second Lock(a) acquired while a was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock(a) never acquired")
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.locks) != 0 {
		t.Errorf("keyed locks leaked: %d", len(k.locks))
	}
}
