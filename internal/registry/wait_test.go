package registry

import (
	"context"
	"testing"
	"time"

	"github.com/Iron-Ham/planningpoker/internal/poker"
)

func joinMember(t *testing.T, f *fixture, lock *TeamLock, name string) *poker.Participant {
	t.Helper()

	var p *poker.Participant
	err := lock.Do(context.Background(), func(team *poker.Team) error {
		var err error
		p, err = team.Join(name, false)
		return err
	})
	if err != nil {
		t.Fatalf("Join(%s) error = %v", name, err)
	}
	return p
}

func TestRegistry_WaitForMessage_Immediate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lock, _ := f.reg.Create(ctx, "Alpha", "Lead")
	_ = joinMember(t, f, lock, "Bob")

	leader := lock.Team().Leader()
	got, err := f.reg.WaitForMessage(ctx, lock, leader, time.Hour)
	if err != nil || !got {
		t.Errorf("WaitForMessage() = %v, %v, want true, nil", got, err)
	}
}

func TestRegistry_WaitForMessage_Wakes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lock, _ := f.reg.Create(ctx, "Alpha", "Lead")
	leader := lock.Team().Leader()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = lock.Do(ctx, func(team *poker.Team) error {
			_, err := team.Join("Bob", false)
			return err
		})
	}()

	start := time.Now()
	got, err := f.reg.WaitForMessage(ctx, lock, leader, 5*time.Second)
	if err != nil || !got {
		t.Fatalf("WaitForMessage() = %v, %v, want true, nil", got, err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("WaitForMessage() did not wake on the new message")
	}
}

func TestRegistry_WaitForMessage_Timeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lock, _ := f.reg.Create(ctx, "Alpha", "Lead")

	got, err := f.reg.WaitForMessage(ctx, lock, lock.Team().Leader(), 30*time.Millisecond)
	if err != nil || got {
		t.Errorf("WaitForMessage() = %v, %v, want false, nil", got, err)
	}
}

func TestRegistry_WaitForMessage_WakesOnDisconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lock, _ := f.reg.Create(ctx, "Alpha", "Lead")
	bob := joinMember(t, f, lock, "Bob")

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = lock.Do(ctx, func(team *poker.Team) error { return team.Disconnect("Bob") })
	}()

	got, err := f.reg.WaitForMessage(ctx, lock, bob, 5*time.Second)
	if err != nil || !got {
		t.Fatalf("WaitForMessage() = %v, %v, want true, nil", got, err)
	}
	_ = lock.Do(ctx, func(*poker.Team) error {
		msg, _ := bob.PopMessage()
		if msg.Type != poker.MessageEmpty {
			t.Errorf("message = %v, want Empty", msg.Type)
		}
		return nil
	})
}

func TestRegistry_WaitForMessage_ContextCanceled(t *testing.T) {
	f := newFixture(t)
	lock, _ := f.reg.Create(context.Background(), "Alpha", "Lead")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	got, err := f.reg.WaitForMessage(ctx, lock, lock.Team().Leader(), time.Hour)
	if got || err == nil {
		t.Errorf("WaitForMessage() = %v, %v, want false and context error", got, err)
	}
}
