package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/planningpoker/internal/poker"
)

func newTeam(t *testing.T, name string, clock poker.Clock) *poker.Team {
	t.Helper()

	team := poker.NewTeam(name, poker.WithClock(clock))
	if _, err := team.SetLeader("Lead"); err != nil {
		t.Fatalf("SetLeader() error = %v", err)
	}
	if _, err := team.Join("Member", false); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	return team
}

// storageContract runs the behavior every backend must share.
func storageContract(t *testing.T, newStore func(clock poker.Clock) Storage) {
	ctx := context.Background()
	clock := poker.NewManualClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))

	t.Run("load unknown team", func(t *testing.T) {
		s := newStore(clock)
		team, err := s.LoadTeam(ctx, "missing")
		if err != nil || team != nil {
			t.Errorf("LoadTeam() = %v, %v, want nil, nil", team, err)
		}
	})

	t.Run("save and load", func(t *testing.T) {
		s := newStore(clock)
		team := newTeam(t, "Alpha", clock)
		_ = team.StartEstimate()

		if err := s.SaveTeam(ctx, team); err != nil {
			t.Fatalf("SaveTeam() error = %v", err)
		}
		loaded, err := s.LoadTeam(ctx, "ALPHA")
		if err != nil {
			t.Fatalf("LoadTeam() error = %v", err)
		}
		if loaded == nil || loaded == team {
			t.Fatalf("LoadTeam() = %p, want a fresh copy", loaded)
		}
		if loaded.Name() != "Alpha" || loaded.State() != poker.StateEstimateInProgress {
			t.Errorf("loaded = %s/%s", loaded.Name(), loaded.State())
		}
		if len(loaded.Participants()) != 2 {
			t.Errorf("len(Participants()) = %d, want 2", len(loaded.Participants()))
		}
		if loaded.Clock() != poker.Clock(clock) {
			t.Error("loaded team does not use the store clock")
		}
	})

	t.Run("save replaces", func(t *testing.T) {
		s := newStore(clock)
		team := newTeam(t, "Alpha", clock)
		_ = s.SaveTeam(ctx, team)
		_, _ = team.Join("Late", true)
		_ = s.SaveTeam(ctx, team)

		loaded, _ := s.LoadTeam(ctx, "alpha")
		if loaded.FindParticipant("Late") == nil {
			t.Error("second save not visible")
		}
	})

	t.Run("names and delete", func(t *testing.T) {
		s := newStore(clock)
		for _, name := range []string{"Gamma", "Alpha", "beta"} {
			if err := s.SaveTeam(ctx, newTeam(t, name, clock)); err != nil {
				t.Fatalf("SaveTeam(%s) error = %v", name, err)
			}
		}

		names, err := s.TeamNames(ctx)
		if err != nil {
			t.Fatalf("TeamNames() error = %v", err)
		}
		if len(names) != 3 || names[0] != "Alpha" || names[1] != "Gamma" || names[2] != "beta" {
			t.Errorf("TeamNames() = %v, want [Alpha Gamma beta]", names)
		}

		if err := s.DeleteTeam(ctx, "GAMMA"); err != nil {
			t.Fatalf("DeleteTeam() error = %v", err)
		}
		if err := s.DeleteTeam(ctx, "gamma"); err != nil {
			t.Errorf("DeleteTeam() twice error = %v", err)
		}
		if team, _ := s.LoadTeam(ctx, "Gamma"); team != nil {
			t.Error("deleted team still loads")
		}

		if err := s.DeleteAll(ctx); err != nil {
			t.Fatalf("DeleteAll() error = %v", err)
		}
		if names, _ := s.TeamNames(ctx); len(names) != 0 {
			t.Errorf("TeamNames() after DeleteAll = %v", names)
		}
	})
}

func TestMemory(t *testing.T) {
	storageContract(t, func(clock poker.Clock) Storage {
		return NewMemory(WithClock(clock))
	})
}

func TestFileStore(t *testing.T) {
	storageContract(t, func(clock poker.Clock) Storage {
		return NewFileStore(filepath.Join(t.TempDir(), "teams"), WithClock(clock))
	})
}

func TestFileStore_SkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	ctx := context.Background()

	_ = s.SaveTeam(ctx, newTeam(t, "Alpha", poker.SystemClock{}))
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, ".tmp-123.json"), []byte(`{"name":"Ghost"}`), 0o644)

	names, err := s.TeamNames(ctx)
	if err != nil {
		t.Fatalf("TeamNames() error = %v", err)
	}
	if len(names) != 1 || names[0] != "Alpha" {
		t.Errorf("TeamNames() = %v, want [Alpha]", names)
	}
}

func TestFileStore_NameEncoding(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	ctx := context.Background()

	name := "../Team / Ünïcode"
	if err := s.SaveTeam(ctx, newTeam(t, name, poker.SystemClock{})); err != nil {
		t.Fatalf("SaveTeam() error = %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("directory has %d entries, want 1", len(entries))
	}
	loaded, err := s.LoadTeam(ctx, name)
	if err != nil || loaded == nil || loaded.Name() != name {
		t.Errorf("LoadTeam() = %v, %v", loaded, err)
	}
}
