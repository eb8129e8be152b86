package population

import (
	"fmt"
	"testing"
)

func TestNewValidation(t *testing.T) {
	if _, err := New("", 3); err == nil {
		t.Fatal("expected error for empty main policy name")
	}
	if _, err := New("main", 0); err == nil {
		t.Fatal("expected error for zero opponents")
	}
}

func TestNewSeedsNamedOpponents(t *testing.T) {
	p, err := New("main", 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.MainPolicy() != "main" {
		t.Fatalf("main policy = %s", p.MainPolicy())
	}
	if p.Size() != 3 {
		t.Fatalf("size = %d, want 3", p.Size())
	}
	for i, name := range p.Opponents() {
		want := fmt.Sprintf("op_%d", i)
		if name != want {
			t.Fatalf("opponent %d named %s, want %s", i, name, want)
		}
	}
}

func TestAddOpponentNamesNeverReused(t *testing.T) {
	p, err := New("main", 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if name := p.AddOpponent(); name != "op_2" {
		t.Fatalf("third opponent named %s, want op_2", name)
	}
	if err := p.Deactivate(2); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	// Deactivation never frees the naming index.
	if name := p.AddOpponent(); name != "op_3" {
		t.Fatalf("fourth opponent named %s, want op_3", name)
	}
	if p.LastOpponent() != "op_3" {
		t.Fatalf("last opponent = %s", p.LastOpponent())
	}
}

func TestDeactivationKeepsPositions(t *testing.T) {
	p, err := New("main", 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Deactivate(1); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if p.Size() != 3 {
		t.Fatalf("size shrank to %d after deactivation", p.Size())
	}
	active := p.ActiveOpponents()
	if len(active) != 2 || active[0] != "op_0" || active[1] != "op_2" {
		t.Fatalf("active opponents = %v", active)
	}
	if !p.Deactivated(1) || p.Deactivated(0) {
		t.Fatal("deactivation flags are wrong")
	}
	if err := p.Deactivate(7); err == nil {
		t.Fatal("expected error for out-of-range position")
	}
}

func TestTimestepAndEpisodeAccounting(t *testing.T) {
	p, err := New("main", 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.AddTimesteps(0, 500); err != nil {
		t.Fatalf("AddTimesteps: %v", err)
	}
	if err := p.AddTimesteps(0, 250); err != nil {
		t.Fatalf("AddTimesteps: %v", err)
	}
	if got := p.Timesteps(0); got != 750 {
		t.Fatalf("timesteps = %d, want 750", got)
	}
	if got := p.Timesteps(1); got != 0 {
		t.Fatalf("untouched opponent timesteps = %d", got)
	}
	if err := p.AddTimesteps(9, 1); err == nil {
		t.Fatal("expected error for out-of-range position")
	}

	p.AddEpisodes("op_0", 4)
	p.AddEpisodes("op_0", 2)
	if got := p.Episodes("op_0"); got != 6 {
		t.Fatalf("episodes = %d, want 6", got)
	}
	if got := p.EpisodePolicies(); len(got) != 1 || got[0] != "op_0" {
		t.Fatalf("episode policies = %v", got)
	}
}
