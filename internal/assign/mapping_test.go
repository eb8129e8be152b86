package assign

import "testing"

func TestMappingMainAgentAlwaysMain(t *testing.T) {
	m := NewMapping(0, "main", []string{"op_0", "op_1"})
	for episode := 0; episode < 5; episode++ {
		name, ok := m.Lookup(0, episode)
		if !ok || name != "main" {
			t.Fatalf("episode %d: main agent resolved to %q ok=%t", episode, name, ok)
		}
	}
}

func TestMappingOpponentSlotCyclesByEpisode(t *testing.T) {
	m := NewMapping(0, "main", []string{"op_0", "op_1", "op_2"})
	want := []string{"op_0", "op_1", "op_2", "op_0", "op_1"}
	for episode, expected := range want {
		name, ok := m.Lookup(1, episode)
		if !ok {
			t.Fatalf("episode %d: lookup failed", episode)
		}
		if name != expected {
			t.Fatalf("episode %d: got %s, want %s", episode, name, expected)
		}
	}
}

func TestMappingEvalOverridesOpponents(t *testing.T) {
	m := NewEvalMapping(1, "main", "eval_op")
	if name, ok := m.Lookup(1, 0); !ok || name != "main" {
		t.Fatalf("main agent resolved to %q ok=%t", name, ok)
	}
	if name, ok := m.Lookup(0, 3); !ok || name != "eval_op" {
		t.Fatalf("eval slot resolved to %q ok=%t", name, ok)
	}
}

func TestMappingEmptyOpponents(t *testing.T) {
	m := NewMapping(0, "main", nil)
	if _, ok := m.Lookup(1, 0); ok {
		t.Fatal("lookup must fail with no opponents and no eval policy")
	}
}

func TestMappingSnapshotIsolation(t *testing.T) {
	opponents := []string{"op_0", "op_1"}
	m := NewMapping(0, "main", opponents)
	opponents[0] = "mutated"
	if name, _ := m.Lookup(1, 0); name != "op_0" {
		t.Fatalf("mapping aliases caller slice: got %s", name)
	}
}
