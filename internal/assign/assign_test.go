package assign

import (
	"reflect"
	"testing"
)

func TestDistributeDisjointWhenEnoughOpponents(t *testing.T) {
	byWorker, err := Distribute([]string{"op_0", "op_1", "op_2", "op_3"}, 2)
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if len(byWorker) != 3 {
		t.Fatalf("expected coordinator plus 2 workers, got %d entries", len(byWorker))
	}
	if len(byWorker[0]) != 0 {
		t.Fatalf("coordinator must hold no opponents, got %v", byWorker[0])
	}
	if !reflect.DeepEqual(byWorker[1], []string{"op_0", "op_2"}) {
		t.Fatalf("worker 1 got %v", byWorker[1])
	}
	if !reflect.DeepEqual(byWorker[2], []string{"op_1", "op_3"}) {
		t.Fatalf("worker 2 got %v", byWorker[2])
	}
}

func TestDistributeSizesDifferByAtMostOne(t *testing.T) {
	opponents := []string{"op_0", "op_1", "op_2", "op_3", "op_4", "op_5", "op_6"}
	byWorker, err := Distribute(opponents, 3)
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}

	seen := make(map[string]int)
	min, max := len(opponents), 0
	for worker := 1; worker < len(byWorker); worker++ {
		n := len(byWorker[worker])
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
		for _, name := range byWorker[worker] {
			seen[name]++
		}
	}
	if max-min > 1 {
		t.Fatalf("worker set sizes differ by more than one: min=%d max=%d", min, max)
	}
	for _, name := range opponents {
		if seen[name] != 1 {
			t.Fatalf("opponent %s assigned %d times, want exactly once", name, seen[name])
		}
	}
}

func TestDistributeFewerOpponentsThanWorkers(t *testing.T) {
	byWorker, err := Distribute([]string{"op_0"}, 3)
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	for worker := 1; worker <= 3; worker++ {
		if !reflect.DeepEqual(byWorker[worker], []string{"op_0"}) {
			t.Fatalf("worker %d got %v, want [op_0]", worker, byWorker[worker])
		}
	}
}

func TestDistributeRoundRobinReuse(t *testing.T) {
	byWorker, err := Distribute([]string{"op_0", "op_1"}, 5)
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	want := []string{"op_0", "op_1", "op_0", "op_1", "op_0"}
	for worker := 1; worker <= 5; worker++ {
		if len(byWorker[worker]) != 1 {
			t.Fatalf("worker %d holds %d opponents, want exactly 1", worker, len(byWorker[worker]))
		}
		if byWorker[worker][0] != want[worker-1] {
			t.Fatalf("worker %d got %s, want %s", worker, byWorker[worker][0], want[worker-1])
		}
	}
}

func TestDistributeRejectsBadInput(t *testing.T) {
	if _, err := Distribute([]string{"op_0"}, 0); err == nil {
		t.Fatal("expected error for zero workers")
	}
	if _, err := Distribute(nil, 2); err == nil {
		t.Fatal("expected error for empty opponent list")
	}
}
