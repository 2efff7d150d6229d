package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/j-r-jones/optsearch/spso"
)

func openTestStore(t *testing.T, dims []spso.Dimension) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "optsearch.sqlite"), dims)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDims() []spso.Dimension {
	return []spso.Dimension{
		{UID: 1, Name: "x", Min: -5, Max: 6},
		{UID: 2, Name: "y", Min: 0, Max: 10},
		{UID: 3, Name: "z", Min: 0, Max: 2},
	}
}

// TestPositionInterning grounds scenario 3: storing (3,7,1) three times
// must return the same id each time, with visits == 3.
func TestPositionInterning(t *testing.T) {
	s := openTestStore(t, testDims())

	pos := spso.Position{3, 7, 1}
	var id int64
	for i := 0; i < 3; i++ {
		got, err := s.StorePosition(pos)
		if err != nil {
			t.Fatalf("StorePosition: %v", err)
		}
		if i == 0 {
			id = got
		} else if got != id {
			t.Fatalf("call %d returned id %d, want %d", i, got, id)
		}
	}

	_, _, visits, err := s.PositionByID(id)
	if err != nil {
		t.Fatalf("PositionByID: %v", err)
	}
	if visits != 3 {
		t.Fatalf("visits = %d, want 3", visits)
	}
}

func TestPositionRoundTrip(t *testing.T) {
	s := openTestStore(t, testDims())
	pos := spso.Position{-2, 4, 1}

	id, err := s.StorePosition(pos)
	if err != nil {
		t.Fatalf("StorePosition: %v", err)
	}
	if err := s.UpdatePositionFitness(id, 42.5); err != nil {
		t.Fatalf("UpdatePositionFitness: %v", err)
	}

	got, fitness, visits, err := s.PositionByID(id)
	if err != nil {
		t.Fatalf("PositionByID: %v", err)
	}
	if diff := cmp.Diff(pos, got); diff != "" {
		t.Fatalf("PositionByID mismatch (-want +got):\n%s", diff)
	}
	if fitness != 42.5 {
		t.Fatalf("fitness = %v, want 42.5", fitness)
	}
	if visits != 1 {
		t.Fatalf("visits = %d, want 1", visits)
	}
}

func TestVelocityInterning(t *testing.T) {
	s := openTestStore(t, testDims())
	vel := spso.Velocity{1, -1, 0}

	id1, err := s.StoreVelocity(vel)
	if err != nil {
		t.Fatalf("StoreVelocity: %v", err)
	}
	id2, err := s.StoreVelocity(vel)
	if err != nil {
		t.Fatalf("StoreVelocity: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("StoreVelocity not idempotent: %d != %d", id1, id2)
	}

	got, count, err := s.VelocityByID(id1)
	if err != nil {
		t.Fatalf("VelocityByID: %v", err)
	}
	if !got.Equal(vel) {
		t.Fatalf("VelocityByID = %v, want %v", got, vel)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestParticleHistoryOnlyOnMove(t *testing.T) {
	s := openTestStore(t, testDims())

	p := spso.Particle{
		UID:              0,
		Position:         spso.Position{1, 1, 1},
		Velocity:         spso.Velocity{0, 0, 0},
		PrevBestPosition: spso.Position{1, 1, 1},
		PrevBestFitness:  10,
	}
	if err := s.StoreParticle(p); err != nil {
		t.Fatalf("StoreParticle: %v", err)
	}

	count := func() int {
		var n int
		row := s.db.QueryRow(`SELECT COUNT(*) FROM particle_history WHERE particle_id = ?`, p.UID)
		if err := row.Scan(&n); err != nil {
			t.Fatalf("count history: %v", err)
		}
		return n
	}

	if n := count(); n != 0 {
		t.Fatalf("history count after initial store = %d, want 0 (no prior position to differ from)", n)
	}

	// Update with the SAME position: must not append a history row.
	if err := s.UpdateParticle(p); err != nil {
		t.Fatalf("UpdateParticle: %v", err)
	}
	if n := count(); n != 0 {
		t.Fatalf("history count after no-op update = %d, want 0", n)
	}

	// Update with a DIFFERENT position: must append exactly one history row.
	p.Position = spso.Position{2, 1, 1}
	if err := s.UpdateParticle(p); err != nil {
		t.Fatalf("UpdateParticle: %v", err)
	}
	if n := count(); n != 1 {
		t.Fatalf("history count after moving update = %d, want 1", n)
	}
}

func TestSingletonRoundTrip(t *testing.T) {
	s := openTestStore(t, testDims())

	if err := s.SetNoMovementCounter(17); err != nil {
		t.Fatalf("SetNoMovementCounter: %v", err)
	}
	got, err := s.NoMovementCounter()
	if err != nil {
		t.Fatalf("NoMovementCounter: %v", err)
	}
	if got != 17 {
		t.Fatalf("NoMovementCounter = %d, want 17", got)
	}

	if err := s.SetConverged(true); err != nil {
		t.Fatalf("SetConverged: %v", err)
	}
	conv, err := s.Converged()
	if err != nil {
		t.Fatalf("Converged: %v", err)
	}
	if !conv {
		t.Fatal("Converged = false, want true")
	}
}

func TestRealSingletonUnsetSentinel(t *testing.T) {
	s := openTestStore(t, testDims())

	v, err := s.CurrBest()
	if err != nil {
		t.Fatalf("CurrBest: %v", err)
	}
	if v != UnknownReal {
		t.Fatalf("CurrBest on fresh store = %v, want sentinel %v", v, UnknownReal)
	}

	if err := s.SetCurrBest(3.5); err != nil {
		t.Fatalf("SetCurrBest: %v", err)
	}
	v, err = s.CurrBest()
	if err != nil {
		t.Fatalf("CurrBest: %v", err)
	}
	if v != 3.5 {
		t.Fatalf("CurrBest = %v, want 3.5", v)
	}
}

func TestVerifyDimensionsMismatchIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "optsearch.sqlite")

	s, err := Open(path, testDims())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	reopened, err := Open(path, testDims())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if err := reopened.VerifyDimensions(testDims()); err != nil {
		t.Fatalf("VerifyDimensions on matching dims: %v", err)
	}

	mismatched := testDims()
	mismatched[0].Max = 999
	if err := reopened.VerifyDimensions(mismatched); err == nil {
		t.Fatal("VerifyDimensions on mismatched dims returned nil, want error")
	}
}

func TestMain_NoPanicOnMissingFile(t *testing.T) {
	// Sanity check that opening a brand-new path creates its parent file
	// rather than erroring because it doesn't exist yet.
	dir := t.TempDir()
	path := filepath.Join(dir, "fresh.sqlite")
	if _, err := os.Stat(path); err == nil {
		t.Fatal("test setup: file unexpectedly exists")
	}
	s, err := Open(path, testDims())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()
}
