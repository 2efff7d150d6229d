package spso

import "testing"

// TestFoldPeriodicWrapsToOppositeBoundary grounds spso.c's periodic/torus
// boundary handling: an overshoot past max must reappear near min, and an
// undershoot below min must reappear near max. A reflecting fold (bouncing
// back toward the boundary just crossed) would instead produce 7 for the
// overshoot case and 3 for the undershoot case below — exactly backwards.
func TestFoldPeriodicWrapsToOppositeBoundary(t *testing.T) {
	const min, max = 0.0, 10.0

	if got := foldPeriodic(min, max, 13); got != 3 {
		t.Errorf("foldPeriodic(0, 10, 13) = %v, want 3 (wrap near min)", got)
	}
	if got := foldPeriodic(min, max, -3); got != 7 {
		t.Errorf("foldPeriodic(0, 10, -3) = %v, want 7 (wrap near max)", got)
	}
}

// TestFoldPeriodicHandlesMultipleWraps checks an overshoot/undershoot wider
// than one full period still wraps correctly via fmod.
func TestFoldPeriodicHandlesMultipleWraps(t *testing.T) {
	const min, max = 0.0, 10.0

	if got := foldPeriodic(min, max, 24); got != 4 {
		t.Errorf("foldPeriodic(0, 10, 24) = %v, want 4", got)
	}
	if got := foldPeriodic(min, max, -21); got != 9 {
		t.Errorf("foldPeriodic(0, 10, -21) = %v, want 9", got)
	}
}
