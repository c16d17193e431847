package speakerid

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestTracker() *Tracker {
	return NewTracker([]string{"alice", "bob"}, 0.5, 0.4, 0.95)
}

func TestTracker_ConfidenceBoundsAndPeakMonotonic(t *testing.T) {
	tr := newTestTracker()
	peak := 0.0
	inputs := [][]float64{
		{0.9, 0.1}, {0.8, 0.3}, {0.2, 0.9}, {0.0, 0.0}, {0.6, 0.6},
	}
	for i, raw := range inputs {
		_, score := tr.Update(raw, true)
		if score < 0 || score > 1 {
			t.Fatalf("step %d: confidence %f out of [0,1]", i, score)
		}
		if tr.peakScore < peak {
			t.Fatalf("step %d: peak score decreased from %f to %f", i, peak, tr.peakScore)
		}
		peak = tr.peakScore
	}
}

func TestTracker_AdoptsDominantSpeaker(t *testing.T) {
	tr := newTestTracker()
	var label string
	var score float64
	for i := 0; i < 10; i++ {
		label, score = tr.Update([]float64{0.9, 0.05}, true)
	}
	if label != "alice" {
		t.Fatalf("expected alice, got %q", label)
	}
	if score < 0.5 {
		t.Fatalf("expected adopted confidence >= min score, got %f", score)
	}
	best, bestScore := tr.BestMatch()
	if best != "alice" || bestScore < 0.5 {
		t.Fatalf("expected best match alice, got %q (%f)", best, bestScore)
	}
}

func TestTracker_SilenceDecaysSmoothedScores(t *testing.T) {
	tr := NewTracker([]string{"alice"}, 0.5, 0.4, 0.5)
	tr.Update([]float64{0.8}, true)
	before := tr.scores["alice"]
	tr.Update(nil, false)
	if after := tr.scores["alice"]; after >= before {
		t.Fatalf("expected decay on silence: %f -> %f", before, after)
	}

	zero := NewTracker([]string{"alice"}, 0.5, 0.4, 0)
	zero.Update([]float64{0.8}, true)
	zero.Update(nil, false)
	if zero.scores["alice"] != 0 {
		t.Fatalf("expected zeroed scores with zero decay, got %f", zero.scores["alice"])
	}
}

func TestTracker_PeakFallbackAfterConfidenceDrops(t *testing.T) {
	tr := newTestTracker()
	for i := 0; i < 6; i++ {
		tr.Update([]float64{0.95, 0.02}, true)
	}
	// A burst from the other speaker dilutes current confidence below the
	// threshold, but the peak seen earlier still answers BestMatch.
	for i := 0; i < 4; i++ {
		tr.Update([]float64{0.1, 0.9}, true)
	}
	best, score := tr.BestMatch()
	if best == "" {
		t.Fatalf("expected a best match from peak tracking")
	}
	if score < tr.MinScore() {
		t.Fatalf("best match score %f below min score %f", score, tr.MinScore())
	}
}

func TestTracker_ResetClearsEverything(t *testing.T) {
	tr := newTestTracker()
	for i := 0; i < 5; i++ {
		tr.Update([]float64{0.9, 0.1}, true)
	}
	tr.Reset()
	if tr.currentLabel != "" || tr.currentScore != 0 || tr.peakLabel != "" || tr.peakScore != 0 {
		t.Fatalf("expected cleared current/peak after reset")
	}
	for _, l := range tr.labels {
		if tr.scores[l] != 0 || tr.totals[l] != 0 {
			t.Fatalf("expected zeroed scores for %s after reset", l)
		}
	}
	if best, _ := tr.BestMatch(); best != "" {
		t.Fatalf("expected no best match after reset, got %q", best)
	}
}

func TestTracker_TunableClamping(t *testing.T) {
	tr := NewTracker([]string{"a"}, 1.7, -0.2, 2.0)
	if tr.minScore != 1 {
		t.Fatalf("expected min score clamped to 1, got %f", tr.minScore)
	}
	if tr.alpha != 0 {
		t.Fatalf("expected smoothing clamped to 0, got %f", tr.alpha)
	}
	if tr.silenceDecay != 0.999 {
		t.Fatalf("expected decay clamped to 0.999, got %f", tr.silenceDecay)
	}
	if tr.releaseScore < 0 {
		t.Fatalf("expected non-negative release score, got %f", tr.releaseScore)
	}
}

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "alice.egl"), []byte{1, 2}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bob.egl"), []byte{3}, 0o644); err != nil {
		t.Fatal(err)
	}
	profiles, err := LoadProfiles(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	labels := Labels(profiles)
	if labels[0] != "alice" || labels[1] != "bob" {
		t.Fatalf("expected sorted labels, got %v", labels)
	}

	if _, err := LoadProfiles(t.TempDir()); err == nil {
		t.Fatalf("expected error for empty voices dir")
	}
}

func TestLoadProfiles_DuplicateLabels(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "alice.egl"), []byte{1}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "alice.bin"), []byte{2}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfiles(dir); err == nil {
		t.Fatalf("expected duplicate label error")
	}
}
