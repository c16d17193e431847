package speakerid

// Tracker smooths raw per-label scores into a stable current-speaker estimate
// with hysteresis. It owns no engine resources and is reset at the start of
// every turn; callers serialize access through the orchestrator.
type Tracker struct {
	labels []string
	scores map[string]float64
	totals map[string]float64

	minScore     float64
	releaseScore float64
	alpha        float64
	silenceDecay float64

	currentLabel string
	currentScore float64
	peakLabel    string
	peakScore    float64
}

// NewTracker builds a tracker over the given labels. Tunables are clamped:
// minScore and smoothing to [0,1], silenceDecay to [0,0.999].
func NewTracker(labels []string, minScore, smoothing, silenceDecay float64) *Tracker {
	t := &Tracker{
		labels:       append([]string(nil), labels...),
		scores:       make(map[string]float64, len(labels)),
		totals:       make(map[string]float64, len(labels)),
		minScore:     clamp(minScore, 0, 1),
		alpha:        clamp(smoothing, 0, 1),
		silenceDecay: clamp(silenceDecay, 0, 0.999),
	}
	t.releaseScore = t.minScore - 0.05
	if r := t.minScore * 0.7; r < t.releaseScore {
		t.releaseScore = r
	}
	if t.releaseScore < 0 {
		t.releaseScore = 0
	}
	for _, l := range t.labels {
		t.scores[l] = 0
		t.totals[l] = 0
	}
	return t
}

// MinScore returns the clamped adoption threshold.
func (t *Tracker) MinScore() float64 { return t.minScore }

// Update feeds one frame's raw scores plus the voice-detected flag and
// returns the current speaker estimate. On silent frames the raw scores are
// ignored and every smoothed score decays.
func (t *Tracker) Update(raw []float64, voiceDetected bool) (string, float64) {
	if !voiceDetected {
		t.decayScores(t.silenceDecay)
		t.updateCurrent()
		return t.currentLabel, t.currentScore
	}

	for i, label := range t.labels {
		if i >= len(raw) {
			break
		}
		t.scores[label] = t.scores[label]*(1-t.alpha) + raw[i]*t.alpha
		t.totals[label] = t.totals[label]*(1-t.alpha) + raw[i]
	}
	t.updateCurrent()
	return t.currentLabel, t.currentScore
}

// BestMatch returns the authoritative speaker guess for the turn: the current
// label when confident enough, else the peak label when it ever was.
func (t *Tracker) BestMatch() (string, float64) {
	if t.currentLabel != "" && t.currentScore >= t.minScore {
		return t.currentLabel, t.currentScore
	}
	if t.peakLabel != "" && t.peakScore >= t.minScore {
		return t.peakLabel, t.peakScore
	}
	return "", 0
}

// Reset zeroes all scores and totals and clears the current and peak labels.
func (t *Tracker) Reset() {
	for _, l := range t.labels {
		t.scores[l] = 0
		t.totals[l] = 0
	}
	t.currentLabel = ""
	t.currentScore = 0
	t.peakLabel = ""
	t.peakScore = 0
}

func (t *Tracker) decayScores(factor float64) {
	if factor <= 0 {
		for _, l := range t.labels {
			t.scores[l] = 0
		}
		return
	}
	for _, l := range t.labels {
		t.scores[l] *= factor
	}
}

// updateCurrent recomputes the candidate from the running totals when any
// exist (more stable across a whole turn), falling back to the smoothed
// scores, then applies hysteresis against the previously adopted label.
func (t *Tracker) updateCurrent() {
	if len(t.labels) == 0 {
		t.currentLabel = ""
		t.currentScore = 0
		return
	}

	source := t.totals
	sum := 0.0
	for _, v := range t.totals {
		sum += v
	}
	if sum <= 0 {
		source = t.scores
		sum = 0
		for _, v := range t.scores {
			sum += v
		}
		if sum <= 0 {
			t.currentLabel = ""
			t.currentScore = 0
			return
		}
	}

	bestLabel := ""
	bestValue := 0.0
	for _, l := range t.labels {
		if v := source[l]; bestLabel == "" || v > bestValue {
			bestLabel = l
			bestValue = v
		}
	}
	confidence := bestValue / sum

	if confidence > t.peakScore {
		t.peakScore = confidence
		t.peakLabel = bestLabel
	}

	switch {
	case confidence >= t.minScore:
		t.currentLabel = bestLabel
		t.currentScore = confidence
	case t.currentLabel == bestLabel:
		t.currentScore = confidence
	case t.currentLabel == "":
		t.currentScore = confidence
		if confidence > 0 {
			t.currentLabel = bestLabel
		}
	case t.currentScore < t.releaseScore:
		t.currentLabel = ""
		t.currentScore = 0
	default:
		// Keep the stale label but let its score decay toward release.
		t.currentScore *= t.silenceDecay
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
