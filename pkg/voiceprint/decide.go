package voiceprint

// Decision is the outcome of matching one live embedding against a gallery.
type Decision struct {
	Match     bool
	Speaker   string
	Score     float64
	Threshold float64
}

// Decide scores live against each gallery speaker in insertion order and
// returns on the first score strictly greater than threshold. The reported
// speaker is therefore the first to exceed threshold, not necessarily the
// best. With no match, Score is the maximum observed (0 when nothing could
// be scored). Entries with zero magnitude or a different dimension are
// skipped.
func Decide(live []float32, g *Gallery, threshold float64) Decision {
	d := Decision{Threshold: threshold}
	scored := false
	for name, v := range g.All() {
		s, err := Cosine(live, v)
		if err != nil {
			continue
		}
		if !scored || s > d.Score {
			d.Score = s
			scored = true
		}
		if s > threshold {
			d.Match = true
			d.Speaker = name
			d.Score = s
			return d
		}
	}
	return d
}
