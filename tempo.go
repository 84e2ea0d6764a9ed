package tabstep

// ExtractBPM looks for the tempo of the score: the first tempo expression of
// any measure, then tempo instructions placed at the start of a measure, and
// finally the default tempo of the score. ok is false if none is found.
func ExtractBPM(score *Score) (bpm float64, ok bool) {
	for i := range score.Measures {
		m := &score.Measures[i]
		for _, e := range m.TempoExpressions {
			if e.TempoInBpm > 0 {
				return e.TempoInBpm, true
			}
		}
		for _, instr := range m.FirstInstructions {
			if instr.TempoInBpm > 0 {
				return instr.TempoInBpm, true
			}
		}
	}
	if score.DefaultTempo > 0 {
		return score.DefaultTempo, true
	}
	return 0, false
}
