package tabstep

import "log/slog"

// MeasureInfo is the repeat classification of one written measure.
type MeasureInfo struct {
	MeasureIndex   int
	MeasureNumber  int
	HasStartRepeat bool
	HasEndRepeat   bool
	// RepeatTimes is the total number of plays asked by the end repeat; 2
	// when not given. Only one extra play is ever expanded.
	RepeatTimes int
}

// AnalyzeRepeats classifies the first maxMeasures measures of the score. The
// repeat markers are looked up from the start-of-measure instructions, the
// end-of-measure instructions and the graphic measure mirror, and any of them
// is enough to set a flag.
func AnalyzeRepeats(score *Score, maxMeasures int, logger *slog.Logger) []MeasureInfo {
	if logger == nil {
		logger = slog.Default()
	}
	count := len(score.Measures)
	if maxMeasures > 0 && count > maxMeasures {
		logger.Warn("score exceeds the measure limit, processing only the first measures", "measures", count, "limit", maxMeasures)
		count = maxMeasures
	}
	ret := make([]MeasureInfo, count)
	for i := range ret {
		m := &score.Measures[i]
		info := MeasureInfo{MeasureIndex: i, MeasureNumber: m.Number, RepeatTimes: 2}
		for _, instr := range m.FirstRepetitionInstructions {
			switch {
			case instr.Type == StartLine:
				info.HasStartRepeat = true
			case !instr.Type.Known():
				logger.Warn("unknown repetition instruction ignored", "measure", i, "type", int(instr.Type))
			}
		}
		for _, instr := range m.LastRepetitionInstructions {
			switch {
			case instr.Type == ForwardJump || instr.Type == BackJumpLine:
				info.HasEndRepeat = true
				if instr.Times > 0 {
					info.RepeatTimes = instr.Times
				}
			case !instr.Type.Known():
				logger.Warn("unknown repetition instruction ignored", "measure", i, "type", int(instr.Type))
			}
		}
		if g, ok := score.GraphicMeasure(i); ok {
			if g.BeginRepeat {
				info.HasStartRepeat = true
			}
			if g.EndRepeat {
				info.HasEndRepeat = true
			}
		}
		if info.RepeatTimes > 2 {
			logger.Warn("repeat count above two is played as a single repeat", "measure", i, "times", info.RepeatTimes)
		}
		ret[i] = info
	}
	return ret
}

// BuildPlaybackSequence expands the repeats into the order the measures are
// performed in. Every end repeat plays the section since its matching start
// repeat once more; an end repeat without a start repeats from the first
// measure.
func BuildPlaybackSequence(measures []MeasureInfo) []MeasureInfo {
	ret := make([]MeasureInfo, 0, len(measures))
	var starts []int
	for i, m := range measures {
		if m.HasStartRepeat {
			starts = append(starts, i)
		}
		ret = append(ret, m)
		if !m.HasEndRepeat {
			continue
		}
		from := 0
		if n := len(starts); n > 0 {
			from = starts[n-1]
			starts = starts[:n-1]
		}
		ret = append(ret, measures[from:i+1]...)
	}
	return ret
}
