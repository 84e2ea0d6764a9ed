package tabstep_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tabstep/tabstep"
)

func measureIndices(infos []tabstep.MeasureInfo) []int {
	ret := make([]int, len(infos))
	for i, m := range infos {
		ret[i] = m.MeasureIndex
	}
	return ret
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestAnalyzeRepeatsLookupPaths(t *testing.T) {
	score := &tabstep.Score{
		Measures: []tabstep.Measure{
			{Number: 1, FirstRepetitionInstructions: []tabstep.RepetitionInstruction{{Type: tabstep.StartLine}}},
			{Number: 2, LastRepetitionInstructions: []tabstep.RepetitionInstruction{{Type: tabstep.BackJumpLine}}},
			{Number: 3, LastRepetitionInstructions: []tabstep.RepetitionInstruction{{Type: tabstep.ForwardJump, Times: 3}}},
			{Number: 4},
			{Number: 5},
			{Number: 6, FirstRepetitionInstructions: []tabstep.RepetitionInstruction{{Type: tabstep.Segno}}},
		},
		GraphicMeasures: [][]tabstep.GraphicMeasure{
			{}, {}, {},
			{{BeginRepeat: true}},
			{{EndRepeat: true}, {BeginRepeat: true}},
		},
	}
	var logs bytes.Buffer
	infos := tabstep.AnalyzeRepeats(score, 0, bufferLogger(&logs))
	require.Len(t, infos, 6)
	expected := []tabstep.MeasureInfo{
		{MeasureIndex: 0, MeasureNumber: 1, HasStartRepeat: true, RepeatTimes: 2},
		{MeasureIndex: 1, MeasureNumber: 2, HasEndRepeat: true, RepeatTimes: 2},
		{MeasureIndex: 2, MeasureNumber: 3, HasEndRepeat: true, RepeatTimes: 3},
		{MeasureIndex: 3, MeasureNumber: 4, HasStartRepeat: true, RepeatTimes: 2},
		{MeasureIndex: 4, MeasureNumber: 5, HasEndRepeat: true, RepeatTimes: 2},
		{MeasureIndex: 5, MeasureNumber: 6, RepeatTimes: 2},
	}
	assert.Equal(t, expected, infos)
	assert.Contains(t, logs.String(), "repeat count above two")
}

func TestAnalyzeRepeatsUnknownType(t *testing.T) {
	score := &tabstep.Score{Measures: []tabstep.Measure{
		{FirstRepetitionInstructions: []tabstep.RepetitionInstruction{{Type: 42}}},
	}}
	var logs bytes.Buffer
	infos := tabstep.AnalyzeRepeats(score, 0, bufferLogger(&logs))
	require.Len(t, infos, 1)
	assert.False(t, infos[0].HasStartRepeat)
	assert.Contains(t, logs.String(), "unknown repetition instruction")
}

func TestAnalyzeRepeatsMeasureLimit(t *testing.T) {
	score := &tabstep.Score{Measures: make([]tabstep.Measure, 5)}
	var logs bytes.Buffer
	infos := tabstep.AnalyzeRepeats(score, 3, bufferLogger(&logs))
	assert.Len(t, infos, 3)
	assert.Contains(t, logs.String(), "measure limit")
	assert.Len(t, tabstep.AnalyzeRepeats(score, 0, bufferLogger(&logs)), 5)
}

func TestBuildPlaybackSequence(t *testing.T) {
	for _, tc := range []struct {
		name     string
		measures []tabstep.MeasureInfo
		expected []int
	}{
		{"no repeats", []tabstep.MeasureInfo{{MeasureIndex: 0}, {MeasureIndex: 1}}, []int{0, 1}},
		{"bracketed", []tabstep.MeasureInfo{
			{MeasureIndex: 0},
			{MeasureIndex: 1, HasStartRepeat: true},
			{MeasureIndex: 2, HasEndRepeat: true},
			{MeasureIndex: 3},
		}, []int{0, 1, 2, 1, 2, 3}},
		{"orphan end repeats from the top", []tabstep.MeasureInfo{
			{MeasureIndex: 0},
			{MeasureIndex: 1, HasEndRepeat: true},
			{MeasureIndex: 2},
		}, []int{0, 1, 0, 1, 2}},
		{"single measure", []tabstep.MeasureInfo{
			{MeasureIndex: 0, HasStartRepeat: true, HasEndRepeat: true},
			{MeasureIndex: 1},
		}, []int{0, 0, 1}},
		{"consecutive", []tabstep.MeasureInfo{
			{MeasureIndex: 0, HasStartRepeat: true},
			{MeasureIndex: 1, HasEndRepeat: true},
			{MeasureIndex: 2, HasStartRepeat: true},
			{MeasureIndex: 3, HasEndRepeat: true, RepeatTimes: 4},
		}, []int{0, 1, 0, 1, 2, 3, 2, 3}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, measureIndices(tabstep.BuildPlaybackSequence(tc.measures)))
		})
	}
}

func TestPlaybackSequenceLength(t *testing.T) {
	score := loadScore(t, "sample-repeat.yml")
	sequence := tabstep.BuildPlaybackSequence(tabstep.AnalyzeRepeats(score, tabstep.DefaultMaxMeasures, nil))
	// one bracket over measures 0..1 of three
	assert.Len(t, sequence, 3+2)
	assert.Equal(t, []int{0, 1, 0, 1, 2}, measureIndices(sequence))
}

func TestSingleMeasureRepeatSteps(t *testing.T) {
	score := &tabstep.Score{Measures: []tabstep.Measure{
		{
			FirstRepetitionInstructions: []tabstep.RepetitionInstruction{{Type: tabstep.StartLine}},
			LastRepetitionInstructions:  []tabstep.RepetitionInstruction{{Type: tabstep.BackJumpLine}},
			Entries: []tabstep.VoiceEntry{
				{Timestamp: tabstep.Whole(0), Notes: []tabstep.Note{{Length: tabstep.NewFraction(1, 2), String: 1}}},
				{Timestamp: tabstep.NewFraction(1, 2), Notes: []tabstep.Note{{Length: tabstep.NewFraction(1, 2), String: 2}}},
			},
		},
	}}
	gen := tabstep.NewGenerator(score, tabstep.WithBPM(120))
	steps := gen.GenerateSteps()
	require.Len(t, steps, 4)
	for i, s := range steps {
		assert.InDelta(t, float64(i), s.TS, epsilon)
		assert.InDelta(t, 1.0, s.StepDuration, epsilon)
		assert.Equal(t, 0, s.PhysicalMeasure)
		assert.Equal(t, i%2+1, s.Notes[0].String)
	}
	gen.SyncCursorToVirtualPosition(2)
	assertCursorAt(t, gen, 2)
}

func TestSingleStopMeasureRepeat(t *testing.T) {
	quarters := make([]tabstep.VoiceEntry, 4)
	for i := range quarters {
		quarters[i] = tabstep.VoiceEntry{
			Timestamp: tabstep.NewFraction(i, 4),
			Notes:     []tabstep.Note{{Length: tabstep.NewFraction(1, 4), String: 2, Fret: i}},
		}
	}
	score := &tabstep.Score{Measures: []tabstep.Measure{
		{
			FirstRepetitionInstructions: []tabstep.RepetitionInstruction{{Type: tabstep.StartLine}},
			LastRepetitionInstructions:  []tabstep.RepetitionInstruction{{Type: tabstep.BackJumpLine}},
			Entries: []tabstep.VoiceEntry{
				{Timestamp: tabstep.Whole(0), Notes: []tabstep.Note{{Length: tabstep.Whole(1), String: 1, Fret: 7}}},
			},
		},
		{Entries: quarters},
	}}
	var logs bytes.Buffer
	gen := tabstep.NewGenerator(score, tabstep.WithBPM(60), tabstep.WithLogger(bufferLogger(&logs)))
	steps := gen.GenerateSteps()
	require.Len(t, steps, 6)
	starts := []float64{0, 4, 8, 9, 10, 11}
	durations := []float64{4, 4, 1, 1, 1, 1}
	for i, s := range steps {
		assert.InDelta(t, starts[i], s.TS, epsilon, "step %d", i)
		assert.InDelta(t, durations[i], s.StepDuration, epsilon, "step %d", i)
		require.Len(t, s.Notes, 1, "step %d", i)
		if i < 2 {
			assert.Equal(t, 0, s.PhysicalMeasure)
			assert.Equal(t, 7, s.Notes[0].Fret, "step %d", i)
			assert.InDelta(t, 4.0, s.Notes[0].Duration, epsilon)
		} else {
			assert.Equal(t, 1, s.PhysicalMeasure)
			assert.Equal(t, 2, s.Notes[0].String, "step %d", i)
			assert.Equal(t, i-2, s.Notes[0].Fret, "step %d", i)
		}
	}
	assert.Empty(t, logs.String())
	for i := 1; i < len(steps); i++ {
		require.True(t, gen.NextWithRepeated())
		assertCursorAt(t, gen, i)
	}
}

func TestRepeatEndingInEmptyMeasure(t *testing.T) {
	score := &tabstep.Score{Measures: []tabstep.Measure{
		{
			FirstRepetitionInstructions: []tabstep.RepetitionInstruction{{Type: tabstep.StartLine}},
			Entries: []tabstep.VoiceEntry{
				{Timestamp: tabstep.Whole(0), Notes: []tabstep.Note{{Length: tabstep.NewFraction(1, 2), String: 1, Fret: 5}}},
			},
		},
		{LastRepetitionInstructions: []tabstep.RepetitionInstruction{{Type: tabstep.BackJumpLine}}},
		{Entries: []tabstep.VoiceEntry{
			{Timestamp: tabstep.Whole(0), Notes: []tabstep.Note{{Length: tabstep.NewFraction(1, 4), String: 3, Fret: 2}}},
		}},
	}}
	gen := tabstep.NewGenerator(score, tabstep.WithBPM(60))
	steps := gen.GenerateSteps()
	require.Len(t, steps, 3)
	// the empty measure closing the repeat is played on both passes
	assert.InDelta(t, 0.0, steps[0].TS, epsilon)
	assert.InDelta(t, 8.0, steps[0].StepDuration, epsilon)
	assert.InDelta(t, 8.0, steps[1].TS, epsilon)
	assert.InDelta(t, 8.0, steps[1].StepDuration, epsilon)
	assert.InDelta(t, 16.0, steps[2].TS, epsilon)
	assert.Equal(t, []int{0, 0, 2}, []int{steps[0].PhysicalMeasure, steps[1].PhysicalMeasure, steps[2].PhysicalMeasure})
	gen.SyncCursorToVirtualPosition(2)
	assertCursorAt(t, gen, 2)
}
