package tabstep_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tabstep/tabstep"
)

const epsilon = 1e-9

func loadScore(t *testing.T, name string) *tabstep.Score {
	t.Helper()
	score, err := tabstep.LoadScore(filepath.Join("testdata", name))
	require.NoError(t, err)
	return score
}

func TestBasicScore(t *testing.T) {
	gen := tabstep.NewGenerator(loadScore(t, "sample-basic.yml"))
	assert.Equal(t, 131.0, gen.BPM())
	steps := gen.GenerateSteps()
	require.Len(t, steps, 8)
	beat := 60.0 / 131
	frets := []int{0, 1, 3, 5, 0, 1, 3, 5}
	for i, s := range steps {
		assert.InDelta(t, float64(i)*beat, s.TS, epsilon, "step %d", i)
		assert.InDelta(t, beat, s.StepDuration, epsilon, "step %d", i)
		assert.Equal(t, i/4, s.VirtualMeasure)
		assert.Equal(t, i/4, s.PhysicalMeasure)
		assert.Equal(t, i, s.VirtualPosition)
		require.Len(t, s.Notes, 1)
		assert.Equal(t, i/4+1, s.Notes[0].String)
		assert.Equal(t, frets[i], s.Notes[0].Fret)
		assert.InDelta(t, beat, s.Notes[0].Duration, epsilon)
		assert.Equal(t, 1.0, s.Notes[0].Volume)
	}
	assert.Equal(t, tabstep.FretboardNote{Name: "E4", MIDI: 64}, steps[0].Notes[0].FretboardNote)
	assert.Equal(t, tabstep.FretboardNote{Name: "G4", MIDI: 67}, steps[2].Notes[0].FretboardNote)
	assert.Equal(t, tabstep.FretboardNote{Name: "B3", MIDI: 59}, steps[4].Notes[0].FretboardNote)
	assert.InDelta(t, 8*beat, tabstep.Length(steps), epsilon)
}

func TestRepeatedScore(t *testing.T) {
	gen := tabstep.NewGenerator(loadScore(t, "sample-repeat.yml"))
	steps := gen.GenerateSteps()
	require.Len(t, steps, 20)
	beat := 60.0 / 131
	for i, s := range steps {
		assert.Equal(t, i, s.VirtualPosition)
		assert.InDelta(t, float64(i)*beat, s.TS, epsilon, "step %d", i)
		assert.InDelta(t, beat, s.StepDuration, epsilon, "step %d", i)
		switch {
		case i < 16:
			assert.Equal(t, (i%8)/4, s.PhysicalMeasure, "step %d", i)
		default:
			assert.Equal(t, 2, s.PhysicalMeasure, "step %d", i)
		}
		assert.Equal(t, s.PhysicalMeasure, s.VirtualMeasure)
	}
	// the repeat boundary is seamless
	assert.InDelta(t, steps[7].End(), steps[8].TS, epsilon)
	for i := 0; i < 8; i++ {
		assert.Equal(t, steps[i].Notes, steps[i+8].Notes, "step %d", i)
	}
	assert.Equal(t, 3, steps[16].Notes[0].String)
}

func TestTempoScaling(t *testing.T) {
	score := loadScore(t, "sample-repeat.yml")
	slow := tabstep.NewGenerator(score, tabstep.WithBPM(131)).GenerateSteps()
	fast := tabstep.NewGenerator(score, tabstep.WithBPM(262)).GenerateSteps()
	require.Len(t, fast, len(slow))
	for i := range slow {
		assert.Equal(t, slow[i].VirtualPosition, fast[i].VirtualPosition)
		assert.Equal(t, slow[i].PhysicalMeasure, fast[i].PhysicalMeasure)
		assert.InDelta(t, slow[i].TS/2, fast[i].TS, epsilon)
		assert.InDelta(t, slow[i].StepDuration/2, fast[i].StepDuration, epsilon)
	}
}

func TestSetBPM(t *testing.T) {
	gen := tabstep.NewGenerator(loadScore(t, "sample-basic.yml"))
	gen.SetBPM(60)
	gen.SetBPM(-1)
	assert.Equal(t, 60.0, gen.BPM())
	steps := gen.GenerateSteps()
	assert.InDelta(t, 1.0, steps[1].TS, epsilon)
}

func TestTiesRestsAndStaves(t *testing.T) {
	gen := tabstep.NewGenerator(loadScore(t, "sample-3-4.yml"))
	assert.Equal(t, 90.0, gen.BPM())
	steps := gen.GenerateSteps()
	require.Len(t, steps, 10)
	wholeNote := 60.0 / 90 * 4
	durations := []float64{0.5, 0.25, 0.25, 0.25, 0.25}
	measures := []int{0, 0, 1, 1, 1}
	for i, s := range steps {
		assert.InDelta(t, durations[i%5]*wholeNote, s.StepDuration, epsilon, "step %d", i)
		assert.Equal(t, measures[i%5], s.PhysicalMeasure, "step %d", i)
	}
	for _, pass := range []int{0, 5} {
		// the tie start sounds for the whole tie; the notation staff is silent
		require.Len(t, steps[pass].Notes, 1)
		tied := steps[pass].Notes[0]
		assert.Equal(t, 3, tied.Fret)
		assert.InDelta(t, 0.75*wholeNote, tied.Duration, epsilon)
		assert.Equal(t, tabstep.FretboardNote{Name: "G4", MIDI: 67}, tied.FretboardNote)

		require.Len(t, steps[pass+1].Notes, 1)
		low := steps[pass+1].Notes[0]
		assert.Equal(t, 6, low.String)
		assert.Equal(t, 0.5, low.Volume)
		assert.Equal(t, "E2", low.FretboardNote.Name)

		assert.Empty(t, steps[pass+2].Notes, "tie continuation")
		assert.Empty(t, steps[pass+3].Notes, "rest")
		require.Len(t, steps[pass+4].Notes, 1)
		assert.Equal(t, 60, steps[pass+4].Notes[0].FretboardNote.MIDI)
	}
}

func TestGenerateStepsIsIdempotent(t *testing.T) {
	for _, name := range []string{"sample-basic.yml", "sample-repeat.yml", "sample-3-4.yml"} {
		t.Run(name, func(t *testing.T) {
			gen := tabstep.NewGenerator(loadScore(t, name))
			first := gen.GenerateSteps()
			gen.SyncCursorToVirtualPosition(len(first) - 1)
			gen.ResetRepeatedCursor()
			second := gen.GenerateSteps()
			assert.Equal(t, first, second)
			assert.Equal(t, 0, gen.VirtualCursorPosition())
		})
	}
}

func TestStepsAreMonotonic(t *testing.T) {
	for _, name := range []string{"sample-basic.yml", "sample-repeat.yml", "sample-3-4.yml"} {
		t.Run(name, func(t *testing.T) {
			steps := tabstep.NewGenerator(loadScore(t, name)).GenerateSteps()
			require.NotEmpty(t, steps)
			assert.Equal(t, 0.0, steps[0].TS)
			for i, s := range steps {
				assert.Greater(t, s.StepDuration, 0.0, "step %d", i)
				if i > 0 {
					assert.GreaterOrEqual(t, s.TS, steps[i-1].TS, "step %d", i)
				}
			}
		})
	}
}

func TestMaxMeasures(t *testing.T) {
	steps := tabstep.NewGenerator(loadScore(t, "sample-repeat.yml"), tabstep.WithMaxMeasures(1)).GenerateSteps()
	require.Len(t, steps, 4)
	for _, s := range steps {
		assert.Equal(t, 0, s.PhysicalMeasure)
	}
}

func TestEmptyMeasures(t *testing.T) {
	score := &tabstep.Score{Measures: []tabstep.Measure{{}, {}}}
	steps := tabstep.NewGenerator(score).GenerateSteps()
	assert.Empty(t, steps)
}

func TestLastStepLastsLongestNote(t *testing.T) {
	score := &tabstep.Score{Measures: []tabstep.Measure{{Entries: []tabstep.VoiceEntry{
		{Timestamp: tabstep.Whole(0), Notes: []tabstep.Note{
			{Length: tabstep.NewFraction(1, 8), String: 1},
			{Length: tabstep.NewFraction(1, 2), String: 2},
		}},
	}}}}
	steps := tabstep.NewGenerator(score, tabstep.WithBPM(60)).GenerateSteps()
	require.Len(t, steps, 1)
	assert.InDelta(t, 2.0, steps[0].StepDuration, epsilon)
}

func TestOutOfRangeFret(t *testing.T) {
	score := &tabstep.Score{Measures: []tabstep.Measure{{Entries: []tabstep.VoiceEntry{
		{Timestamp: tabstep.Whole(0), Notes: []tabstep.Note{{Length: tabstep.NewFraction(1, 4), String: 7, Fret: 30}}},
	}}}}
	steps := tabstep.NewGenerator(score).GenerateSteps()
	require.Len(t, steps, 1)
	require.Len(t, steps[0].Notes, 1)
	assert.Equal(t, tabstep.FretboardNote{}, steps[0].Notes[0].FretboardNote)
}

func TestSetTuning(t *testing.T) {
	gen := tabstep.NewGenerator(loadScore(t, "sample-basic.yml"))
	dropD := tabstep.Tuning{64, 59, 55, 50, 45, 38}
	gen.SetTuning(dropD)
	assert.Equal(t, "D2", gen.FretboardNotes()[5][0].Name)
	table := gen.FretboardNotes()
	table[5][0] = tabstep.FretboardNote{}
	assert.Equal(t, "D2", gen.FretboardNotes()[5][0].Name)
	half := tabstep.Tuning{63, 58, 54, 49, 44, 39}
	steps := tabstep.NewGenerator(loadScore(t, "sample-basic.yml"), tabstep.WithTuning(half)).GenerateSteps()
	assert.Equal(t, "D#4", steps[0].Notes[0].FretboardNote.Name)
}

func TestGenerateStepsContextCancelled(t *testing.T) {
	gen := tabstep.NewGenerator(loadScore(t, "sample-repeat.yml"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	steps, err := gen.GenerateStepsContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, steps)
	assert.Equal(t, 0, gen.VirtualCursorPosition())
}
