package tabstep_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tabstep/tabstep"
	"gopkg.in/yaml.v3"
)

func TestStepAt(t *testing.T) {
	assert.Equal(t, -1, tabstep.StepAt(nil, 1))
	steps := []tabstep.Step{{TS: 0, StepDuration: 1}, {TS: 1, StepDuration: 0.5}, {TS: 1.5, StepDuration: 1}}
	for seconds, expected := range map[float64]int{-1: 0, 0: 0, 0.99: 0, 1: 1, 1.2: 1, 1.5: 2, 100: 2} {
		assert.Equal(t, expected, tabstep.StepAt(steps, seconds), "at %v", seconds)
	}
}

func TestLength(t *testing.T) {
	assert.Equal(t, 0.0, tabstep.Length(nil))
	steps := []tabstep.Step{
		{TS: 0, StepDuration: 1, Notes: []tabstep.NoteEvent{{Duration: 3}}},
		{TS: 1, StepDuration: 1},
	}
	assert.Equal(t, 3.0, tabstep.Length(steps))
	assert.Equal(t, 2.0, steps[1].End())
}

func TestMarshalSteps(t *testing.T) {
	steps := tabstep.NewGenerator(loadScore(t, "sample-basic.yml"), tabstep.WithBPM(120)).GenerateSteps()
	out, err := tabstep.MarshalSteps(steps[:1])
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, 0.5, decoded[0]["stepDuration"])
	assert.Equal(t, 0, decoded[0]["virtualPosition"])
	notes := decoded[0]["notes"].([]any)
	note := notes[0].(map[string]any)
	assert.Equal(t, map[string]any{"name": "E4", "midi": 64}, note["fretboardNote"])
}
