package tabstep_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tabstep/tabstep"
)

// recordingSynth logs what the player asks of it.
type recordingSynth struct {
	log []string
}

func (s *recordingSynth) Render(buffer []float32) error {
	s.log = append(s.log, fmt.Sprintf("render %d", len(buffer)/2))
	return nil
}

func (s *recordingSynth) Trigger(voice int, note byte, velocity float32) {
	s.log = append(s.log, fmt.Sprintf("trigger %d %d %.1f", voice, note, velocity))
}

func (s *recordingSynth) Release(voice int) {
	s.log = append(s.log, fmt.Sprintf("release %d", voice))
}

func note(str, midi int, duration float64) tabstep.NoteEvent {
	return tabstep.NoteEvent{String: str, Duration: duration, Volume: 1, FretboardNote: tabstep.FretboardNote{MIDI: midi}}
}

func TestPlay(t *testing.T) {
	steps := []tabstep.Step{
		{TS: 0, StepDuration: 0.5, Notes: []tabstep.NoteEvent{note(1, 64, 0.5)}},
		{TS: 0.5, StepDuration: 0.5, Notes: []tabstep.NoteEvent{note(1, 65, 0.5)}},
	}
	s := &recordingSynth{}
	buffer, err := tabstep.Play(s, steps, 100)
	require.NoError(t, err)
	assert.Len(t, buffer, 150*2)
	assert.Equal(t, []string{
		"trigger 0 64 1.0",
		"render 50",
		"release 0",
		"trigger 0 65 1.0",
		"render 50",
		"release 0",
		"render 50",
	}, s.log)
}

func TestPlayCutsRingingString(t *testing.T) {
	steps := []tabstep.Step{
		{TS: 0, StepDuration: 0.5, Notes: []tabstep.NoteEvent{note(2, 59, 1), note(1, 64, 0.25)}},
		{TS: 0.5, StepDuration: 0.25, Notes: []tabstep.NoteEvent{note(2, 60, 0.25)}},
	}
	s := &recordingSynth{}
	_, err := tabstep.Play(s, steps, 100)
	require.NoError(t, err)
	// the release of the first note on string 2 would cut the second one
	assert.Equal(t, []string{
		"trigger 1 59 1.0",
		"trigger 0 64 1.0",
		"render 25",
		"release 0",
		"render 25",
		"trigger 1 60 1.0",
		"render 25",
		"release 1",
		"render 75",
	}, s.log)
}

func TestPlayInvalidSampleRate(t *testing.T) {
	_, err := tabstep.Play(&recordingSynth{}, nil, 0)
	assert.Error(t, err)
}
