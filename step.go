package tabstep

import "sort"

type (
	// Step is one event of the performance timeline: the notes that start at
	// a virtual position, when they start and how long until the next step.
	// Times are in seconds.
	Step struct {
		TS              float64     `json:"ts" yaml:"ts"`
		StepDuration    float64     `json:"stepDuration" yaml:"stepDuration"`
		VirtualMeasure  int         `json:"virtualMeasure" yaml:"virtualMeasure"`
		PhysicalMeasure int         `json:"physicalMeasure" yaml:"physicalMeasure"`
		VirtualPosition int         `json:"virtualPosition" yaml:"virtualPosition"`
		Notes           []NoteEvent `json:"notes" yaml:"notes"`
	}

	// NoteEvent is a note to sound and to show on the fretboard. Duration is
	// in seconds and includes the notes tied to it.
	NoteEvent struct {
		Duration      float64       `json:"duration" yaml:"duration"`
		Volume        float64       `json:"volume" yaml:"volume"`
		String        int           `json:"string" yaml:"string"`
		Fret          int           `json:"fret" yaml:"fret"`
		FretboardNote FretboardNote `json:"fretboardNote" yaml:"fretboardNote,flow"`
	}
)

// End returns the time when the step is over.
func (s Step) End() float64 { return s.TS + s.StepDuration }

// Length returns the total duration of the timeline in seconds: the end of the
// last step, or the end of the longest ringing note if that is later.
func Length(steps []Step) float64 {
	ret := 0.0
	for _, s := range steps {
		ret = max(ret, s.End())
		for _, n := range s.Notes {
			ret = max(ret, s.TS+n.Duration)
		}
	}
	return ret
}

// StepAt returns the index of the step sounding at the given time: the last
// step with TS <= seconds. Times before the first step map to 0; an empty
// timeline returns -1.
func StepAt(steps []Step, seconds float64) int {
	if len(steps) == 0 {
		return -1
	}
	i := sort.Search(len(steps), func(i int) bool { return steps[i].TS > seconds })
	if i == 0 {
		return 0
	}
	return i - 1
}
