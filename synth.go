package tabstep

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Synth renders the notes of a timeline. Voices are numbered by string: a
// string only rings one note at a time, so a new Trigger on a voice cuts the
// previous note.
type Synth interface {
	// Render fills the whole interleaved stereo buffer.
	Render(buffer []float32) error
	Trigger(voice int, note byte, velocity float32)
	Release(voice int)
}

type synthEvent struct {
	frame    int
	id       int
	voice    int
	note     byte
	velocity float32
	on       bool
}

// tailSeconds is rendered after the last note has been released, so that the
// release of the synth is heard.
const tailSeconds = 0.5

// Play renders the steps with the synth, triggering every note at the start of
// its step and releasing it after its duration. It returns an interleaved
// stereo buffer.
func Play(synth Synth, steps []Step, sampleRate int) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, errors.Errorf("invalid sample rate %v", sampleRate)
	}
	toFrame := func(seconds float64) int {
		return int(math.Round(seconds * float64(sampleRate)))
	}
	var events []synthEvent
	for _, step := range steps {
		for _, n := range step.Notes {
			if n.FretboardNote.MIDI <= 0 || n.FretboardNote.MIDI > 127 {
				continue
			}
			voice := n.String - 1
			on := toFrame(step.TS)
			off := toFrame(step.TS + n.Duration)
			if off <= on {
				off = on + 1
			}
			id := len(events)
			events = append(events,
				synthEvent{frame: on, id: id, voice: voice, note: byte(n.FretboardNote.MIDI), velocity: float32(n.Volume), on: true},
				synthEvent{frame: off, id: id, voice: voice})
		}
	}
	// a release at the same frame as a trigger on the same string belongs to
	// the previous note, so releases go first
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].frame != events[j].frame {
			return events[i].frame < events[j].frame
		}
		return !events[i].on && events[j].on
	})
	// a release only applies if its note still owns the voice; a newer trigger
	// on the same string has cut it already otherwise
	playing := map[int]int{}
	active := make([]bool, len(events))
	for i, e := range events {
		if e.on {
			playing[e.voice] = e.id
			active[i] = true
		} else if id, ok := playing[e.voice]; ok && id == e.id {
			delete(playing, e.voice)
			active[i] = true
		}
	}
	totalFrames := toFrame(Length(steps) + tailSeconds)
	buffer := make([]float32, 0, totalFrames*2)
	frame := 0
	for i, e := range events {
		if !active[i] {
			continue
		}
		if e.frame > frame {
			segment := make([]float32, (e.frame-frame)*2)
			if err := synth.Render(segment); err != nil {
				return nil, errors.Wrapf(err, "render failed at frame %v", frame)
			}
			buffer = append(buffer, segment...)
			frame = e.frame
		}
		if e.on {
			synth.Trigger(e.voice, e.note, e.velocity)
		} else {
			synth.Release(e.voice)
		}
	}
	if totalFrames > frame {
		segment := make([]float32, (totalFrames-frame)*2)
		if err := synth.Render(segment); err != nil {
			return nil, errors.Wrapf(err, "render failed at frame %v", frame)
		}
		buffer = append(buffer, segment...)
	}
	return buffer, nil
}
