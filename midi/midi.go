// Package midi exports step timelines as Standard MIDI Files, one channel per
// guitar string.
package midi

import (
	"io"
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/tabstep/tabstep"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// TicksPerQuarter is the resolution of the exported files.
const TicksPerQuarter = 960

type (
	Header struct {
		Title         string
		BPM           float64
		TimeSignature tabstep.TimeSignature
	}

	// Note is a note read back from a file.
	Note struct {
		Seconds  float64
		Channel  uint8
		Key      uint8
		Velocity uint8
	}

	event struct {
		tick uint32
		on   bool
		ch   uint8
		key  uint8
		vel  uint8
	}
)

// Encode converts the steps into an SMF with a tempo track and a note track.
// The steps are timed in seconds at header.BPM.
func Encode(steps []tabstep.Step, header Header) (*smf.SMF, error) {
	if header.BPM <= 0 {
		return nil, errors.Errorf("invalid tempo %v", header.BPM)
	}
	ts := header.TimeSignature
	if ts.Numerator <= 0 || ts.Denominator <= 0 {
		ts = tabstep.TimeSignature{Numerator: 4, Denominator: 4}
	}
	toTicks := func(seconds float64) uint32 {
		return uint32(math.Round(seconds * header.BPM / 60 * TicksPerQuarter))
	}
	var events []event
	for _, step := range steps {
		for _, n := range step.Notes {
			key := n.FretboardNote.MIDI
			if key <= 0 || key > 127 || n.String < 1 || n.String > 16 {
				continue
			}
			on := toTicks(step.TS)
			off := max(toTicks(step.TS+n.Duration), on+1)
			ch := uint8(n.String - 1)
			vel := uint8(min(max(math.Round(n.Volume*127), 1), 127))
			events = append(events,
				event{tick: on, on: true, ch: ch, key: uint8(key), vel: vel},
				event{tick: off, ch: ch, key: uint8(key)})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return !events[i].on && events[j].on
	})
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(TicksPerQuarter)
	var track0 smf.Track
	if header.Title != "" {
		track0.Add(0, smf.MetaText(header.Title))
	}
	track0.Add(0, smf.MetaMeter(uint8(ts.Numerator), uint8(ts.Denominator)))
	track0.Add(0, smf.MetaTempo(header.BPM))
	track0.Close(0)
	if err := sm.Add(track0); err != nil {
		return nil, errors.Wrap(err, "error adding tempo track")
	}
	var track smf.Track
	var last uint32
	for _, e := range events {
		if e.on {
			track.Add(e.tick-last, midi.NoteOn(e.ch, e.key, e.vel))
		} else {
			track.Add(e.tick-last, midi.NoteOff(e.ch, e.key))
		}
		last = e.tick
	}
	track.Close(0)
	if err := sm.Add(track); err != nil {
		return nil, errors.Wrap(err, "error adding note track")
	}
	return sm, nil
}

// WriteSteps writes the steps as an SMF to w.
func WriteSteps(w io.Writer, steps []tabstep.Step, header Header) error {
	sm, err := Encode(steps, header)
	if err != nil {
		return err
	}
	if _, err := sm.WriteTo(w); err != nil {
		return errors.Wrap(err, "error writing MIDI file")
	}
	return nil
}

// ReadNotes reads the note-ons of an SMF written with a single tempo, as
// WriteSteps does, and times them in seconds.
func ReadNotes(r io.Reader) (bpm float64, notes []Note, err error) {
	sm, err := smf.ReadFrom(r)
	if err != nil {
		return 0, nil, errors.Wrap(err, "error reading MIDI file")
	}
	bpm = 120
	if changes := sm.TempoChanges(); len(changes) > 0 {
		bpm = changes[0].BPM
	}
	tf, ok := sm.TimeFormat.(smf.MetricTicks)
	if !ok {
		return 0, nil, errors.New("only metric ticks are supported")
	}
	secondsPerTick := 60 / bpm / float64(uint16(tf))
	for _, track := range sm.Tracks {
		var abs int64
		for _, ev := range track {
			abs += int64(ev.Delta)
			var ch, key, vel uint8
			if ev.Message.GetNoteOn(&ch, &key, &vel) && vel > 0 {
				notes = append(notes, Note{Seconds: float64(abs) * secondsPerTick, Channel: ch, Key: key, Velocity: vel})
			}
		}
	}
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].Seconds < notes[j].Seconds })
	return bpm, notes, nil
}
