package tabstep

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

type (
	// Tuning lists the MIDI pitch of each open string, string 1 (the highest)
	// first.
	Tuning []int

	// FretboardNote is the pitch sounding at a string/fret position.
	FretboardNote struct {
		Name string `json:"name" yaml:"name"`
		MIDI int    `json:"midi" yaml:"midi"`
	}
)

// StandardTuning is E4 B3 G3 D3 A2 E2.
var StandardTuning = Tuning{64, 59, 55, 50, 45, 40}

// DefaultFrets is the number of frets of the fretboard; positions 0 (open)
// to DefaultFrets are valid.
const DefaultFrets = 24

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns the scientific pitch name of a MIDI note, e.g. 64 is "E4".
func NoteName(midi int) string {
	n := ((midi % 12) + 12) % 12
	octave := (midi-n)/12 - 1
	return fmt.Sprintf("%s%d", noteNames[n], octave)
}

// FretboardNotes returns the table of notes of the fretboard, indexed by
// [string-1][fret].
func FretboardNotes(tuning Tuning, frets int) [][]FretboardNote {
	ret := make([][]FretboardNote, len(tuning))
	for s, open := range tuning {
		ret[s] = make([]FretboardNote, frets+1)
		for f := range ret[s] {
			ret[s][f] = FretboardNote{Name: NoteName(open + f), MIDI: open + f}
		}
	}
	return ret
}

// Copy makes a copy of a Tuning.
func (t Tuning) Copy() Tuning {
	ret := make(Tuning, len(t))
	copy(ret, t)
	return ret
}

// ParseTuning parses a tuning given as note names or MIDI numbers separated
// by commas or spaces, string 1 first, e.g. "E4 B3 G3 D3 A2 E2" or
// "64,59,55,50,45,40".
func ParseTuning(s string) (Tuning, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
	if len(fields) == 0 {
		return nil, errors.New("empty tuning")
	}
	ret := make(Tuning, len(fields))
	for i, f := range fields {
		if n, err := strconv.Atoi(f); err == nil {
			ret[i] = n
			continue
		}
		n, err := NoteNumber(f)
		if err != nil {
			return nil, errors.Wrapf(err, "string %d", i+1)
		}
		ret[i] = n
	}
	return ret, nil
}

// NoteNumber is the inverse of NoteName: "E4" is 64. Flats are accepted too.
func NoteNumber(name string) (int, error) {
	i := 1
	if len(name) > 1 && (name[1] == '#' || name[1] == 'b') {
		i = 2
	}
	if len(name) <= i {
		return 0, errors.Errorf("invalid note name %q", name)
	}
	pitch := strings.ToUpper(name[:1])
	n := slices.Index(noteNames, pitch)
	if n < 0 {
		return 0, errors.Errorf("invalid note name %q", name)
	}
	switch name[i-1] {
	case '#':
		n++
	case 'b':
		if i == 2 {
			n--
		}
	}
	octave, err := strconv.Atoi(name[i:])
	if err != nil {
		return 0, errors.Errorf("invalid octave in note name %q", name)
	}
	return (octave+1)*12 + n, nil
}
