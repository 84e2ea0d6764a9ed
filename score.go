package tabstep

import (
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type (
	// Score is the in-memory score model the step generator walks: an ordered
	// list of measures holding voice entries, plus the staves and voices the
	// entries refer to. GraphicMeasures mirrors Measures (one slice per
	// measure, one element per staff) and carries the repeat flags of the
	// rendered score, which are populated independently of the repetition
	// instructions on the measures.
	//
	// A Score is used through a pointer once LinkTies has been called, as the
	// ties point into the Measures slices.
	Score struct {
		Title           string             `yaml:",omitempty"`
		DefaultTempo    float64            `yaml:",omitempty"`
		Staves          []Staff            `yaml:",omitempty"`
		Voices          []Voice            `yaml:",omitempty"`
		Measures        []Measure
		GraphicMeasures [][]GraphicMeasure `yaml:",omitempty"`
	}

	// Staff is one staff of the score; only entries of tablature staves
	// produce notes.
	Staff struct {
		Name string `yaml:",omitempty"`
		Tab  bool
	}

	// Voice carries the playback volume of all notes in the voice, 0..1.
	Voice struct {
		Volume float64
	}

	TimeSignature struct {
		Numerator   int
		Denominator int
	}

	// Measure is one written measure. Repeat markers may be attached either to
	// the start (FirstRepetitionInstructions) or to the end
	// (LastRepetitionInstructions) of the measure.
	Measure struct {
		Number                      int                     `yaml:",omitempty"`
		TimeSignature               *TimeSignature          `yaml:",omitempty,flow"`
		FirstRepetitionInstructions []RepetitionInstruction `yaml:",omitempty,flow"`
		LastRepetitionInstructions  []RepetitionInstruction `yaml:",omitempty,flow"`
		TempoExpressions            []TempoExpression       `yaml:",omitempty,flow"`
		FirstInstructions           []Instruction           `yaml:",omitempty,flow"`
		Entries                     []VoiceEntry
	}

	RepetitionInstruction struct {
		Type  RepetitionType
		Times int `yaml:",omitempty"` // total number of plays, for back jumps
	}

	// RepetitionType numbers follow the score-model library: 0 is a start
	// line, 1 and 2 close a repeat.
	RepetitionType int

	TempoExpression struct {
		Text       string  `yaml:",omitempty"`
		TempoInBpm float64 `yaml:",omitempty"`
	}

	// Instruction is an instruction placed before the first entry of a
	// measure, such as a metronome mark.
	Instruction struct {
		Kind       string  `yaml:",omitempty"`
		TempoInBpm float64 `yaml:",omitempty"`
	}

	GraphicMeasure struct {
		BeginRepeat bool `yaml:",omitempty"`
		EndRepeat   bool `yaml:",omitempty"`
	}

	// VoiceEntry is a group of notes of one voice starting at Timestamp,
	// relative to the start of the measure.
	VoiceEntry struct {
		Timestamp Fraction
		Staff     int `yaml:",omitempty"`
		Voice     int `yaml:",omitempty"`
		Notes     []Note
	}

	// Note is a single written note or rest. Notes sharing a non-zero Tie id
	// are tied together in document order.
	Note struct {
		Length Fraction
		Rest   bool `yaml:",omitempty"`
		String int  `yaml:",omitempty"`
		Fret   int  `yaml:",omitempty"`
		Tie    int  `yaml:",omitempty"`

		tie *Tie
	}

	// Tie links written notes that sound as one; Notes[0] is the start note.
	Tie struct {
		Notes []*Note
	}
)

const (
	StartLine RepetitionType = iota
	ForwardJump
	BackJumpLine
	Ending
	DaCapo
	DalSegno
	Fine
	ToCoda
	Coda
	Segno
)

var repetitionTypeNames = []string{
	"startline",
	"forwardjump",
	"backjumpline",
	"ending",
	"dacapo",
	"dalsegno",
	"fine",
	"tocoda",
	"coda",
	"segno",
}

func (t RepetitionType) Known() bool {
	return t >= StartLine && int(t) < len(repetitionTypeNames)
}

func (t RepetitionType) String() string {
	if t.Known() {
		return repetitionTypeNames[t]
	}
	return strconv.Itoa(int(t))
}

func (t RepetitionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts both the names and the raw numbers; unknown numbers
// are kept so the repeat analyzer can report them.
func (t *RepetitionType) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	if i := slices.Index(repetitionTypeNames, s); i >= 0 {
		*t = RepetitionType(i)
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.Errorf("unknown repetition type %q", s)
	}
	*t = RepetitionType(n)
	return nil
}

// NoteTie returns the tie the note belongs to, or nil if it is not tied.
func (n *Note) NoteTie() *Tie { return n.tie }

// StartNote returns the first note of the tie.
func (t *Tie) StartNote() *Note {
	if len(t.Notes) == 0 {
		return nil
	}
	return t.Notes[0]
}

// LinkTies resolves the Tie ids of all notes into Tie objects. Within a
// measure, entries are visited in timestamp order.
func (s *Score) LinkTies() {
	ties := map[int]*Tie{}
	for i := range s.Measures {
		entries := s.Measures[i].Entries
		order := make([]int, len(entries))
		for j := range order {
			order[j] = j
		}
		slices.SortStableFunc(order, func(a, b int) int {
			return entries[a].Timestamp.Cmp(entries[b].Timestamp)
		})
		for _, j := range order {
			for k := range entries[j].Notes {
				note := &entries[j].Notes[k]
				note.tie = nil
				if note.Tie == 0 {
					continue
				}
				t, ok := ties[note.Tie]
				if !ok {
					t = &Tie{}
					ties[note.Tie] = t
				}
				t.Notes = append(t.Notes, note)
				note.tie = t
			}
		}
	}
	// a tie with a single note is not a tie
	for _, t := range ties {
		if len(t.Notes) == 1 {
			t.Notes[0].tie = nil
		}
	}
}

// IsTabStaff reports if entries on the staff produce notes. A score that
// declares no staves is treated as a single tablature staff.
func (s *Score) IsTabStaff(staff int) bool {
	if len(s.Staves) == 0 {
		return staff == 0
	}
	if staff < 0 || staff >= len(s.Staves) {
		return false
	}
	return s.Staves[staff].Tab
}

// VoiceVolume returns the volume of a voice; undeclared voices play at 1.
func (s *Score) VoiceVolume(voice int) float64 {
	if voice < 0 || voice >= len(s.Voices) {
		return 1
	}
	return s.Voices[voice].Volume
}

// TimeSignatureFor returns the time signature active in the measure: the one
// set on the measure itself or on the closest measure before it, 4/4 if none.
func (s *Score) TimeSignatureFor(measureIndex int) TimeSignature {
	if measureIndex >= len(s.Measures) {
		measureIndex = len(s.Measures) - 1
	}
	for i := measureIndex; i >= 0; i-- {
		if ts := s.Measures[i].TimeSignature; ts != nil && ts.Numerator > 0 && ts.Denominator > 0 {
			return *ts
		}
	}
	return TimeSignature{4, 4}
}

// MeasureLength returns the nominal length of the measure in whole notes.
func (s *Score) MeasureLength(measureIndex int) Fraction {
	ts := s.TimeSignatureFor(measureIndex)
	return NewFraction(ts.Numerator, ts.Denominator)
}

// MeasureStarts returns the absolute start of every measure plus, as the last
// element, the end of the score.
func (s *Score) MeasureStarts() []Fraction {
	ret := make([]Fraction, len(s.Measures)+1)
	ret[0] = Whole(0)
	for i := range s.Measures {
		ret[i+1] = ret[i].Add(s.MeasureLength(i))
	}
	return ret
}

// GraphicMeasure returns the rendered counterpart of the measure on the first
// staff, if the score has one.
func (s *Score) GraphicMeasure(measureIndex int) (GraphicMeasure, bool) {
	if measureIndex < 0 || measureIndex >= len(s.GraphicMeasures) || len(s.GraphicMeasures[measureIndex]) == 0 {
		return GraphicMeasure{}, false
	}
	return s.GraphicMeasures[measureIndex][0], true
}

// Validate checks that the score looks playable: positive note lengths,
// entries within their measure, and staff and voice references that exist.
func (s *Score) Validate() error {
	if len(s.Measures) == 0 {
		return errors.New("score contains no measures")
	}
	for i := range s.Measures {
		ts := s.Measures[i].TimeSignature
		if ts != nil && (ts.Numerator <= 0 || ts.Denominator <= 0) {
			return errors.Errorf("measure %d: invalid time signature %d/%d", i, ts.Numerator, ts.Denominator)
		}
		length := s.MeasureLength(i)
		for j, e := range s.Measures[i].Entries {
			if e.Timestamp.Less(Whole(0)) || !e.Timestamp.Less(length) {
				return errors.Errorf("measure %d, entry %d: timestamp %v outside of measure length %v", i, j, e.Timestamp, length)
			}
			if len(s.Staves) > 0 && (e.Staff < 0 || e.Staff >= len(s.Staves)) {
				return errors.Errorf("measure %d, entry %d: staff %d does not exist", i, j, e.Staff)
			}
			if len(s.Voices) > 0 && (e.Voice < 0 || e.Voice >= len(s.Voices)) {
				return errors.Errorf("measure %d, entry %d: voice %d does not exist", i, j, e.Voice)
			}
			for k, n := range e.Notes {
				if !Whole(0).Less(n.Length) {
					return errors.Errorf("measure %d, entry %d, note %d: length should be > 0", i, j, k)
				}
				if !n.Rest && n.String < 1 {
					return errors.Errorf("measure %d, entry %d, note %d: string should be >= 1", i, j, k)
				}
			}
		}
	}
	return nil
}

// Copy makes a deep copy of a Score, with ties linked in the copy.
func (s *Score) Copy() *Score {
	ret := &Score{
		Title:        s.Title,
		DefaultTempo: s.DefaultTempo,
		Staves:       slices.Clone(s.Staves),
		Voices:       slices.Clone(s.Voices),
		Measures:     make([]Measure, len(s.Measures)),
	}
	for i, m := range s.Measures {
		ret.Measures[i] = m.Copy()
	}
	if s.GraphicMeasures != nil {
		ret.GraphicMeasures = make([][]GraphicMeasure, len(s.GraphicMeasures))
		for i, g := range s.GraphicMeasures {
			ret.GraphicMeasures[i] = slices.Clone(g)
		}
	}
	ret.LinkTies()
	return ret
}

func (m *Measure) Copy() Measure {
	ret := Measure{
		Number:                      m.Number,
		FirstRepetitionInstructions: slices.Clone(m.FirstRepetitionInstructions),
		LastRepetitionInstructions:  slices.Clone(m.LastRepetitionInstructions),
		TempoExpressions:            slices.Clone(m.TempoExpressions),
		FirstInstructions:           slices.Clone(m.FirstInstructions),
		Entries:                     make([]VoiceEntry, len(m.Entries)),
	}
	if m.TimeSignature != nil {
		ts := *m.TimeSignature
		ret.TimeSignature = &ts
	}
	for i, e := range m.Entries {
		e.Notes = slices.Clone(e.Notes)
		ret.Entries[i] = e
	}
	return ret
}
