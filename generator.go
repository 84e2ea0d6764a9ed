package tabstep

import (
	"context"
	"log/slog"
	"sync"
)

const (
	DefaultBPM         = 120
	DefaultMaxMeasures = 200
	// DefaultSubdivisions is the guessed number of cursor stops per measure
	// used to estimate backward jumps before fine-tuning.
	DefaultSubdivisions = 4
	// DefaultFineTuneIterations bounds the single-stop corrections after a
	// backward jump.
	DefaultFineTuneIterations = 32

	quarterNote        = 0.25
	timestampTolerance = 1e-2
)

type (
	// Generator turns a score into a linear, repeat-expanded timeline of
	// steps. It owns the native cursor of the score; all methods are
	// serialized, so one Generator drives one cursor at a time.
	Generator struct {
		mu sync.Mutex

		score              *Score
		cursor             Cursor
		bpm                float64
		tuning             Tuning
		frets              int
		fretboardNotes     [][]FretboardNote
		maxMeasures        int
		subdivisions       float64
		fineTuneIterations int
		logger             *slog.Logger

		sequence              []MeasureInfo
		virtualMap            []VirtualPosition
		virtualCursorPosition int
	}

	Option func(*Generator)
)

// WithBPM sets the tempo, overriding the tempo found in the score.
func WithBPM(bpm float64) Option {
	return func(g *Generator) {
		if bpm > 0 {
			g.bpm = bpm
		}
	}
}

func WithTuning(tuning Tuning) Option {
	return func(g *Generator) { g.tuning = tuning.Copy() }
}

func WithFrets(frets int) Option {
	return func(g *Generator) { g.frets = frets }
}

// WithMaxMeasures limits the number of written measures processed; 0 means
// no limit.
func WithMaxMeasures(n int) Option {
	return func(g *Generator) { g.maxMeasures = n }
}

func WithSubdivisions(n float64) Option {
	return func(g *Generator) {
		if n > 0 {
			g.subdivisions = n
		}
	}
}

func WithFineTuneIterations(n int) Option {
	return func(g *Generator) { g.fineTuneIterations = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithCursor replaces the native cursor of the score, e.g. with one provided
// by a rendering layer that moves along with it.
func WithCursor(c Cursor) Option {
	return func(g *Generator) { g.cursor = c }
}

// NewGenerator returns a Generator for the score. Without WithBPM, the tempo
// is taken from the score and defaults to DefaultBPM.
func NewGenerator(score *Score, opts ...Option) *Generator {
	g := &Generator{
		score:              score,
		tuning:             StandardTuning.Copy(),
		frets:              DefaultFrets,
		maxMeasures:        DefaultMaxMeasures,
		subdivisions:       DefaultSubdivisions,
		fineTuneIterations: DefaultFineTuneIterations,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.bpm <= 0 {
		if bpm, ok := ExtractBPM(score); ok {
			g.logger.Debug("tempo found in score", "bpm", bpm)
			g.bpm = bpm
		} else {
			g.logger.Debug("no tempo in score, using default", "bpm", DefaultBPM)
			g.bpm = DefaultBPM
		}
	}
	if g.cursor == nil {
		g.cursor = NewScoreCursor(score)
	}
	g.fretboardNotes = FretboardNotes(g.tuning, g.frets)
	return g
}

func (g *Generator) BPM() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bpm
}

// SetBPM changes the tempo; the steps need to be generated again.
func (g *Generator) SetBPM(bpm float64) {
	if bpm <= 0 {
		g.logger.Warn("ignoring non-positive tempo", "bpm", bpm)
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bpm = bpm
}

// SetTuning changes the tuning; the steps need to be generated again.
func (g *Generator) SetTuning(tuning Tuning) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tuning = tuning.Copy()
	g.fretboardNotes = FretboardNotes(g.tuning, g.frets)
}

// FretboardNotes returns a copy of the note table of the current tuning,
// indexed by [string-1][fret].
func (g *Generator) FretboardNotes() [][]FretboardNote {
	g.mu.Lock()
	defer g.mu.Unlock()
	ret := make([][]FretboardNote, len(g.fretboardNotes))
	for i, notes := range g.fretboardNotes {
		ret[i] = append([]FretboardNote(nil), notes...)
	}
	return ret
}

// Cursor returns the native cursor, positioned at the current virtual
// position. It is shared with the Generator: callers must not move it, and
// must not read it concurrently with the methods of the Generator.
func (g *Generator) Cursor() Cursor {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cursor
}

// GenerateSteps builds the step timeline of the score and leaves the cursor at
// virtual position 0.
func (g *Generator) GenerateSteps() []Step {
	steps, _ := g.GenerateStepsContext(context.Background())
	return steps
}

// GenerateStepsContext is GenerateSteps with cancellation, checked between
// measures. On cancellation, the cursor is reset and ctx.Err() returned.
func (g *Generator) GenerateStepsContext(ctx context.Context) ([]Step, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.initRepeatedCursor(ctx); err != nil {
		return nil, err
	}
	wholeNote := 60 / g.bpm * 4
	steps := make([]Step, 0, len(g.virtualMap))
	currentTime := 0.0
	for g.virtualCursorPosition < len(g.virtualMap) {
		vp := g.virtualMap[g.virtualCursorPosition]
		if vp.VirtualPosition > 0 && vp.SequenceIndex != g.virtualMap[vp.VirtualPosition-1].SequenceIndex {
			if err := ctx.Err(); err != nil {
				g.resetRepeatedCursor()
				return nil, err
			}
		}
		entries := g.cursor.VoiceEntries()
		step := Step{
			TS:              currentTime,
			VirtualMeasure:  vp.VirtualMeasure,
			PhysicalMeasure: vp.PhysicalMeasure,
			VirtualPosition: vp.VirtualPosition,
			Notes:           g.collectNotes(entries, wholeNote),
		}
		step.StepDuration = g.stepLength(g.virtualCursorPosition, entries) * wholeNote
		steps = append(steps, step)
		if !g.nextWithRepeated() {
			break
		}
		currentTime += step.StepDuration
	}
	g.resetRepeatedCursor()
	return steps, nil
}

// collectNotes returns the notes of the tablature staves starting at the
// current stop. A tied note sounds once, from its start note, for the length
// of the whole tie.
func (g *Generator) collectNotes(entries []*VoiceEntry, wholeNote float64) []NoteEvent {
	var ret []NoteEvent
	for _, entry := range entries {
		if !g.score.IsTabStaff(entry.Staff) {
			continue
		}
		for k := range entry.Notes {
			note := &entry.Notes[k]
			if note.Rest {
				continue
			}
			duration := note.Length.RealValue() * wholeNote
			if tie := note.NoteTie(); tie != nil {
				if tie.StartNote() != note {
					continue
				}
				for _, n := range tie.Notes[1:] {
					duration += n.Length.RealValue() * wholeNote
				}
			}
			ret = append(ret, NoteEvent{
				Duration:      duration,
				Volume:        g.score.VoiceVolume(entry.Voice),
				String:        note.String,
				Fret:          note.Fret,
				FretboardNote: g.fretboardNote(note.String, note.Fret),
			})
		}
	}
	return ret
}

func (g *Generator) fretboardNote(str, fret int) FretboardNote {
	if str < 1 || str > len(g.fretboardNotes) || fret < 0 || fret >= len(g.fretboardNotes[str-1]) {
		g.logger.Warn("note outside of the fretboard", "string", str, "fret", fret)
		return FretboardNote{}
	}
	return g.fretboardNotes[str-1][fret]
}

// stepLength returns the length of the step at virtual position i in whole
// notes: up to the next virtual position, through the played measures in
// between if the next position jumps back, or the longest note for the last
// step.
func (g *Generator) stepLength(i int, entries []*VoiceEntry) float64 {
	cur := g.virtualMap[i]
	var length float64
	if i < len(g.virtualMap)-1 {
		next := g.virtualMap[i+1]
		if isBackwardJump(cur, next) {
			length = g.jumpLength(cur, next)
		} else {
			length = next.PhysicalTimestamp.RealValue() - cur.PhysicalTimestamp.RealValue()
		}
	} else {
		length = g.longestNote(entries)
	}
	if length <= 0 {
		g.logger.Warn("invalid step duration, using a quarter note", "duration", length, "step", i)
		length = quarterNote
	}
	return length
}

// jumpLength returns the time from cur to next when next jumps back. Played
// measures without stops between the two count in full.
func (g *Generator) jumpLength(cur, next VirtualPosition) float64 {
	length := g.measureEnd(cur) - cur.PhysicalTimestamp.RealValue()
	for i := cur.SequenceIndex + 1; i < next.SequenceIndex && i < len(g.sequence); i++ {
		length += g.score.MeasureLength(g.sequence[i].MeasureIndex).RealValue()
	}
	return length + next.MeasureTimestamp.RealValue()
}

func (g *Generator) measureEnd(vp VirtualPosition) float64 {
	if vp.PhysicalMeasure >= 0 && vp.PhysicalMeasure < len(g.score.Measures) {
		start := vp.PhysicalTimestamp.Sub(vp.MeasureTimestamp)
		return start.Add(g.score.MeasureLength(vp.PhysicalMeasure)).RealValue()
	}
	return float64(vp.PhysicalTimestamp.Floor()) + 1
}

func (g *Generator) longestNote(entries []*VoiceEntry) float64 {
	ret := 0.0
	for _, entry := range entries {
		if !g.score.IsTabStaff(entry.Staff) {
			continue
		}
		for _, note := range entry.Notes {
			if !note.Rest {
				ret = max(ret, note.Length.RealValue())
			}
		}
	}
	if ret == 0 {
		return quarterNote
	}
	return ret
}

// isBackwardJump reports whether next is not after cur in the score. A repeat
// of a measure with a single stop jumps back onto the same stop.
func isBackwardJump(cur, next VirtualPosition) bool {
	return next.PhysicalMeasure < cur.PhysicalMeasure ||
		(next.PhysicalMeasure == cur.PhysicalMeasure && !cur.PhysicalTimestamp.Less(next.PhysicalTimestamp))
}
