package tabstep

import "slices"

// Cursor is the native, relative-stepping position iterator over a score. It
// can only be reset to the start and moved one stop forward or backward; the
// step generator builds its random-access virtual positions on top of it.
type Cursor interface {
	Reset()
	Next()
	Previous()
	EndReached() bool
	FrontReached() bool
	// MeasureIndex returns the index of the current measure; once the end is
	// reached it returns the number of measures.
	MeasureIndex() int
	// Timestamp returns the absolute position from the start of the score,
	// in whole notes.
	Timestamp() Fraction
	// MeasureTimestamp returns the position relative to the start of the
	// current measure.
	MeasureTimestamp() Fraction
	// VoiceEntries returns the entries starting at the current stop, across
	// all staves and voices.
	VoiceEntries() []*VoiceEntry
}

// ScoreCursor is the Cursor of a Score. It stops at every distinct timestamp
// of every measure where any voice entry begins; measures without entries
// have no stops.
type ScoreCursor struct {
	score *Score
	stops []cursorStop
	end   Fraction
	index int
}

type cursorStop struct {
	measure   int
	offset    Fraction
	timestamp Fraction
	entries   []*VoiceEntry
}

func NewScoreCursor(score *Score) *ScoreCursor {
	starts := score.MeasureStarts()
	c := &ScoreCursor{score: score, end: starts[len(starts)-1]}
	for i := range score.Measures {
		entries := make([]*VoiceEntry, len(score.Measures[i].Entries))
		for j := range entries {
			entries[j] = &score.Measures[i].Entries[j]
		}
		slices.SortStableFunc(entries, func(a, b *VoiceEntry) int {
			return a.Timestamp.Cmp(b.Timestamp)
		})
		for _, e := range entries {
			if n := len(c.stops); n > 0 && c.stops[n-1].measure == i && c.stops[n-1].offset.Equal(e.Timestamp) {
				c.stops[n-1].entries = append(c.stops[n-1].entries, e)
				continue
			}
			c.stops = append(c.stops, cursorStop{
				measure:   i,
				offset:    e.Timestamp,
				timestamp: starts[i].Add(e.Timestamp),
				entries:   []*VoiceEntry{e},
			})
		}
	}
	return c
}

func (c *ScoreCursor) Reset() { c.index = 0 }

func (c *ScoreCursor) Next() {
	if c.index < len(c.stops) {
		c.index++
	}
}

func (c *ScoreCursor) Previous() {
	if c.index > 0 {
		c.index--
	}
}

func (c *ScoreCursor) EndReached() bool   { return c.index >= len(c.stops) }
func (c *ScoreCursor) FrontReached() bool { return c.index <= 0 }

func (c *ScoreCursor) MeasureIndex() int {
	if c.EndReached() {
		return len(c.score.Measures)
	}
	return c.stops[c.index].measure
}

func (c *ScoreCursor) Timestamp() Fraction {
	if c.EndReached() {
		return c.end
	}
	return c.stops[c.index].timestamp
}

func (c *ScoreCursor) MeasureTimestamp() Fraction {
	if c.EndReached() {
		return Whole(0)
	}
	return c.stops[c.index].offset
}

func (c *ScoreCursor) VoiceEntries() []*VoiceEntry {
	if c.EndReached() {
		return nil
	}
	return c.stops[c.index].entries
}

// Len returns the number of stops of the cursor.
func (c *ScoreCursor) Len() int { return len(c.stops) }
