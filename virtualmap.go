package tabstep

import (
	"context"
	"math"
)

// VirtualPosition maps one index of the repeat-expanded performance order to
// the written position the native cursor stops at.
type VirtualPosition struct {
	VirtualPosition   int
	PhysicalMeasure   int
	PhysicalTimestamp Fraction // absolute, from the start of the score
	MeasureTimestamp  Fraction // relative to the start of PhysicalMeasure
	// VirtualMeasure is the measure index of the playback sequence entry the
	// position was recorded for.
	VirtualMeasure int
	// SequenceIndex is the index of that entry in the playback sequence.
	SequenceIndex int
}

// initRepeatedCursor drives the native cursor once through the playback
// sequence and records a virtual position at every stop of every measure
// visit. The cursor is reset afterwards.
func (g *Generator) initRepeatedCursor(ctx context.Context) error {
	sequence := BuildPlaybackSequence(AnalyzeRepeats(g.score, g.maxMeasures, g.logger))
	g.sequence = sequence
	c := g.cursor
	g.virtualMap = make([]VirtualPosition, 0, len(sequence)*int(g.subdivisions))
	c.Reset()
	currentMeasure := 0
	for seqIndex, info := range sequence {
		if err := ctx.Err(); err != nil {
			g.virtualMap, g.sequence = nil, nil
			g.resetRepeatedCursor()
			return err
		}
		for currentMeasure < info.MeasureIndex && !c.EndReached() {
			c.Next()
			if c.MeasureIndex() > currentMeasure {
				currentMeasure = c.MeasureIndex()
			}
		}
		// the measure was passed already: walk again from the start
		if c.MeasureIndex() != info.MeasureIndex {
			c.Reset()
			for !c.EndReached() && c.MeasureIndex() < info.MeasureIndex {
				c.Next()
			}
			currentMeasure = c.MeasureIndex()
		}
		if c.MeasureIndex() != info.MeasureIndex {
			g.logger.Debug("measure has no cursor stops", "measure", info.MeasureIndex)
		}
		for !c.EndReached() && c.MeasureIndex() == info.MeasureIndex {
			g.virtualMap = append(g.virtualMap, VirtualPosition{
				VirtualPosition:   len(g.virtualMap),
				PhysicalMeasure:   c.MeasureIndex(),
				PhysicalTimestamp: c.Timestamp(),
				MeasureTimestamp:  c.MeasureTimestamp(),
				VirtualMeasure:    info.MeasureIndex,
				SequenceIndex:     seqIndex,
			})
			c.Next()
		}
		if !c.EndReached() {
			currentMeasure = c.MeasureIndex()
		}
	}
	g.resetRepeatedCursor()
	return nil
}

// ResetRepeatedCursor moves the cursor back to virtual position 0.
func (g *Generator) ResetRepeatedCursor() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetRepeatedCursor()
}

func (g *Generator) resetRepeatedCursor() {
	g.cursor.Reset()
	g.virtualCursorPosition = 0
}

// NextWithRepeated advances the cursor by one virtual position, following
// repeat jumps. It returns false at the last position.
func (g *Generator) NextWithRepeated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextWithRepeated()
}

func (g *Generator) nextWithRepeated() bool {
	if g.virtualCursorPosition >= len(g.virtualMap)-1 {
		return false
	}
	cur := g.virtualMap[g.virtualCursorPosition]
	next := g.virtualMap[g.virtualCursorPosition+1]
	switch {
	case next.PhysicalMeasure == cur.PhysicalMeasure && cur.PhysicalTimestamp.Less(next.PhysicalTimestamp):
		g.cursor.Next()
	case next.PhysicalMeasure == cur.PhysicalMeasure+1:
		g.cursor.Next()
	case isBackwardJump(cur, next):
		g.jumpBack(cur, next)
	default:
		g.cursor.Next()
	}
	g.virtualCursorPosition++
	return true
}

// jumpBack moves the cursor from cur back to target: first by an estimated
// number of stops, assuming g.subdivisions stops per measure, then one stop
// at a time until the position matches.
func (g *Generator) jumpBack(cur, target VirtualPosition) {
	measureDelta := float64(cur.PhysicalMeasure - target.PhysicalMeasure)
	offsetDelta := cur.MeasureTimestamp.Sub(target.MeasureTimestamp).RealValue()
	stepsBack := int(math.Round(measureDelta*g.subdivisions + offsetDelta*g.subdivisions))
	for i := 0; i < stepsBack; i++ {
		if g.cursor.FrontReached() {
			g.logger.Warn("hit the start of the score while jumping back", "steps", i, "estimate", stepsBack)
			break
		}
		g.cursor.Previous()
	}
	for i := 0; i < g.fineTuneIterations && !g.cursor.EndReached(); i++ {
		if g.cursorAt(target) {
			return
		}
		m, ts := g.cursor.MeasureIndex(), g.cursor.Timestamp()
		if m < target.PhysicalMeasure || (m == target.PhysicalMeasure && ts.Less(target.PhysicalTimestamp)) {
			g.cursor.Next()
		} else {
			g.cursor.Previous()
		}
	}
	if !g.cursorAt(target) {
		g.logger.Warn("could not reach the repeat target, continuing from the closest position",
			"targetMeasure", target.PhysicalMeasure, "targetTimestamp", target.PhysicalTimestamp.String(),
			"measure", g.cursor.MeasureIndex(), "timestamp", g.cursor.Timestamp().String())
	}
}

func (g *Generator) cursorAt(vp VirtualPosition) bool {
	return g.cursor.MeasureIndex() == vp.PhysicalMeasure &&
		math.Abs(g.cursor.Timestamp().RealValue()-vp.PhysicalTimestamp.RealValue()) < timestampTolerance
}

// SyncCursorToVirtualPosition moves the cursor to the virtual position n. An
// out of range n is ignored.
func (g *Generator) SyncCursorToVirtualPosition(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n < 0 || n >= len(g.virtualMap) {
		g.logger.Warn("invalid virtual position", "position", n, "positions", len(g.virtualMap))
		return
	}
	if n == g.virtualCursorPosition {
		return
	}
	if n < g.virtualCursorPosition {
		g.resetRepeatedCursor()
	}
	for g.virtualCursorPosition < n {
		if !g.nextWithRepeated() {
			break
		}
	}
}

// VirtualCursorPosition returns the current virtual position.
func (g *Generator) VirtualCursorPosition() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.virtualCursorPosition
}

// CurrentVirtualStep returns the mapping of the current virtual position; ok
// is false before the steps are generated.
func (g *Generator) CurrentVirtualStep() (vp VirtualPosition, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.virtualCursorPosition < len(g.virtualMap) {
		return g.virtualMap[g.virtualCursorPosition], true
	}
	return VirtualPosition{}, false
}

// VirtualMap returns a copy of the virtual-to-physical map of the last
// generation.
func (g *Generator) VirtualMap() []VirtualPosition {
	g.mu.Lock()
	defer g.mu.Unlock()
	ret := make([]VirtualPosition, len(g.virtualMap))
	copy(ret, g.virtualMap)
	return ret
}
