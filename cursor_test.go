package tabstep_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tabstep/tabstep"
)

func TestScoreCursor(t *testing.T) {
	score := loadScore(t, "sample-3-4.yml")
	c := tabstep.NewScoreCursor(score)
	// the notation and tab entries at the start share a stop
	require.Equal(t, 5, c.Len())
	assert.True(t, c.FrontReached())
	assert.Len(t, c.VoiceEntries(), 2)
	expected := []struct {
		measure  int
		absolute tabstep.Fraction
		relative tabstep.Fraction
	}{
		{0, tabstep.Whole(0), tabstep.Whole(0)},
		{0, tabstep.NewFraction(1, 2), tabstep.NewFraction(1, 2)},
		{1, tabstep.NewFraction(3, 4), tabstep.Whole(0)},
		{1, tabstep.Whole(1), tabstep.NewFraction(1, 4)},
		{1, tabstep.NewFraction(5, 4), tabstep.NewFraction(1, 2)},
	}
	for i, e := range expected {
		require.False(t, c.EndReached())
		assert.Equal(t, e.measure, c.MeasureIndex(), "stop %d", i)
		assert.True(t, e.absolute.Equal(c.Timestamp()), "stop %d", i)
		assert.True(t, e.relative.Equal(c.MeasureTimestamp()), "stop %d", i)
		c.Next()
	}
	assert.True(t, c.EndReached())
	assert.Equal(t, 2, c.MeasureIndex())
	assert.True(t, tabstep.NewFraction(3, 2).Equal(c.Timestamp()))
	assert.Nil(t, c.VoiceEntries())
	c.Next()
	assert.True(t, c.EndReached())
	c.Previous()
	assert.Equal(t, 1, c.MeasureIndex())
	c.Reset()
	assert.True(t, c.FrontReached())
	c.Previous()
	assert.Equal(t, 0, c.MeasureIndex())
}
