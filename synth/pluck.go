package synth

import (
	"math"

	"github.com/pkg/errors"
	"github.com/tabstep/tabstep"
	"github.com/viterin/vek/vek32"
)

type (
	// Pluck is a Karplus-Strong plucked string synth, one voice per guitar
	// string. A Trigger fills the delay line of the voice with noise, which
	// then rings through a lowpassed feedback loop; Release damps the loop so
	// the note dies out in a few milliseconds.
	Pluck struct {
		sampleRate int
		voices     []voice
		randSeed   uint32
		mono       []float32
		tmp        []float32
	}

	voice struct {
		delay    []float32
		pos      int
		gain     float32
		feedback float32
		pan      float32
		active   bool
	}
)

const (
	MaxVoices = 12

	ringFeedback    = 0.996
	releaseFeedback = 0.6
	silenceLevel    = 1e-4
	masterGain      = 0.3
)

var _ tabstep.Synth = (*Pluck)(nil)

// NewPluck returns a Pluck synth with the given number of voices.
func NewPluck(sampleRate, voices int) (*Pluck, error) {
	if sampleRate <= 0 {
		return nil, errors.Errorf("invalid sample rate %v", sampleRate)
	}
	if voices <= 0 || voices > MaxVoices {
		return nil, errors.Errorf("number of voices should be between 1 and %v, got %v", MaxVoices, voices)
	}
	ret := &Pluck{sampleRate: sampleRate, voices: make([]voice, voices), randSeed: 1}
	for i := range ret.voices {
		// spread the strings from left (low) to right (high)
		ret.voices[i].pan = 0.5
		if voices > 1 {
			ret.voices[i].pan = 0.75 - 0.5*float32(i)/float32(voices-1)
		}
	}
	return ret, nil
}

func (p *Pluck) Trigger(voiceIndex int, note byte, velocity float32) {
	if voiceIndex < 0 || voiceIndex >= len(p.voices) {
		return
	}
	v := &p.voices[voiceIndex]
	freq := 440 * math.Exp2((float64(note)-69)/12)
	length := max(2, int(math.Round(float64(p.sampleRate)/freq)))
	if cap(v.delay) >= length {
		v.delay = v.delay[:length]
	} else {
		v.delay = make([]float32, length)
	}
	for i := range v.delay {
		v.delay[i] = p.rand()
	}
	v.pos = 0
	v.gain = velocity
	v.feedback = ringFeedback
	v.active = true
}

func (p *Pluck) Release(voiceIndex int) {
	if voiceIndex < 0 || voiceIndex >= len(p.voices) {
		return
	}
	p.voices[voiceIndex].feedback = releaseFeedback
}

// Render fills the interleaved stereo buffer, overwriting its contents.
func (p *Pluck) Render(buffer []float32) error {
	if len(buffer)%2 != 0 {
		return errors.Errorf("stereo buffer should have even length, got %v", len(buffer))
	}
	frames := len(buffer) / 2
	p.mono = grow(p.mono, frames)
	p.tmp = grow(p.tmp, frames)
	clear(buffer)
	for i := range p.voices {
		v := &p.voices[i]
		if !v.active {
			continue
		}
		out := p.tmp[:frames]
		peak := v.render(out)
		vek32.MulNumber_Inplace(out, v.gain*masterGain)
		left := vek32.MulNumber_Into(p.mono[:frames], out, 1-v.pan)
		for f := 0; f < frames; f++ {
			buffer[f*2] += left[f]
			buffer[f*2+1] += out[f] * v.pan
		}
		if peak < silenceLevel {
			v.active = false
		}
	}
	return nil
}

// render runs the string for len(out) samples and returns the peak level of
// the last delay line period.
func (v *voice) render(out []float32) float32 {
	n := len(v.delay)
	for i := range out {
		next := v.pos + 1
		if next == n {
			next = 0
		}
		s := v.delay[v.pos]
		v.delay[v.pos] = v.feedback * 0.5 * (s + v.delay[next])
		out[i] = s
		v.pos = next
	}
	var peak float32
	for _, s := range v.delay {
		peak = max(peak, float32(math.Abs(float64(s))))
	}
	return peak
}

func (p *Pluck) rand() float32 {
	p.randSeed *= 16007
	return float32(int32(p.randSeed)) / -2147483648.0
}

func grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}

// Normalize scales the buffer so its absolute peak is at the given level. A
// silent buffer is left as is.
func Normalize(buffer []float32, level float32) {
	if len(buffer) == 0 {
		return
	}
	abs := vek32.Abs(buffer)
	peak := vek32.Max(abs)
	if peak == 0 {
		return
	}
	vek32.MulNumber_Inplace(buffer, level/peak)
}
