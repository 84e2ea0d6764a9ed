package oto

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/pkg/errors"
	"github.com/tabstep/tabstep"
)

type (
	OtoContext struct {
		context    *oto.Context
		sampleRate int
	}

	// OtoOutput feeds the audio written to it to an oto player through a
	// pipe, so WriteAudio blocks until the device has consumed enough.
	OtoOutput struct {
		player    *oto.Player
		writer    *io.PipeWriter
		tmpBuffer []byte
		written   atomic.Int64
	}
)

const bytesPerFrame = 4 // 2 channels of int16

var _ tabstep.AudioContext = (*OtoContext)(nil)

// NewContext opens the audio device. oto allows only one context per
// process.
func NewContext(sampleRate int) (*OtoContext, error) {
	context, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot create oto context")
	}
	<-ready
	return &OtoContext{context: context, sampleRate: sampleRate}, nil
}

func (c *OtoContext) SampleRate() int { return c.sampleRate }

func (c *OtoContext) Output() tabstep.AudioSink {
	return c.NewOutput()
}

// NewOutput is Output with the concrete type, for callers that want to know
// how far the playback has progressed.
func (c *OtoContext) NewOutput() *OtoOutput {
	reader, writer := io.Pipe()
	player := c.context.NewPlayer(reader)
	player.Play()
	return &OtoOutput{player: player, writer: writer}
}

// Close suspends the device; oto contexts cannot be reopened.
func (c *OtoContext) Close() error {
	if err := c.context.Suspend(); err != nil {
		return errors.Wrap(err, "cannot suspend oto context")
	}
	return nil
}

// WriteAudio implements the tabstep.AudioSink interface.
func (o *OtoOutput) WriteAudio(floatBuffer []float32) error {
	// we reuse the old capacity tmpBuffer by setting its length to zero
	o.tmpBuffer = FloatBufferTo16BitLE(floatBuffer, o.tmpBuffer[:0])
	n, err := o.writer.Write(o.tmpBuffer)
	o.written.Add(int64(n))
	if err != nil {
		return errors.Wrap(err, "cannot write to player")
	}
	return nil
}

// PlayedFrames returns the number of sample frames the device has played so
// far.
func (o *OtoOutput) PlayedFrames() int {
	played := o.written.Load() - int64(o.player.BufferedSize())
	return int(max(played, 0) / bytesPerFrame)
}

// Close waits for the written audio to finish playing and disposes of the
// player.
func (o *OtoOutput) Close() error {
	if err := o.writer.Close(); err != nil {
		return errors.Wrap(err, "cannot close the player pipe")
	}
	for o.player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	if err := o.player.Close(); err != nil {
		return errors.Wrap(err, "cannot close oto player")
	}
	return nil
}
