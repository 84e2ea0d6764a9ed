package tabstep

// AudioSink receives interleaved stereo float32 audio. WriteAudio may block
// until the sink has room for the buffer.
type AudioSink interface {
	WriteAudio(buffer []float32) error
	Close() error
}

// AudioContext opens AudioSinks on an audio device.
type AudioContext interface {
	Output() AudioSink
	SampleRate() int
	Close() error
}
