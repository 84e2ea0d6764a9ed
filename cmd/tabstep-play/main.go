package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/tabstep/tabstep"
	"github.com/tabstep/tabstep/config"
	"github.com/tabstep/tabstep/midi"
	"github.com/tabstep/tabstep/oto"
	"github.com/tabstep/tabstep/rpc"
	"github.com/tabstep/tabstep/synth"
	"github.com/tabstep/tabstep/tabtext"
	"github.com/tabstep/tabstep/version"
)

// chunkFrames is the size of the blocks written to the audio device; the
// follower can not be more precise than this.
const chunkFrames = 1024

var logger = slog.Default()

func initLogger(level slog.Level) {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func main() {
	// a missing .env is fine, the environment and the defaults are used then
	_ = godotenv.Load()
	cfg := config.Load()
	stdout := flag.Bool("s", false, "Do not write files; write to standard output instead.")
	help := flag.Bool("h", false, "Show help.")
	directory := flag.String("o", "", "Directory where to output all files. The directory and its parents are created if needed. By default, everything is placed in the working directory.")
	play := flag.Bool("p", false, "Play the input scores (default behaviour when no other output is defined).")
	rawOut := flag.Bool("r", false, "Output the rendered score as .raw file. By default, saves stereo float32 buffer to disk.")
	wavOut := flag.Bool("w", false, "Output the rendered score as .wav file. By default, saves stereo float32 buffer to disk.")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when outputting.")
	midiOut := flag.Bool("m", false, "Output the steps as a .mid file.")
	tabOut := flag.Bool("t", false, "Output the score as an ASCII tab (.tab.txt).")
	timelineOut := flag.Bool("l", false, "Output a listing of the steps (.steps.txt).")
	yamlOut := flag.Bool("y", false, "Output the steps as .yml.")
	jsonOut := flag.Bool("j", false, "Output the steps as .json.")
	bpm := flag.Float64("bpm", cfg.BPM, "Tempo in beats per minute; 0 uses the tempo of the score.")
	tuningFlag := flag.String("tuning", cfg.Tuning, "Open string notes, string 1 first.")
	frets := flag.Int("frets", cfg.Frets, "Number of frets.")
	sampleRate := flag.Int("rate", cfg.SampleRate, "Sample rate of the rendered audio.")
	send := flag.Bool("send", false, "Send the playback position to a tabstep-follow listening at -rpc.")
	rpcAddress := flag.String("rpc", cfg.RPCAddress, "Address of the position follower.")
	debug := flag.Bool("d", false, "Log debug messages.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}
	level := cfg.LogLevel
	if *debug {
		level = slog.LevelDebug
	}
	initLogger(level)
	tuning, err := tabstep.ParseTuning(*tuningFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid tuning: %v\n", err)
		os.Exit(1)
	}
	if !*rawOut && !*wavOut && !*midiOut && !*tabOut && !*timelineOut && !*yamlOut && !*jsonOut {
		*play = true // if the user gives nothing to output, then the default behaviour is just to play the file
	}
	var audioContext *oto.OtoContext
	if *play {
		audioContext, err = oto.NewContext(*sampleRate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not acquire oto AudioContext: %v\n", err)
			os.Exit(1)
		}
	}
	var positions chan<- rpc.Position
	if *send {
		positions, err = rpc.Sender(*rpcAddress, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not connect to the follower: %v\n", err)
			os.Exit(1)
		}
	}
	exporter, err := tabtext.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	exporter.Logger = logger
	process := func(filename string) error {
		output := func(extension string, contents []byte) error {
			if *stdout {
				_, err := os.Stdout.Write(contents)
				return err
			}
			_, name := filepath.Split(filename)
			dir := *directory
			if dir == "" {
				var err error
				dir, err = os.Getwd()
				if err != nil {
					return errors.Wrap(err, "could not get working directory, specify the output directory explicitly")
				}
			}
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return errors.Wrapf(err, "could not create output directory %v", dir)
			}
			name = strings.TrimSuffix(name, filepath.Ext(name)) + extension
			f := filepath.Join(dir, name)
			if err := os.WriteFile(f, contents, 0644); err != nil {
				return errors.Wrapf(err, "could not write file %v", f)
			}
			return nil
		}
		score, err := tabstep.LoadScore(filename)
		if err != nil {
			return err
		}
		gen := tabstep.NewGenerator(score,
			tabstep.WithBPM(*bpm),
			tabstep.WithTuning(tuning),
			tabstep.WithFrets(*frets),
			tabstep.WithLogger(logger.With("file", filepath.Base(filename))))
		steps := gen.GenerateSteps()
		logger.Info("steps generated", "file", filename, "steps", len(steps), "bpm", gen.BPM(), "length", tabstep.Length(steps))
		if *yamlOut {
			out, err := tabstep.MarshalSteps(steps)
			if err != nil {
				return err
			}
			if err := output(".steps.yml", out); err != nil {
				return errors.Wrap(err, "error outputting .yml file")
			}
		}
		if *jsonOut {
			out, err := json.MarshalIndent(steps, "", "  ")
			if err != nil {
				return errors.Wrap(err, "could not marshal steps as json")
			}
			if err := output(".steps.json", out); err != nil {
				return errors.Wrap(err, "error outputting .json file")
			}
		}
		if *midiOut {
			var buf bytes.Buffer
			header := midi.Header{Title: score.Title, BPM: gen.BPM(), TimeSignature: score.TimeSignatureFor(0)}
			if err := midi.WriteSteps(&buf, steps, header); err != nil {
				return errors.Wrap(err, "could not generate .mid file")
			}
			if err := output(".mid", buf.Bytes()); err != nil {
				return errors.Wrap(err, "error outputting .mid file")
			}
		}
		if *tabOut {
			tab, err := exporter.Tab(score, tuning)
			if err != nil {
				return err
			}
			if err := output(".tab.txt", []byte(tab)); err != nil {
				return errors.Wrap(err, "error outputting .tab.txt file")
			}
		}
		if *timelineOut {
			timeline, err := exporter.Timeline(score.Title, gen.BPM(), steps)
			if err != nil {
				return err
			}
			if err := output(".steps.txt", []byte(timeline)); err != nil {
				return errors.Wrap(err, "error outputting .steps.txt file")
			}
		}
		if !*play && !*rawOut && !*wavOut {
			return nil
		}
		pluck, err := synth.NewPluck(*sampleRate, max(len(tuning), 1))
		if err != nil {
			return err
		}
		buffer, err := tabstep.Play(pluck, steps, *sampleRate)
		if err != nil {
			return errors.Wrap(err, "tabstep.Play failed")
		}
		synth.Normalize(buffer, 0.9)
		if *rawOut {
			raw, err := tabstep.Raw(buffer, *pcm)
			if err != nil {
				return errors.Wrap(err, "could not generate .raw file")
			}
			if err := output(".raw", raw); err != nil {
				return errors.Wrap(err, "error outputting .raw file")
			}
		}
		if *wavOut {
			wav, err := tabstep.Wav(buffer, *sampleRate, *pcm)
			if err != nil {
				return errors.Wrap(err, "could not generate .wav file")
			}
			if err := output(".wav", wav); err != nil {
				return errors.Wrap(err, "error outputting .wav file")
			}
		}
		if *play {
			return playAndFollow(audioContext, gen, steps, buffer, positions)
		}
		return nil
	}
	retval := 0
	for _, param := range flag.Args() {
		if info, err := os.Stat(param); err == nil && info.IsDir() {
			jsonfiles, err := filepath.Glob(filepath.Join(param, "*.json"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not glob the path %v for json files: %v\n", param, err)
				retval = 1
				continue
			}
			ymlfiles, err := filepath.Glob(filepath.Join(param, "*.yml"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not glob the path %v for yml files: %v\n", param, err)
				retval = 1
				continue
			}
			files := append(ymlfiles, jsonfiles...)
			for _, file := range files {
				if err := process(file); err != nil {
					fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", file, err)
					retval = 1
				}
			}
		} else {
			if err := process(param); err != nil {
				fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", param, err)
				retval = 1
			}
		}
	}
	os.Exit(retval)
}

// playAndFollow plays the buffer and keeps the cursor of the generator on the
// step being heard, forwarding every position change to the follower.
func playAndFollow(ctx *oto.OtoContext, gen *tabstep.Generator, steps []tabstep.Step, buffer []float32, positions chan<- rpc.Position) error {
	out := ctx.NewOutput()
	done := make(chan struct{})
	followerDone := make(chan struct{})
	go func() {
		defer close(followerDone)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		current := -1
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			seconds := float64(out.PlayedFrames()) / float64(ctx.SampleRate())
			i := tabstep.StepAt(steps, seconds)
			if i < 0 || i == current {
				continue
			}
			current = i
			gen.SyncCursorToVirtualPosition(steps[i].VirtualPosition)
			vp, ok := gen.CurrentVirtualStep()
			if !ok {
				continue
			}
			logger.Debug("position", "virtual", vp.VirtualPosition, "measure", vp.PhysicalMeasure, "timestamp", vp.PhysicalTimestamp.String(), "seconds", seconds)
			if positions != nil {
				positions <- rpc.Position{VirtualPosition: vp.VirtualPosition, PhysicalMeasure: vp.PhysicalMeasure, Seconds: seconds}
			}
		}
	}()
	var err error
	for i := 0; i < len(buffer) && err == nil; i += chunkFrames * 2 {
		err = out.WriteAudio(buffer[i:min(i+chunkFrames*2, len(buffer))])
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	close(done)
	<-followerDone
	gen.ResetRepeatedCursor()
	return err
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "tabstep command line utility for playing and exporting .yml/.json tab scores.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
