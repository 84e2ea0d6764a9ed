package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"

	"github.com/tabstep/tabstep"
	"github.com/tabstep/tabstep/config"
	"github.com/tabstep/tabstep/rpc"
	"github.com/tabstep/tabstep/version"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	address := flag.String("rpc", cfg.RPCAddress, "Address to listen for positions on.")
	bpm := flag.Float64("bpm", cfg.BPM, "Tempo in beats per minute; should match the player. 0 uses the tempo of the score.")
	tuningFlag := flag.String("tuning", cfg.Tuning, "Open string notes, string 1 first.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	var gen *tabstep.Generator
	var steps []tabstep.Step
	if flag.NArg() > 0 {
		tuning, err := tabstep.ParseTuning(*tuningFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid tuning: %v\n", err)
			os.Exit(1)
		}
		score, err := tabstep.LoadScore(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		gen = tabstep.NewGenerator(score, tabstep.WithBPM(*bpm), tabstep.WithTuning(tuning), tabstep.WithLogger(logger))
		steps = gen.GenerateSteps()
	}
	positions, listener, err := rpc.Receiver(*address)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	logger.Info("listening for positions", "address", listener.Addr().String())
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		listener.Close()
	}()
	for pos := range positions {
		line := fmt.Sprintf("%8.3fs  position %4d  measure %3d", pos.Seconds, pos.VirtualPosition, pos.PhysicalMeasure+1)
		if gen != nil {
			gen.SyncCursorToVirtualPosition(pos.VirtualPosition)
			if vp, ok := gen.CurrentVirtualStep(); ok && vp.VirtualPosition < len(steps) {
				line += "  " + describe(steps[vp.VirtualPosition])
			}
		}
		fmt.Println(line)
	}
}

func describe(step tabstep.Step) string {
	notes := make([]string, len(step.Notes))
	for i, n := range step.Notes {
		notes[i] = fmt.Sprintf("%d/%d %s", n.String, n.Fret, n.FretboardNote.Name)
	}
	return strings.Join(notes, ", ")
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "tabstep-follow shows the position sent by tabstep-play -send.\nUsage: %s [flags] [score]\n", os.Args[0])
	flag.PrintDefaults()
}
