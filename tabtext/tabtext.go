// Package tabtext renders scores and step timelines as plain text: an ASCII
// tablature of the written measures and a listing of the generated steps.
package tabtext

import (
	"bytes"
	"embed"
	"log/slog"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"github.com/tabstep/tabstep"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*
var templateFS embed.FS

// DefaultMeasuresPerLine is the number of measures per system of the tab.
const DefaultMeasuresPerLine = 4

type (
	Exporter struct {
		Template        *template.Template
		MeasuresPerLine int
		Logger          *slog.Logger
	}

	TabMeasure struct {
		Number      int
		StartRepeat bool
		EndRepeat   bool
		// Strings holds the cells of the measure, [string-1][column], each
		// already padded with dashes.
		Strings [][]string
	}

	tabData struct {
		Title   string
		Labels  []string
		Systems [][]TabMeasure
	}

	timelineData struct {
		Title  string
		BPM    float64
		Steps  []tabstep.Step
		Length float64
	}
)

// New returns an Exporter using the built-in templates.
func New() (*Exporter, error) {
	funcs := sprig.TxtFuncMap()
	caser := cases.Title(language.English)
	funcs["title"] = caser.String
	tmpl, err := template.New("base").Funcs(funcs).ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, errors.Wrap(err, "could not parse the text templates")
	}
	return &Exporter{Template: tmpl, MeasuresPerLine: DefaultMeasuresPerLine, Logger: slog.Default()}, nil
}

// Tab renders the written measures of the tablature staves, with repeat
// signs, one line per string of the tuning.
func (e *Exporter) Tab(score *tabstep.Score, tuning tabstep.Tuning) (string, error) {
	if len(tuning) == 0 {
		return "", errors.New("tuning has no strings")
	}
	measures := TabMeasures(score, len(tuning), e.Logger)
	perLine := e.MeasuresPerLine
	if perLine <= 0 {
		perLine = len(measures)
	}
	data := tabData{Title: score.Title, Labels: labels(tuning)}
	for i := 0; i < len(measures); i += perLine {
		data.Systems = append(data.Systems, measures[i:min(i+perLine, len(measures))])
	}
	return e.execute("tab.txt", data)
}

// Timeline lists the steps, one per line, followed by the total length.
func (e *Exporter) Timeline(title string, bpm float64, steps []tabstep.Step) (string, error) {
	return e.execute("timeline.txt", timelineData{Title: title, BPM: bpm, Steps: steps, Length: tabstep.Length(steps)})
}

func (e *Exporter) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := e.Template.ExecuteTemplate(&buf, name, data); err != nil {
		return "", errors.Wrapf(err, "could not execute template %v", name)
	}
	return buf.String(), nil
}

// TabMeasures lays out the written measures as tab cells: one column per
// cursor stop, continuations of ties in parentheses.
func TabMeasures(score *tabstep.Score, numStrings int, logger *slog.Logger) []TabMeasure {
	if numStrings <= 0 {
		return nil
	}
	infos := tabstep.AnalyzeRepeats(score, 0, logger)
	ret := make([]TabMeasure, len(score.Measures))
	for i := range ret {
		ret[i] = TabMeasure{Number: score.Measures[i].Number, Strings: make([][]string, numStrings)}
		if i < len(infos) {
			ret[i].StartRepeat = infos[i].HasStartRepeat
			ret[i].EndRepeat = infos[i].HasEndRepeat
		}
	}
	c := tabstep.NewScoreCursor(score)
	for c.Reset(); !c.EndReached(); c.Next() {
		cells := make([]string, numStrings)
		for _, entry := range c.VoiceEntries() {
			if !score.IsTabStaff(entry.Staff) {
				continue
			}
			for k := range entry.Notes {
				note := &entry.Notes[k]
				if note.Rest || note.String < 1 || note.String > numStrings {
					continue
				}
				cell := strconv.Itoa(note.Fret)
				if tie := note.NoteTie(); tie != nil && tie.StartNote() != note {
					cell = "(" + cell + ")"
				}
				cells[note.String-1] = cell
			}
		}
		m := &ret[c.MeasureIndex()]
		appendColumn(m, cells)
	}
	for i := range ret {
		if len(ret[i].Strings[0]) == 0 {
			appendColumn(&ret[i], make([]string, numStrings))
		}
		// room before the closing bar
		appendColumn(&ret[i], nil)
	}
	return ret
}

func appendColumn(m *TabMeasure, cells []string) {
	width := 1
	for _, c := range cells {
		width = max(width, len(c))
	}
	for s := range m.Strings {
		var cell string
		if s < len(cells) {
			cell = cells[s]
		}
		m.Strings[s] = append(m.Strings[s], "-"+cell+strings.Repeat("-", width-len(cell)))
	}
}

func labels(tuning tabstep.Tuning) []string {
	ret := make([]string, len(tuning))
	width := 0
	for i, midi := range tuning {
		name := tabstep.NoteName(midi)
		ret[i] = strings.TrimRight(name, "-0123456789")
		width = max(width, len(ret[i]))
	}
	if len(ret) > 1 && ret[0] == ret[len(ret)-1] {
		ret[0] = strings.ToLower(ret[0])
	}
	for i := range ret {
		ret[i] += strings.Repeat(" ", width-len(ret[i]))
	}
	return ret
}
